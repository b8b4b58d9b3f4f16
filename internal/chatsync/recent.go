package chatsync

// RecentIDs is a bounded set of message ids. When full, the oldest id is
// evicted first. It is not safe for concurrent use; State guards it.
type RecentIDs struct {
	limit int
	order []string
	set   map[string]struct{}
}

// NewRecentIDs returns a set holding at most limit ids.
func NewRecentIDs(limit int) *RecentIDs {
	if limit <= 0 {
		limit = 1
	}
	return &RecentIDs{
		limit: limit,
		order: make([]string, 0, limit),
		set:   make(map[string]struct{}, limit),
	}
}

// Add records id and reports whether it was new.
func (r *RecentIDs) Add(id string) bool {
	if _, ok := r.set[id]; ok {
		return false
	}
	if len(r.order) == r.limit {
		oldest := r.order[0]
		delete(r.set, oldest)
		r.order = append(r.order[:0], r.order[1:]...)
	}
	r.order = append(r.order, id)
	r.set[id] = struct{}{}
	return true
}

// Contains reports whether id is still inside the window.
func (r *RecentIDs) Contains(id string) bool {
	_, ok := r.set[id]
	return ok
}

// Len returns the number of ids held.
func (r *RecentIDs) Len() int { return len(r.order) }
