package mongostore

import (
	"context"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// FindOrCreateRoom upserts the room for (listing, requester) and refreshes its provider.
func (s *Store) FindOrCreateRoom(ctx context.Context, listingID, requesterID string) (*models.Room, error) {
	lid, err := parseID("listing", listingID)
	if err != nil {
		return nil, err
	}
	rid, err := parseID("requester", requesterID)
	if err != nil {
		return nil, err
	}

	var listing listingDoc
	if err := s.listings.FindOne(ctx, bson.M{"_id": lid}).Decode(&listing); err != nil {
		return nil, notFoundOr(err, "find listing", "listing %s not found", listingID)
	}
	if listing.ProviderID.IsZero() {
		return nil, apperr.Invalid("listing %s has no provider", listingID)
	}

	room, err := s.upsertRoom(ctx, lid, rid, listing.ProviderID)
	if mongo.IsDuplicateKeyError(err) {
		// Two concurrent upserts both tried to insert; the loser retries as an update.
		room, err = s.upsertRoom(ctx, lid, rid, listing.ProviderID)
	}
	if err != nil {
		return nil, apperr.Server("upsert room", err)
	}
	m := room.model()
	return &m, nil
}

func (s *Store) upsertRoom(ctx context.Context, lid, rid, providerID bson.ObjectID) (*roomDoc, error) {
	now := time.Now().UTC()
	filter := bson.M{"listing_id": lid, "requester_id": rid}
	update := bson.M{
		"$set":         bson.M{"provider_id": providerID, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc roomDoc
	if err := s.rooms.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetRoom loads a room by id.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	oid, err := parseID("room", roomID)
	if err != nil {
		return nil, err
	}
	var doc roomDoc
	if err := s.rooms.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return nil, notFoundOr(err, "get room", "room %s not found", roomID)
	}
	m := doc.model()
	return &m, nil
}

// ListRoomsForIdentity returns the identity's rooms, most recently active first,
// enriched by one listings query, two aggregation pipelines and one directory lookup.
func (s *Store) ListRoomsForIdentity(ctx context.Context, id models.Identity) ([]models.RoomSummary, error) {
	otherRole, ok := storage.CounterpartRole(id.Role)
	if !ok {
		return []models.RoomSummary{}, nil
	}
	viewer, err := parseID("identity", id.ID)
	if err != nil {
		return nil, err
	}

	field := "requester_id"
	if id.Role == models.RoleProvider {
		field = "provider_id"
	}
	cursor, err := s.rooms.Find(ctx, bson.M{field: viewer},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, apperr.Server("list rooms", err)
	}
	var docs []roomDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Server("decode rooms", err)
	}
	if len(docs) == 0 {
		return []models.RoomSummary{}, nil
	}

	rooms := make([]models.Room, 0, len(docs))
	roomIDs := make([]bson.ObjectID, 0, len(docs))
	listingIDs := make([]bson.ObjectID, 0, len(docs))
	for _, d := range docs {
		rooms = append(rooms, d.model())
		roomIDs = append(roomIDs, d.ID)
		listingIDs = append(listingIDs, d.ListingID)
	}

	titles, err := s.listingTitles(ctx, listingIDs)
	if err != nil {
		return nil, err
	}
	last, err := s.lastMessages(ctx, roomIDs)
	if err != nil {
		return nil, err
	}
	unread, err := s.unreadCounts(ctx, roomIDs, viewer)
	if err != nil {
		return nil, err
	}

	dir, err := s.Directory(otherRole)
	if err != nil {
		return nil, err
	}
	profiles, err := dir.Profiles(ctx, storage.CounterpartIDs(id, rooms))
	if err != nil {
		return nil, apperr.Server("load participants", err)
	}

	return storage.Summarize(id, rooms, titles, last, unread, profiles), nil
}

func (s *Store) listingTitles(ctx context.Context, ids []bson.ObjectID) (map[string]string, error) {
	cursor, err := s.listings.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"title": 1}))
	if err != nil {
		return nil, apperr.Server("load listings", err)
	}
	var docs []listingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Server("decode listings", err)
	}
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.ID.Hex()] = d.Title
	}
	return out, nil
}

func (s *Store) lastMessages(ctx context.Context, roomIDs []bson.ObjectID) (map[string]storage.LastMessage, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "room_id", Value: bson.D{{Key: "$in", Value: roomIDs}}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$room_id"},
			{Key: "text", Value: bson.D{{Key: "$first", Value: "$text"}}},
			{Key: "image_url", Value: bson.D{{Key: "$first", Value: "$image_url"}}},
			{Key: "created_at", Value: bson.D{{Key: "$first", Value: "$created_at"}}},
		}}},
	}
	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Server("aggregate last messages", err)
	}
	var rows []lastMessageAgg
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, apperr.Server("decode last messages", err)
	}
	out := make(map[string]storage.LastMessage, len(rows))
	for _, r := range rows {
		out[r.RoomID.Hex()] = storage.LastMessage{
			RoomID:    r.RoomID.Hex(),
			Text:      r.Text,
			ImageURL:  r.ImageURL,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (s *Store) unreadCounts(ctx context.Context, roomIDs []bson.ObjectID, viewer bson.ObjectID) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "room_id", Value: bson.D{{Key: "$in", Value: roomIDs}}},
			{Key: "sender_id", Value: bson.D{{Key: "$ne", Value: viewer}}},
			{Key: "status", Value: bson.D{{Key: "$ne", Value: models.StatusSeen}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$room_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Server("aggregate unread counts", err)
	}
	var rows []unreadAgg
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, apperr.Server("decode unread counts", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.RoomID.Hex()] = r.Count
	}
	return out, nil
}

// ClearRoom deletes every message of the room. The room itself is kept.
func (s *Store) ClearRoom(ctx context.Context, roomID string, requester models.Identity) error {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasIdentity(requester) {
		return apperr.Unauthorized("%s is not a participant of room %s", requester, roomID)
	}
	oid, _ := parseID("room", roomID)
	if _, err := s.messages.DeleteMany(ctx, bson.M{"room_id": oid}); err != nil {
		return apperr.Server("clear room", err)
	}
	return nil
}

// SyncProvider re-points every room of a listing at the listing's current provider.
func (s *Store) SyncProvider(ctx context.Context, listingID string) (int64, error) {
	lid, err := parseID("listing", listingID)
	if err != nil {
		return 0, err
	}
	var listing listingDoc
	if err := s.listings.FindOne(ctx, bson.M{"_id": lid}).Decode(&listing); err != nil {
		return 0, notFoundOr(err, "find listing", "listing %s not found", listingID)
	}
	res, err := s.rooms.UpdateMany(ctx,
		bson.M{"listing_id": lid, "provider_id": bson.M{"$ne": listing.ProviderID}},
		bson.M{"$set": bson.M{"provider_id": listing.ProviderID}})
	if err != nil {
		return 0, apperr.Server("sync provider", err)
	}
	return res.ModifiedCount, nil
}
