package mongostore

import (
	"context"
	"errors"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ListMessages returns the room history, oldest first.
func (s *Store) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	oid, err := parseID("room", roomID)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"room_id": oid}, opts)
	if err != nil {
		return nil, apperr.Server("list messages", err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Server("decode messages", err)
	}
	return messageModels(docs), nil
}

// AppendMessage inserts a message and bumps the room's updated_at.
func (s *Store) AppendMessage(ctx context.Context, n models.NewMessage) (*models.Message, error) {
	n, err := storage.PrepareMessage(n)
	if err != nil {
		return nil, err
	}
	roomOID, err := parseID("room", n.RoomID)
	if err != nil {
		return nil, err
	}
	senderOID, err := parseID("sender", n.SenderID)
	if err != nil {
		return nil, err
	}

	doc := messageDoc{
		RoomID:     roomOID,
		SenderID:   senderOID,
		SenderRole: n.SenderRole,
		Text:       n.Text,
		ImageURL:   n.ImageURL,
		Status:     n.Status,
		CreatedAt:  time.Now().UTC(),
	}
	res, err := s.messages.InsertOne(ctx, doc)
	if err != nil {
		return nil, apperr.Server("append message", err)
	}
	doc.ID = res.InsertedID.(bson.ObjectID)

	if _, err := s.rooms.UpdateOne(ctx, bson.M{"_id": roomOID},
		bson.M{"$set": bson.M{"updated_at": doc.CreatedAt}}); err != nil {
		return nil, apperr.Server("touch room", err)
	}
	m := doc.model()
	return &m, nil
}

// MarkSeen flips the reader's unseen incoming messages and returns them.
// Messages flipped concurrently by another call may be returned by both.
func (s *Store) MarkSeen(ctx context.Context, roomID, readerID string) ([]models.Message, error) {
	roomOID, err := parseID("room", roomID)
	if err != nil {
		return nil, err
	}
	readerOID, err := parseID("reader", readerID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"room_id":   roomOID,
		"sender_id": bson.M{"$ne": readerOID},
		"status":    bson.M{"$ne": models.StatusSeen},
	}
	cursor, err := s.messages.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Server("find unseen", err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Server("decode unseen", err)
	}
	if len(docs) == 0 {
		return []models.Message{}, nil
	}

	ids := make([]bson.ObjectID, 0, len(docs))
	for i := range docs {
		ids = append(ids, docs[i].ID)
		docs[i].Status = models.StatusSeen
	}
	_, err = s.messages.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "status": bson.M{"$ne": models.StatusSeen}},
		bson.M{"$set": bson.M{"status": models.StatusSeen}})
	if err != nil {
		return nil, apperr.Server("mark seen", err)
	}
	return messageModels(docs), nil
}

// MarkMessageSeen flips one message to seen unless the reader sent it.
func (s *Store) MarkMessageSeen(ctx context.Context, roomID, messageID, readerID string) (*models.Message, bool, error) {
	roomOID, err := parseID("room", roomID)
	if err != nil {
		return nil, false, err
	}
	msgOID, err := parseID("message", messageID)
	if err != nil {
		return nil, false, err
	}
	readerOID, err := parseID("reader", readerID)
	if err != nil {
		return nil, false, err
	}

	var doc messageDoc
	err = s.messages.FindOneAndUpdate(ctx,
		bson.M{
			"_id":       msgOID,
			"room_id":   roomOID,
			"sender_id": bson.M{"$ne": readerOID},
			"status":    bson.M{"$ne": models.StatusSeen},
		},
		bson.M{"$set": bson.M{"status": models.StatusSeen}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		m := doc.model()
		return &m, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, apperr.Server("mark message seen", err)
	}

	// Nothing flipped: either already seen, sent by the reader, or absent.
	if err := s.messages.FindOne(ctx, bson.M{"_id": msgOID, "room_id": roomOID}).Decode(&doc); err != nil {
		return nil, false, notFoundOr(err, "get message", "message %s not found", messageID)
	}
	m := doc.model()
	return &m, false, nil
}

// directory is a users or owners collection.
type directory struct {
	coll *mongo.Collection
	role models.Role
}

func (d *directory) SetPresence(ctx context.Context, id string, online bool, lastSeen *time.Time) error {
	oid, err := parseID("account", id)
	if err != nil {
		return err
	}
	_, err = d.coll.UpdateOne(ctx, bson.M{"_id": oid},
		bson.M{"$set": bson.M{"is_online": online, "last_seen": lastSeen}})
	if err != nil {
		return apperr.Server("set presence", err)
	}
	return nil
}

func (d *directory) Touch(context.Context, []string) error { return nil }

func (d *directory) Profiles(ctx context.Context, ids []string) (map[string]models.Participant, error) {
	out := make(map[string]models.Participant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	oids, err := parseIDs("account", ids)
	if err != nil {
		return nil, err
	}
	cursor, err := d.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}},
		options.Find().SetProjection(bson.M{"name": 1, "profile_pic": 1, "is_online": 1, "last_seen": 1}))
	if err != nil {
		return nil, apperr.Server("load profiles", err)
	}
	var docs []profileDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Server("decode profiles", err)
	}
	for _, p := range docs {
		out[p.ID.Hex()] = models.Participant{
			ID:         p.ID.Hex(),
			Role:       d.role,
			Name:       p.Name,
			ProfilePic: p.ProfilePic,
			IsOnline:   p.IsOnline,
			LastSeen:   p.LastSeen,
		}
	}
	return out, nil
}
