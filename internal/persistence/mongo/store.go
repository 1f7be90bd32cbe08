// Package mongo implements persistence.Store on MongoDB. Reminder ids are
// ObjectID hex strings and times are stored as epoch milliseconds.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

const (
	reminderCollection     = "task_reminders"
	notificationCollection = "notifications"
	connectTimeout         = 10 * time.Second
)

type reminderDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	TaskID       string             `bson:"taskId"`
	RecipientID  string             `bson:"recipientId"`
	OffsetKind   string             `bson:"offsetKind"`
	FireAt       int64              `bson:"fireAt"`
	Title        string             `bson:"title"`
	MeetingLabel string             `bson:"meetingLabel"`
	DueAt        int64              `bson:"dueAt"`
	Delivered    bool               `bson:"delivered"`
	DeliveredAt  *int64             `bson:"deliveredAt,omitempty"`
	RetryCount   int                `bson:"retryCount"`
	LastError    string             `bson:"lastError"`
}

type notificationDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	RecipientID string             `bson:"recipientId"`
	Title       string             `bson:"title"`
	Message     string             `bson:"message"`
	Category    string             `bson:"category"`
	LinkTarget  string             `bson:"linkTarget"`
	Payload     map[string]string  `bson:"payload"`
	CreatedAt   int64              `bson:"createdAt"`
}

// Store persists reminders and notification feeds in MongoDB.
type Store struct {
	client        *mongo.Client
	reminders     *mongo.Collection
	notifications *mongo.Collection
}

// Open connects to uri and uses the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:        client,
		reminders:     db.Collection(reminderCollection),
		notifications: db.Collection(notificationCollection),
	}, nil
}

// EnsureIndexes creates the indexes backing QueryByField and the feed.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.reminders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "taskId", Value: 1}}},
		{Keys: bson.D{{Key: "recipientId", Value: 1}}},
		{Keys: bson.D{{Key: "delivered", Value: 1}, {Key: "fireAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create reminder indexes: %w", err)
	}
	_, err = s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create notification index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Insert stores a new reminder record.
func (s *Store) Insert(ctx context.Context, rec reminder.Record) (string, error) {
	if err := persistence.ValidateRecord(rec); err != nil {
		return "", err
	}

	doc := reminderDocument{
		ID:           primitive.NewObjectID(),
		TaskID:       rec.TaskID,
		RecipientID:  rec.RecipientID,
		OffsetKind:   string(rec.OffsetKind),
		FireAt:       rec.FireAt.UnixMilli(),
		Title:        rec.Snapshot.Title,
		MeetingLabel: rec.Snapshot.MeetingLabel,
		DueAt:        rec.Snapshot.DueAt.UnixMilli(),
		Delivered:    rec.Delivered,
		RetryCount:   rec.RetryCount,
		LastError:    rec.LastError,
	}
	if rec.DeliveredAt != nil {
		at := rec.DeliveredAt.UnixMilli()
		doc.DeliveredAt = &at
	}

	if _, err := s.reminders.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		}
		return "", fmt.Errorf("mongo: insert reminder: %w", err)
	}
	return doc.ID.Hex(), nil
}

// QueryByField returns matching records ordered by fire time, then id.
func (s *Store) QueryByField(ctx context.Context, field persistence.Field, value any) ([]reminder.Record, error) {
	value, err := field.Normalize(value)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "fireAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.reminders.Find(ctx, bson.M{string(field): value}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: query reminders by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	out := make([]reminder.Record, 0)
	for cursor.Next(ctx) {
		var doc reminderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode reminder: %w", err)
		}
		out = append(out, doc.record())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: cursor error: %w", err)
	}
	return out, nil
}

// UpdateFields applies the non-nil fields of patch to the record.
func (s *Store) UpdateFields(ctx context.Context, id string, patch persistence.Patch) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return persistence.ErrNotFound
	}

	set := bson.M{}
	if patch.Delivered != nil {
		set["delivered"] = *patch.Delivered
	}
	if patch.DeliveredAt != nil {
		set["deliveredAt"] = patch.DeliveredAt.UnixMilli()
	}
	if patch.RetryCount != nil {
		set["retryCount"] = *patch.RetryCount
	}
	if patch.LastError != nil {
		set["lastError"] = *patch.LastError
	}
	if patch.FireAt != nil {
		set["fireAt"] = patch.FireAt.UnixMilli()
	}

	if len(set) == 0 {
		err := s.reminders.FindOne(ctx, bson.M{"_id": oid}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return persistence.ErrNotFound
		}
		return err
	}

	result, err := s.reminders.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongo: update reminder %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return persistence.ErrNotFound
	}
	result, err := s.reminders.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongo: delete reminder %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// AppendNotification adds a notification to the recipient's feed.
func (s *Store) AppendNotification(ctx context.Context, recipientID string, n reminder.Notification) (string, error) {
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	doc := notificationDocument{
		ID:          primitive.NewObjectID(),
		RecipientID: recipientID,
		Title:       n.Title,
		Message:     n.Message,
		Category:    string(n.Category),
		LinkTarget:  n.LinkTarget,
		Payload:     payload,
		CreatedAt:   n.CreatedAt.UnixMilli(),
	}
	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("mongo: insert notification: %w", err)
	}
	return doc.ID.Hex(), nil
}

// ListNotifications returns the recipient's feed, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]persistence.StoredNotification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.notifications.Find(ctx, bson.M{"recipientId": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]persistence.StoredNotification, 0)
	for cursor.Next(ctx) {
		var doc notificationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode notification: %w", err)
		}
		out = append(out, persistence.StoredNotification{
			ID:          doc.ID.Hex(),
			RecipientID: doc.RecipientID,
			Notification: reminder.Notification{
				Title:      doc.Title,
				Message:    doc.Message,
				Category:   reminder.Category(doc.Category),
				LinkTarget: doc.LinkTarget,
				Payload:    doc.Payload,
				CreatedAt:  time.UnixMilli(doc.CreatedAt).UTC(),
			},
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: cursor error: %w", err)
	}
	return out, nil
}

// record converts the document without rejecting an unknown offsetKind:
// the collection has no schema, and the sweeper counts such a record as a
// failed delivery instead of aborting the batch.
func (d reminderDocument) record() reminder.Record {
	rec := reminder.Record{
		ID:          d.ID.Hex(),
		TaskID:      d.TaskID,
		RecipientID: d.RecipientID,
		OffsetKind:  reminder.OffsetKind(d.OffsetKind),
		FireAt:      time.UnixMilli(d.FireAt).UTC(),
		Snapshot: reminder.Snapshot{
			Title:        d.Title,
			MeetingLabel: d.MeetingLabel,
			DueAt:        time.UnixMilli(d.DueAt).UTC(),
		},
		Delivered:  d.Delivered,
		RetryCount: d.RetryCount,
		LastError:  d.LastError,
	}
	if d.DeliveredAt != nil {
		at := time.UnixMilli(*d.DeliveredAt).UTC()
		rec.DeliveredAt = &at
	}
	return rec
}

var _ persistence.Store = (*Store)(nil)
