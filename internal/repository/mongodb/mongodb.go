// Package mongodb implements the notification and message stores on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/models"
	"github.com/zfogg/beacon/internal/repository"
	"github.com/zfogg/beacon/internal/telemetry"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	notificationsCollection = "notifications"
	messagesCollection      = "messages"
)

// Store owns the client and hands out collection-backed repositories
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the connection
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping failed: %w", err)
	}

	logger.Log.Info("✅ MongoDB connected successfully", zap.String("database", database))
	return &Store{client: client, db: client.Database(database)}, nil
}

// EnsureIndexes creates the indexes the read paths depend on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	collections := map[string][]mongo.IndexModel{
		notificationsCollection: {
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "is_read", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "type", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo: failed to create indexes for %s: %w", name, err)
		}
	}
	logger.Log.Info("MongoDB indexes ensured")
	return nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Health pings the server
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Notifications returns the notification store
func (s *Store) Notifications() repository.NotificationStore {
	return &notificationStore{coll: s.db.Collection(notificationsCollection)}
}

// Messages returns the message store
func (s *Store) Messages() repository.MessageStore {
	return &messageStore{coll: s.db.Collection(messagesCollection)}
}

type notificationStore struct {
	coll *mongo.Collection
}

func (s *notificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return repository.ErrInvalidInput
	}
	if err := n.Validate(); err != nil {
		return err
	}
	_, err := s.coll.InsertOne(ctx, n)
	return err
}

// CreateBatch inserts every record or, on failure, removes the ones that made it in
func (s *notificationStore) CreateBatch(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		if err := n.Validate(); err != nil {
			return err
		}
		ids = append(ids, n.ID)
	}

	ctx, span := telemetry.TraceStoreCall(ctx, "mongo", "notifications.insert_many")
	defer span.End()

	if _, err := s.coll.InsertMany(ctx, ns); err != nil {
		telemetry.RecordError(span, err)
		if _, delErr := s.coll.DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}}); delErr != nil {
			logger.Log.Error("mongo: failed to roll back partial batch", zap.Error(delErr))
		}
		return err
	}
	return nil
}

func newestFirst() *options.FindOptionsBuilder {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
}

func (s *notificationStore) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*models.Notification, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []*models.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *notificationStore) ListByRecipient(ctx context.Context, toUserID string) ([]*models.Notification, error) {
	return s.find(ctx, bson.M{"to": toUserID}, newestFirst())
}

func (s *notificationStore) ListUnread(ctx context.Context, toUserID string) ([]*models.Notification, error) {
	return s.find(ctx, bson.M{"to": toUserID, "is_read": false}, newestFirst())
}

func (s *notificationStore) Page(ctx context.Context, toUserID string, skip, limit int) ([]*models.Notification, error) {
	if skip < 0 || limit <= 0 {
		return nil, repository.ErrInvalidInput
	}
	return s.find(ctx, bson.M{"to": toUserID}, newestFirst().SetSkip(int64(skip)).SetLimit(int64(limit)))
}

func (s *notificationStore) MarkAllRead(ctx context.Context, toUserID string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"to": toUserID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *notificationStore) MarkRead(ctx context.Context, toUserID, notificationID string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": notificationID, "to": toUserID},
		bson.M{"$set": bson.M{"is_read": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type messageStore struct {
	coll *mongo.Collection
}

func (s *messageStore) Create(ctx context.Context, m *models.Message) error {
	if m == nil {
		return repository.ErrInvalidInput
	}
	_, err := s.coll.InsertOne(ctx, m)
	return err
}

func (s *messageStore) find(ctx context.Context, filter bson.M) ([]*models.Message, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []*models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *messageStore) Conversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	return s.find(ctx, bson.M{
		"type": models.MessageDirect,
		"$or": bson.A{
			bson.M{"sender_id": userA, "receiver_id": userB},
			bson.M{"sender_id": userB, "receiver_id": userA},
		},
	})
}

func (s *messageStore) GroupConversation(ctx context.Context, communityID string) ([]*models.Message, error) {
	return s.find(ctx, bson.M{"receiver_id": communityID, "type": models.MessageGroup})
}

func (s *messageStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{})
}

func (s *messageStore) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	err := s.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *messageStore) MarkRead(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"is_read": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
