package storage

import (
	"context"
	"fmt"
	"time"

	"detak/internal/config"
	"detak/internal/types"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore implements Store on top of MongoDB. Heartbeat timestamps
// are persisted as the ISO-8601 strings the emitter sent. Our own
// producers emit the fixed-width types.TimestampLayout, for which
// lexicographic comparison in $match/$sort equals chronological
// comparison; foreign producers emitting variable-width fractions can
// mis-sort within a single second, which the aggregator absorbs by
// re-sorting parsed values at read time.
type MongoStore struct {
	client  *mongo.Client
	events  *mongo.Collection
	objects *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// NewMongoStore connects to MongoDB and ensures the required indexes.
func NewMongoStore(ctx context.Context, cfg config.MongoDBConfig, logger *zap.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:  client,
		events:  db.Collection(cfg.EventsCollection),
		objects: db.Collection(cfg.ObjectsCollection),
		timeout: cfg.Timeout,
		logger:  logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return s, nil
}

// ensureIndexes creates the unique registry index and the event log
// index. The unique index on uuid is what makes concurrent first-sight
// upserts collapse to a single record.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.objects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: types.FieldUUID, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create objects index: %w", err)
	}

	_, err = s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: types.FieldUUID, Value: 1},
			{Key: types.FieldTimestamp, Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create events index: %w", err)
	}

	return nil
}

// UpsertAgentSighting implements Store.
func (s *MongoStore) UpsertAgentSighting(ctx context.Context, uuid, nameHint string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{types.FieldUUID: uuid}

	var update bson.M
	if nameHint != "" {
		update = bson.M{"$set": bson.M{types.FieldObjectName: nameHint}}
	} else {
		update = bson.M{"$setOnInsert": bson.M{types.FieldObjectName: types.SentinelObjectName}}
	}

	_, err := s.objects.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Lost a concurrent first-sight race: the record now exists.
		if nameHint == "" {
			return nil
		}
		_, err = s.objects.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", uuid, err)
	}
	return nil
}

// AppendEvent implements Store.
func (s *MongoStore) AppendEvent(ctx context.Context, doc map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentActivity implements Store. One aggregation pipeline groups the
// window's events per agent and joins the registry for display names;
// agents missing a registry record fall back to the sentinel name.
func (s *MongoStore) RecentActivity(ctx context.Context, since time.Time) ([]types.AgentActivity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			types.FieldTimestamp: bson.M{"$gte": since.UTC().Format(types.TimestampLayout)},
		}}},
		{{Key: "$sort", Value: bson.M{types.FieldTimestamp: 1}}},
		{{Key: "$group", Value: bson.M{
			"_id":            "$" + types.FieldUUID,
			"timestamps":     bson.M{"$push": "$" + types.FieldTimestamp},
			"last_heartbeat": bson.M{"$last": "$" + types.FieldTimestamp},
			"total_pings":    bson.M{"$sum": 1},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         s.objects.Name(),
			"localField":   "_id",
			"foreignField": types.FieldUUID,
			"as":           "object",
		}}},
		{{Key: "$addFields", Value: bson.M{
			types.FieldObjectName: bson.M{"$ifNull": bson.A{
				bson.M{"$arrayElemAt": bson.A{"$object." + types.FieldObjectName, 0}},
				types.SentinelObjectName,
			}},
		}}},
	}

	cursor, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate activity: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			s.logger.Warn("Failed to close cursor", zap.Error(err))
		}
	}()

	var activity []types.AgentActivity
	if err := cursor.All(ctx, &activity); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	return activity, nil
}

// RenameAgent implements Store.
func (s *MongoStore) RenameAgent(ctx context.Context, uuid, name string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.objects.UpdateOne(ctx,
		bson.M{types.FieldUUID: uuid},
		bson.M{"$set": bson.M{types.FieldObjectName: name}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to rename agent %s: %w", uuid, err)
	}
	return nil
}

// Agents implements Store.
func (s *MongoStore) Agents(ctx context.Context) ([]types.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.objects.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			s.logger.Warn("Failed to close cursor", zap.Error(err))
		}
	}()

	var agents []types.AgentRecord
	if err := cursor.All(ctx, &agents); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}
	return agents, nil
}

// Ping implements Store.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
