package mongo

import (
	"context"
	"errors"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const performanceLogCollectionName = "performance_logs"

type mongoPerformanceLogRepository struct {
	collection *mongo.Collection
}

func NewMongoPerformanceLogRepository(db *mongo.Database) repository.PerformanceLogRepository {
	return &mongoPerformanceLogRepository{
		collection: db.Collection(performanceLogCollectionName),
	}
}

func (r *mongoPerformanceLogRepository) Create(ctx context.Context, log *domain.PerformanceLog) (primitive.ObjectID, error) {
	if log.InstanceID == primitive.NilObjectID || log.RecipientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("performance log requires instanceId and recipientId")
	}
	log.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	log.CreatedAt = now
	log.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, log)
	if err != nil {
		return primitive.NilObjectID, mapWriteError(err)
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted log ID")
	}
	return insertedID, nil
}

func (r *mongoPerformanceLogRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.PerformanceLog, error) {
	var log domain.PerformanceLog
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&log)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *mongoPerformanceLogRepository) Update(ctx context.Context, log *domain.PerformanceLog) error {
	if log.ID == primitive.NilObjectID {
		return errors.New("log ID is required for update")
	}
	log.UpdatedAt = time.Now().UTC()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": log.ID}, log)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoPerformanceLogRepository) ListCompleted(ctx context.Context, recipientID, instanceID primitive.ObjectID) ([]domain.PerformanceLog, error) {
	var logs []domain.PerformanceLog
	filter := bson.M{
		"recipientId": recipientID,
		"instanceId":  instanceID,
		"status":      domain.LogCompleted,
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func EnsurePerformanceLogIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "recipientId", Value: 1},
				{Key: "instanceId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "date", Value: 1},
			},
		},
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "date", Value: -1}}},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
