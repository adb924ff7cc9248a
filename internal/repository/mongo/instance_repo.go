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

const instanceCollectionName = "generated_instances"

type mongoInstanceRepository struct {
	collection *mongo.Collection
}

func NewMongoInstanceRepository(db *mongo.Database) repository.InstanceRepository {
	return &mongoInstanceRepository{
		collection: db.Collection(instanceCollectionName),
	}
}

func (r *mongoInstanceRepository) Create(ctx context.Context, inst *domain.GeneratedInstance) (primitive.ObjectID, error) {
	if inst.ProducerID == primitive.NilObjectID || inst.RecipientID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("instance requires producerId and recipientId")
	}
	inst.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	if inst.Modifications == nil {
		inst.Modifications = []domain.Modification{}
	}

	result, err := r.collection.InsertOne(ctx, inst)
	if err != nil {
		return primitive.NilObjectID, mapWriteError(err)
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted instance ID")
	}
	return insertedID, nil
}

func (r *mongoInstanceRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.GeneratedInstance, error) {
	var inst domain.GeneratedInstance
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&inst)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// Update replaces the stored document. The content and the modification log
// are written together, so an edit is never persisted without its log entry.
func (r *mongoInstanceRepository) Update(ctx context.Context, inst *domain.GeneratedInstance) error {
	if inst.ID == primitive.NilObjectID {
		return errors.New("instance ID is required for update")
	}
	inst.UpdatedAt = time.Now().UTC()
	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": inst.ID}, inst)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoInstanceRepository) ListByRecipient(ctx context.Context, recipientID primitive.ObjectID) ([]domain.GeneratedInstance, error) {
	var instances []domain.GeneratedInstance
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"recipientId": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// EnsureInstanceIndexes creates necessary indexes. The TTL index on
// scheduledDeletionAt enforces the retention policy.
func EnsureInstanceIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "producerId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "templateId", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "requestId", Value: 1}}},
		{
			Keys:    bson.D{{Key: "scheduledDeletionAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
