package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"alcyxob/fitgen/internal/domain"
	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const alternativeCollectionName = "exercise_alternatives"

// mongoAlternativeRepository implements repository.AlternativeRepository
type mongoAlternativeRepository struct {
	collection *mongo.Collection
}

func NewMongoAlternativeRepository(db *mongo.Database) repository.AlternativeRepository {
	return &mongoAlternativeRepository{
		collection: db.Collection(alternativeCollectionName),
	}
}

func (r *mongoAlternativeRepository) Create(ctx context.Context, alt *domain.ExerciseAlternative) (primitive.ObjectID, error) {
	if alt.ExerciseName == "" || alt.Name == "" {
		return primitive.NilObjectID, errors.New("alternative requires exerciseName and name")
	}
	alt.ID = primitive.NewObjectID()
	alt.ExerciseName = strings.ToLower(strings.TrimSpace(alt.ExerciseName))
	now := time.Now().UTC()
	alt.CreatedAt = now
	alt.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, alt)
	if err != nil {
		return primitive.NilObjectID, mapWriteError(err)
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted alternative ID")
	}
	return insertedID, nil
}

func (r *mongoAlternativeRepository) FindByExerciseName(ctx context.Context, exerciseName string) ([]domain.ExerciseAlternative, error) {
	var alts []domain.ExerciseAlternative
	filter := bson.M{"exerciseName": strings.ToLower(strings.TrimSpace(exerciseName))}
	opts := options.Find().SetSort(bson.D{{Key: "similarity", Value: -1}, {Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &alts); err != nil {
		return nil, err
	}
	return alts, nil
}

func EnsureAlternativeIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "exerciseName", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
