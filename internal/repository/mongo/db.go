package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alcyxob/fitgen/internal/repository"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultTimeout = 10 * time.Second

// ConnectDB establishes a connection to MongoDB using the provided URI.
// Version flips run in multi-document transactions, so the deployment must be
// a replica set (a single-node replica set is enough).
func ConnectDB(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}
	return client, nil
}

// DisconnectDB gracefully disconnects the MongoDB client.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes of every collection. Call during startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	steps := []struct {
		name string
		fn   func(context.Context, *mongo.Collection) error
	}{
		{templateCollectionName, EnsureTemplateIndexes},
		{instanceCollectionName, EnsureInstanceIndexes},
		{performanceLogCollectionName, EnsurePerformanceLogIndexes},
		{alternativeCollectionName, EnsureAlternativeIndexes},
		{userCollectionName, EnsureUserIndexes},
		{trainingPlanCollectionName, EnsureTrainingPlanIndexes},
		{workoutCollectionName, EnsureWorkoutIndexes},
	}
	for _, s := range steps {
		if err := s.fn(ctx, db.Collection(s.name)); err != nil {
			return fmt.Errorf("indexes for %s: %w", s.name, err)
		}
	}
	return nil
}

// mapWriteError translates driver errors into repository errors.
func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	default:
		return err
	}
}
