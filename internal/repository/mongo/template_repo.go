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
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const templateCollectionName = "templates"

// mongoTemplateRepository implements repository.TemplateRepository
type mongoTemplateRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoTemplateRepository(db *mongo.Database) repository.TemplateRepository {
	return &mongoTemplateRepository{
		client:     db.Client(),
		collection: db.Collection(templateCollectionName),
	}
}

func (r *mongoTemplateRepository) Create(ctx context.Context, t *domain.Template) (primitive.ObjectID, error) {
	if t.OwnerID == primitive.NilObjectID || t.InputFingerprint == "" {
		return primitive.NilObjectID, errors.New("template requires ownerId and inputFingerprint")
	}
	t.ID = primitive.NewObjectID()
	if t.RootID == primitive.NilObjectID {
		t.RootID = t.ID
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, t)
	if err != nil {
		return primitive.NilObjectID, mapWriteError(err)
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted template ID")
	}
	return insertedID, nil
}

func (r *mongoTemplateRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Template, error) {
	var t domain.Template
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *mongoTemplateRepository) FindLatestByInputFingerprint(ctx context.Context, fp string) ([]domain.Template, error) {
	filter := bson.M{
		"inputFingerprint": fp,
		"isLatestVersion":  true,
		"status":           domain.TemplateActive,
	}
	return r.find(ctx, filter, nil)
}

func (r *mongoTemplateRepository) FindSimilarCandidates(ctx context.Context, q repository.SimilarQuery) ([]domain.Template, error) {
	filter := bson.M{
		"characteristics.experienceLevel": q.ExperienceLevel,
		"characteristics.goals":           bson.M{"$in": q.Goals},
		"visibility":                      domain.VisibilityPublic,
		"isLatestVersion":                 true,
		"status":                          domain.TemplateActive,
	}
	return r.find(ctx, filter, nil)
}

func (r *mongoTemplateRepository) ListChain(ctx context.Context, rootID primitive.ObjectID) ([]domain.Template, error) {
	opts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}})
	return r.find(ctx, bson.M{"rootId": rootID}, opts)
}

// InsertVersion inserts the new latest version and clears the flag on its
// siblings inside one transaction so no reader sees zero or two latest records.
func (r *mongoTemplateRepository) InsertVersion(ctx context.Context, t *domain.Template) (primitive.ObjectID, error) {
	if t.RootID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("version requires rootId")
	}
	t.ID = primitive.NewObjectID()
	t.IsLatestVersion = true
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := r.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.collection.InsertOne(sc, t); err != nil {
			return nil, err
		}
		filter := bson.M{"rootId": t.RootID, "_id": bson.M{"$ne": t.ID}, "isLatestVersion": true}
		update := bson.M{"$set": bson.M{"isLatestVersion": false, "updatedAt": now}}
		_, err := r.collection.UpdateMany(sc, filter, update)
		return nil, err
	})
	if err != nil {
		return primitive.NilObjectID, mapWriteError(err)
	}
	return t.ID, nil
}

func (r *mongoTemplateRepository) SetLatest(ctx context.Context, rootID, id primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := r.withTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.collection.UpdateOne(sc,
			bson.M{"_id": id, "rootId": rootID},
			bson.M{"$set": bson.M{"isLatestVersion": true, "updatedAt": now}})
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, repository.ErrNotFound
		}
		_, err = r.collection.UpdateMany(sc,
			bson.M{"rootId": rootID, "_id": bson.M{"$ne": id}, "isLatestVersion": true},
			bson.M{"$set": bson.M{"isLatestVersion": false, "updatedAt": now}})
		return nil, err
	})
	return mapWriteError(err)
}

func (r *mongoTemplateRepository) Archive(ctx context.Context, ids []primitive.ObjectID, reason string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := bson.M{"_id": bson.M{"$in": ids}, "status": domain.TemplateActive}
	update := bson.M{"$set": bson.M{
		"status":        domain.TemplateArchived,
		"archiveReason": reason,
		"archivedAt":    at,
		"updatedAt":     at,
	}}
	res, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *mongoTemplateRepository) ListActiveLatest(ctx context.Context) ([]domain.Template, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return r.find(ctx, bson.M{"isLatestVersion": true, "status": domain.TemplateActive}, opts)
}

// IncrementUsage uses an aggregation-pipeline update so the counter, the
// distinct consumer set and its size change in a single document write.
func (r *mongoTemplateRepository) IncrementUsage(ctx context.Context, id, consumerID primitive.ObjectID, at time.Time) (*domain.Template, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"usage.timesUsed": bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$usage.timesUsed", 0}}, 1}},
			"usage.consumerIds": bson.M{"$setUnion": bson.A{
				bson.M{"$ifNull": bson.A{"$usage.consumerIds", bson.A{}}},
				bson.A{consumerID},
			}},
			"usage.lastUsedAt": at,
			"updatedAt":        at,
		}}},
		{{Key: "$set", Value: bson.M{
			"usage.uniqueConsumers": bson.M{"$size": "$usage.consumerIds"},
		}}},
	}
	return r.findOneAndUpdate(ctx, id, pipeline)
}

func (r *mongoTemplateRepository) AddRating(ctx context.Context, id primitive.ObjectID, score float64, at time.Time) (*domain.Template, error) {
	avg := bson.M{"$ifNull": bson.A{"$usage.averageRating", 0}}
	count := bson.M{"$ifNull": bson.A{"$usage.ratingCount", 0}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"usage.averageRating": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{bson.M{"$multiply": bson.A{avg, count}}, score}},
				bson.M{"$add": bson.A{count, 1}},
			}},
			"usage.ratingCount": bson.M{"$add": bson.A{count, 1}},
			"updatedAt":         at,
		}}},
	}
	return r.findOneAndUpdate(ctx, id, pipeline)
}

func (r *mongoTemplateRepository) findOneAndUpdate(ctx context.Context, id primitive.ObjectID, update interface{}) (*domain.Template, error) {
	var t domain.Template
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *mongoTemplateRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Template, error) {
	var templates []domain.Template
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *mongoTemplateRepository) withTransaction(ctx context.Context, fn func(mongo.SessionContext) (interface{}, error)) (interface{}, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	return session.WithTransaction(ctx, fn, txnOpts)
}

// EnsureTemplateIndexes creates necessary indexes. Call during startup.
func EnsureTemplateIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// exact-match lookup
			Keys: bson.D{
				{Key: "inputFingerprint", Value: 1},
				{Key: "isLatestVersion", Value: 1},
				{Key: "status", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "contentFingerprint", Value: 1}},
		},
		{
			// one record per version number in a chain
			Keys:    bson.D{{Key: "rootId", Value: 1}, {Key: "version", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "characteristics.experienceLevel", Value: 1},
				{Key: "visibility", Value: 1},
				{Key: "isLatestVersion", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}},
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
