package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// APIKeyRepo handles MongoDB operations for API keys
type APIKeyRepo interface {
	Create(ctx context.Context, key *model.APIKey) error
	GetByDigest(ctx context.Context, digest string) (*model.APIKey, error)
	GetByExperimenterID(ctx context.Context, experimenterID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, id, experimenterID string) error
}

type apiKeyRepo struct {
	collection *mongo.Collection
}

// NewAPIKeyRepo creates a new API key repository
func NewAPIKeyRepo(db *mongo.Database) APIKeyRepo {
	return &apiKeyRepo{
		collection: db.Collection("apiKeys"),
	}
}

func (r *apiKeyRepo) Create(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, key)
	return err
}

func (r *apiKeyRepo) GetByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	var key model.APIKey
	err := r.collection.FindOne(ctx, bson.M{"digest": digest}).Decode(&key)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *apiKeyRepo) GetByExperimenterID(ctx context.Context, experimenterID string) ([]*model.APIKey, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"experimenterId": experimenterID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var keys []*model.APIKey
	if err := cursor.All(ctx, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *apiKeyRepo) Revoke(ctx context.Context, id, experimenterID string) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{"revokedAt": now}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "experimenterId": experimenterID}, update)
	return err
}
