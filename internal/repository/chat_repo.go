package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// ChatRepo handles MongoDB operations for chat transcripts
type ChatRepo interface {
	Create(ctx context.Context, message *model.ChatMessage) error
	GetByCohortAndStage(ctx context.Context, cohortID, stageID string) ([]*model.ChatMessage, error)
	CountBySender(ctx context.Context, cohortID, stageID, senderPublicID string) (int64, error)
	DeleteByExperimentID(ctx context.Context, experimentID string) error
}

type chatRepo struct {
	collection *mongo.Collection
}

// NewChatRepo creates a new chat repository
func NewChatRepo(db *mongo.Database) ChatRepo {
	return &chatRepo{
		collection: db.Collection("chatMessages"),
	}
}

func (r *chatRepo) Create(ctx context.Context, message *model.ChatMessage) error {
	if message.ID == "" {
		message.ID = primitive.NewObjectID().Hex()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, message)
	return err
}

func (r *chatRepo) GetByCohortAndStage(ctx context.Context, cohortID, stageID string) ([]*model.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"cohortId": cohortID, "stageId": stageID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*model.ChatMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *chatRepo) CountBySender(ctx context.Context, cohortID, stageID, senderPublicID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"cohortId":       cohortID,
		"stageId":        stageID,
		"senderPublicId": senderPublicID,
	})
}

func (r *chatRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"experimentId": experimentID})
	return err
}
