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

// AnswerRepo handles MongoDB operations for private per-stage answers
type AnswerRepo interface {
	Upsert(ctx context.Context, answer *model.StageParticipantAnswer) error
	GetByParticipantAndStage(ctx context.Context, privateID, stageID string) (*model.StageParticipantAnswer, error)
	GetByParticipantID(ctx context.Context, privateID string) ([]*model.StageParticipantAnswer, error)
	GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StageParticipantAnswer, error)
	DeleteByExperimentID(ctx context.Context, experimentID string) error
}

type answerRepo struct {
	collection *mongo.Collection
}

// NewAnswerRepo creates a new answer repository
func NewAnswerRepo(db *mongo.Database) AnswerRepo {
	return &answerRepo{
		collection: db.Collection("stageAnswers"),
	}
}

func (r *answerRepo) Upsert(ctx context.Context, answer *model.StageParticipantAnswer) error {
	answer.UpdatedAt = time.Now()
	if answer.ID == "" {
		answer.ID = primitive.NewObjectID().Hex()
	}

	filter := bson.M{
		"participantPrivateId": answer.ParticipantPrivateID,
		"stageId":              answer.StageID,
	}
	_, err := r.collection.ReplaceOne(ctx, filter, answer, options.Replace().SetUpsert(true))
	return err
}

func (r *answerRepo) GetByParticipantAndStage(ctx context.Context, privateID, stageID string) (*model.StageParticipantAnswer, error) {
	var answer model.StageParticipantAnswer
	err := r.collection.FindOne(ctx, bson.M{
		"participantPrivateId": privateID,
		"stageId":              stageID,
	}).Decode(&answer)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &answer, nil
}

func (r *answerRepo) GetByParticipantID(ctx context.Context, privateID string) ([]*model.StageParticipantAnswer, error) {
	return r.find(ctx, bson.M{"participantPrivateId": privateID})
}

func (r *answerRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StageParticipantAnswer, error) {
	return r.find(ctx, bson.M{"experimentId": experimentID})
}

func (r *answerRepo) find(ctx context.Context, filter bson.M) ([]*model.StageParticipantAnswer, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var answers []*model.StageParticipantAnswer
	if err := cursor.All(ctx, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

func (r *answerRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"experimentId": experimentID})
	return err
}
