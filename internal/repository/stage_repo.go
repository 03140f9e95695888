package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// StageRepo handles MongoDB operations for stage configs
type StageRepo interface {
	Create(ctx context.Context, stage *model.StageConfig) error
	CreateMany(ctx context.Context, stages []*model.StageConfig) error
	GetByID(ctx context.Context, experimentID, stageID string) (*model.StageConfig, error)
	GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StageConfig, error)
	Update(ctx context.Context, stage *model.StageConfig) error
	DeleteByExperimentID(ctx context.Context, experimentID string) error
}

type stageRepo struct {
	collection *mongo.Collection
}

// NewStageRepo creates a new stage repository
func NewStageRepo(db *mongo.Database) StageRepo {
	return &stageRepo{
		collection: db.Collection("stages"),
	}
}

func (r *stageRepo) Create(ctx context.Context, stage *model.StageConfig) error {
	_, err := r.collection.InsertOne(ctx, stage)
	return err
}

func (r *stageRepo) CreateMany(ctx context.Context, stages []*model.StageConfig) error {
	if len(stages) == 0 {
		return nil
	}
	docs := make([]interface{}, len(stages))
	for i, s := range stages {
		docs[i] = s
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *stageRepo) GetByID(ctx context.Context, experimentID, stageID string) (*model.StageConfig, error) {
	var stage model.StageConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": stageID, "experimentId": experimentID}).Decode(&stage)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StageConfig, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"experimentId": experimentID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stages []*model.StageConfig
	if err := cursor.All(ctx, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *stageRepo) Update(ctx context.Context, stage *model.StageConfig) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": stage.ID, "experimentId": stage.ExperimentID}, stage)
	return err
}

func (r *stageRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"experimentId": experimentID})
	return err
}
