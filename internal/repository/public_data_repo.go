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

// PublicDataRepo handles MongoDB operations for per-cohort public stage
// data. One document per (cohort, stage) pair, merged as participants
// answer and on cross-cohort transfers.
type PublicDataRepo interface {
	Upsert(ctx context.Context, data *model.StagePublicData) error
	GetByCohortAndStage(ctx context.Context, cohortID, stageID string) (*model.StagePublicData, error)
	GetByCohortID(ctx context.Context, cohortID string) ([]*model.StagePublicData, error)
	GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StagePublicData, error)
	DeleteByExperimentID(ctx context.Context, experimentID string) error
}

type publicDataRepo struct {
	collection *mongo.Collection
}

// NewPublicDataRepo creates a new public stage data repository
func NewPublicDataRepo(db *mongo.Database) PublicDataRepo {
	return &publicDataRepo{
		collection: db.Collection("publicStageData"),
	}
}

func (r *publicDataRepo) Upsert(ctx context.Context, data *model.StagePublicData) error {
	data.UpdatedAt = time.Now()
	if data.ID == "" {
		data.ID = primitive.NewObjectID().Hex()
	}

	filter := bson.M{
		"cohortId": data.CohortID,
		"stageId":  data.StageID,
	}
	_, err := r.collection.ReplaceOne(ctx, filter, data, options.Replace().SetUpsert(true))
	return err
}

func (r *publicDataRepo) GetByCohortAndStage(ctx context.Context, cohortID, stageID string) (*model.StagePublicData, error) {
	var data model.StagePublicData
	err := r.collection.FindOne(ctx, bson.M{
		"cohortId": cohortID,
		"stageId":  stageID,
	}).Decode(&data)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &data, nil
}

func (r *publicDataRepo) GetByCohortID(ctx context.Context, cohortID string) ([]*model.StagePublicData, error) {
	return r.find(ctx, bson.M{"cohortId": cohortID})
}

func (r *publicDataRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.StagePublicData, error) {
	return r.find(ctx, bson.M{"experimentId": experimentID})
}

func (r *publicDataRepo) find(ctx context.Context, filter bson.M) ([]*model.StagePublicData, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*model.StagePublicData
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *publicDataRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"experimentId": experimentID})
	return err
}
