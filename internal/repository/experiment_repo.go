package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// ExperimentRepo handles MongoDB operations for experiments
type ExperimentRepo interface {
	Create(ctx context.Context, experiment *model.Experiment) error
	GetByID(ctx context.Context, id string) (*model.Experiment, error)
	GetByExperimenterID(ctx context.Context, experimenterID string) ([]*model.Experiment, error)
	Update(ctx context.Context, experiment *model.Experiment) error
	Delete(ctx context.Context, id string) error
}

type experimentRepo struct {
	collection *mongo.Collection
}

// NewExperimentRepo creates a new experiment repository
func NewExperimentRepo(db *mongo.Database) ExperimentRepo {
	return &experimentRepo{
		collection: db.Collection("experiments"),
	}
}

func (r *experimentRepo) Create(ctx context.Context, experiment *model.Experiment) error {
	experiment.CreatedAt = time.Now()
	experiment.UpdatedAt = experiment.CreatedAt

	_, err := r.collection.InsertOne(ctx, experiment)
	return err
}

func (r *experimentRepo) GetByID(ctx context.Context, id string) (*model.Experiment, error) {
	var experiment model.Experiment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&experiment)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &experiment, nil
}

func (r *experimentRepo) GetByExperimenterID(ctx context.Context, experimenterID string) ([]*model.Experiment, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"experimenterId": experimenterID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var experiments []*model.Experiment
	if err := cursor.All(ctx, &experiments); err != nil {
		return nil, err
	}
	return experiments, nil
}

func (r *experimentRepo) Update(ctx context.Context, experiment *model.Experiment) error {
	experiment.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": experiment.ID}, experiment)
	return err
}

func (r *experimentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
