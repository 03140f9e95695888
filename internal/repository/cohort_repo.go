package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// CohortRepo handles MongoDB operations for cohorts
type CohortRepo interface {
	Create(ctx context.Context, cohort *model.CohortConfig) error
	GetByID(ctx context.Context, id string) (*model.CohortConfig, error)
	GetByExperimentID(ctx context.Context, experimentID string) ([]*model.CohortConfig, error)
	Update(ctx context.Context, cohort *model.CohortConfig) error
	// SetStageUnlocked writes a single unlock-map entry without touching the
	// rest of the document, so concurrent gate checks for different stages
	// cannot clobber each other.
	SetStageUnlocked(ctx context.Context, cohortID, stageID string) error
	Delete(ctx context.Context, id string) error
	DeleteByExperimentID(ctx context.Context, experimentID string) error
}

type cohortRepo struct {
	collection *mongo.Collection
}

// NewCohortRepo creates a new cohort repository
func NewCohortRepo(db *mongo.Database) CohortRepo {
	return &cohortRepo{
		collection: db.Collection("cohorts"),
	}
}

func (r *cohortRepo) Create(ctx context.Context, cohort *model.CohortConfig) error {
	cohort.CreatedAt = time.Now()
	cohort.UpdatedAt = cohort.CreatedAt

	_, err := r.collection.InsertOne(ctx, cohort)
	return err
}

func (r *cohortRepo) GetByID(ctx context.Context, id string) (*model.CohortConfig, error) {
	var cohort model.CohortConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cohort)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cohort, nil
}

func (r *cohortRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.CohortConfig, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"experimentId": experimentID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var cohorts []*model.CohortConfig
	if err := cursor.All(ctx, &cohorts); err != nil {
		return nil, err
	}
	return cohorts, nil
}

func (r *cohortRepo) Update(ctx context.Context, cohort *model.CohortConfig) error {
	cohort.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": cohort.ID}, cohort)
	return err
}

func (r *cohortRepo) SetStageUnlocked(ctx context.Context, cohortID, stageID string) error {
	update := bson.M{
		"$set": bson.M{
			"stageUnlockMap." + stageID: true,
			"updatedAt":                 time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": cohortID}, update)
	return err
}

func (r *cohortRepo) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *cohortRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"experimentId": experimentID})
	return err
}
