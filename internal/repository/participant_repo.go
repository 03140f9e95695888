package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// ParticipantRepo handles MongoDB operations for participant profiles.
// The unlock gate and the transfer coordinator rely on the cohort queries
// here; they run inside transactions via the context they are handed.
type ParticipantRepo interface {
	Create(ctx context.Context, participant *model.ParticipantProfile) error
	GetByPrivateID(ctx context.Context, privateID string) (*model.ParticipantProfile, error)
	GetByCohortID(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error)
	// GetPendingTransfersTo returns participants whose pending transfer
	// targets the given cohort. They count toward that cohort's gate.
	GetPendingTransfersTo(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error)
	GetByExperimentID(ctx context.Context, experimentID string) ([]*model.ParticipantProfile, error)
	GetByStatus(ctx context.Context, status model.ParticipantStatus) ([]*model.ParticipantProfile, error)
	CountByCohortID(ctx context.Context, cohortID string) (int64, error)
	// CountByVariableValue counts participants in an experiment whose
	// resolved variable equals the given value (balanced assignment).
	CountByVariableValue(ctx context.Context, experimentID, name, value string) (int64, error)
	Update(ctx context.Context, participant *model.ParticipantProfile) error
	DeleteByExperimentID(ctx context.Context, experimentID string) error
}

type participantRepo struct {
	collection *mongo.Collection
}

// NewParticipantRepo creates a new participant repository
func NewParticipantRepo(db *mongo.Database) ParticipantRepo {
	return &participantRepo{
		collection: db.Collection("participants"),
	}
}

func (r *participantRepo) Create(ctx context.Context, participant *model.ParticipantProfile) error {
	_, err := r.collection.InsertOne(ctx, participant)
	return err
}

func (r *participantRepo) GetByPrivateID(ctx context.Context, privateID string) (*model.ParticipantProfile, error) {
	var participant model.ParticipantProfile
	err := r.collection.FindOne(ctx, bson.M{"_id": privateID}).Decode(&participant)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepo) GetByCohortID(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error) {
	return r.find(ctx, bson.M{"currentCohortId": cohortID})
}

func (r *participantRepo) GetPendingTransfersTo(ctx context.Context, cohortID string) ([]*model.ParticipantProfile, error) {
	return r.find(ctx, bson.M{
		"transferCohortId": cohortID,
		"currentStatus":    model.StatusTransferPending,
	})
}

func (r *participantRepo) GetByExperimentID(ctx context.Context, experimentID string) ([]*model.ParticipantProfile, error) {
	return r.find(ctx, bson.M{"experimentId": experimentID})
}

func (r *participantRepo) GetByStatus(ctx context.Context, status model.ParticipantStatus) ([]*model.ParticipantProfile, error) {
	return r.find(ctx, bson.M{"currentStatus": status})
}

func (r *participantRepo) find(ctx context.Context, filter bson.M) ([]*model.ParticipantProfile, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var participants []*model.ParticipantProfile
	if err := cursor.All(ctx, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *participantRepo) CountByCohortID(ctx context.Context, cohortID string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{"currentCohortId": cohortID})
}

func (r *participantRepo) CountByVariableValue(ctx context.Context, experimentID, name, value string) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"experimentId":       experimentID,
		"variableMap." + name: value,
	})
}

func (r *participantRepo) Update(ctx context.Context, participant *model.ParticipantProfile) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": participant.PrivateID}, participant)
	return err
}

func (r *participantRepo) DeleteByExperimentID(ctx context.Context, experimentID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"experimentId": experimentID})
	return err
}
