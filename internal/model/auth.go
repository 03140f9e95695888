package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExperimenterClaims are JWT claims for experimenter authentication
type ExperimenterClaims struct {
	ExperimenterID string `json:"experimenterId"`
	jwt.RegisteredClaims
}

// ParticipantClaims are JWT claims for participant cohort-scoped tokens
type ParticipantClaims struct {
	ExperimentID         string `json:"experimentId"`
	CohortID             string `json:"cohortId"`
	ParticipantPrivateID string `json:"participantPrivateId"`
	jwt.RegisteredClaims
}

// LoginRequest is the request body for experimenter login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned after successful login
type LoginResponse struct {
	Token          string `json:"token"`
	ExperimenterID string `json:"experimenterId"`
}

// APIKey is a server-to-server credential for the REST API. Only the SHA-256
// digest is stored; the raw key is returned once at creation time.
type APIKey struct {
	ID             string     `json:"id" bson:"_id"`
	ExperimenterID string     `json:"experimenterId" bson:"experimenterId"`
	Name           string     `json:"name" bson:"name"`
	// First characters of the raw key, for display
	Prefix    string     `json:"prefix" bson:"prefix"`
	Digest    string     `json:"-" bson:"digest"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
}

// Revoked reports whether the key has been revoked
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}
