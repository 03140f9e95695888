package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/PAIR-code/deliberate-lab/internal/model"
	"github.com/PAIR-code/deliberate-lab/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidAPIKey      = errors.New("invalid or revoked API key")
)

// AuthService handles experimenter and participant authentication plus
// server-to-server API keys.
type AuthService struct {
	adminUsername string
	adminPassword string
	jwtSecret     []byte
	apiKeyRepo    repository.APIKeyRepo
}

// NewAuthService creates a new auth service
func NewAuthService(apiKeyRepo repository.APIKeyRepo) *AuthService {
	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "password123"
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "super-secret-key-change-in-production"
	}

	return &AuthService{
		adminUsername: username,
		adminPassword: password,
		jwtSecret:     []byte(secret),
		apiKeyRepo:    apiKeyRepo,
	}
}

// Login validates credentials and returns an experimenter token
func (s *AuthService) Login(username, password string) (*model.LoginResponse, error) {
	if username != s.adminUsername || password != s.adminPassword {
		return nil, ErrInvalidCredentials
	}

	experimenterID := "exp_" + uuid.New().String()[:8]

	claims := &model.ExperimenterClaims{
		ExperimenterID: experimenterID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token:          tokenString,
		ExperimenterID: experimenterID,
	}, nil
}

// ValidateExperimenterToken validates an experimenter JWT and returns claims
func (s *AuthService) ValidateExperimenterToken(tokenString string) (*model.ExperimenterClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ExperimenterClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ExperimenterClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateParticipantToken creates a cohort-scoped token for a participant
func (s *AuthService) GenerateParticipantToken(experimentID, cohortID, privateID string) (string, error) {
	claims := &model.ParticipantClaims{
		ExperimentID:         experimentID,
		CohortID:             cohortID,
		ParticipantPrivateID: privateID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateParticipantToken validates a participant JWT and returns claims
func (s *AuthService) ValidateParticipantToken(tokenString string) (*model.ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ParticipantClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.ParticipantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// CreateAPIKey mints a new API key. The raw key is returned exactly once;
// only its digest is persisted.
func (s *AuthService) CreateAPIKey(ctx context.Context, experimenterID, name string) (*model.APIKey, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	rawKey := "dlk_" + hex.EncodeToString(raw)

	key := &model.APIKey{
		ID:             uuid.New().String(),
		ExperimenterID: experimenterID,
		Name:           name,
		Prefix:         rawKey[:12],
		Digest:         hashAPIKey(rawKey),
	}
	if err := s.apiKeyRepo.Create(ctx, key); err != nil {
		return nil, "", fmt.Errorf("failed to store API key: %w", err)
	}
	return key, rawKey, nil
}

// ValidateAPIKey checks a raw API key and returns the owning record
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*model.APIKey, error) {
	key, err := s.apiKeyRepo.GetByDigest(ctx, hashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Revoked() {
		return nil, ErrInvalidAPIKey
	}
	return key, nil
}

// ListAPIKeys returns all keys owned by an experimenter
func (s *AuthService) ListAPIKeys(ctx context.Context, experimenterID string) ([]*model.APIKey, error) {
	return s.apiKeyRepo.GetByExperimenterID(ctx, experimenterID)
}

// RevokeAPIKey revokes a key owned by the experimenter
func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID, experimenterID string) error {
	return s.apiKeyRepo.Revoke(ctx, keyID, experimenterID)
}

func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
