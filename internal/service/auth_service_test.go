package service

import (
	"context"
	"strings"
	"testing"
)

func TestLogin(t *testing.T) {
	env := newTestEnv()

	resp, err := env.authSvc.Login("admin", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.Token == "" {
		t.Fatal("no token returned")
	}

	claims, err := env.authSvc.ValidateExperimenterToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateExperimenterToken() error = %v", err)
	}
	if claims.ExperimenterID != resp.ExperimenterID {
		t.Errorf("claims.ExperimenterID = %q, want %q", claims.ExperimenterID, resp.ExperimenterID)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv()

	if _, err := env.authSvc.Login("admin", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("Login() error = %v, want %v", err, ErrInvalidCredentials)
	}
}

func TestValidateExperimenterTokenGarbage(t *testing.T) {
	env := newTestEnv()

	if _, err := env.authSvc.ValidateExperimenterToken("not.a.jwt"); err != ErrInvalidToken {
		t.Errorf("error = %v, want %v", err, ErrInvalidToken)
	}
}

func TestParticipantTokenRoundTrip(t *testing.T) {
	env := newTestEnv()

	token, err := env.authSvc.GenerateParticipantToken("e_1", "c_1", "p_1")
	if err != nil {
		t.Fatalf("GenerateParticipantToken() error = %v", err)
	}

	claims, err := env.authSvc.ValidateParticipantToken(token)
	if err != nil {
		t.Fatalf("ValidateParticipantToken() error = %v", err)
	}
	if claims.ExperimentID != "e_1" || claims.CohortID != "c_1" || claims.ParticipantPrivateID != "p_1" {
		t.Errorf("claims = %+v, want e_1/c_1/p_1", claims)
	}
}

func TestParticipantTokenRejectedByExperimenterCheck(t *testing.T) {
	env := newTestEnv()

	resp, err := env.authSvc.Login("admin", "password123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// An experimenter token carries no participant claims.
	claims, err := env.authSvc.ValidateParticipantToken(resp.Token)
	if err == nil && claims.ParticipantPrivateID != "" {
		t.Errorf("experimenter token produced participant subject %q", claims.ParticipantPrivateID)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	key, rawKey, err := env.authSvc.CreateAPIKey(ctx, "exp_1", "ci runner")
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if !strings.HasPrefix(rawKey, "dlk_") {
		t.Errorf("raw key %q missing dlk_ prefix", rawKey)
	}
	if !strings.HasPrefix(rawKey, key.Prefix) {
		t.Errorf("stored prefix %q is not a prefix of the raw key", key.Prefix)
	}
	if key.Digest == rawKey {
		t.Error("raw key stored verbatim")
	}

	validated, err := env.authSvc.ValidateAPIKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if validated.ID != key.ID {
		t.Errorf("validated key ID = %q, want %q", validated.ID, key.ID)
	}

	keys, err := env.authSvc.ListAPIKeys(ctx, "exp_1")
	if err != nil {
		t.Fatalf("ListAPIKeys() error = %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("ListAPIKeys() returned %d keys, want 1", len(keys))
	}

	if err := env.authSvc.RevokeAPIKey(ctx, key.ID, "exp_1"); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}
	if _, err := env.authSvc.ValidateAPIKey(ctx, rawKey); err != ErrInvalidAPIKey {
		t.Errorf("revoked key validated: error = %v, want %v", err, ErrInvalidAPIKey)
	}
}

func TestRevokeAPIKeyWrongOwner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	key, rawKey, err := env.authSvc.CreateAPIKey(ctx, "exp_1", "ci runner")
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	if err := env.authSvc.RevokeAPIKey(ctx, key.ID, "exp_other"); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}
	if _, err := env.authSvc.ValidateAPIKey(ctx, rawKey); err != nil {
		t.Errorf("key revoked by a non-owner: error = %v", err)
	}
}

func TestValidateAPIKeyUnknown(t *testing.T) {
	env := newTestEnv()

	if _, err := env.authSvc.ValidateAPIKey(context.Background(), "dlk_nope"); err != ErrInvalidAPIKey {
		t.Errorf("error = %v, want %v", err, ErrInvalidAPIKey)
	}
}
