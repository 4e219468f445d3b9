package tokens

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/events"
)

type fakeRefreshStore struct {
	revokedFamilies []uuid.UUID
	revoked         []uuid.UUID
	inserted        []*RefreshTokenRow
}

func (f *fakeRefreshStore) LockByJTI(_ context.Context, _ string) (*RefreshTokenRow, error) {
	return nil, nil
}

func (f *fakeRefreshStore) RevokeFamily(_ context.Context, familyID uuid.UUID) error {
	f.revokedFamilies = append(f.revokedFamilies, familyID)
	return nil
}

func (f *fakeRefreshStore) Revoke(_ context.Context, id uuid.UUID) error {
	f.revoked = append(f.revoked, id)
	return nil
}

func (f *fakeRefreshStore) Insert(_ context.Context, row *RefreshTokenRow) error {
	f.inserted = append(f.inserted, row)
	return nil
}

func testService(t *testing.T, store RefreshStore) *Service {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test RSA key: %v", err)
	}
	keys := NewKeySet(&KeyPair{Kid: "test", PrivateKey: priv, PublicKey: &priv.PublicKey})
	return NewService(keys, 15*time.Minute, 7*24*time.Hour, store)
}

func TestRefreshReplayEmitsSecurityAlert(t *testing.T) {
	store := &fakeRefreshStore{}
	svc := testService(t, store)

	familyID := uuid.New()
	userID := uuid.New()
	tenantID := uuid.New()
	current := &RefreshTokenRow{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		FamilyID:  familyID,
		JTI:       uuid.NewString(),
		IsRevoked: true,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	pair, produced, err := svc.Refresh(context.Background(), current, MintAccessInput{UserID: userID, TenantID: tenantID})
	if err == nil {
		t.Fatal("expected replay detection to return an error")
	}
	if pair != nil {
		t.Errorf("expected no issued pair on replay, got %v", pair)
	}
	if len(store.revokedFamilies) != 1 || store.revokedFamilies[0] != familyID {
		t.Fatalf("expected the entire family to be revoked, got %v", store.revokedFamilies)
	}
	if len(produced) != 1 {
		t.Fatalf("expected exactly one produced event, got %d", len(produced))
	}
	if produced[0].Type != events.EventSecurityAlert {
		t.Errorf("expected a SecurityAlert event, got %s", produced[0].Type)
	}
	if produced[0].AggregateID != userID || produced[0].TenantID != tenantID {
		t.Errorf("expected the alert to carry the replaying user's identity, got %+v", produced[0])
	}
}

func TestRefreshRotationProducesNoEvents(t *testing.T) {
	store := &fakeRefreshStore{}
	svc := testService(t, store)

	userID := uuid.New()
	tenantID := uuid.New()
	current := &RefreshTokenRow{
		ID:        uuid.New(),
		UserID:    userID,
		TenantID:  tenantID,
		FamilyID:  uuid.New(),
		JTI:       uuid.NewString(),
		IsRevoked: false,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	pair, produced, err := svc.Refresh(context.Background(), current, MintAccessInput{UserID: userID, TenantID: tenantID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair == nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected a fresh issued pair, got %+v", pair)
	}
	if produced != nil {
		t.Errorf("expected no events on a clean rotation, got %v", produced)
	}
	if len(store.revoked) != 1 || store.revoked[0] != current.ID {
		t.Errorf("expected the presented token to be revoked, got %v", store.revoked)
	}
	if len(store.inserted) != 1 {
		t.Errorf("expected the rotated successor token to be inserted, got %d rows", len(store.inserted))
	}
}
