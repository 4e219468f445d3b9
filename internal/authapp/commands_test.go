package authapp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oranofz/taskmanagement/internal/events"
	"github.com/oranofz/taskmanagement/internal/mediator"
	"github.com/oranofz/taskmanagement/internal/model"
	"github.com/oranofz/taskmanagement/internal/password"
	"github.com/oranofz/taskmanagement/internal/tokens"
)

type fakeTx struct {
	committed bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

func fakeBegin(tx *fakeTx) mediator.TxBeginner {
	return func(ctx context.Context) (context.Context, mediator.Tx, error) {
		return ctx, tx, nil
	}
}

type fakeUserRepo struct {
	byEmail map[string]*model.User
	created []*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: map[string]*model.User{}}
}

type fakeUserNotFoundError string

func (e fakeUserNotFoundError) Error() string { return string(e) }

const errFakeUserNotFound = fakeUserNotFoundError("authapp_test: user not found")

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errFakeUserNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	f.created = append(f.created, u)
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	return nil
}

func (f *fakeUserRepo) UpdateMFA(_ context.Context, id uuid.UUID, enabled bool, secret string) error {
	return nil
}

func (f *fakeUserRepo) TouchLastLogin(_ context.Context, id uuid.UUID) error { return nil }

func (f *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errFakeUserNotFound
}

type fakeOutbox struct {
	inserted []events.Event
}

func (f *fakeOutbox) Insert(_ context.Context, e events.Event) error {
	f.inserted = append(f.inserted, e)
	return nil
}

type fakeRefreshLookup struct{}

func (fakeRefreshLookup) GetByTokenHash(context.Context, string) (*tokens.RefreshTokenRow, error) {
	return nil, nil
}

type nullRefreshStore struct{}

func (nullRefreshStore) LockByJTI(context.Context, string) (*tokens.RefreshTokenRow, error) {
	return nil, nil
}
func (nullRefreshStore) RevokeFamily(context.Context, uuid.UUID) error { return nil }
func (nullRefreshStore) Revoke(context.Context, uuid.UUID) error      { return nil }
func (nullRefreshStore) Insert(context.Context, *tokens.RefreshTokenRow) error { return nil }

func testTokenService(t *testing.T) *tokens.Service {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test RSA key: %v", err)
	}
	keys := tokens.NewKeySet(&tokens.KeyPair{Kid: "test", PrivateKey: priv, PublicKey: &priv.PublicKey})
	return tokens.NewService(keys, 15*time.Minute, 7*24*time.Hour, nullRefreshStore{})
}

func TestRegisterPersistsUserRegisteredInTheSameTransaction(t *testing.T) {
	users := newFakeUserRepo()
	outbox := &fakeOutbox{}
	tx := &fakeTx{}
	h := &Handlers{
		Users:       users,
		Policy:      &password.Policy{},
		Tokens:      testTokenService(t),
		RefreshRepo: fakeRefreshLookup{},
		Outbox:      outbox,
	}

	cmd := RegisterCommand{
		TenantID: uuid.New(),
		Email:    "new.hire@example.com",
		Username: "newhire",
		Password: "Str0ng!Passw0rd",
	}

	u, err := h.Register(context.Background(), fakeBegin(tx), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users.created) != 1 {
		t.Fatalf("expected the user row to be created, got %d", len(users.created))
	}
	if len(outbox.inserted) != 1 || outbox.inserted[0].Type != events.EventUserRegistered {
		t.Fatalf("expected a UserRegistered event in the outbox, got %v", outbox.inserted)
	}
	if outbox.inserted[0].AggregateID != u.ID {
		t.Errorf("expected the event's aggregate to be the new user, got %s", outbox.inserted[0].AggregateID)
	}
	if !tx.committed {
		t.Error("expected the transaction to be committed")
	}
}

func TestRegisterRollsBackWhenOutboxInsertFails(t *testing.T) {
	users := newFakeUserRepo()
	tx := &fakeTx{}
	h := &Handlers{
		Users:       users,
		Policy:      &password.Policy{},
		Tokens:      testTokenService(t),
		RefreshRepo: fakeRefreshLookup{},
		Outbox:      failingOutbox{},
	}

	cmd := RegisterCommand{
		TenantID: uuid.New(),
		Email:    "broken@example.com",
		Username: "broken",
		Password: "Str0ng!Passw0rd",
	}

	if _, err := h.Register(context.Background(), fakeBegin(tx), cmd); err == nil {
		t.Fatal("expected an error when the outbox insert fails")
	}
	if !tx.rolledBack {
		t.Error("expected the transaction to roll back when the outbox write fails")
	}
	if tx.committed {
		t.Error("expected the transaction not to be committed")
	}
}

type failingOutbox struct{}

func (failingOutbox) Insert(context.Context, events.Event) error {
	return errFailingOutbox
}

type failingOutboxError string

func (e failingOutboxError) Error() string { return string(e) }

const errFailingOutbox = failingOutboxError("authapp_test: simulated outbox failure")

func TestLoginPersistsUserLoggedIn(t *testing.T) {
	users := newFakeUserRepo()
	hash, err := password.Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	u := &model.User{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Email:        "existing@example.com",
		Username:     "existing",
		PasswordHash: hash,
		Roles:        []model.Role{model.RoleMember},
		IsActive:     true,
	}
	users.byEmail[u.Email] = u

	outbox := &fakeOutbox{}
	h := &Handlers{
		Users:       users,
		Policy:      &password.Policy{},
		Tokens:      testTokenService(t),
		RefreshRepo: fakeRefreshLookup{},
		Outbox:      outbox,
	}

	pair, err := h.Login(context.Background(), LoginQuery{Email: u.Email, Password: "Str0ng!Passw0rd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pair == nil || pair.AccessToken == "" {
		t.Fatalf("expected an issued token pair, got %+v", pair)
	}
	if len(outbox.inserted) != 1 || outbox.inserted[0].Type != events.EventUserLoggedIn {
		t.Fatalf("expected a UserLoggedIn event in the outbox, got %v", outbox.inserted)
	}
	if outbox.inserted[0].AggregateID != u.ID {
		t.Errorf("expected the event's aggregate to be the logged-in user, got %s", outbox.inserted[0].AggregateID)
	}
}

func TestLoginSucceedsEvenWhenOutboxInsertFails(t *testing.T) {
	users := newFakeUserRepo()
	hash, err := password.Hash("Str0ng!Passw0rd")
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	u := &model.User{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		Email:        "resilient@example.com",
		Username:     "resilient",
		PasswordHash: hash,
		Roles:        []model.Role{model.RoleMember},
		IsActive:     true,
	}
	users.byEmail[u.Email] = u

	h := &Handlers{
		Users:       users,
		Policy:      &password.Policy{},
		Tokens:      testTokenService(t),
		RefreshRepo: fakeRefreshLookup{},
		Outbox:      failingOutbox{},
	}

	pair, err := h.Login(context.Background(), LoginQuery{Email: u.Email, Password: "Str0ng!Passw0rd"})
	if err != nil {
		t.Fatalf("expected login to succeed even when the audit event fails to persist, got %v", err)
	}
	if pair == nil || pair.AccessToken == "" {
		t.Fatalf("expected an issued token pair, got %+v", pair)
	}
}
