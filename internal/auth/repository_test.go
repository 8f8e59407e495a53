package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUserRepository(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db.DB)
	ctx := context.Background()

	if n, err := repo.Count(ctx); err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0", n, err)
	}

	u := &User{Username: "darren", PasswordHash: "$argon2id$stub"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if err := repo.Create(ctx, &User{Username: "darren", PasswordHash: "x"}); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate Create() error = %v, want ErrUsernameExists", err)
	}

	got, err := repo.GetByUsername(ctx, "darren")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if got.PasswordHash != "$argon2id$stub" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}
	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetByUsername(unknown) error = %v", err)
	}

	users, err := repo.List(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("List() = %v, %v", users, err)
	}

	if err := repo.Delete(ctx, "darren"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "darren"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestTokenRepository(t *testing.T) {
	db := testDB(t)
	users := NewUserRepository(db.DB)
	repo := NewTokenRepository(db.DB)
	ctx := context.Background()

	if err := users.Create(ctx, &User{Username: "darren", PasswordHash: "x"}); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	live := &TokenInfo{
		ID: "tok-live", Username: "darren", DeviceName: "phone",
		TokenHash: HashToken("raw-live"), CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	old := &TokenInfo{
		ID: "tok-old", Username: "darren", DeviceName: "laptop",
		TokenHash: HashToken("raw-old"), CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	for _, tok := range []*TokenInfo{live, old} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create(%s) error = %v", tok.ID, err)
		}
	}

	got, err := repo.GetByID(ctx, "tok-live")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.DeviceName != "phone" || !got.ExpiresAt.Equal(live.ExpiresAt) {
		t.Errorf("GetByID() = %+v", got)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("GetByID(missing) error = %v", err)
	}

	byUser, err := repo.ListByUser(ctx, "darren")
	if err != nil || len(byUser) != 2 {
		t.Fatalf("ListByUser() = %d tokens, %v", len(byUser), err)
	}
	if byUser[0].ID != "tok-live" {
		t.Errorf("ListByUser()[0] = %s, want newest first", byUser[0].ID)
	}

	active, err := repo.ListActive(ctx)
	if err != nil || len(active) != 1 || active[0].ID != "tok-live" {
		t.Errorf("ListActive() = %+v, %v", active, err)
	}

	if n, err := repo.DeleteExpired(ctx); err != nil || n != 1 {
		t.Errorf("DeleteExpired() = %d, %v; want 1", n, err)
	}

	// Deleting the user cascades to their tokens.
	if err := users.Delete(ctx, "darren"); err != nil {
		t.Fatalf("deleting user: %v", err)
	}
	if _, err := repo.GetByID(ctx, "tok-live"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("token survived user deletion: %v", err)
	}
}

func TestHashToken(t *testing.T) {
	h := HashToken("abc")
	if len(h) != 64 {
		t.Errorf("len(HashToken) = %d, want 64", len(h))
	}
	if h != HashToken("abc") || h == HashToken("abd") {
		t.Error("HashToken is not a stable digest")
	}
}
