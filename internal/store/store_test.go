package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the same checks against every Store implementation.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	_, err := s.Lookup(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Touch(ctx, id), ErrNotFound)

	require.NoError(t, s.Register(ctx, id, "alice"))
	p, err := s.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)

	require.NoError(t, s.Register(ctx, id, "alice2"))
	p2, err := s.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice2", p2.Username)
	assert.Equal(t, p.CreatedAt.Unix(), p2.CreatedAt.Unix())

	require.NoError(t, s.Touch(ctx, id))
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestMemoryStore_TouchAdvancesLastSeen(t *testing.T) {
	s := NewMemoryStore()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "p1", "bob"))
	clock = clock.Add(time.Minute)
	require.NoError(t, s.Touch(ctx, "p1"))

	p, err := s.Lookup(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, p.LastSeenAt.Sub(p.CreatedAt))
}

func TestGormStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgres(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exercise(t, s)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, isUniqueViolation(dup))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))
}
