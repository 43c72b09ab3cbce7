// Package store remembers player identities across reconnects and restarts.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("player not found")

type Player struct {
	ID         string
	Username   string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

type Store interface {
	// Register records id under username, updating the name if id is known.
	Register(ctx context.Context, id, username string) error
	Lookup(ctx context.Context, id string) (Player, error)
	// Touch bumps LastSeenAt for a returning player.
	Touch(ctx context.Context, id string) error
}

// MemoryStore is used when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	players map[string]Player
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[string]Player), now: time.Now}
}

func (s *MemoryStore) Register(_ context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	p, ok := s.players[id]
	if !ok {
		p = Player{ID: id, CreatedAt: now}
	}
	p.Username = username
	p.LastSeenAt = now
	s.players[id] = p
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, id string) (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	p.LastSeenAt = s.now()
	s.players[id] = p
	return nil
}
