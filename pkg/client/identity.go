package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Identity is what a client remembers between runs to resume as the same player.
type Identity struct {
	Username string `json:"username"`
	PlayerID string `json:"playerId"`
}

type IdentityStore interface {
	Load() (Identity, error)
	Save(Identity) error
}

// FileIdentity keeps the identity as JSON at Path.
type FileIdentity struct {
	Path string
}

func (f FileIdentity) Load() (Identity, error) {
	var id Identity
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return id, nil
	}
	if err != nil {
		return id, err
	}
	err = json.Unmarshal(raw, &id)
	return id, err
}

func (f FileIdentity) Save(id Identity) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, raw, 0o600)
}

type MemoryIdentity struct {
	mu sync.Mutex
	id Identity
}

func (m *MemoryIdentity) Load() (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryIdentity) Save(id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}
