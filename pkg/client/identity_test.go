package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIdentity_RoundTrip(t *testing.T) {
	f := FileIdentity{Path: filepath.Join(t.TempDir(), "nested", "identity.json")}

	id, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, Identity{}, id, "missing file is an empty identity")

	want := Identity{Username: "alice", PlayerID: "5b1c"}
	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
