package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewil-official/GeneralsGenniaMod/internal/config"
	"github.com/dewil-official/GeneralsGenniaMod/internal/hub"
	"github.com/dewil-official/GeneralsGenniaMod/internal/store"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rules := config.DefaultRules()
	return SetupRoutes(Deps{
		Hub:   hub.NewHub(ctx, hub.Config{Rules: rules}),
		Store: store.NewMemoryStore(),
		Rules: rules,
	})
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
}

func TestCreateThenListRooms(t *testing.T) {
	router := newTestRouter(t)

	var ids []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms", nil))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body struct {
			RoomID string `json:"roomId"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.RoomID, 6)
		ids = append(ids, body.RoomID)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var rooms []types.RoomSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rooms))
	require.Len(t, rooms, 2)
	assert.ElementsMatch(t, ids, []string{rooms[0].ID, rooms[1].ID})
	assert.LessOrEqual(t, rooms[0].ID, rooms[1].ID)
	assert.Equal(t, "lobby", rooms[0].Phase)
	assert.Equal(t, 8, rooms[0].MaxPlayers)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
