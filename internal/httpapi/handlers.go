package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/dewil-official/GeneralsGenniaMod/internal/hub"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

const maxCodeAttempts = 8

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			if h.Create(r.Context(), code) == nil {
				log.Debug("collision on room code, regenerating", zap.String("room_id", code))
				continue
			}
			writeJSON(w, http.StatusCreated, struct {
				RoomID string `json:"roomId"`
			}{RoomID: code})
			return
		}
		http.Error(w, "failed to create room", http.StatusServiceUnavailable)
	}
}

// ListRooms reports every live room, ordered by id.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := h.Rooms(r.Context())
		summaries := make([]types.RoomSummary, 0, len(rooms))
		for _, rm := range rooms {
			if s, ok := rm.Summary(r.Context()); ok {
				summaries = append(summaries, s)
			}
		}
		slices.SortFunc(summaries, func(a, b types.RoomSummary) int {
			return strings.Compare(a.ID, b.ID)
		})
		writeJSON(w, http.StatusOK, summaries)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
