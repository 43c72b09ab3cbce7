package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dewil-official/GeneralsGenniaMod/internal/config"
	"github.com/dewil-official/GeneralsGenniaMod/internal/hub"
	"github.com/dewil-official/GeneralsGenniaMod/internal/room"
	"github.com/dewil-official/GeneralsGenniaMod/internal/store"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

const (
	writeTimeout = 3 * time.Second
	pingInterval = 20 * time.Second
	readLimit    = 4096
	outboxSize   = 32
)

// forwarded lists the client message types passed on to the room.
var forwarded = map[string]bool{
	types.MsgGetRoomInfo:       true,
	types.MsgChangeRoomSetting: true,
	types.MsgSetTeam:           true,
	types.MsgForceStart:        true,
	types.MsgStartGame:         true,
	types.MsgChangeHost:        true,
	types.MsgAttack:            true,
	types.MsgSurrender:         true,
	types.MsgRoomMessage:       true,
}

type Options struct {
	Hub            *hub.Hub
	Store          store.Store
	Rules          config.Rules
	Logger         *zap.Logger
	OriginPatterns []string
}

func Handler(opts Options) http.HandlerFunc {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		roomID := q.Get("roomId")
		if roomID == "" {
			http.Error(w, "missing roomId", http.StatusBadRequest)
			return
		}
		playerID := q.Get("playerId")
		username := strings.TrimSpace(q.Get("username"))
		if username == "" && playerID != "" {
			if p, err := opts.Store.Lookup(r.Context(), playerID); err == nil {
				username = p.Username
			}
		}
		log := opts.Logger.With(zap.String("room_id", roomID))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(readLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan types.ServerMessage, outboxSize)
		rm, res, err := join(ctx, opts.Hub, roomID, room.Join{
			PlayerID: playerID,
			Username: username,
			Password: q.Get("password"),
			Outbox:   out,
		})
		if err != nil {
			log.Info("join failed", zap.String("player_id", playerID), zap.Error(err))
			_ = writeJSON(ctx, conn, types.ServerMessage{Type: types.MsgRejectJoin, Reason: err.Error()})
			conn.Close(websocket.StatusPolicyViolation, "join rejected")
			return
		}
		log = log.With(zap.String("player_id", res.PlayerID))
		defer rm.Send(context.Background(), room.Leave{PlayerID: res.PlayerID, Outbox: out})

		if res.Fresh {
			if err := writeJSON(ctx, conn, types.ServerMessage{Type: types.MsgSetPlayerID, PlayerID: res.PlayerID}); err != nil {
				return
			}
			remember(ctx, log, opts.Store, res.PlayerID, username, false)
		} else {
			remember(ctx, log, opts.Store, res.PlayerID, username, true)
		}

		// Writer goroutine
		go func() {
			replaced := false
			for msg := range out {
				if msg.Type == room.MsgReplaced {
					replaced = true
					continue
				}
				if err := writeJSON(ctx, conn, msg); err != nil {
					log.Debug("write failed", zap.Error(err))
					cancel()
				}
			}
			// The room let go of this connection.
			status, reason := closeReason(replaced, rm.Done())
			conn.Close(status, reason)
		}()

		go keepalive(ctx, conn, cancel)

		limiter := rate.NewLimiter(rate.Limit(opts.Rules.ChatRatePerSec), opts.Rules.ChatBurst)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeJSON(ctx, conn, types.Notice("Bad message", "invalid json"))
				continue
			}
			if !forwarded[cm.Type] {
				_ = writeJSON(ctx, conn, types.Notice("Bad message", "unknown type "+cm.Type))
				continue
			}
			if cm.Type == types.MsgRoomMessage {
				content, ok := chat(cm.Content, opts.Rules.MaxMessageLength)
				if !ok {
					continue
				}
				if !limiter.Allow() {
					_ = writeJSON(ctx, conn, types.Notice("Slow down", "too many messages"))
					continue
				}
				cm.Content = content
			}

			if !rm.Send(ctx, room.FromClient{PlayerID: res.PlayerID, Msg: cm}) {
				return
			}
		}
	}
}

// closeReason picks the close frame once the room has closed an outbox. Only
// room teardown is a normal closure; clients reconnect after anything else
// except being replaced by a newer connection of the same player.
func closeReason(replaced bool, roomDone <-chan struct{}) (websocket.StatusCode, string) {
	select {
	case <-roomDone:
		return websocket.StatusNormalClosure, "room closed"
	default:
	}
	if replaced {
		return websocket.StatusPolicyViolation, "joined from another connection"
	}
	return websocket.StatusTryAgainLater, "connection dropped"
}

// join attaches out to the room, retrying once when the room closed between
// lookup and join.
func join(ctx context.Context, h *hub.Hub, roomID string, j room.Join) (*room.Room, room.JoinResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rm := h.Ensure(ctx, roomID)
		if rm == nil {
			return nil, room.JoinResult{}, room.ErrRoomClosed
		}
		res, err := rm.Join(ctx, j)
		if errors.Is(err, room.ErrRoomClosed) {
			continue
		}
		return rm, res, err
	}
	return nil, room.JoinResult{}, room.ErrRoomClosed
}

func remember(ctx context.Context, log *zap.Logger, s store.Store, id, username string, returning bool) {
	if username == "" {
		username = room.DefaultUsername
	}
	if returning {
		err := s.Touch(ctx, id)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("touch player failed", zap.Error(err))
			return
		}
	}
	if err := s.Register(ctx, id, username); err != nil {
		log.Warn("register player failed", zap.Error(err))
	}
}

// chat trims content and caps it at limit runes. Empty messages are dropped.
func chat(content string, limit int) (string, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false
	}
	if limit > 0 && utf8.RuneCountInString(content) > limit {
		content = string([]rune(content)[:limit])
	}
	return content, true
}

func keepalive(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				cancel()
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
