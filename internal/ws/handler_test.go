package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dewil-official/GeneralsGenniaMod/internal/config"
	"github.com/dewil-official/GeneralsGenniaMod/internal/hub"
	"github.com/dewil-official/GeneralsGenniaMod/internal/store"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

type fixture struct {
	srv   *httptest.Server
	hub   *hub.Hub
	store *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rules := config.DefaultRules()
	rules.PasswordCost = bcrypt.MinCost
	st := store.NewMemoryStore()
	h := hub.NewHub(ctx, hub.Config{Rules: rules})
	srv := httptest.NewServer(Handler(Options{Hub: h, Store: st, Rules: rules}))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: h, store: st}
}

func (f *fixture) dial(t *testing.T, q url.Values) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?" + q.Encode()
	conn, _, err := websocket.Dial(ctx, u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readType(t *testing.T, conn *websocket.Conn, typ string) types.ServerMessage {
	t.Helper()
	for {
		if msg := read(t, conn); msg.Type == typ {
			return msg
		}
	}
}

// closeStatus reads until the server closes conn.
func closeStatus(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func write(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func TestHandler_FreshJoinGetsPlayerID(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, url.Values{"roomId": {"ROOM01"}, "username": {"alice"}})

	first := read(t, conn)
	require.Equal(t, types.MsgSetPlayerID, first.Type)
	require.NotEmpty(t, first.PlayerID)

	upd := read(t, conn)
	require.Equal(t, types.MsgUpdateRoom, upd.Type)
	me, ok := upd.Room.Player(first.PlayerID)
	require.True(t, ok)
	assert.Equal(t, "alice", me.Username)
	assert.True(t, me.IsRoomHost)

	p, err := f.store.Lookup(context.Background(), first.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
}

func TestHandler_ResumeKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, url.Values{"roomId": {"ROOM01"}, "username": {"alice"}})
	id := read(t, conn).PlayerID
	require.NotEmpty(t, id)
	conn.Close(websocket.StatusNormalClosure, "")

	again := f.dial(t, url.Values{"roomId": {"ROOM01"}, "playerId": {id}})
	upd := read(t, again)
	require.Equal(t, types.MsgUpdateRoom, upd.Type, "a returning player is not sent a new id")
	me, ok := upd.Room.Player(id)
	require.True(t, ok)
	assert.Equal(t, "alice", me.Username)
}

func TestHandler_NewerConnectionReplacesOlder(t *testing.T) {
	f := newFixture(t)
	first := f.dial(t, url.Values{"roomId": {"ROOM01"}, "username": {"alice"}})
	id := read(t, first).PlayerID
	require.NotEmpty(t, id)
	readType(t, first, types.MsgUpdateRoom)

	second := f.dial(t, url.Values{"roomId": {"ROOM01"}, "playerId": {id}})
	readType(t, second, types.MsgUpdateRoom)

	assert.Equal(t, websocket.StatusPolicyViolation, closeStatus(t, first))
}

func TestHandler_RoomTeardownClosesNormally(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, url.Values{"roomId": {"ROOM01"}, "username": {"alice"}})
	readType(t, conn, types.MsgUpdateRoom)

	f.hub.Inbox() <- hub.ShutdownHub{}
	assert.Equal(t, websocket.StatusNormalClosure, closeStatus(t, conn))
}

func TestCloseReason(t *testing.T) {
	open := make(chan struct{})
	done := make(chan struct{})
	close(done)

	cases := []struct {
		name     string
		replaced bool
		roomDone chan struct{}
		want     websocket.StatusCode
	}{
		{name: "dropped while room runs", roomDone: open, want: websocket.StatusTryAgainLater},
		{name: "replaced", replaced: true, roomDone: open, want: websocket.StatusPolicyViolation},
		{name: "room torn down", roomDone: done, want: websocket.StatusNormalClosure},
	}
	for _, tc := range cases {
		got, _ := closeReason(tc.replaced, tc.roomDone)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestHandler_WrongPasswordRejected(t *testing.T) {
	f := newFixture(t)
	host := f.dial(t, url.Values{"roomId": {"LOCKED"}, "username": {"alice"}})
	readType(t, host, types.MsgUpdateRoom)

	write(t, host, types.ClientMessage{
		Type:     types.MsgChangeRoomSetting,
		Property: "password",
		Value:    json.RawMessage(`"s3cret"`),
	})
	for {
		if upd := readType(t, host, types.MsgUpdateRoom); upd.Room.HasPassword {
			break
		}
	}

	guest := f.dial(t, url.Values{"roomId": {"LOCKED"}, "username": {"eve"}, "password": {"guess"}})
	rej := read(t, guest)
	assert.Equal(t, types.MsgRejectJoin, rej.Type)
	assert.Contains(t, rej.Reason, "wrong password")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := guest.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestHandler_UnknownTypeGetsNotice(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, url.Values{"roomId": {"ROOM01"}, "username": {"alice"}})
	readType(t, conn, types.MsgUpdateRoom)

	write(t, conn, map[string]string{"type": "teleport"})
	notice := readType(t, conn, types.MsgError)
	assert.Equal(t, "Bad message", notice.Title)
}

func TestHandler_ChatIsTrimmedAndBroadcast(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, url.Values{"roomId": {"ROOM01"}, "username": {"alice"}})
	readType(t, conn, types.MsgUpdateRoom)

	write(t, conn, types.ClientMessage{Type: types.MsgRoomMessage, Content: "  gl hf  "})
	msg := readType(t, conn, types.MsgRoomMessage)
	assert.Equal(t, "gl hf", msg.Content)
	require.NotNil(t, msg.Player)
	assert.Equal(t, "alice", msg.Player.Username)
}

func TestHandler_MissingRoomID(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
		ok    bool
	}{
		{in: "  hi ", limit: 10, want: "hi", ok: true},
		{in: "   ", limit: 10, ok: false},
		{in: "héllo world", limit: 5, want: "héllo", ok: true},
		{in: "no cap", limit: 0, want: "no cap", ok: true},
	}
	for _, tc := range cases {
		got, ok := chat(tc.in, tc.limit)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
