package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateResumed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateResumed:
		return "resumed"
	default:
		return "disconnected"
	}
}

var (
	ErrConnectFailed  = errors.New("connect failed")
	ErrConnectionLost = errors.New("connection lost")
	ErrJoinRejected   = errors.New("join rejected")
	ErrNotConnected   = errors.New("not connected")
	ErrSessionClosed  = errors.New("session closed")
	ErrInvalidRoute   = errors.New("invalid route")
	ErrReplaced       = errors.New("joined from another connection")
)

const writeTimeout = 3 * time.Second

// Events are called from the goroutine running Run. They must not block.
type Events struct {
	OnState     func(State)
	OnRoom      func(types.RoomSnapshot)
	OnGame      func(types.ServerMessage)
	OnGameOver  func(capturer *types.Player)
	OnGameEnded func(winner *types.Player)
	OnChat      func(from *types.Player, content string)
	OnNotice    func(title, message string)
}

type Config struct {
	// URL is the server's websocket endpoint, e.g. ws://localhost:8080/ws.
	URL      string
	RoomID   string
	Username string
	Password string
	Identity IdentityStore
	// Highlight is called with the session lock held.
	Highlight      Highlighter
	Events         Events
	Logger         *zap.Logger
	ReconnectDelay time.Duration
	MaxAttempts    int
}

// Session is one client's connection to a room. It owns the command queue,
// submits the queue front on every game update and resumes after drops.
type Session struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	queue    *CommandQueue
	identity Identity
	room     *types.RoomSnapshot
	view     types.MapView
	joined   bool
	closed   bool
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Identity == nil {
		cfg.Identity = &MemoryIdentity{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	id, err := cfg.Identity.Load()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if cfg.Username != "" {
		id.Username = cfg.Username
	}
	return &Session{
		cfg:      cfg,
		log:      cfg.Logger.With(zap.String("room_id", cfg.RoomID)),
		queue:    NewCommandQueue(cfg.Highlight),
		identity: id,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.PlayerID
}

// Room is the latest room snapshot received.
func (s *Session) Room() (types.RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return types.RoomSnapshot{}, false
	}
	return *s.room, true
}

// View is the latest board received.
func (s *Session) View() types.MapView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.cfg.Events.OnState != nil {
		s.cfg.Events.OnState(st)
	}
}

func (s *Session) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("roomId", s.cfg.RoomID)
	if s.identity.Username != "" {
		q.Set("username", s.identity.Username)
	}
	if s.identity.PlayerID != "" {
		q.Set("playerId", s.identity.PlayerID)
	}
	if s.cfg.Password != "" {
		q.Set("password", s.cfg.Password)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the server and joins the room. A later Connect on the same
// session resumes: the queue is dropped and the room snapshot re-requested.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	resuming := s.joined
	endpoint, err := s.endpoint()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	s.setState(StateConnecting)
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	first, err := readMessage(ctx, conn)
	if err != nil {
		conn.CloseNow()
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if first.Type == types.MsgRejectJoin {
		conn.CloseNow()
		s.setState(StateDisconnected)
		return fmt.Errorf("%w: %s", ErrJoinRejected, first.Reason)
	}

	s.mu.Lock()
	s.conn = conn
	s.joined = true
	s.queue.Clear()
	s.mu.Unlock()

	if resuming {
		s.log.Info("resumed", zap.String("player_id", s.PlayerID()))
		s.setState(StateResumed)
	} else {
		s.setState(StateJoined)
	}
	s.dispatch(ctx, first)

	if resuming {
		return s.Send(ctx, types.ClientMessage{Type: types.MsgGetRoomInfo})
	}
	return nil
}

// Run reads server messages until the session ends, reconnecting after
// drops. It returns nil after Teardown or when the server closes the room,
// and ErrReplaced when the same player joined on another connection.
func (s *Session) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			if err := s.Connect(ctx); err != nil {
				return err
			}
			continue
		}

		err := s.readLoop(ctx, conn)

		s.mu.Lock()
		closed := s.closed
		if s.conn == conn {
			s.conn = nil
		}
		s.queue.Clear()
		s.mu.Unlock()
		s.setState(StateDisconnected)

		if closed || ctx.Err() != nil {
			return nil
		}
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure:
			return nil
		case websocket.StatusPolicyViolation:
			return ErrReplaced
		}
		s.log.Warn("connection lost", zap.Error(err))
		if err := s.reconnect(ctx, err); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *Session) reconnect(ctx context.Context, cause error) error {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.cfg.ReconnectDelay):
		}
		err := s.Connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrJoinRejected) || errors.Is(err, ErrSessionClosed) {
			return err
		}
		s.log.Info("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, cause)
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("bad server message", zap.Error(err))
			continue
		}
		s.dispatch(ctx, msg)
	}
}

func (s *Session) dispatch(ctx context.Context, msg types.ServerMessage) {
	ev := s.cfg.Events
	switch msg.Type {
	case types.MsgSetPlayerID:
		s.mu.Lock()
		s.identity.PlayerID = msg.PlayerID
		id := s.identity
		s.mu.Unlock()
		if err := s.cfg.Identity.Save(id); err != nil {
			s.log.Warn("save identity failed", zap.Error(err))
		}

	case types.MsgUpdateRoom:
		if msg.Room == nil {
			return
		}
		s.mu.Lock()
		s.room = msg.Room
		s.mu.Unlock()
		if ev.OnRoom != nil {
			ev.OnRoom(*msg.Room)
		}

	case types.MsgGameUpdate:
		s.mu.Lock()
		s.view = msg.Map
		next, ok := s.queue.OnTick()
		s.mu.Unlock()
		if ev.OnGame != nil {
			ev.OnGame(msg)
		}
		if ok {
			if err := s.Send(ctx, types.Attack(next.From, next.To, next.Half)); err != nil {
				s.log.Debug("submit failed", zap.Error(err))
			}
		}

	case types.MsgAttackFailure:
		if msg.From == nil || msg.To == nil {
			return
		}
		s.mu.Lock()
		dropped := s.queue.OnAttackFailure(*msg.From, *msg.To)
		s.mu.Unlock()
		s.log.Debug("attack failed", zap.Int("dropped", dropped))

	case types.MsgGameOver:
		if ev.OnGameOver != nil {
			ev.OnGameOver(msg.Player)
		}

	case types.MsgGameEnded:
		s.mu.Lock()
		s.queue.Clear()
		s.mu.Unlock()
		if ev.OnGameEnded != nil {
			ev.OnGameEnded(msg.Player)
		}

	case types.MsgRoomMessage:
		if ev.OnChat != nil {
			ev.OnChat(msg.Player, msg.Content)
		}

	case types.MsgError:
		if ev.OnNotice != nil {
			ev.OnNotice(msg.Title, msg.Message)
		}
	}
}

func (s *Session) Send(ctx context.Context, cm types.ClientMessage) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(cm)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

// Enqueue adds a move to the queue. Moves that cannot be valid on the last
// board seen are refused here instead of after a round trip.
func (s *Session) Enqueue(r Route) error {
	if !r.From.Adjacent(r.To) {
		return fmt.Errorf("%w: %v to %v is not adjacent", ErrInvalidRoute, r.From, r.To)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != nil {
		if _, ok := s.view.At(r.From); !ok {
			return fmt.Errorf("%w: %v is off the board", ErrInvalidRoute, r.From)
		}
		to, ok := s.view.At(r.To)
		if !ok || to.Type == types.TileMountain {
			return fmt.Errorf("%w: cannot move onto %v", ErrInvalidRoute, r.To)
		}
	}
	s.queue.Insert(r)
	return nil
}

// Dequeue drops the most recently queued move.
func (s *Session) Dequeue() (Route, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.PopBack()
}

func (s *Session) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
}

func (s *Session) QueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

func (s *Session) Surrender(ctx context.Context) error {
	return s.Send(ctx, types.ClientMessage{Type: types.MsgSurrender})
}

func (s *Session) Chat(ctx context.Context, content string) error {
	return s.Send(ctx, types.ClientMessage{Type: types.MsgRoomMessage, Content: content})
}

// Teardown closes the connection for good. Run returns once it notices.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.queue.Clear()
	s.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
	s.setState(StateDisconnected)
}

func readMessage(ctx context.Context, conn *websocket.Conn) (types.ServerMessage, error) {
	var msg types.ServerMessage
	_, data, err := conn.Read(ctx)
	if err != nil {
		return msg, err
	}
	err = json.Unmarshal(data, &msg)
	return msg, err
}
