package room

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dewil-official/GeneralsGenniaMod/internal/config"
	"github.com/dewil-official/GeneralsGenniaMod/internal/engine"
	"github.com/dewil-official/GeneralsGenniaMod/internal/mapgen"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

var (
	ErrJoinRejected  = errors.New("join rejected")
	ErrRoomFull      = errors.New("room is full")
	ErrWrongPassword = errors.New("wrong password")
	ErrGameConcluded = errors.New("game already concluded")
	ErrRoomClosed    = errors.New("room closed")
)

const DefaultUsername = "Anonymous"

// MsgReplaced is the last message on an outbox the room closed because the
// same player joined on another connection. It never goes on the wire.
const MsgReplaced = "replaced"

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseRunning  Phase = "running"
	PhaseOver     Phase = "over"
	PhaseArchived Phase = "archived"
)

type Msg interface{ isRoomMsg() }

// Join attaches a connection to the room. An empty PlayerID asks the room to
// assign one. Reply must be buffered.
type Join struct {
	PlayerID string
	Username string
	Password string
	Outbox   chan types.ServerMessage
	Reply    chan JoinResult

	verified []byte // password hash Password was checked against
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	PlayerID string
	Fresh    bool // id was assigned by this join
	Err      error

	hash []byte // set when the caller must check Password first
}

// passwordHashed carries a hash computed off the room goroutine.
type passwordHashed struct {
	seq  int
	hash []byte
	err  error
}

func (passwordHashed) isRoomMsg() {}

// Leave detaches a connection. It is ignored when Outbox no longer belongs to
// the player, so a stale socket cannot disconnect a resumed one.
type Leave struct {
	PlayerID string
	Outbox   chan types.ServerMessage
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	PlayerID string
	Msg      types.ClientMessage
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type GetSummary struct {
	Reply chan types.RoomSummary
}

func (GetSummary) isRoomMsg() {}

// ForceTick runs one tick immediately. Tests use it instead of waiting on the ticker.
type ForceTick struct{}

func (ForceTick) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// View is a copy of the room internals for tests and diagnostics.
type View struct {
	Phase      Phase
	Tick       int
	NumClients int
	Room       types.RoomSnapshot
	Grid       *engine.Grid
	Pending    map[string]int
}

type Config struct {
	ID       string
	Settings types.RoomSettings
	Rules    config.Rules
	Logger   *zap.Logger
	// Generate builds the board on start. Defaults to mapgen.Generate.
	Generate mapgen.Generator
	// Seed for map generation. Zero picks one from the clock.
	Seed uint64
	// OnClose runs once after the room has torn down.
	OnClose func(id string)
}

type member struct {
	types.Player
	index int // into game.Players, Neutral when not playing
}

type Room struct {
	id  string
	cfg Config
	log *zap.Logger

	inbox    chan Msg
	settings types.RoomSettings
	password []byte
	pwSeq    int
	phase    Phase
	members  []*member
	outboxes map[string]chan types.ServerMessage
	dropped  []string

	game    *engine.Game
	pending map[string][]engine.Command
	ticker  *time.Ticker
	archive *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Generate == nil {
		cfg.Generate = mapgen.Generate
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	cfg.Settings.RoomName = types.NormalizeRoomName(cfg.Settings.RoomName)

	r := &Room{
		id:       cfg.ID,
		cfg:      cfg,
		log:      cfg.Logger.With(zap.String("room_id", cfg.ID)),
		inbox:    make(chan Msg, 64),
		settings: cfg.Settings,
		phase:    PhaseLobby,
		outboxes: make(map[string]chan types.ServerMessage),
		pending:  make(map[string][]engine.Command),
		ctx:      ctx,
		cancel:   cancel,
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Inbox exposes the actor's mailbox to the hub and the websocket layer.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has torn down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Send delivers m unless the room or ctx is done first.
func (r *Room) Send(ctx context.Context, m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Join sends a Join and waits for the room's answer. Passwords are compared
// on the calling goroutine, never on the room's.
func (r *Room) Join(ctx context.Context, j Join) (JoinResult, error) {
	for range 3 {
		res, err := r.requestJoin(ctx, j)
		if err != nil || res.hash == nil {
			return res, err
		}
		if bcrypt.CompareHashAndPassword(res.hash, []byte(j.Password)) != nil {
			break
		}
		// The password may change between rounds; the room asks again then.
		j.verified = res.hash
	}
	r.log.Info("join rejected", zap.String("player_id", j.PlayerID), zap.Error(ErrWrongPassword))
	err := fmt.Errorf("%w: %w", ErrJoinRejected, ErrWrongPassword)
	return JoinResult{Err: err}, err
}

func (r *Room) requestJoin(ctx context.Context, j Join) (JoinResult, error) {
	j.Reply = make(chan JoinResult, 1)
	if !r.Send(ctx, j) {
		return JoinResult{}, ErrRoomClosed
	}
	select {
	case res := <-j.Reply:
		return res, res.Err
	case <-r.ctx.Done():
		return JoinResult{}, ErrRoomClosed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

// Summary asks the room for its lobby listing entry.
func (r *Room) Summary(ctx context.Context) (types.RoomSummary, bool) {
	reply := make(chan types.RoomSummary, 1)
	if !r.Send(ctx, GetSummary{Reply: reply}) {
		return types.RoomSummary{}, false
	}
	select {
	case s := <-reply:
		return s, true
	case <-r.ctx.Done():
		return types.RoomSummary{}, false
	case <-ctx.Done():
		return types.RoomSummary{}, false
	}
}

func (r *Room) loop() {
	defer r.shutdown()
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			if r.handle(m) {
				return
			}

		case <-r.tickC():
			r.tick()

		case <-r.archiveC():
			r.setPhase(PhaseArchived)
			r.broadcastRoom()
			return
		}
		if r.reapDropped() {
			return
		}
	}
}

// handle reports whether the room should tear down.
func (r *Room) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		r.join(msg)

	case Leave:
		cur, ok := r.outboxes[msg.PlayerID]
		if !ok || cur != msg.Outbox {
			return false
		}
		close(cur)
		delete(r.outboxes, msg.PlayerID)
		return r.disconnect(msg.PlayerID)

	case FromClient:
		r.fromClient(msg)

	case passwordHashed:
		r.passwordHashed(msg)

	case GetState:
		msg.Reply <- r.view()

	case GetSummary:
		msg.Reply <- r.summary()

	case ForceTick:
		if r.phase == PhaseRunning {
			r.tick()
		}

	case Shutdown:
		return true
	}
	return false
}

func (r *Room) shutdown() {
	r.stopTicker()
	if r.archive != nil {
		r.archive.Stop()
	}
	// Done must be closed before the outboxes so writers can tell teardown
	// from a dropped connection.
	r.cancel()
	for id, ch := range r.outboxes {
		close(ch) // no more messages for this connection
		delete(r.outboxes, id)
	}
	r.log.Info("room closed", zap.String("phase", string(r.phase)))
	if r.cfg.OnClose != nil {
		go r.cfg.OnClose(r.id)
	}
}

func (r *Room) join(msg Join) {
	reject := func(cause error) {
		r.log.Info("join rejected", zap.String("player_id", msg.PlayerID), zap.Error(cause))
		msg.Reply <- JoinResult{Err: fmt.Errorf("%w: %w", ErrJoinRejected, cause)}
	}
	if r.phase == PhaseArchived {
		reject(ErrGameConcluded)
		return
	}

	if m := r.member(msg.PlayerID); m != nil {
		r.attach(m, msg.Outbox)
		if msg.Username != "" {
			m.Username = msg.Username
		}
		r.log.Info("player resumed", zap.String("player_id", m.ID))
		msg.Reply <- JoinResult{PlayerID: m.ID}
		r.ensureHost()
		r.broadcastRoom()
		if r.game != nil {
			r.sendGame(m, r.game.Leaderboard())
		}
		return
	}

	if r.phase == PhaseOver {
		reject(ErrGameConcluded)
		return
	}
	if len(r.password) > 0 && !bytes.Equal(msg.verified, r.password) {
		msg.Reply <- JoinResult{hash: r.password}
		return
	}
	spectating := r.phase == PhaseRunning
	if !spectating && r.activeCount() >= r.settings.MaxPlayers {
		reject(ErrRoomFull)
		return
	}

	if msg.Username == "" {
		msg.Username = DefaultUsername
	}
	id, fresh := msg.PlayerID, false
	if id == "" {
		id, fresh = uuid.NewString(), true
	}
	color := r.freeColor()
	m := &member{
		Player: types.Player{
			ID:         id,
			Username:   msg.Username,
			Color:      color,
			Team:       color%r.settings.TeamCount + 1,
			IsRoomHost: r.host() == nil,
			Spectating: spectating,
		},
		index: engine.Neutral,
	}
	r.members = append(r.members, m)
	r.attach(m, msg.Outbox)
	r.log.Info("player joined",
		zap.String("player_id", id),
		zap.String("username", m.Username),
		zap.Bool("spectating", spectating),
	)

	msg.Reply <- JoinResult{PlayerID: id, Fresh: fresh}
	r.broadcastRoom()
	if r.game != nil {
		r.sendGame(m, r.game.Leaderboard())
	}
}

func (r *Room) attach(m *member, out chan types.ServerMessage) {
	if old, ok := r.outboxes[m.ID]; ok && old != out {
		select {
		case old <- types.ServerMessage{Type: MsgReplaced}:
		default:
		}
		close(old)
	}
	r.outboxes[m.ID] = out
	m.Connected = true
}

// disconnect marks id offline, or removes it while still in the lobby. It
// reports whether the room is now empty and should tear down.
func (r *Room) disconnect(id string) bool {
	m := r.member(id)
	if m == nil {
		return false
	}
	m.Connected = false
	delete(r.pending, id)
	r.log.Info("player left", zap.String("player_id", id))

	if r.phase == PhaseLobby {
		r.removeMember(id)
		if len(r.members) == 0 {
			return true
		}
		r.maybeStart()
	} else if r.connectedCount() == 0 {
		return true
	}
	r.ensureHost()
	r.broadcastRoom()
	return false
}

// reapDropped disconnects clients dropped for being slow during the last event.
func (r *Room) reapDropped() bool {
	done := false
	for len(r.dropped) > 0 {
		id := r.dropped[0]
		r.dropped = r.dropped[1:]
		if r.disconnect(id) {
			done = true
		}
	}
	return done
}

func (r *Room) send(id string, msg types.ServerMessage) {
	ch, ok := r.outboxes[id]
	if !ok {
		return
	}
	select {
	case ch <- msg:
		//ok
	default:
		// Client is slow/full - drop them.
		r.log.Warn("dropping slow client", zap.String("player_id", id))
		close(ch)
		delete(r.outboxes, id)
		r.dropped = append(r.dropped, id)
	}
}

func (r *Room) broadcast(msg types.ServerMessage) {
	for _, m := range r.members {
		r.send(m.ID, msg)
	}
}

func (r *Room) broadcastRoom() {
	snap := r.snapshot()
	r.broadcast(types.ServerMessage{Type: types.MsgUpdateRoom, Room: &snap})
}

func (r *Room) setPhase(p Phase) {
	r.log.Info("room phase", zap.String("from", string(r.phase)), zap.String("to", string(p)))
	r.phase = p
}

func (r *Room) member(id string) *member {
	if id == "" {
		return nil
	}
	for _, m := range r.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *Room) memberByIndex(idx int) *member {
	if idx < 0 {
		return nil
	}
	for _, m := range r.members {
		if m.index == idx {
			return m
		}
	}
	return nil
}

func (r *Room) removeMember(id string) {
	for i, m := range r.members {
		if m.ID == id {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

func (r *Room) host() *member {
	for _, m := range r.members {
		if m.IsRoomHost {
			return m
		}
	}
	return nil
}

// ensureHost hands the host role to the first connected member when the
// current host is gone or offline.
func (r *Room) ensureHost() {
	h := r.host()
	if h != nil && h.Connected {
		return
	}
	for _, m := range r.members {
		if m.Connected {
			if h != nil {
				h.IsRoomHost = false
			}
			m.IsRoomHost = true
			r.log.Info("host changed", zap.String("player_id", m.ID))
			return
		}
	}
}

func (r *Room) freeColor() int {
	used := make(map[int]bool, len(r.members))
	for _, m := range r.members {
		used[m.Color] = true
	}
	c := 0
	for used[c] {
		c++
	}
	return c
}

func (r *Room) activeCount() int {
	n := 0
	for _, m := range r.members {
		if !m.Spectating {
			n++
		}
	}
	return n
}

func (r *Room) connectedCount() int {
	n := 0
	for _, m := range r.members {
		if m.Connected {
			n++
		}
	}
	return n
}

func (r *Room) playerSnapshot(m *member) types.Player {
	p := m.Player
	switch {
	case r.game != nil && m.index >= 0:
		p.Alive = r.game.Players[m.index].Alive
	case r.game == nil:
		p.Alive = !m.Spectating
	default:
		p.Alive = false
	}
	return p
}

func (r *Room) snapshot() types.RoomSnapshot {
	players := make([]types.Player, 0, len(r.members))
	for _, m := range r.members {
		players = append(players, r.playerSnapshot(m))
	}
	return types.RoomSnapshot{
		ID:                  r.id,
		RoomSettings:        r.settings,
		Phase:               string(r.phase),
		GameStarted:         r.phase != PhaseLobby,
		ForceStartNum:       r.forceStartNum(),
		ForceStartThreshold: forceStartThreshold(r.activeCount()),
		Players:             players,
	}
}

func (r *Room) summary() types.RoomSummary {
	return types.RoomSummary{
		ID:         r.id,
		RoomName:   r.settings.RoomName,
		Phase:      string(r.phase),
		Players:    len(r.members),
		MaxPlayers: r.settings.MaxPlayers,
	}
}

func (r *Room) view() View {
	v := View{
		Phase:      r.phase,
		NumClients: len(r.outboxes),
		Room:       r.snapshot(),
		Pending:    make(map[string]int, len(r.pending)),
	}
	for id, q := range r.pending {
		v.Pending[id] = len(q)
	}
	if r.game != nil {
		v.Tick = r.game.Tick
		v.Grid = r.game.Grid.Clone()
	}
	return v
}

func (r *Room) tickC() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.C
}

func (r *Room) archiveC() <-chan time.Time {
	if r.archive == nil {
		return nil
	}
	return r.archive.C
}

func (r *Room) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}
