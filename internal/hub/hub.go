package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/dewil-official/GeneralsGenniaMod/internal/config"
	"github.com/dewil-official/GeneralsGenniaMod/internal/mapgen"
	"github.com/dewil-official/GeneralsGenniaMod/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	ID    string
	Reply chan *room.Room // nil when the id is taken
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom returns the room with ID, creating it on first use.
type EnsureRoom struct {
	ID    string
	Reply chan *room.Room
}

// RemoveRoom forgets ID once its room has closed. A newer room under the same
// id is kept.
type RemoveRoom struct {
	ID string
}

type ListRooms struct {
	Reply chan []*room.Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Rules  config.Rules
	Logger *zap.Logger
	// Generate overrides map generation for every room.
	Generate mapgen.Generator
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		log:    cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.rooms[msg.ID] != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.newRoom(msg.ID)

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.ID]; rm != nil && !closed(rm) {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.newRoom(msg.ID)

			case RemoveRoom:
				if rm := h.rooms[msg.ID]; rm != nil && closed(rm) {
					delete(h.rooms, msg.ID)
					h.log.Debug("room removed", zap.String("room_id", msg.ID))
				}

			case ListRooms:
				rooms := make([]*room.Room, 0, len(h.rooms))
				for _, rm := range h.rooms {
					rooms = append(rooms, rm)
				}
				msg.Reply <- rooms

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Send(h.ctx, room.Shutdown{})
				}
				clear(h.rooms)
				h.log.Info("hub shut down")
				h.cancel()
			}
		}
	}
}

func (h *Hub) newRoom(id string) *room.Room {
	rm := room.NewRoom(h.ctx, room.Config{
		ID:       id,
		Settings: h.cfg.Rules.DefaultSettings,
		Rules:    h.cfg.Rules,
		Logger:   h.log,
		Generate: h.cfg.Generate,
		OnClose:  h.remove,
	})
	h.rooms[id] = rm
	h.log.Info("room created", zap.String("room_id", id))
	return rm
}

func (h *Hub) remove(id string) {
	select {
	case h.inbox <- RemoveRoom{ID: id}:
	case <-h.ctx.Done():
	}
}

func closed(rm *room.Room) bool {
	select {
	case <-rm.Done():
		return true
	default:
		return false
	}
}

// Room looks up id without creating it.
func (h *Hub) Room(ctx context.Context, id string) *room.Room {
	reply := make(chan *room.Room, 1)
	if !h.send(ctx, GetRoom{ID: id, Reply: reply}) {
		return nil
	}
	return h.wait(ctx, reply)
}

// Ensure returns the room with id, creating it when missing or closed.
func (h *Hub) Ensure(ctx context.Context, id string) *room.Room {
	reply := make(chan *room.Room, 1)
	if !h.send(ctx, EnsureRoom{ID: id, Reply: reply}) {
		return nil
	}
	return h.wait(ctx, reply)
}

// Create makes a room under a fresh id and returns nil if id is taken.
func (h *Hub) Create(ctx context.Context, id string) *room.Room {
	reply := make(chan *room.Room, 1)
	if !h.send(ctx, CreateRoom{ID: id, Reply: reply}) {
		return nil
	}
	return h.wait(ctx, reply)
}

func (h *Hub) Rooms(ctx context.Context) []*room.Room {
	reply := make(chan []*room.Room, 1)
	if !h.send(ctx, ListRooms{Reply: reply}) {
		return nil
	}
	select {
	case rooms := <-reply:
		return rooms
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) wait(ctx context.Context, reply chan *room.Room) *room.Room {
	select {
	case rm := <-reply:
		return rm
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}
