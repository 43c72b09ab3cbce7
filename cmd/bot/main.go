// Command bot joins a room and expands greedily from its largest tile. It is
// handy for filling rooms while testing the server.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dewil-official/GeneralsGenniaMod/pkg/client"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

func main() {
	var (
		addr     = flag.String("url", "ws://localhost:8080/ws", "server websocket endpoint")
		roomID   = flag.String("room", "", "room id to join")
		username = flag.String("name", "bot", "display name")
		password = flag.String("password", "", "room password")
		identity = flag.String("identity", "", "file to remember the player id in")
		vote     = flag.Bool("force-start", true, "vote to start as soon as joined")
	)
	flag.Parse()
	if *roomID == "" {
		log.Fatal("-room is required")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ids client.IdentityStore
	if *identity != "" {
		ids = client.FileIdentity{Path: *identity}
	}

	b := &bot{log: logger}
	s, err := client.NewSession(client.Config{
		URL:      *addr,
		RoomID:   *roomID,
		Username: *username,
		Password: *password,
		Identity: ids,
		Logger:   logger,
		Events: client.Events{
			OnState: func(st client.State) { logger.Info("session", zap.Stringer("state", st)) },
			OnGame:  b.onGame,
			OnGameEnded: func(w *types.Player) {
				if w != nil {
					logger.Info("game ended", zap.String("winner", w.Username))
				}
				stop()
			},
			OnNotice: func(title, msg string) { logger.Warn(title, zap.String("message", msg)) },
		},
	})
	if err != nil {
		logger.Fatal("session", zap.Error(err))
	}
	b.session = s
	defer s.Teardown()

	if err := s.Connect(ctx); err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	if *vote {
		if err := s.Send(ctx, types.ClientMessage{Type: types.MsgForceStart}); err != nil {
			logger.Warn("force start", zap.Error(err))
		}
	}
	if err := s.Run(ctx); err != nil {
		logger.Error("session ended", zap.Error(err))
	}
}

type bot struct {
	log     *zap.Logger
	session *client.Session
}

// onGame queues one move from the strongest owned tile toward the weakest
// passable neighbour whenever the queue runs dry.
func (b *bot) onGame(msg types.ServerMessage) {
	if b.session.QueueSize() > 0 {
		return
	}
	room, ok := b.session.Room()
	if !ok {
		return
	}
	me, ok := room.Player(b.session.PlayerID())
	if !ok || me.Spectating {
		return
	}
	from, found := strongest(msg.Map, me.Color)
	if !found {
		return
	}
	best, bestArmy := types.Position{}, -1
	for _, to := range neighbours(from) {
		tv, ok := msg.Map.At(to)
		if !ok || tv.Type == types.TileMountain || (tv.Color != nil && *tv.Color == me.Color) {
			continue
		}
		army := 0
		if tv.Army != nil {
			army = *tv.Army
		}
		if bestArmy < 0 || army < bestArmy {
			best, bestArmy = to, army
		}
	}
	if bestArmy < 0 {
		return
	}
	if err := b.session.Enqueue(client.Route{From: from, To: best}); err != nil {
		b.log.Debug("enqueue", zap.Error(err))
	}
}

func strongest(view types.MapView, color int) (types.Position, bool) {
	var best types.Position
	bestArmy := 1
	for y, row := range view {
		for x, tv := range row {
			if tv.Color == nil || *tv.Color != color || tv.Army == nil {
				continue
			}
			if *tv.Army > bestArmy {
				best, bestArmy = types.Position{X: x, Y: y}, *tv.Army
			}
		}
	}
	return best, bestArmy > 1
}

func neighbours(p types.Position) []types.Position {
	return []types.Position{
		{X: p.X, Y: p.Y - 1}, {X: p.X + 1, Y: p.Y}, {X: p.X, Y: p.Y + 1}, {X: p.X - 1, Y: p.Y},
	}
}
