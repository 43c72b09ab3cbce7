package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/dewil-official/GeneralsGenniaMod/internal/engine"
	"github.com/dewil-official/GeneralsGenniaMod/internal/mapgen"
	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

// start builds the board for the active members and begins ticking.
func (r *Room) start() bool {
	var participants []*member
	for _, m := range r.members {
		if !m.Spectating {
			participants = append(participants, m)
		}
	}

	rules := r.cfg.Rules
	params := mapgen.Params{
		Width:      mapgen.Dimension(r.settings.MapWidth, rules.MinMapSize, rules.MaxMapSize),
		Height:     mapgen.Dimension(r.settings.MapHeight, rules.MinMapSize, rules.MaxMapSize),
		Mountain:   r.settings.Mountain,
		City:       r.settings.City,
		Swamp:      r.settings.Swamp,
		RevealKing: r.settings.RevealKing,
		Seed:       r.cfg.Seed,
	}
	grid, kings, err := r.cfg.Generate(params, len(participants))
	if err != nil {
		r.log.Error("map generation failed", zap.Int("players", len(participants)), zap.Error(err))
		r.broadcast(types.Notice("Cannot start game", err.Error()))
		return false
	}

	players := make([]engine.Player, len(participants))
	for i, m := range participants {
		m.index = i
		players[i] = engine.Player{
			ID:       m.ID,
			Username: m.Username,
			Color:    m.Color,
			Team:     m.Team,
			King:     kings[i],
		}
	}
	for _, m := range r.members {
		m.ForceStart = false
	}

	r.game = engine.NewGame(grid, players, engine.Rules{
		PlainGrowthInterval: engine.PlainGrowthInterval(rules.PlainGrowthTicks, r.settings.GameSpeed),
	})
	r.pending = make(map[string][]engine.Command)
	r.setPhase(PhaseRunning)
	r.ticker = time.NewTicker(rules.TickInterval(r.settings.GameSpeed))
	r.log.Info("game started", zap.Int("players", len(players)), zap.Int("width", grid.W), zap.Int("height", grid.H))

	r.broadcastRoom()
	r.broadcastGame()
	return true
}

// attack queues a move for the next ticks. Moves from tiles the player does
// not own are answered with attack_failure right away.
func (r *Room) attack(m *member, cm types.ClientMessage) {
	if r.phase != PhaseRunning || m.index < 0 || cm.From == nil || cm.To == nil {
		return
	}
	cmd := engine.Command{Player: m.index, From: *cm.From, To: *cm.To, Half: cm.Half}
	if err := r.game.CanIssue(cmd); err != nil {
		r.log.Debug("attack refused", zap.String("player_id", m.ID), zap.Error(err))
		r.send(m.ID, types.AttackFailure(cmd.From, cmd.To))
		return
	}
	if len(r.pending[m.ID]) >= r.cfg.Rules.MaxPendingMoves {
		r.send(m.ID, types.AttackFailure(cmd.From, cmd.To))
		return
	}
	r.pending[m.ID] = append(r.pending[m.ID], cmd)
}

func (r *Room) surrender(m *member) {
	if r.phase != PhaseRunning || m.index < 0 {
		return
	}
	if _, err := r.game.Surrender(m.index); err != nil {
		r.log.Debug("surrender refused", zap.String("player_id", m.ID), zap.Error(err))
		return
	}
	r.log.Info("player surrendered", zap.String("player_id", m.ID))
	delete(r.pending, m.ID)
	r.game.Recount()
	r.broadcastGame()
	r.checkOver()
}

// tick grows armies, then applies at most one queued move per player in join
// order, then pushes each player's view.
func (r *Room) tick() {
	r.game.Step()

	for _, m := range r.members {
		q := r.pending[m.ID]
		if m.index < 0 || len(q) == 0 {
			continue
		}
		cmd := q[0]
		if len(q) == 1 {
			delete(r.pending, m.ID)
		} else {
			r.pending[m.ID] = q[1:]
		}

		events, err := r.game.Apply(cmd)
		if err != nil {
			r.log.Debug("move rejected", zap.String("player_id", m.ID), zap.Int("tick", r.game.Tick), zap.Error(err))
			r.send(m.ID, types.AttackFailure(cmd.From, cmd.To))
			continue
		}
		r.handleEvents(events)
	}

	r.game.Recount()
	r.broadcastGame()
	r.checkOver()
}

func (r *Room) handleEvents(events []engine.Event) {
	for _, e := range events {
		if e.Type != engine.EvtPlayerDefeated {
			continue
		}
		loser := r.memberByIndex(e.Target)
		if loser == nil {
			continue
		}
		delete(r.pending, loser.ID)
		msg := types.ServerMessage{Type: types.MsgGameOver}
		if capturer := r.memberByIndex(e.Player); capturer != nil {
			p := r.playerSnapshot(capturer)
			msg.Player = &p
		}
		r.log.Info("player defeated", zap.String("player_id", loser.ID), zap.Int("tick", r.game.Tick))
		r.send(loser.ID, msg)
	}
}

func (r *Room) checkOver() {
	winner, over := r.game.Winner()
	if !over {
		return
	}
	r.stopTicker()
	r.setPhase(PhaseOver)

	msg := types.ServerMessage{Type: types.MsgGameEnded}
	if w := r.memberByIndex(winner); w != nil {
		p := r.playerSnapshot(w)
		msg.Player = &p
	}
	r.broadcast(msg)
	r.broadcastRoom()
	r.archive = time.NewTimer(r.cfg.Rules.ArchiveGrace())
}

func (r *Room) broadcastGame() {
	lb := r.game.Leaderboard()
	for _, m := range r.members {
		r.sendGame(m, lb)
	}
}

func (r *Room) sendGame(m *member, lb []engine.LeaderboardEntry) {
	if _, ok := r.outboxes[m.ID]; !ok {
		return
	}
	opts := engine.ViewOptions{FogOfWar: r.settings.FogOfWar}
	viewer := m.index
	if viewer < 0 || (r.settings.DeathSpectator && !r.game.Players[viewer].Alive) {
		opts.Omniscient = true
	}
	r.send(m.ID, types.ServerMessage{
		Type:        types.MsgGameUpdate,
		Map:         r.game.Project(viewer, opts),
		TickCount:   r.game.Tick,
		Leaderboard: lb,
	})
}
