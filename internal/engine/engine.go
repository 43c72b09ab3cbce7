package engine

import (
	"errors"
	"fmt"
)

var ErrInvalidMove = errors.New("invalid move")
var ErrOutOfBounds = errors.New("position out of bounds")
var ErrNotAdjacent = errors.New("tiles are not adjacent")
var ErrNotOwner = errors.New("source tile not owned by player")
var ErrImpassable = errors.New("destination is impassable")
var ErrNoMovableArmy = errors.New("no movable army")
var ErrPlayerDefeated = errors.New("player is defeated")
var ErrUnknownPlayer = errors.New("unknown player")

type Player struct {
	ID         string
	Username   string
	Color      int
	Team       int
	Spectating bool
	Alive      bool
	ArmyCount  int
	LandCount  int
	King       Position
}

type Rules struct {
	// PlainGrowthInterval is the number of ticks between +1 growth on owned plains.
	PlainGrowthInterval int
}

// Game is the authoritative board state of one running room.
type Game struct {
	Grid    *Grid
	Players []Player
	Tick    int
	Rules   Rules
}

// Command moves armies from one tile into an adjacent one on behalf of Players[Player].
type Command struct {
	Player int
	From   Position
	To     Position
	Half   bool
}

type EventType string

const (
	EvtArmyMoved      EventType = "ArmyMoved"
	EvtAttackRepelled EventType = "AttackRepelled"
	EvtTileCaptured   EventType = "TileCaptured"
	EvtKingCaptured   EventType = "KingCaptured"
	EvtPlayerDefeated EventType = "PlayerDefeated"
)

// Event describes one outcome of Apply or Surrender. Player is the acting
// player, Target the player who lost something (Neutral when nobody did).
type Event struct {
	Type   EventType
	Player int
	Target int
	Pos    Position
	Army   int
}

func invalid(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidMove, cause)
}

// MovableArmy is the number of units a tile holding army can send.
// One unit always stays behind; a half move sends the larger half.
func MovableArmy(army int, half bool) int {
	movable := max(army-1, 0)
	if half {
		return (movable + 1) / 2
	}
	return movable
}

func (g *Game) validate(cmd Command) error {
	if cmd.Player < 0 || cmd.Player >= len(g.Players) {
		return invalid(ErrUnknownPlayer)
	}
	if !g.Players[cmd.Player].Alive {
		return invalid(ErrPlayerDefeated)
	}
	from, to := g.Grid.At(cmd.From), g.Grid.At(cmd.To)
	if from == nil || to == nil {
		return invalid(ErrOutOfBounds)
	}
	if !cmd.From.Adjacent(cmd.To) {
		return invalid(ErrNotAdjacent)
	}
	if from.Owner != cmd.Player {
		return invalid(ErrNotOwner)
	}
	if !to.Passable() {
		return invalid(ErrImpassable)
	}
	if MovableArmy(from.Army, cmd.Half) == 0 {
		return invalid(ErrNoMovableArmy)
	}
	return nil
}

// CanIssue checks what the submitting side can know: the source belongs to the player.
func (g *Game) CanIssue(cmd Command) error {
	if cmd.Player < 0 || cmd.Player >= len(g.Players) {
		return invalid(ErrUnknownPlayer)
	}
	from := g.Grid.At(cmd.From)
	if from == nil {
		return invalid(ErrOutOfBounds)
	}
	if from.Owner != cmd.Player {
		return invalid(ErrNotOwner)
	}
	return nil
}

// Apply resolves a single move against the current board. The board is only
// mutated when the returned error is nil.
func (g *Game) Apply(cmd Command) ([]Event, error) {
	if err := g.validate(cmd); err != nil {
		return nil, err
	}

	from := g.Grid.At(cmd.From)
	to := g.Grid.At(cmd.To)
	toIdx := g.Grid.Idx(cmd.To)
	moving := MovableArmy(from.Army, cmd.Half)
	from.Army -= moving

	if !to.IsNeutral() && g.Players[to.Owner].Team == g.Players[cmd.Player].Team {
		prev := to.Owner
		to.Army += moving
		// Ownership is renormalized to the mover even when the team already holds it.
		if to.Type != TileKing {
			g.beDominated(toIdx, cmd.Player)
		}
		return []Event{{Type: EvtArmyMoved, Player: cmd.Player, Target: prev, Pos: cmd.To, Army: to.Army}}, nil
	}

	if to.Army >= moving {
		to.Army -= moving
		return []Event{{Type: EvtAttackRepelled, Player: cmd.Player, Target: to.Owner, Pos: cmd.To, Army: to.Army}}, nil
	}

	prev := to.Owner
	wasKing := to.Type == TileKing
	to.Army = moving - to.Army
	g.beDominated(toIdx, cmd.Player)

	events := []Event{{Type: EvtTileCaptured, Player: cmd.Player, Target: prev, Pos: cmd.To, Army: to.Army}}
	if wasKing && prev != Neutral {
		to.Type = TileCity
		events = append(events, Event{Type: EvtKingCaptured, Player: cmd.Player, Target: prev, Pos: cmd.To, Army: to.Army})
		events = append(events, g.dominate(prev, cmd.Player)...)
	}
	return events, nil
}

// beDominated moves a tile from its previous owner's counters to p's.
func (g *Game) beDominated(idx, p int) {
	t := &g.Grid.Tiles[idx]
	if t.Owner != Neutral {
		g.Players[t.Owner].LandCount--
	}
	t.Owner = p
	if p != Neutral {
		g.Players[p].LandCount++
	}
}

// dominate hands every tile of loser to winner, armies untouched, and marks loser dead.
func (g *Game) dominate(loser, winner int) []Event {
	for i := range g.Grid.Tiles {
		if g.Grid.Tiles[i].Owner == loser {
			g.beDominated(i, winner)
		}
	}
	g.Players[loser].Alive = false
	return []Event{{Type: EvtPlayerDefeated, Player: winner, Target: loser, Pos: g.Players[loser].King}}
}

// Surrender neutralizes every tile of p. Its King degrades to a City.
func (g *Game) Surrender(p int) ([]Event, error) {
	if p < 0 || p >= len(g.Players) {
		return nil, ErrUnknownPlayer
	}
	if !g.Players[p].Alive {
		return nil, ErrPlayerDefeated
	}
	for i := range g.Grid.Tiles {
		t := &g.Grid.Tiles[i]
		if t.Owner != p {
			continue
		}
		if t.Type == TileKing {
			t.Type = TileCity
		}
		g.beDominated(i, Neutral)
	}
	g.Players[p].Alive = false
	return []Event{{Type: EvtPlayerDefeated, Player: Neutral, Target: p, Pos: g.Players[p].King}}, nil
}

// Step advances the tick counter and applies growth for the new tick.
func (g *Game) Step() {
	g.Tick++
	g.Grow()
}

// Grow adds one unit to every owned King and City, and to owned plains on
// growth ticks. Neutral tiles never grow.
func (g *Game) Grow() {
	plainTick := g.Rules.PlainGrowthInterval > 0 && g.Tick%g.Rules.PlainGrowthInterval == 0
	for i := range g.Grid.Tiles {
		t := &g.Grid.Tiles[i]
		if t.IsNeutral() {
			continue
		}
		switch t.Type {
		case TileKing, TileCity:
			t.Army++
		case TilePlain:
			if plainTick {
				t.Army++
			}
		}
	}
}

// PlainGrowthInterval scales the base interval by game speed: a slower game
// waits more ticks between plain growth.
func PlainGrowthInterval(base int, speed float64) int {
	if speed <= 0 {
		speed = 1
	}
	n := int(float64(base)/speed + 0.5)
	return max(n, 1)
}

// Recount rebuilds every player's army and land totals from the board.
func (g *Game) Recount() {
	for i := range g.Players {
		g.Players[i].ArmyCount = 0
		g.Players[i].LandCount = 0
	}
	for _, t := range g.Grid.Tiles {
		if t.IsNeutral() {
			continue
		}
		g.Players[t.Owner].ArmyCount += t.Army
		g.Players[t.Owner].LandCount++
	}
}

// AliveTeams returns the distinct teams that still have a living player, in join order.
func (g *Game) AliveTeams() []int {
	var teams []int
	seen := map[int]bool{}
	for _, p := range g.Players {
		if !p.Alive || p.Spectating || seen[p.Team] {
			continue
		}
		seen[p.Team] = true
		teams = append(teams, p.Team)
	}
	return teams
}

// Winner returns the first living player once at most one team remains.
func (g *Game) Winner() (int, bool) {
	if len(g.AliveTeams()) > 1 {
		return Neutral, false
	}
	for i, p := range g.Players {
		if p.Alive && !p.Spectating {
			return i, true
		}
	}
	return Neutral, true
}
