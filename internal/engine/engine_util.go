package engine

import (
	"cmp"
	"slices"
)

// NewGame wraps a generated board and the participants in join order.
// Owners on the grid must index players.
func NewGame(grid *Grid, players []Player, rules Rules) *Game {
	g := &Game{
		Grid:    grid,
		Players: players,
		Rules:   rules,
	}
	for i := range g.Players {
		g.Players[i].Alive = !g.Players[i].Spectating
	}
	g.Recount() // Land counters must be right before the first beDominated
	return g
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

type LeaderboardEntry struct {
	Color     int    `json:"color"`
	Username  string `json:"username"`
	ArmyCount int    `json:"armyCount"`
	LandCount int    `json:"landCount"`
}

// Leaderboard orders participants by army then land, keeping join order on ties.
// It reads the cached counters, so call Recount first.
func (g *Game) Leaderboard() []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(g.Players))
	for _, p := range g.Players {
		if p.Spectating {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Color:     p.Color,
			Username:  p.Username,
			ArmyCount: p.ArmyCount,
			LandCount: p.LandCount,
		})
	}
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		if c := cmp.Compare(b.ArmyCount, a.ArmyCount); c != 0 {
			return c
		}
		return cmp.Compare(b.LandCount, a.LandCount)
	})
	return entries
}
