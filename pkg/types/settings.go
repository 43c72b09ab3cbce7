package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var ErrUnknownSetting = errors.New("unknown room setting")
var ErrInvalidSetting = errors.New("invalid room setting value")

const DefaultRoomName = "Untitled"

const (
	MinPlayers = 2
	MaxPlayers = 16
)

var GameSpeeds = []float64{0.25, 0.5, 0.75, 1, 2, 3, 4}

type RoomSettings struct {
	RoomName       string  `json:"roomName" yaml:"room_name"`
	MaxPlayers     int     `json:"maxPlayers" yaml:"max_players"`
	TeamCount      int     `json:"teamCount" yaml:"team_count"`
	GameSpeed      float64 `json:"gameSpeed" yaml:"game_speed"`
	MapWidth       float64 `json:"mapWidth" yaml:"map_width"`
	MapHeight      float64 `json:"mapHeight" yaml:"map_height"`
	Mountain       float64 `json:"mountain" yaml:"mountain"`
	City           float64 `json:"city" yaml:"city"`
	Swamp          float64 `json:"swamp" yaml:"swamp"`
	FogOfWar       bool    `json:"fogOfWar" yaml:"fog_of_war"`
	RevealKing     bool    `json:"revealKing" yaml:"reveal_king"`
	DeathSpectator bool    `json:"deathSpectator" yaml:"death_spectator"`
	HasPassword    bool    `json:"hasPassword" yaml:"-"`
}

func DefaultSettings() RoomSettings {
	return RoomSettings{
		RoomName:       DefaultRoomName,
		MaxPlayers:     8,
		TeamCount:      8,
		GameSpeed:      1,
		MapWidth:       0.75,
		MapHeight:      0.75,
		Mountain:       0.5,
		City:           0.5,
		Swamp:          0,
		FogOfWar:       true,
		DeathSpectator: true,
	}
}

// stripBlank drops whitespace and zero-width spaces.
var stripBlank = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsSpace(r) || r == '\u200B'
}))

// NormalizeRoomName replaces an empty or whitespace-only name with
// DefaultRoomName. Applying it twice gives the same result as once.
func NormalizeRoomName(name string) string {
	rest, _, err := transform.String(stripBlank, name)
	if err != nil || rest == "" {
		return DefaultRoomName
	}
	return name
}

// Apply sets one property from its JSON value. Settings are left untouched on error.
func (s *RoomSettings) Apply(property string, value json.RawMessage) error {
	next := *s
	var err error
	switch property {
	case "roomName":
		var name string
		if err = json.Unmarshal(value, &name); err == nil {
			next.RoomName = NormalizeRoomName(name)
		}
	case "maxPlayers":
		err = decodeInt(value, MinPlayers, MaxPlayers, &next.MaxPlayers)
	case "teamCount":
		err = decodeInt(value, 1, MaxPlayers, &next.TeamCount)
	case "gameSpeed":
		var speed float64
		if err = json.Unmarshal(value, &speed); err == nil && !slices.Contains(GameSpeeds, speed) {
			err = fmt.Errorf("game speed %v", speed)
		}
		next.GameSpeed = speed
	case "mapWidth":
		err = decodeFraction(value, &next.MapWidth)
	case "mapHeight":
		err = decodeFraction(value, &next.MapHeight)
	case "mountain":
		err = decodeFraction(value, &next.Mountain)
	case "city":
		err = decodeFraction(value, &next.City)
	case "swamp":
		err = decodeFraction(value, &next.Swamp)
	case "fogOfWar":
		err = json.Unmarshal(value, &next.FogOfWar)
	case "revealKing":
		err = json.Unmarshal(value, &next.RevealKing)
	case "deathSpectator":
		err = json.Unmarshal(value, &next.DeathSpectator)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, property)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSetting, property, err)
	}
	*s = next
	return nil
}

func decodeInt(value json.RawMessage, lo, hi int, dst *int) error {
	var f float64
	if err := json.Unmarshal(value, &f); err != nil {
		return err
	}
	n := int(f)
	if float64(n) != f || n < lo || n > hi {
		return fmt.Errorf("%v not an integer in [%d, %d]", f, lo, hi)
	}
	*dst = n
	return nil
}

func decodeFraction(value json.RawMessage, dst *float64) error {
	var f float64
	if err := json.Unmarshal(value, &f); err != nil {
		return err
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("%v outside [0, 1]", f)
	}
	*dst = f
	return nil
}
