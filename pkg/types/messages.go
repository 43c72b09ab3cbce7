package types

import (
	"encoding/json"

	"github.com/dewil-official/GeneralsGenniaMod/internal/engine"
)

// Client -> Server
// get_room_info: {}
// change_room_setting (host, lobby only):
//   property: string
//   value: any
// set_team:
//   team: number // 0 = spectate
// force_start: {} // toggles the sender's vote
// start_game: {} // host only
// change_host:
//   playerId: string
// attack:
//   from: {x, y}
//   to: {x, y}
//   half: boolean
// surrender: {}
// room_message:
//   content: string
//
// Server -> Client
// set_player_id: playerId
// update_room: room
// game_update: map ([y][x] of [type, color|null, army|null]), tickCount, leaderboard
// attack_failure: from, to
// game_over: player // who captured you
// game_ended: player // winner
// room_message: player, content
// reject_join: reason
// error: title, message

const (
	MsgGetRoomInfo       = "get_room_info"
	MsgChangeRoomSetting = "change_room_setting"
	MsgSetTeam           = "set_team"
	MsgForceStart        = "force_start"
	MsgStartGame         = "start_game"
	MsgChangeHost        = "change_host"
	MsgAttack            = "attack"
	MsgSurrender         = "surrender"
	MsgRoomMessage       = "room_message"

	MsgSetPlayerID   = "set_player_id"
	MsgUpdateRoom    = "update_room"
	MsgGameUpdate    = "game_update"
	MsgAttackFailure = "attack_failure"
	MsgGameOver      = "game_over"
	MsgGameEnded     = "game_ended"
	MsgRejectJoin    = "reject_join"
	MsgError         = "error"
)

// Aliases so code outside this module can name board values.
type (
	Position         = engine.Position
	TileView         = engine.TileView
	MapView          = engine.MapView
	LeaderboardEntry = engine.LeaderboardEntry
	TileType         = engine.TileType
)

const (
	TileKing     = engine.TileKing
	TileCity     = engine.TileCity
	TileFog      = engine.TileFog
	TileObstacle = engine.TileObstacle
	TilePlain    = engine.TilePlain
	TileMountain = engine.TileMountain
	TileSwamp    = engine.TileSwamp
)

type ClientMessage struct {
	Type     string           `json:"type"`
	From     *engine.Position `json:"from,omitempty"`
	To       *engine.Position `json:"to,omitempty"`
	Half     bool             `json:"half,omitempty"`
	Property string           `json:"property,omitempty"`
	Value    json.RawMessage  `json:"value,omitempty"`
	Team     *int             `json:"team,omitempty"`
	PlayerID string           `json:"playerId,omitempty"`
	Content  string           `json:"content,omitempty"`
}

type ServerMessage struct {
	Type        string                    `json:"type"`
	Room        *RoomSnapshot             `json:"room,omitempty"`
	PlayerID    string                    `json:"playerId,omitempty"`
	Map         engine.MapView            `json:"map,omitempty"`
	TickCount   int                       `json:"tickCount"`
	Leaderboard []engine.LeaderboardEntry `json:"leaderboard,omitempty"`
	From        *engine.Position          `json:"from,omitempty"`
	To          *engine.Position          `json:"to,omitempty"`
	Player      *Player                   `json:"player,omitempty"`
	Content     string                    `json:"content,omitempty"`
	Reason      string                    `json:"reason,omitempty"`
	Title       string                    `json:"title,omitempty"`
	Message     string                    `json:"message,omitempty"`
}

func Attack(from, to engine.Position, half bool) ClientMessage {
	return ClientMessage{Type: MsgAttack, From: &from, To: &to, Half: half}
}

func AttackFailure(from, to engine.Position) ServerMessage {
	return ServerMessage{Type: MsgAttackFailure, From: &from, To: &to}
}

func Notice(title, message string) ServerMessage {
	return ServerMessage{Type: MsgError, Title: title, Message: message}
}
