package room

import (
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dewil-official/GeneralsGenniaMod/pkg/types"
)

func (r *Room) fromClient(msg FromClient) {
	m := r.member(msg.PlayerID)
	if m == nil {
		return
	}
	cm := msg.Msg
	switch cm.Type {
	case types.MsgGetRoomInfo:
		snap := r.snapshot()
		r.send(m.ID, types.ServerMessage{Type: types.MsgUpdateRoom, Room: &snap})
	case types.MsgChangeRoomSetting:
		r.changeSetting(m, cm.Property, cm.Value)
	case types.MsgSetTeam:
		r.setTeam(m, cm.Team)
	case types.MsgForceStart:
		r.toggleForceStart(m)
	case types.MsgStartGame:
		if m.IsRoomHost && r.phase == PhaseLobby && r.activeCount() >= types.MinPlayers {
			r.start()
		}
	case types.MsgChangeHost:
		r.changeHost(m, cm.PlayerID)
	case types.MsgAttack:
		r.attack(m, cm)
	case types.MsgSurrender:
		r.surrender(m)
	case types.MsgRoomMessage:
		p := r.playerSnapshot(m)
		r.broadcast(types.ServerMessage{Type: types.MsgRoomMessage, Player: &p, Content: cm.Content})
	default:
		r.log.Debug("unknown client message", zap.String("type", cm.Type))
	}
}

func (r *Room) changeSetting(m *member, property string, value json.RawMessage) {
	if !m.IsRoomHost || r.phase != PhaseLobby {
		r.log.Debug("setting change denied", zap.String("player_id", m.ID), zap.String("property", property))
		return
	}
	if property == "password" {
		if err := r.setPassword(value); err != nil {
			r.send(m.ID, types.Notice("Invalid setting", err.Error()))
			return
		}
		r.broadcastRoom()
		return
	}
	if err := r.settings.Apply(property, value); err != nil {
		r.send(m.ID, types.Notice("Invalid setting", err.Error()))
		return
	}
	if property == "teamCount" {
		for _, mem := range r.members {
			mem.Team = (mem.Team-1)%r.settings.TeamCount + 1
		}
	}
	r.broadcastRoom()
}

// setPassword clears the password at once. A new one is hashed in the
// background and takes effect when passwordHashed arrives.
func (r *Room) setPassword(value json.RawMessage) error {
	var pw string
	if err := json.Unmarshal(value, &pw); err != nil {
		return err
	}
	r.pwSeq++
	if pw == "" {
		r.password = nil
		r.settings.HasPassword = false
		return nil
	}
	seq, cost := r.pwSeq, r.cfg.Rules.PasswordCost
	go func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
		r.Send(r.ctx, passwordHashed{seq: seq, hash: hash, err: err})
	}()
	return nil
}

func (r *Room) passwordHashed(msg passwordHashed) {
	if msg.seq != r.pwSeq || r.phase != PhaseLobby {
		return // superseded
	}
	if msg.err != nil {
		r.log.Warn("password hash failed", zap.Error(msg.err))
		if h := r.host(); h != nil {
			r.send(h.ID, types.Notice("Invalid setting", msg.err.Error()))
		}
		return
	}
	r.password = msg.hash
	r.settings.HasPassword = true
	r.broadcastRoom()
}

// setTeam moves m to a team, or to the spectators for team 0.
func (r *Room) setTeam(m *member, team *int) {
	if team == nil || r.phase != PhaseLobby {
		return
	}
	switch t := *team; {
	case t == 0:
		m.Spectating = true
		m.ForceStart = false
	case t >= 1 && t <= r.settings.TeamCount:
		if m.Spectating && r.activeCount() >= r.settings.MaxPlayers {
			r.send(m.ID, types.Notice("Room is full", "no free player slot"))
			return
		}
		m.Spectating = false
		m.Team = t
	default:
		return
	}
	if !r.maybeStart() {
		r.broadcastRoom()
	}
}

func (r *Room) toggleForceStart(m *member) {
	if r.phase != PhaseLobby || m.Spectating {
		return
	}
	m.ForceStart = !m.ForceStart
	if !r.maybeStart() {
		r.broadcastRoom()
	}
}

func (r *Room) changeHost(m *member, target string) {
	t := r.member(target)
	if !m.IsRoomHost || t == nil || t == m {
		return
	}
	m.IsRoomHost = false
	t.IsRoomHost = true
	r.broadcastRoom()
}

func (r *Room) forceStartNum() int {
	n := 0
	for _, m := range r.members {
		if m.ForceStart && !m.Spectating {
			n++
		}
	}
	return n
}

// forceStartThreshold is a strict majority of the active players.
func forceStartThreshold(active int) int {
	return active/2 + 1
}

// maybeStart starts the game once enough force-start votes are in and reports
// whether it did.
func (r *Room) maybeStart() bool {
	if r.phase != PhaseLobby {
		return false
	}
	n := r.activeCount()
	if n < types.MinPlayers || r.forceStartNum() < forceStartThreshold(n) {
		return false
	}
	return r.start()
}
