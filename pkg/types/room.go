package types

type Player struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Color      int    `json:"color"`
	Team       int    `json:"team"`
	IsRoomHost bool   `json:"isRoomHost"`
	Spectating bool   `json:"spectating"`
	ForceStart bool   `json:"forceStart"`
	Alive      bool   `json:"alive"`
	Connected  bool   `json:"connected"`
}

// RoomSnapshot is the full room state sent with update_room.
type RoomSnapshot struct {
	ID string `json:"id"`
	RoomSettings
	Phase               string   `json:"phase"`
	GameStarted         bool     `json:"gameStarted"`
	ForceStartNum       int      `json:"forceStartNum"`
	ForceStartThreshold int      `json:"forceStartThreshold"`
	Players             []Player `json:"players"`
}

// Player returns the member with the given id.
func (r RoomSnapshot) Player(id string) (Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

type RoomSummary struct {
	ID         string `json:"id"`
	RoomName   string `json:"roomName"`
	Phase      string `json:"phase"`
	Players    int    `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}
