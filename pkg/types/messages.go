package types

// Client -> Server
// identify (guests only):
//   guest_username: string
//
// player_ready:
//   is_ready: boolean
//   guest_username: string
//
// chat_message:
//   message: string
//   username: string
//
// settings_update (host only):
//   settings: { round_duration?, cards_per_turn?, is_public? }

// Server -> Client
// lobby_state:   { lobby: LobbySnapshot }
// player_joined: { player: Player }
// player_left:   { player_id: number }
// lobby_closed:  { message?: string }
// game_started:  { lobby: LobbySnapshot }
// chat:          { username: string, message: string }

type ClientMessageType string

const (
	MsgIdentify       ClientMessageType = "identify"
	MsgPlayerReady    ClientMessageType = "player_ready"
	MsgChatMessage    ClientMessageType = "chat_message"
	MsgSettingsUpdate ClientMessageType = "settings_update"
)

type ServerMessageType string

const (
	MsgLobbyState   ServerMessageType = "lobby_state"
	MsgPlayerJoined ServerMessageType = "player_joined"
	MsgPlayerLeft   ServerMessageType = "player_left"
	MsgLobbyClosed  ServerMessageType = "lobby_closed"
	MsgGameStarted  ServerMessageType = "game_started"
	MsgChat         ServerMessageType = "chat"
)

type ClientMessage struct {
	Type          ClientMessageType `json:"type"`
	IsReady       *bool             `json:"is_ready,omitempty"`
	GuestUsername string            `json:"guest_username,omitempty"`
	Settings      *LobbySettings    `json:"settings,omitempty"`
	Message       string            `json:"message,omitempty"`
	Username      string            `json:"username,omitempty"`
}

type ServerMessage struct {
	Type     ServerMessageType `json:"type"`
	Lobby    *LobbySnapshot    `json:"lobby,omitempty"`
	Player   *Player           `json:"player,omitempty"`
	PlayerID int               `json:"player_id,omitempty"`
	Username string            `json:"username,omitempty"`
	Message  string            `json:"message,omitempty"`
}

func Identify(guest string) ClientMessage {
	return ClientMessage{Type: MsgIdentify, GuestUsername: guest}
}

func PlayerReady(ready bool, guest string) ClientMessage {
	return ClientMessage{Type: MsgPlayerReady, IsReady: &ready, GuestUsername: guest}
}

func ChatMessage(username, text string) ClientMessage {
	return ClientMessage{Type: MsgChatMessage, Username: username, Message: text}
}

func SettingsUpdate(s LobbySettings) ClientMessage {
	return ClientMessage{Type: MsgSettingsUpdate, Settings: &s}
}

// ErrorBody is what the backend sends with a non-2xx status.
type ErrorBody struct {
	Error   string `json:"error,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

func (b ErrorBody) Text() string {
	switch {
	case b.Error != "":
		return b.Error
	case b.Detail != "":
		return b.Detail
	default:
		return b.Message
	}
}
