package network

import "encoding/json"

// 客户端 -> 服务器
const (
	MsgCreateRoom    = "create_room"
	MsgJoinRoom      = "join_room"
	MsgLeaveRoom     = "leave_room"
	MsgStartGame     = "start_game"
	MsgStateSync     = "state_sync"
	MsgRollbackState = "rollback_state"
)

// 服务器 -> 客户端
const (
	MsgWelcome   = "welcome"
	MsgRoomState = "room_state"
	MsgRoomError = "room_error"
)

// Message is the single JSON envelope of the wire protocol. Fields not
// relevant to a given type are omitted.
type Message struct {
	Type string `json:"type"`

	// create_room / join_room
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`

	// start_game
	TurnSeconds int `json:"turnSeconds,omitempty"`

	// state_sync
	GameState json.RawMessage `json:"gameState,omitempty"`
	Action    string          `json:"action,omitempty"`

	// welcome
	ClientID string `json:"clientId,omitempty"`

	// room_state
	Room interface{} `json:"room,omitempty"`

	// room_error
	Message string `json:"message,omitempty"`
}

// Welcome builds the handshake message sent on connect.
func Welcome(clientID string) *Message {
	return &Message{Type: MsgWelcome, ClientID: clientID}
}

// RoomError builds an authorization/validation failure notice.
func RoomError(text string) *Message {
	return &Message{Type: MsgRoomError, Message: text}
}

// RoomState wraps a public room payload.
func RoomState(room interface{}) *Message {
	return &Message{Type: MsgRoomState, Room: room}
}
