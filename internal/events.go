package internal

import (
	"encoding/json"
	"time"
)

// event names shared by the server and both clients (TUI and web).
const (
	EventPing           = "ping"
	EventMutualLogin    = "mutual_follower_login"
	EventMutualLogout   = "mutual_follower_logout"
	EventMutualsOnline  = "mutual_followers_online"
	EventMutualsOffline = "mutual_followers_offline"
	EventChatMessage    = "chat_message"
	EventUserTyping     = "user_typing"
)

// Envelope is the json frame every websocket message travels in, both
// directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EnrichedUser is one mutual follower with profile fields attached. ConnID is
// only populated for online users and only used server-side for addressing.
type EnrichedUser struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar"`
	LastSeen *time.Time `json:"lastSeen"`
	ConnID   string     `json:"-"`
}

// PresencePayload announces one user's login or logout to a mutual follower.
// LastSeen is null while the user is online and carries the just-written
// timestamp on logout.
type PresencePayload struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar"`
	LastSeen *time.Time `json:"lastSeen"`
}

// ChatPayload is a relayed direct message.
type ChatPayload struct {
	From         int64  `json:"from"`
	FromUsername string `json:"fromUsername"`
	Body         string `json:"body"`
	Ts           int64  `json:"ts"`
}

// TypingPayload is a relayed typing indicator.
type TypingPayload struct {
	From         int64  `json:"from"`
	FromUsername string `json:"fromUsername"`
}

// inbound frames from clients
type chatInbound struct {
	To   int64  `json:"to"`
	Body string `json:"body"`
}

type typingInbound struct {
	To int64 `json:"to"`
}

func marshalEvent(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
