package internal

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 8192
)

// Client wraps a single websocket connection and a buffered send queue. One
// user may have several of these at once (multiple devices/tabs).
type Client struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	send     chan []byte
	server   *Server
	state    lifecycleState
	// set once Register succeeded; gates the disconnect sequence so a
	// connection rejected mid-setup never decrements the refcount.
	online bool
}

func newClient(id string, identity Identity, conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, 256),
		server:   server,
		state:    stateConnecting,
	}
}

func (client *Client) log() *logrus.Entry {
	return client.server.log.WithFields(logrus.Fields{
		"user": client.identity.Username,
		"conn": client.id,
	})
}

func (client *Client) readPump() {
	defer func() {
		client.server.hub.unregister(client)
		client.conn.Close()
		client.server.metrics.DecConn()
		client.server.handleDisconnect(client)
	}()
	client.conn.SetReadLimit(maxMsgSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			// normal close or read error, deferred cleanup runs either way
			break
		}
		client.dispatch(payload)
	}
}

// dispatch routes one inbound frame. Only targeted relay events are accepted
// from clients; presence state is never mutated here.
func (client *Client) dispatch(payload []byte) {
	var envelope Envelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		client.log().WithError(err).Debug("dropping unparseable frame")
		return
	}
	switch envelope.Event {
	case EventChatMessage:
		var inbound chatInbound
		if err := json.Unmarshal(envelope.Data, &inbound); err != nil || inbound.To == 0 {
			client.log().Debug("chat_message without a target, dropping")
			return
		}
		body := strings.TrimSpace(inbound.Body)
		if body == "" {
			return
		}
		outbound := ChatPayload{
			From:         client.identity.UserID,
			FromUsername: client.identity.Username,
			Body:         body,
			Ts:           time.Now().Unix(),
		}
		if err := client.server.router.SendTo(inbound.To, EventChatMessage, outbound); err != nil {
			client.log().WithError(err).Warn("chat relay failed")
		}
	case EventUserTyping:
		var inbound typingInbound
		if err := json.Unmarshal(envelope.Data, &inbound); err != nil || inbound.To == 0 {
			return
		}
		outbound := TypingPayload{From: client.identity.UserID, FromUsername: client.identity.Username}
		if err := client.server.router.SendTo(inbound.To, EventUserTyping, outbound); err != nil {
			client.log().WithError(err).Warn("typing relay failed")
		}
	default:
		client.log().WithField("event", envelope.Event).Debug("ignoring unknown event")
	}
}

func (client *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send channel closed by the hub, ask the peer to close
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
