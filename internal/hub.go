package internal

import "sync"

// Hub tracks every live connection in this process, addressable two ways:
// by user (one user, many devices) and by connection id (the handle stored
// in the presence registry).
type Hub struct {
	mutex  sync.RWMutex
	byUser map[int64]map[*Client]bool
	byConn map[string]*Client
}

// builds an empty hub ready to serve websocket requests
func NewHub() *Hub {
	return &Hub{
		byUser: make(map[int64]map[*Client]bool),
		byConn: make(map[string]*Client),
	}
}

func (hub *Hub) register(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if hub.byUser[client.identity.UserID] == nil {
		hub.byUser[client.identity.UserID] = make(map[*Client]bool)
	}
	hub.byUser[client.identity.UserID][client] = true
	hub.byConn[client.id] = client
}

func (hub *Hub) unregister(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	userID := client.identity.UserID
	if clients, exists := hub.byUser[userID]; exists {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(hub.byUser, userID)
		}
	}
	delete(hub.byConn, client.id)
}

// deliverTo hands a payload to the connection behind a presence handle.
// Returns false when the handle is not hosted by this process. A client whose
// send buffer is full is dropped; a reader that slow is better off
// reconnecting.
func (hub *Hub) deliverTo(connID string, payload []byte) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	client, exists := hub.byConn[connID]
	if !exists {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		hub.dropLocked(client)
		return false
	}
}

// deliverUser fans a payload out to every local connection one user has and
// reports how many received it.
func (hub *Hub) deliverUser(userID int64, payload []byte) int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	delivered := 0
	for client := range hub.byUser[userID] {
		select {
		case client.send <- payload:
			delivered++
		default:
			hub.dropLocked(client)
		}
	}
	return delivered
}

// dropLocked removes a slow client inline; its writePump sees the closed send
// channel and tears the socket down. Caller holds the write lock.
func (hub *Hub) dropLocked(client *Client) {
	userID := client.identity.UserID
	if clients, exists := hub.byUser[userID]; exists {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(hub.byUser, userID)
		}
	}
	delete(hub.byConn, client.id)
}

// localConnections is used by the metrics handler.
func (hub *Hub) localConnections() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.byConn)
}
