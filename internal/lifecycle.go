package internal

import (
	"context"
	"time"

	"socialwire/internal/presence"
)

// Each connection walks Connecting → Authenticated → Online → Disconnected,
// never backwards. Authentication failures jump straight to Disconnected
// without ever touching the presence registry.
type lifecycleState int

const (
	stateConnecting lifecycleState = iota
	stateAuthenticated
	stateOnline
	stateDisconnected
)

func (s lifecycleState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateOnline:
		return "online"
	case stateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// handleConnect runs the online sequence for a freshly authenticated
// connection: register presence, resolve mutuals, inform this user's devices,
// and notify online mutuals when this was the user's first connection.
// A presence store fault is connection-fatal and reported to the caller;
// notification failures after a successful register are logged and swallowed
// (presence state is already correct, the notices are best effort).
func (s *Server) handleConnect(ctx context.Context, client *Client) error {
	userID := client.identity.UserID

	first, err := s.registry.Register(ctx, userID, client.id, clientSnapshot(client))
	if err != nil {
		return err
	}
	client.online = true
	client.state = stateOnline
	client.log().WithField("state", client.state.String()).Info("connection online")

	// connection probe so the client knows the session is live
	if err := s.router.Broadcast(userID, EventPing, nil); err != nil {
		client.log().WithError(err).Warn("ping emit failed")
	}

	online, offline, err := s.mutuals.Resolve(ctx, userID)
	if err != nil {
		client.log().WithError(err).Error("mutual resolution failed, skipping presence notices")
		return nil
	}
	if len(online) > 0 {
		if err := s.router.Broadcast(userID, EventMutualsOnline, online); err != nil {
			client.log().WithError(err).Warn("mutual_followers_online emit failed")
		}
	}
	if len(offline) > 0 {
		if err := s.router.Broadcast(userID, EventMutualsOffline, offline); err != nil {
			client.log().WithError(err).Warn("mutual_followers_offline emit failed")
		}
	}

	if !first {
		// another device already announced this user; stay quiet
		return nil
	}
	login := PresencePayload{
		ID:     userID,
		Name:   client.identity.Name,
		Avatar: client.identity.Avatar,
		// null lastSeen means "online right now"
		LastSeen: nil,
	}
	for _, mutual := range online {
		if err := s.router.SendTo(mutual.ID, EventMutualLogin, login); err != nil {
			client.log().WithError(err).WithField("peer", mutual.ID).Warn("login notice failed")
		}
	}
	return nil
}

// handleDisconnect runs the teardown sequence after the transport closed.
// Always runs in full once a connection was online; there is no partial
// disconnect. Store faults are logged and the cleanup done so far stands —
// retrying behind a dead socket cannot recover anything, and the startup
// reset bounds any counter drift.
func (s *Server) handleDisconnect(client *Client) {
	previous := client.state
	client.state = stateDisconnected
	if !client.online || previous != stateOnline {
		return
	}
	ctx := context.Background()
	userID := client.identity.UserID

	wentOffline, err := s.registry.Deregister(ctx, userID)
	if err != nil {
		client.log().WithError(err).Error("presence deregister failed")
		return
	}
	if !wentOffline {
		// other devices still connected, the user stays online
		client.log().Debug("connection closed, user still online elsewhere")
		return
	}

	now := time.Now()
	logout := PresencePayload{
		ID:       userID,
		Name:     client.identity.Name,
		Avatar:   client.identity.Avatar,
		LastSeen: &now,
	}
	if profile, err := s.store.UpdateLastSeen(ctx, userID, now); err != nil {
		client.log().WithError(err).Error("last-seen update failed")
	} else {
		logout.Name = profile.Name
		logout.Avatar = profile.Avatar
		logout.LastSeen = profile.LastSeen
	}

	online, _, err := s.mutuals.Resolve(ctx, userID)
	if err != nil {
		client.log().WithError(err).Error("mutual resolution failed, skipping logout notices")
		return
	}
	for _, mutual := range online {
		if err := s.router.SendTo(mutual.ID, EventMutualLogout, logout); err != nil {
			client.log().WithError(err).WithField("peer", mutual.ID).Warn("logout notice failed")
		}
	}
	client.log().Info("user offline")
}

func clientSnapshot(client *Client) presence.Snapshot {
	return presence.Snapshot{Name: client.identity.Name, Avatar: client.identity.Avatar}
}
