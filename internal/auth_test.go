package internal

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthenticateToken(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	userID, err := server.store.CreateUser(ctx, "alice", "Alice", "", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := server.store.CreateSession(ctx, userID, "good-token", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	identity, err := server.authenticateToken(ctx, "good-token")
	if err != nil {
		t.Fatalf("authenticateToken: %v", err)
	}
	if identity.UserID != userID || identity.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := server.authenticateToken(ctx, ""); !errors.Is(err, errUnauthenticated) {
		t.Fatalf("expected errUnauthenticated, got %v", err)
	}
	if _, err := server.authenticateToken(ctx, "no-such-token"); !errors.Is(err, errInvalidCredential) {
		t.Fatalf("expected errInvalidCredential, got %v", err)
	}
}

func TestExpiredSessionIsDeleted(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()
	userID, err := server.store.CreateUser(ctx, "bob", "Bob", "", []byte("hash"))
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := server.store.CreateSession(ctx, userID, "stale", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := server.authenticateToken(ctx, "stale"); !errors.Is(err, errInvalidCredential) {
		t.Fatalf("expected errInvalidCredential, got %v", err)
	}
	session, err := server.store.GetSession(ctx, "stale")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session != nil {
		t.Fatalf("expired session should have been deleted")
	}
}

func TestSocketToken(t *testing.T) {
	request := httptest.NewRequest("GET", "/socket?token=from-query", nil)
	request.Header.Set("Authorization", "Bearer from-header")
	if got := socketToken(request); got != "from-query" {
		t.Fatalf("query token should win, got %q", got)
	}

	request = httptest.NewRequest("GET", "/socket", nil)
	request.Header.Set("Authorization", "Bearer from-header")
	if got := socketToken(request); got != "from-header" {
		t.Fatalf("expected header token, got %q", got)
	}

	request = httptest.NewRequest("GET", "/socket", nil)
	if got := socketToken(request); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestSocketAuthRejectedBeforeUpgrade(t *testing.T) {
	server := newTestServer(t)

	request := httptest.NewRequest("GET", "/socket", nil)
	recorder := httptest.NewRecorder()
	server.ServeWS(recorder, request)
	if recorder.Code != 401 {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	// nothing registered, nothing counted
	if server.hub.localConnections() != 0 {
		t.Fatalf("no connection should exist after a rejected handshake")
	}
}
