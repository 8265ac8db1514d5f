package internal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// auth failure taxonomy. All three reject the connection before it ever
// touches the presence registry.
var (
	errUnauthenticated   = errors.New("no credential presented")
	errInvalidCredential = errors.New("invalid or expired credential")
	errUserNotFound      = errors.New("no user for credential")
)

// Identity is the resolved user behind a connection plus the profile fields
// we denormalize into the presence entry. Immutable once captured.
type Identity struct {
	UserID   int64
	Username string
	Name     string
	Avatar   string
}

// authContext is what HTTP handlers get back after bearer-token auth.
type authContext struct {
	Identity
	Token string
}

// authenticateToken resolves a session token to an identity. Runs to
// completion before a websocket is accepted; an expired session is deleted as
// a side effect so it cannot be replayed.
func (s *Server) authenticateToken(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, errUnauthenticated
	}
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errInvalidCredential
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.store.DeleteSession(ctx, token)
		return nil, errInvalidCredential
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errUserNotFound
	}
	return &Identity{UserID: user.ID, Username: user.Username, Name: user.Name, Avatar: user.Avatar}, nil
}

// authenticateRequest handles bearer auth for the REST endpoints.
func (s *Server) authenticateRequest(r *http.Request) (*authContext, error) {
	token := bearerToken(r)
	identity, err := s.authenticateToken(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return &authContext{Identity: *identity, Token: token}, nil
}

// socketToken pulls the credential for a websocket handshake: ?token= query
// parameter first (browser websockets cannot set headers), Authorization
// header as a fallback for non-browser clients.
func socketToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func isAuthError(err error) bool {
	return errors.Is(err, errUnauthenticated) ||
		errors.Is(err, errInvalidCredential) ||
		errors.Is(err, errUserNotFound)
}
