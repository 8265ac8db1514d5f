package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	intrnl "socialwire/internal"
	"socialwire/internal/presence"
	"socialwire/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	store  *storage.Store
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the SQLite store, connects the presence store, resets the
// presence registry (stale state from a previous run cannot describe live
// sockets), wires the routes and starts serving in the background. Call
// Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg Config) (*ServerHandle, error) {
	log := NewLogger(cfg.Logging)

	if cfg.Database.Path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	presenceStore, err := openPresenceStore(cfg.Presence, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	registry := presence.NewRegistry(presenceStore, cfg.Presence.Namespace)
	if err := registry.Reset(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("presence reset: %w", err)
	}

	server := intrnl.NewServer(store, registry, intrnl.Options{
		TokenTTL:      cfg.Auth.TokenTTLDuration(),
		AuthRateLimit: cfg.Auth.RateLimit,
		AuthRateWin:   cfg.Auth.RateWindowDuration(),
		Logger:        log,
	})

	router := newRouter(cfg, server)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		store:  store,
		done:   make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server shutdown error")
		}
	}()

	go handle.serve(listener, log)

	log.WithFields(logrus.Fields{
		"addr":   handle.addr,
		"socket": cfg.Server.SocketPath,
	}).Info("socialwire server listening")

	return handle, nil
}

// openPresenceStore picks redis when configured, otherwise the in-process
// store. Without redis, presence is only correct for a single server process.
func openPresenceStore(cfg PresenceSection, log *logrus.Logger) (presence.Store, error) {
	if cfg.RedisURL == "" {
		log.Warn("no redis url configured, using in-process presence store (single instance only)")
		return presence.NewMemoryStore(), nil
	}
	store, err := presence.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect presence store: %w", err)
	}
	log.Info("presence store connected")
	return store, nil
}

func (h *ServerHandle) serve(listener net.Listener, log *logrus.Logger) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err := h.store.Close(); err != nil {
		log.WithError(err).Error("store close error")
	}
	h.err = err
}

func newRouter(cfg Config, server *intrnl.Server) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc(cfg.Server.SocketPath, server.ServeWS)
	router.HandleFunc("/signup", server.HandleSignup).Methods(http.MethodPost)
	router.HandleFunc("/login", server.HandleLogin).Methods(http.MethodPost)
	router.HandleFunc("/logout", server.HandleLogout).Methods(http.MethodPost)
	router.HandleFunc("/mutuals", server.HandleMutuals).Methods(http.MethodGet)
	router.HandleFunc("/follows/{username}", server.HandleFollow).
		Methods(http.MethodPut, http.MethodPost, http.MethodDelete)
	router.HandleFunc("/password/change", server.HandlePasswordChange).Methods(http.MethodPost)
	router.HandleFunc("/healthz", server.HandleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", server.MetricsHandler()).Methods(http.MethodGet)
	return router
}
