package internal

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"socialwire/internal/presence"
	"socialwire/internal/storage"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// Server holds every collaborator the handlers need.
type Server struct {
	store       *storage.Store
	registry    *presence.Registry
	hub         *Hub
	router      *Router
	mutuals     *MutualResolver
	metrics     *Metrics
	authLimiter *RateLimiter
	log         *logrus.Logger
	tokenTTL    time.Duration
}

// Options tweaks the non-essential knobs; zero values get sensible defaults.
type Options struct {
	TokenTTL      time.Duration
	AuthRateLimit int
	AuthRateWin   time.Duration
	Logger        *logrus.Logger
}

func NewServer(store *storage.Store, registry *presence.Registry, opts Options) *Server {
	if opts.TokenTTL == 0 {
		opts.TokenTTL = defaultTokenTTL
	}
	if opts.AuthRateLimit == 0 {
		opts.AuthRateLimit = 10
	}
	if opts.AuthRateWin == 0 {
		opts.AuthRateWin = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	server := &Server{
		store:       store,
		registry:    registry,
		hub:         NewHub(),
		metrics:     NewMetrics(),
		authLimiter: NewRateLimiter(opts.AuthRateLimit, opts.AuthRateWin),
		log:         opts.Logger,
		tokenTTL:    opts.TokenTTL,
	}
	server.router = NewRouter(registry, server.hub, server.metrics, server.log)
	server.mutuals = NewMutualResolver(store, store, registry)
	return server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// all origins allowed; auth is the bearer token, not the origin.
		// tighten this if the server fronts browsers on a fixed domain.
		return true
	},
}

// ServeWS is the websocket entry point. The credential is verified before the
// upgrade so a rejected connection never reaches the presence registry.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticateToken(r.Context(), socketToken(r))
	if err != nil {
		if isAuthError(err) {
			s.log.WithError(err).WithField("ip", s.clientIP(r)).Info("socket auth rejected")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		s.log.WithError(err).Error("socket auth lookup failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := newClient(uuid.NewString(), *identity, conn, s)
	client.state = stateAuthenticated
	s.hub.register(client)
	s.metrics.IncConn()
	go client.writePump()

	if err := s.handleConnect(r.Context(), client); err != nil {
		client.log().WithError(err).Error("presence register failed, closing connection")
		s.hub.unregister(client)
		s.metrics.DecConn()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "presence unavailable"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go client.readPump()
}

// MetricsHandler exposes the counters as json.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
