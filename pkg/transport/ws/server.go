// Package ws exposes the document engine over WebSocket, using
// go-chi/chi for routing and gorilla/websocket for the upgrade.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/pkg/auth"
	"github.com/foundrysync/mimic/pkg/connection"
	"github.com/foundrysync/mimic/pkg/registry"
	"github.com/foundrysync/mimic/pkg/schema"
)

// Config configures the mounted route and its socket behavior.
type Config struct {
	BasePath          string // default "/mimic"
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Presence          connection.PresenceConfig
}

// ShardRouter reports which node owns a document id. When set on a
// Server, the upgrade handler refuses to serve a document this node does
// not own instead of materializing a second, independent runtime for it
// alongside the owning node's — *sharding.Router satisfies this directly.
type ShardRouter interface {
	IsLocal(documentID string) bool
	Owner(documentID string) string
}

func (c *Config) setDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/mimic"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
}

// Server wires the registry, auth provider, and schema applier onto an
// HTTP router exposing the single documented WebSocket route plus
// ambient /healthz and /metrics endpoints.
type Server struct {
	cfg      Config
	registry *registry.Registry
	auth     auth.Provider
	applier  schema.Applier
	upgrader websocket.Upgrader
	shards   ShardRouter
}

// New builds a Server. Call Router to obtain the http.Handler to serve.
// shardRouter is optional: pass one (typically *sharding.Router) when this
// process is part of a sharded deployment so connections for documents
// owned by another node are refused instead of served locally.
func New(cfg Config, reg *registry.Registry, authProvider auth.Provider, applier schema.Applier, shardRouter ...ShardRouter) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:      cfg,
		registry: reg,
		auth:     authProvider,
		applier:  applier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if len(shardRouter) > 0 {
		s.shards = shardRouter[0]
	}
	return s
}

// Router builds the chi router for this server. metricsHandler may be nil
// to omit the /metrics route.
func (s *Server) Router(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}
	r.Route(s.cfg.BasePath, func(r chi.Router) {
		r.Get("/doc/{documentId}", s.handleUpgrade)
	})
	return r
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	if documentID == "" {
		http.Error(w, "Missing document ID in path", http.StatusBadRequest)
		return
	}

	if s.shards != nil && !s.shards.IsLocal(documentID) {
		w.Header().Set("X-Mimic-Owner", s.shards.Owner(documentID))
		http.Error(w, "document is owned by another node", http.StatusMisdirectedRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade itself already wrote the 400 response.
		return
	}

	sock := &socketAdapter{conn: conn}
	handler := connection.New(sock, s.auth, s.registry, s.applier, documentID, s.cfg.Presence)

	ctx := logger.WithContext(r.Context(), logger.New(handler.ID).WithDocument(documentID))
	logger.L(ctx).Info("connection accepted", logger.KeyConnectionID, handler.ID, logger.KeyDocumentID, documentID, logger.KeyRemoteAddr, r.RemoteAddr)

	s.serve(ctx, conn, handler)
}

// serve runs the read loop for one connection until the socket closes,
// then tears the handler down.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, handler *connection.Handler) {
	defer handler.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatInterval + s.cfg.HeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatInterval + s.cfg.HeartbeatTimeout))
		return nil
	})

	stopHeartbeat := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.HeartbeatTimeout)); err != nil {
					return
				}
			case <-stopHeartbeat:
				return
			}
		}
	}()
	defer func() {
		close(stopHeartbeat)
		wg.Wait()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handler.HandleFrame(ctx, data)
	}
}

// socketAdapter implements connection.Socket over a gorilla/websocket
// connection, serializing writes since the underlying conn does not
// support concurrent writers.
type socketAdapter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socketAdapter) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *socketAdapter) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

var _ connection.Socket = (*socketAdapter)(nil)
