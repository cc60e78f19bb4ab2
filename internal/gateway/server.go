package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amityvox/amityvox/internal/events"
)

// GatewayPath is the HTTP upgrade endpoint clients connect to, matching the
// host platform's bot SDK.
const GatewayPath = "/api/v1/gateway"

// ServerConfig groups everything the Server needs to accept connections and
// bridge domain events into them.
type ServerConfig struct {
	Validator SessionValidator
	EventBus  *events.Bus
	Pool      *pgxpool.Pool

	ListenAddr        string
	HeartbeatInterval time.Duration
	LatencyBuffer     time.Duration
	BroadcastCapacity int
	ResumeMaxEntries  int
	ResumeRetention   time.Duration

	Logger *slog.Logger
}

// Server accepts HTTP upgrade requests, hands each upgraded connection to
// the core as a new GatewayClient, and owns the process-wide ConnectedUsers
// registry, event bus bridge, and graceful shutdown sequence.
type Server struct {
	cfg      ServerConfig
	registry *ConnectedUsers
	bridge   *EventBridge
	httpSrv  *http.Server
}

// NewServer constructs a Server. Call Start to begin accepting connections;
// the RoleUserMap is initialized from cfg.Pool as part of Start.
func NewServer(cfg ServerConfig) *Server {
	roles := NewRoleUserMap()
	guilds := NewGuildUserMap()
	channels := NewChannelGuildIndex()
	registry := NewConnectedUsers(cfg.BroadcastCapacity, cfg.ResumeMaxEntries, cfg.ResumeRetention, roles, guilds, channels)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		bridge:   NewEventBridge(registry, cfg.EventBus, cfg.Logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(GatewayPath, s.handleUpgrade)
	s.httpSrv = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	return s
}

// Start initializes the RoleUserMap from the database, subscribes the event
// bridge, and begins serving HTTP upgrade requests. It blocks until the
// server stops or errors.
func (s *Server) Start(ctx context.Context) error {
	if err := s.registry.Roles().Init(ctx, s.cfg.Pool); err != nil {
		return fmt.Errorf("initializing role user map: %w", err)
	}
	if err := s.registry.Guilds().Init(ctx, s.cfg.Pool); err != nil {
		return fmt.Errorf("initializing guild user map: %w", err)
	}
	if err := s.registry.Channels().Init(ctx, s.cfg.Pool); err != nil {
		return fmt.Errorf("initializing channel guild index: %w", err)
	}

	if err := s.bridge.Subscribe(); err != nil {
		return fmt.Errorf("subscribing event bridge: %w", err)
	}

	s.cfg.Logger.Info("gateway listening", slog.String("addr", s.cfg.ListenAddr), slog.String("path", GatewayPath))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway HTTP server: %w", err)
	}
	return nil
}

// Shutdown stops accepting new connections and tears down the HTTP server
// within ctx's deadline, unsubscribing the event bridge.
func (s *Server) Shutdown(ctx context.Context) error {
	s.bridge.Unsubscribe()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down gateway HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("gateway upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(1 << 20)

	ctx := context.Background()
	wc := NewWebSocketConnection(ctx, conn, s.cfg.BroadcastCapacity, s.cfg.Logger)

	client := NewGatewayClient(wc, ClientConfig{
		Registry:          s.registry,
		Validator:         s.cfg.Validator,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
		LatencyBuffer:     s.cfg.LatencyBuffer,
		Logger:            s.cfg.Logger,
	})
	client.Run(ctx)
}
