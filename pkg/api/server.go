// Package api serves an optional local event stream: a WebSocket that mirrors
// the operator log and agent thoughts and accepts user input.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

// Server is the event stream HTTP server.
type Server struct {
	bus         *bus.Hub
	addr        string
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
}

// NewServer creates a server bound to addr (host:port) over b.
func NewServer(b *bus.Hub, addr string) *Server {
	s := &Server{
		bus:       b,
		addr:      addr,
		startTime: time.Now(),
	}
	s.wsHub = NewWSHub(b)
	s.eventBridge = NewEventBridge(b, s.wsHub)
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.wsHub.HandleWebSocket)
	return corsMiddleware(mux)
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.InfoCF("api", "Event stream listening", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.serveHub(hubCtx)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		stopHub()
		<-hubDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	<-errCh
	<-hubDone
	logger.InfoC("api", "Event stream stopped")
	return err
}

// serveHub runs the client hub with the event bridge attached.
func (s *Server) serveHub(ctx context.Context) {
	s.eventBridge.Attach()
	defer s.eventBridge.Detach()
	s.wsHub.Run(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "method not allowed"})
		return
	}
	subscribers := make(map[string]int)
	for _, topic := range domain.AllTopics() {
		subscribers[topic.String()] = s.bus.SubscriberCount(topic)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"clients":        s.wsHub.ClientCount(),
		"subscribers":    subscribers,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
