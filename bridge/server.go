package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/modoki-agent/modoki/agent"
	"github.com/modoki-agent/modoki/confirm"
	"github.com/modoki-agent/modoki/skills"
)

const (
	clientSendBuffer = 64
	shutdownTimeout  = 5 * time.Second
)

// Server relays session events to WebSocket clients and exposes a small
// REST surface for scripted use. All clients share the one session: a
// turn started by any of them streams to everyone, and a turn keeps
// running if the client that started it disconnects.
type Server struct {
	session  *agent.Session
	skills   *skills.Registry
	router   *router
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	baseCtx context.Context

	// WorkingDir and HasContext are reported in the system_info frame
	// sent to each joining client.
	WorkingDir string
	HasContext bool
}

type wsClient struct {
	conn *websocket.Conn
	out  chan []byte
}

type ServerOption func(*Server)

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer wires the relay and starts pumping the session's events to
// connected clients. The pump stops when the session is closed.
func NewServer(session *agent.Session, reg *skills.Registry, table *confirm.Table, opts ...ServerOption) *Server {
	s := &Server{
		session: session,
		skills:  reg,
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			// The relay binds locally for a trusted desktop shell.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = &router{session: session, skills: reg, table: table, send: s.broadcast}

	go func() {
		for ev := range session.Events() {
			s.broadcast(Frame(ev))
		}
	}()
	return s
}

// Handler returns the HTTP routes: GET /ws plus the REST endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/skills", s.handleSkills)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	return mux
}

// Run serves addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// dispatchCtx is the context turns run under. Deliberately not the
// request context: a turn survives the connection that started it.
func (s *Server) dispatchCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func (s *Server) broadcast(frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.out <- data:
		default:
			// Slow client; drop the frame rather than stall the pump.
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, out: make(chan []byte, clientSendBuffer)}

	// Current state first, so a late joiner can render immediately.
	greeting := [][]byte{
		marshalFrame(systemInfoFrame(s.session, s.skills, s.WorkingDir, s.HasContext)),
		marshalFrame(skillsListFrame(s.skills)),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c, greeting)
	s.readLoop(c)
}

func (s *Server) writeLoop(c *wsClient, greeting [][]byte) {
	for _, data := range greeting {
		if data == nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	for data := range c.out {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (s *Server) readLoop(c *wsClient) {
	defer s.drop(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.router.dispatch(s.dispatchCtx(), msg)
	}
}

func (s *Server) drop(c *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.out)
	}
	s.mu.Unlock()
	c.conn.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"model":  s.session.Model(),
		"busy":   s.session.Busy(),
	})
}

func (s *Server) handleSkills(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"skills": skillPayload(s.skills.List())})
}

// handleQuery runs one synchronous exchange and returns the final
// answer. Tool streaming still goes to the WebSocket clients.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "content is required"})
		return
	}

	answer, err := s.session.Submit(r.Context(), body.Content)
	switch {
	case errors.Is(err, agent.ErrSessionBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
	}
}

func marshalFrame(frame map[string]any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	return data
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
