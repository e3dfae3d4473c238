// Package webapi exposes organisations, task drafts and tasks over REST and
// pushes draft, task and upload changes to WebSocket clients.
package webapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/composer"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/events"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/submit"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/upload"
)

// Server is the web API server.
type Server struct {
	db             *db.DB
	composer       *composer.Service
	events         *events.Emitter
	addr           string
	filesDir       string
	publicURL      string
	allowedOrigins []string
	logger         *log.Logger
	wsHub          *WebSocketHub
	now            func() time.Time
}

// Config holds server configuration.
type Config struct {
	Addr     string
	DB       *db.DB
	Composer *composer.Service
	Events   *events.Emitter // optional; task and attachment events are pushed to clients
	Uploads  *upload.Manager // optional; upload progress is pushed to clients

	// FilesDir is served under PublicURL.
	FilesDir  string
	PublicURL string

	// AllowedOrigins restricts CORS and WebSocket origins. Empty allows any.
	AllowedOrigins []string
	Logger         *log.Logger
	Now            func() time.Time
}

// New creates a new API server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "webapi"})
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = "/files"
	}

	s := &Server{
		db:             cfg.DB,
		composer:       cfg.Composer,
		events:         cfg.Events,
		addr:           cfg.Addr,
		filesDir:       cfg.FilesDir,
		publicURL:      publicURL,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
		wsHub:          NewWebSocketHub(),
		now:            now,
	}

	if cfg.Events != nil {
		cfg.Events.Subscribe(func(e events.Event) {
			s.wsHub.Broadcast(Message{Type: e.Type, Data: eventToResponse(e)})
		})
	}
	if cfg.Composer != nil {
		cfg.Composer.OnChange(func(id string, st draft.State) {
			s.wsHub.Broadcast(Message{Type: "draft.updated", Data: draftResponse{ID: id, State: st}})
		})
	}
	if cfg.Uploads != nil {
		cfg.Uploads.OnStatus(func(st upload.Status) {
			s.wsHub.Broadcast(Message{Type: "upload.status", Data: st})
		})
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Organisation endpoints
	mux.HandleFunc("GET /orgs", s.handleListOrgs)
	mux.HandleFunc("POST /orgs", s.handleCreateOrg)
	mux.HandleFunc("GET /orgs/{org}/properties", s.handleListProperties)
	mux.HandleFunc("POST /orgs/{org}/properties", s.handleCreateProperty)
	mux.HandleFunc("GET /orgs/{org}/properties/{id}/spaces", s.handleListSpaces)
	mux.HandleFunc("POST /orgs/{org}/properties/{id}/spaces", s.handleCreateSpace)
	mux.HandleFunc("GET /orgs/{org}/assets", s.handleListAssets)
	mux.HandleFunc("POST /orgs/{org}/assets", s.handleCreateAsset)
	mux.HandleFunc("GET /orgs/{org}/members", s.handleListMembers)
	mux.HandleFunc("POST /orgs/{org}/members", s.handleCreateMember)
	mux.HandleFunc("GET /orgs/{org}/teams", s.handleListTeams)
	mux.HandleFunc("POST /orgs/{org}/teams", s.handleCreateTeam)
	mux.HandleFunc("GET /orgs/{org}/themes", s.handleListThemes)
	mux.HandleFunc("POST /orgs/{org}/themes", s.handleCreateTheme)
	mux.HandleFunc("GET /orgs/{org}/entities", s.handleSearchEntities)

	// Draft endpoints
	mux.HandleFunc("POST /drafts", s.handleOpenDraft)
	mux.HandleFunc("GET /drafts/{id}", s.handleGetDraft)
	mux.HandleFunc("DELETE /drafts/{id}", s.handleCloseDraft)
	mux.HandleFunc("POST /drafts/{id}/resume", s.handleResumeDraft)
	mux.HandleFunc("POST /drafts/{id}/describe", s.handleDescribe)
	mux.HandleFunc("PATCH /drafts/{id}/fields", s.handleUpdateFields)
	mux.HandleFunc("POST /drafts/{id}/sections/{section}/toggle", s.handleToggleSection)
	mux.HandleFunc("POST /drafts/{id}/who", s.handleAssignByName)
	mux.HandleFunc("POST /drafts/{id}/chips/{chip}/resolve", s.handleResolveChip)
	mux.HandleFunc("POST /drafts/{id}/chips/{chip}/create", s.handleCreateFromChip)
	mux.HandleFunc("DELETE /drafts/{id}/chips/{chip}", s.handleRemoveChip)
	mux.HandleFunc("POST /drafts/{id}/images", s.handleAttachImage)
	mux.HandleFunc("POST /drafts/{id}/submit", s.handleSubmit)

	// Task endpoints
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /tasks/{id}/status", s.handleUpdateTaskStatus)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("GET /tasks/{id}/attachments", s.handleListAttachments)
	mux.HandleFunc("GET /tasks/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /tasks/{id}/messages", s.handlePostMessage)

	// Uploaded images
	if s.filesDir != "" {
		mux.Handle("GET "+s.publicURL+"/", http.StripPrefix(s.publicURL, http.FileServer(http.Dir(s.filesDir))))
	}

	// WebSocket
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	return handler
}

// Start starts the API server and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	go s.wsHub.Run()
	defer s.wsHub.Stop()

	s.logger.Info("starting API server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) originAllowed(origin string) bool {
	return len(s.allowedOrigins) == 0 || slices.Contains(s.allowedOrigins, origin)
}

// corsMiddleware adds CORS headers for allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the WebSocket upgrader reach the
// underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack is needed for WebSocket upgrades through the middleware.
func (rw *responseWriter) Hijack() (c net.Conn, b *bufio.ReadWriter, err error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return hj.Hijack()
}

// JSON response helpers
func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

func parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// userID returns the caller's member id. Authentication happens in front of
// this service; the proxy passes the identity along.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// writeError maps domain errors to status codes. Anything unknown is logged
// and reported as an internal error with the given message.
func (s *Server) writeError(w http.ResponseWriter, err error, message string) {
	var ghost *submit.GhostError
	switch {
	case errors.Is(err, composer.ErrDraftNotFound),
		errors.Is(err, composer.ErrChipNotFound),
		errors.Is(err, composer.ErrEntityNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case submit.IsValidation(err):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &ghost):
		s.logger.Error(message, "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		s.logger.Error(message, "error", err)
		jsonError(w, message, http.StatusInternalServerError)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// WebSocketHub manages WebSocket connections.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan Message
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// Message represents a WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewWebSocketHub creates a new WebSocket hub.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
	}
}

// Stop ends Run and closes every client's send queue. It is safe to call
// more than once.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Run starts the WebSocket hub. It returns once Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow client; drop it rather than stall everyone.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. Messages are
// dropped when the queue is full so callers never block on the hub.
func (h *WebSocketHub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Clients returns the number of connected clients.
func (h *WebSocketHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket handles WebSocket connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WebSocketClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024) // 512KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
