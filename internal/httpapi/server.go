// Package httpapi exposes the chat backend over HTTP: text turns, image
// analysis, history access, and webhook-triggered tasks.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/parley/internal/gateway"
	"github.com/user/parley/internal/imaging"
	"github.com/user/parley/internal/state"
	"github.com/user/parley/internal/types"
)

// TaskHandler is a callback that processes a prompt within the given session.
type TaskHandler func(sessionKey, prompt string) (string, error)

// Server is the HTTP front end of the chat backend.
type Server struct {
	gateway       *gateway.Gateway
	sessions      types.SessionStore
	conversations types.ConversationStore
	uploads       *state.UploadStore
	tasks         *state.TaskStore
	taskHandler   TaskHandler
	mux           *http.ServeMux

	requestTimeout time.Duration
	maxUploadBytes int64
}

// Option configures the Server.
type Option func(*Server)

// WithRequestTimeout bounds how long a request waits for its run to finish.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithMaxUploadBytes bounds the size of an uploaded image.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) { s.maxUploadBytes = n }
}

// WithTasks enables webhook-triggered tasks.
func WithTasks(tasks *state.TaskStore, handler TaskHandler) Option {
	return func(s *Server) {
		s.tasks = tasks
		s.taskHandler = handler
	}
}

// NewServer creates the HTTP server wired to the gateway and stores.
func NewServer(gw *gateway.Gateway, sessions types.SessionStore, conversations types.ConversationStore, uploads *state.UploadStore, opts ...Option) *Server {
	s := &Server{
		gateway:        gw,
		sessions:       sessions,
		conversations:  conversations,
		uploads:        uploads,
		mux:            http.NewServeMux(),
		requestTimeout: 90 * time.Second,
		maxUploadBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /analyze_image", s.handleAnalyzeImage)
	s.mux.HandleFunc("GET /chat_history", s.handleHistory)
	s.mux.HandleFunc("DELETE /chat_history", s.handleClearHistory)
	s.mux.HandleFunc("POST /webhook/", s.handleNamedTask)
	return s
}

// ServeHTTP implements http.Handler. OPTIONS preflights are answered without
// touching any handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-ID")
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// envelope is the common response shape of the chat endpoints.
type envelope struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// chatRequest is the JSON body accepted by POST /chat. Form-encoded bodies
// with the same field names work too.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// resolveSessionID applies the session-id precedence: X-Session-ID header,
// then form value, then JSON body, then a freshly generated id.
func resolveSessionID(r *http.Request, bodyID string) string {
	if id := strings.TrimSpace(r.Header.Get("X-Session-ID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.FormValue("session_id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(bodyID); id != "" {
		return id
	}
	return uuid.New().String()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	message := ""

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid JSON"})
			return
		}
		message = strings.TrimSpace(body.Message)
	} else {
		message = strings.TrimSpace(r.FormValue("message"))
	}

	sessionID := resolveSessionID(r, body.SessionID)

	if message == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, SessionID: sessionID, Error: "message is required"})
		return
	}

	turn := &types.InboundTurn{
		Source:     "http",
		SessionKey: types.NewSessionKey("http", sessionID),
		UserID:     sessionID,
		Text:       message,
	}

	response, err := s.dispatch(r.Context(), turn)
	if err != nil {
		kind := types.KindOf(err)
		slog.Error("chat turn failed", "session_id", sessionID, "kind", kind.String(), "error", err)
		if kind == types.KindValidation {
			writeJSON(w, http.StatusBadRequest, envelope{Success: false, SessionID: sessionID, Error: safeMessage(kind)})
			return
		}
		if kind == types.KindStorage {
			writeJSON(w, http.StatusInternalServerError, envelope{Success: false, SessionID: sessionID, Error: safeMessage(kind)})
			return
		}
		// The chat surface degrades: model trouble becomes a fallback reply
		// rather than an error status.
		writeJSON(w, http.StatusOK, envelope{Success: false, SessionID: sessionID, Response: gateway.FallbackMessage})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, SessionID: sessionID, Response: response})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "file is required"})
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "empty filename"})
		return
	}

	sessionID := resolveSessionID(r, "")

	if !imaging.SupportedExt(header.Filename) {
		writeJSON(w, statusFor(types.KindUnsupportedFormat), envelope{Success: false, SessionID: sessionID, Error: safeMessage(types.KindUnsupportedFormat)})
		return
	}

	path, err := s.saveUpload(file, header)
	if err != nil {
		slog.Error("save upload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, SessionID: sessionID, Error: safeMessage(types.KindStorage)})
		return
	}
	// The upload is transient; it is removed whether or not the run succeeds.
	defer func() {
		if err := s.uploads.Remove(path); err != nil {
			slog.Warn("remove upload failed", "path", path, "error", err)
		}
	}()

	turn := &types.InboundTurn{
		Source:     "http",
		SessionKey: types.NewSessionKey("http", sessionID),
		UserID:     sessionID,
		Text:       strings.TrimSpace(r.FormValue("message")),
		ImagePath:  path,
	}

	response, err := s.dispatch(r.Context(), turn)
	if err != nil {
		kind := types.KindOf(err)
		slog.Error("image turn failed", "session_id", sessionID, "kind", kind.String(), "error", err)
		writeJSON(w, statusFor(kind), envelope{Success: false, SessionID: sessionID, Error: safeMessage(kind)})
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, SessionID: sessionID, Response: response})
}

func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	return s.uploads.Save(file, header.Filename)
}

// dispatch enqueues the turn and waits for its run to finish.
func (s *Server) dispatch(ctx context.Context, turn *types.InboundTurn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	run, err := s.gateway.HandleInbound(ctx, turn)
	if err != nil {
		return "", err
	}
	return run.Wait(ctx)
}

// historyEntry is one turn of stored history in API responses. The "type"
// key carries the role (user or assistant).
type historyEntry struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// lookupSession finds the stored session for a client session id without
// creating one.
func (s *Server) lookupSession(ctx context.Context, sessionID string) (*types.SessionIndex, error) {
	key := types.NewSessionKey("http", sessionID)
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.SessionKey == key {
			return sess, nil
		}
	}
	return nil, types.NewError(types.KindNotFound, "unknown session: "+sessionID)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "session_id is required"})
		return
	}

	sess, err := s.lookupSession(r.Context(), sessionID)
	if err != nil {
		kind := types.KindOf(err)
		if kind == types.KindNotFound {
			// A never-seen session simply has no history yet.
			writeJSON(w, http.StatusOK, map[string]any{
				"success":    true,
				"session_id": sessionID,
				"history":    []historyEntry{},
			})
			return
		}
		writeJSON(w, statusFor(kind), envelope{Success: false, SessionID: sessionID, Error: safeMessage(kind)})
		return
	}

	msgs, err := s.conversations.ReadAll(r.Context(), sess.SessionID)
	if err != nil {
		slog.Error("read history failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, SessionID: sessionID, Error: safeMessage(types.KindStorage)})
		return
	}

	history := make([]historyEntry, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, historyEntry{
			Type:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.At.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sessionID,
		"history":    history,
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "session_id is required"})
		return
	}

	sess, err := s.lookupSession(r.Context(), sessionID)
	if err != nil {
		kind := types.KindOf(err)
		writeJSON(w, statusFor(kind), envelope{Success: false, SessionID: sessionID, Error: safeMessage(kind)})
		return
	}

	if err := s.conversations.Clear(r.Context(), sess.SessionID); err != nil {
		slog.Error("clear history failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, SessionID: sessionID, Error: safeMessage(types.KindStorage)})
		return
	}

	sess.MessageCount = 0
	sess.UpdatedAt = time.Now()
	if err := s.sessions.Update(r.Context(), sess); err != nil {
		slog.Warn("update session after clear failed", "session_id", sessionID, "error", err)
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, SessionID: sessionID})
}

// namedTaskRequest is the optional JSON body for POST /webhook/{name}.
type namedTaskRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleNamedTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil || s.taskHandler == nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Error: "tasks not configured"})
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/webhook/")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "task name required"})
		return
	}

	task, err := s.tasks.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "task not found"})
		return
	}
	if !task.Enabled {
		writeJSON(w, http.StatusForbidden, envelope{Success: false, Error: "task is disabled"})
		return
	}

	prompt := task.Prompt
	var body namedTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Prompt != "" {
		prompt = body.Prompt
	}

	resp, err := s.taskHandler(task.SessionKey, prompt)
	if err != nil {
		slog.Error("webhook task failed", "task", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: safeMessage(types.KindOf(err))})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Warn("write response failed", "error", err)
	}
}
