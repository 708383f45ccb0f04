package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/PabloGalante/tia-chat/internal/domain"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

const maxBodyBytes = 1 << 20

// ChatService is the façade surface the HTTP handlers need.
type ChatService interface {
	DefaultSession(ctx context.Context) (*domain.Session, error)
	PostMessage(ctx context.Context, sessionID domain.SessionID, content string) (*domain.Message, error)
	ListMessages(ctx context.Context, sessionID domain.SessionID) ([]*domain.Message, error)
	Message(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	UserSessions(ctx context.Context, userID domain.UserID) ([]*domain.Session, error)
}

type Server struct {
	svc       ChatService
	validator *bodyValidator
}

func NewServer(svc ChatService) (http.Handler, error) {
	validator, err := newBodyValidator()
	if err != nil {
		return nil, errors.Wrap(err, "compile request schema")
	}
	s := &Server{svc: svc, validator: validator}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// /api/chat/default → get or create the demo session
	mux.HandleFunc("GET /api/chat/default", s.handleDefaultSession)

	// /api/chat/{id}/messages → GET: list, POST: send
	mux.HandleFunc("GET /api/chat/{sessionId}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/chat/{sessionId}/messages", s.handlePostMessage)

	mux.HandleFunc("GET /api/messages/{messageId}", s.handleGetMessage)
	mux.HandleFunc("GET /api/users/{userId}/sessions", s.handleUserSessions)

	return chainMiddlewares(mux, withCORS, withLogging, withRequestID), nil
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type postMessageRequest struct {
	Content string `json:"content"`
	Role    string `json:"role,omitempty"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageResponse struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

type errorResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDefaultSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.DefaultSession(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to get chat session")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(r.PathValue("sessionId"))

	msgs, err := s.svc.ListMessages(r.Context(), sessionID)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, toMessagesResponse(msgs))
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(r.PathValue("sessionId"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		invalidMessage(w, []fieldError{{Field: "(root)", Message: "request body too large or unreadable"}})
		return
	}
	if problems := s.validator.validate(body); problems != nil {
		invalidMessage(w, problems)
		return
	}

	var req postMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		invalidMessage(w, []fieldError{{Field: "(root)", Message: "invalid JSON body"}})
		return
	}

	msg, err := s.svc.PostMessage(r.Context(), sessionID, req.Content)
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Message(r.Context(), domain.MessageID(r.PathValue("messageId")))
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to fetch message")
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.UserSessions(r.Context(), domain.UserID(r.PathValue("userId")))
	if err != nil {
		s.writeServiceError(w, r, err, "Failed to fetch sessions")
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

// ─────────────────────────────────────────────
// Conversion helpers
// ─────────────────────────────────────────────

func toSessionResponse(s *domain.Session) sessionResponse {
	var userID *string
	if s.UserID != nil {
		v := string(*s.UserID)
		userID = &v
	}
	return sessionResponse{
		ID:        string(s.ID),
		UserID:    userID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func invalidMessage(w http.ResponseWriter, details []fieldError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   "Invalid message data",
		Details: details,
	})
}

// writeServiceError maps the domain error taxonomy onto status codes.
// internalMsg is what clients see for unexpected failures.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		invalidMessage(w, []fieldError{{Field: ve.Field, Message: ve.Message}})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: nf.Kind + " not found"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		observability.LoggerFromContext(r.Context()).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: internalMsg})
	}
}
