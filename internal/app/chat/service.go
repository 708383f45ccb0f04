package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/PabloGalante/tia-chat/internal/domain"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

const (
	DefaultSessionID    domain.SessionID = "default-session"
	DefaultSessionTitle                  = "Tata Capital Chat"
)

type Service struct {
	sessions domain.SessionRegistry
	messages domain.MessageStore
	replies  domain.ReplyScheduler

	defaultSessionID domain.SessionID
	defaults         domain.SessionDefaults
}

type Option func(*Service)

// WithDefaultSession configures the id and defaults used by DefaultSession
// and by sessions created lazily on first post.
func WithDefaultSession(id domain.SessionID, defaults domain.SessionDefaults) Option {
	return func(s *Service) {
		if id != "" {
			s.defaultSessionID = id
		}
		s.defaults = defaults
	}
}

func NewService(
	sessions domain.SessionRegistry,
	messages domain.MessageStore,
	replies domain.ReplyScheduler,
	opts ...Option,
) *Service {
	s := &Service{
		sessions:         sessions,
		messages:         messages,
		replies:          replies,
		defaultSessionID: DefaultSessionID,
		defaults:         domain.SessionDefaults{Title: DefaultSessionTitle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultSession returns the shared demo session, creating it on first use.
func (s *Service) DefaultSession(ctx context.Context) (*domain.Session, error) {
	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(s.defaultSessionID)).
		Logger()

	session, err := s.sessions.GetOrCreate(s.defaultSessionID, s.defaults)
	if err != nil {
		log.Error().Err(err).Msg("failed to get default session")
		return nil, storageError("get default session", err)
	}
	return session, nil
}

// PostMessage stores a user turn and schedules the assistant reply. It
// returns the stored user message without waiting for the reply.
func (s *Service) PostMessage(ctx context.Context, sessionID domain.SessionID, content string) (*domain.Message, error) {
	if strings.TrimSpace(string(sessionID)) == "" {
		return nil, domain.NewValidationError("sessionId", "session id is required")
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, domain.NewValidationError("content", "content must not be empty")
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Logger()

	if _, err := s.sessions.GetOrCreate(sessionID, s.defaults); err != nil {
		log.Error().Err(err).Msg("failed to ensure session")
		return nil, storageError("ensure session", err)
	}

	msg, err := s.messages.Append(domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   text,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to append user message")
		return nil, storageError("append user message", err)
	}

	s.replies.Schedule(ctx, sessionID, text)

	log.Info().Str("message_id", string(msg.ID)).Msg("user message posted")
	return msg, nil
}

// ListMessages returns the session timeline in timestamp order. Unknown
// sessions yield a *domain.NotFoundError; known sessions with no messages
// yield an empty slice.
func (s *Service) ListMessages(ctx context.Context, sessionID domain.SessionID) ([]*domain.Message, error) {
	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Logger()

	if _, err := s.sessions.Get(sessionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		log.Error().Err(err).Msg("failed to get session")
		return nil, storageError("get session", err)
	}

	msgs, err := s.messages.ListBySession(sessionID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list messages")
		return nil, storageError("list messages", err)
	}

	log.Debug().Int("message_count", len(msgs)).Msg("fetched session messages")
	return msgs, nil
}

// Message returns one stored message by id.
func (s *Service) Message(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	msg, err := s.messages.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		observability.LoggerFromContext(ctx).Error().
			Err(err).
			Str("message_id", string(id)).
			Msg("failed to get message")
		return nil, storageError("get message", err)
	}
	return msg, nil
}

// UserSessions lists the sessions owned by userID, oldest first.
func (s *Service) UserSessions(ctx context.Context, userID domain.UserID) ([]*domain.Session, error) {
	if strings.TrimSpace(string(userID)) == "" {
		return nil, domain.NewValidationError("userId", "user id is required")
	}

	sessions, err := s.sessions.ListByUser(userID, 0)
	if err != nil {
		observability.LoggerFromContext(ctx).Error().
			Err(err).
			Str("user_id", string(userID)).
			Msg("failed to list user sessions")
		return nil, storageError("list user sessions", err)
	}
	return sessions, nil
}

// storageError keeps an existing *domain.StorageError and wraps anything else.
func storageError(op string, err error) error {
	var se *domain.StorageError
	if errors.As(err, &se) {
		return errors.Wrap(err, op)
	}
	return &domain.StorageError{Op: op, Err: err}
}
