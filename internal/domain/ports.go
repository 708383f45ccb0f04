package domain

import "context"

// SessionRegistry maps session ids to session metadata.
type SessionRegistry interface {
	// GetOrCreate returns the session with the given id, creating it from
	// defaults if absent. Concurrent callers for one id observe one session.
	GetOrCreate(id SessionID, defaults SessionDefaults) (*Session, error)
	// Get never creates; it returns a *NotFoundError when the id is unknown.
	Get(id SessionID) (*Session, error)
	// ListByUser returns the sessions owned by userID, oldest first, at most
	// limit of them when limit > 0. Unknown users yield an empty slice.
	ListByUser(userID UserID, limit int) ([]*Session, error)
}

// MessageStore is an append-only, per-session message log.
type MessageStore interface {
	// Append assigns ID and Timestamp and returns the stored record.
	Append(msg Message) (*Message, error)
	// ListBySession returns messages ordered by timestamp, ties by insertion.
	ListBySession(sessionID SessionID) ([]*Message, error)
	// Get returns one message by id or a *NotFoundError.
	Get(id MessageID) (*Message, error)
}

// ResponseEngine turns user text into assistant text. It is total.
type ResponseEngine interface {
	Generate(userText string) string
}

// RuleMatcher is implemented by engines that can name the rule behind a
// reply; "" means the fallback answered.
type RuleMatcher interface {
	Match(userText string) string
}

// ReplyScheduler commits one assistant reply for a user turn, later.
// Schedule must not block on the reply.
type ReplyScheduler interface {
	Schedule(ctx context.Context, sessionID SessionID, userText string)
}
