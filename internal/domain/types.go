package domain

import "time"

type SessionID string
type UserID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known message authors.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Timestamp = time.Time
