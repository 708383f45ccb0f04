package domain

// Message is one immutable turn in a session timeline (user or assistant).
type Message struct {
	ID        MessageID
	SessionID SessionID
	Role      Role
	Content   string
	Timestamp Timestamp

	// Metadata is reserved and always nil.
	Metadata map[string]any
}

// Session groups an ordered sequence of messages.
// UpdatedAt is set at creation and not refreshed when messages arrive.
type Session struct {
	ID        SessionID
	UserID    *UserID
	Title     string
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// SessionDefaults are applied when a session is created lazily.
type SessionDefaults struct {
	UserID *UserID
	Title  string
}
