package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/tia-chat/internal/domain"
)

// MessageStore is an in-memory, append-only implementation of domain.MessageStore.
// It is NOT persistent; messages live for the lifetime of the process.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.SessionID][]domain.Message
	byID     map[domain.MessageID]domain.Message
	now      func() time.Time
	newID    func() string
}

type MessageStoreOption func(*MessageStore)

// WithClock overrides the clock used to stamp appended messages.
func WithClock(now func() time.Time) MessageStoreOption {
	return func(s *MessageStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMessageStore(opts ...MessageStoreOption) *MessageStore {
	s := &MessageStore{
		messages: make(map[domain.SessionID][]domain.Message),
		byID:     make(map[domain.MessageID]domain.Message),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MessageStore) Append(msg domain.Message) (*domain.Message, error) {
	if !msg.Role.Valid() {
		return nil, domain.NewValidationError("role", "unknown role "+string(msg.Role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = domain.MessageID(s.newID())
	msg.Timestamp = s.now()
	msg.Metadata = nil

	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	s.byID[msg.ID] = msg

	out := msg
	return &out, nil
}

func (s *MessageStore) ListBySession(sessionID domain.SessionID) ([]*domain.Message, error) {
	s.mu.RLock()
	msgs := s.messages[sessionID]
	out := make([]*domain.Message, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		out = append(out, &m)
	}
	s.mu.RUnlock()

	// Insertion order is kept for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *MessageStore) Get(id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	if !ok {
		return nil, domain.MessageNotFound(id)
	}
	return &msg, nil
}
