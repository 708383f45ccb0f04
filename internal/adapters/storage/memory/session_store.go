package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/PabloGalante/tia-chat/internal/domain"
)

// SessionStore is an in-memory domain.SessionRegistry. Sessions are never evicted.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]domain.Session
	now      func() time.Time
}

type SessionStoreOption func(*SessionStore)

// WithSessionClock overrides the clock used for CreatedAt/UpdatedAt.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[domain.SessionID]domain.Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) GetOrCreate(id domain.SessionID, defaults domain.SessionDefaults) (*domain.Session, error) {
	if sess, ok := s.lookup(id); ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have won the race between the read and write lock.
	if sess, ok := s.sessions[id]; ok {
		return &sess, nil
	}

	now := s.now()
	sess := domain.Session{
		ID:        id,
		Title:     defaults.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if defaults.UserID != nil {
		uid := *defaults.UserID
		sess.UserID = &uid
	}
	s.sessions[id] = sess

	return &sess, nil
}

func (s *SessionStore) Get(id domain.SessionID) (*domain.Session, error) {
	sess, ok := s.lookup(id)
	if !ok {
		return nil, domain.SessionNotFound(id)
	}
	return sess, nil
}

// ListByUser returns copies of the sessions owned by userID ordered by
// creation time. Sessions without an owner are never listed.
func (s *SessionStore) ListByUser(userID domain.UserID, limit int) ([]*domain.Session, error) {
	s.mu.RLock()
	out := make([]*domain.Session, 0)
	for _, sess := range s.sessions {
		if sess.UserID == nil || *sess.UserID != userID {
			continue
		}
		c := sess
		out = append(out, &c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SessionStore) lookup(id domain.SessionID) (*domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return &sess, true
}
