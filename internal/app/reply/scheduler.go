// Package reply delays and then commits the assistant's answer to a user turn.
package reply

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/PabloGalante/tia-chat/internal/domain"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

const (
	DefaultMinDelay = 1000 * time.Millisecond
	DefaultMaxDelay = 3000 * time.Millisecond
)

// DelayFunc picks the latency for one reply.
type DelayFunc func(userText string) time.Duration

// Scheduler implements domain.ReplyScheduler with one timer per reply.
// Scheduled replies cannot be cancelled.
type Scheduler struct {
	engine   domain.ResponseEngine
	messages domain.MessageStore

	minDelay time.Duration
	maxDelay time.Duration
	delay    DelayFunc

	wg      sync.WaitGroup
	pending atomic.Int64
}

type Option func(*Scheduler)

// WithDelayRange sets the uniform jitter window [min, max).
func WithDelayRange(min, max time.Duration) Option {
	return func(s *Scheduler) {
		s.minDelay = min
		s.maxDelay = max
	}
}

// WithDelayFunc replaces the random jitter entirely.
func WithDelayFunc(fn DelayFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.delay = fn
		}
	}
}

func NewScheduler(engine domain.ResponseEngine, messages domain.MessageStore, opts ...Option) (*Scheduler, error) {
	if engine == nil {
		return nil, errors.New("reply: response engine is required")
	}
	if messages == nil {
		return nil, errors.New("reply: message store is required")
	}

	s := &Scheduler{
		engine:   engine,
		messages: messages,
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.delay == nil {
		if s.minDelay < 0 || s.maxDelay <= s.minDelay {
			return nil, errors.Errorf("reply: invalid delay range [%s, %s)", s.minDelay, s.maxDelay)
		}
		s.delay = s.jitter
	}
	return s, nil
}

// jitter returns a delay uniformly distributed in [minDelay, maxDelay).
func (s *Scheduler) jitter(string) time.Duration {
	return s.minDelay + rand.N(s.maxDelay-s.minDelay)
}

// Schedule returns immediately. After the delay the engine output for
// userText is appended as an assistant message. ctx only contributes log
// fields; its cancellation does not stop delivery.
func (s *Scheduler) Schedule(ctx context.Context, sessionID domain.SessionID, userText string) {
	d := s.delay(userText)
	if d < 0 {
		d = 0
	}

	log := observability.LoggerFromContext(ctx).With().
		Str("session_id", string(sessionID)).
		Int64("delay_ms", d.Milliseconds()).
		Logger()
	if m, ok := s.engine.(domain.RuleMatcher); ok {
		log = log.With().Str("rule", m.Match(userText)).Logger()
	}

	s.wg.Add(1)
	s.pending.Add(1)
	log.Debug().Msg("reply scheduled")

	time.AfterFunc(d, func() {
		defer s.wg.Done()
		defer s.pending.Add(-1)

		content := s.engine.Generate(userText)
		msg, err := s.messages.Append(domain.Message{
			SessionID: sessionID,
			Role:      domain.RoleAssistant,
			Content:   content,
		})
		if err != nil {
			// Nobody is left to report to; the poller's timeout absorbs this.
			log.Error().Err(err).Msg("failed to append assistant reply")
			return
		}
		log.Info().Str("message_id", string(msg.ID)).Msg("reply delivered")
	})
}

// Pending reports replies that are scheduled but not yet delivered.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}

// Wait blocks until every scheduled reply has been delivered or ctx is done.
// It never cancels a reply.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%d replies still pending", s.Pending())
	}
}
