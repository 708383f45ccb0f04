package reply_test

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tia-chat/internal/adapters/responder"
	"github.com/PabloGalante/tia-chat/internal/adapters/storage/memory"
	"github.com/PabloGalante/tia-chat/internal/app/reply"
	"github.com/PabloGalante/tia-chat/internal/domain"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

type echoEngine struct{}

func (echoEngine) Generate(userText string) string { return "re: " + userText }

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Append(domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, &domain.StorageError{Op: "append", Err: errors.New("disk on fire")}
}

func (f *failingStore) ListBySession(domain.SessionID) ([]*domain.Message, error) {
	return nil, nil
}

func (f *failingStore) Get(id domain.MessageID) (*domain.Message, error) {
	return nil, domain.MessageNotFound(id)
}

func (f *failingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitDrained(t *testing.T, s *reply.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestNewSchedulerValidation(t *testing.T) {
	store := memory.NewMessageStore()

	_, err := reply.NewScheduler(nil, store)
	assert.Error(t, err)

	_, err = reply.NewScheduler(echoEngine{}, nil)
	assert.Error(t, err)

	_, err = reply.NewScheduler(echoEngine{}, store, reply.WithDelayRange(time.Second, time.Second))
	assert.Error(t, err)

	_, err = reply.NewScheduler(echoEngine{}, store, reply.WithDelayRange(-time.Second, time.Second))
	assert.Error(t, err)

	_, err = reply.NewScheduler(echoEngine{}, store)
	assert.NoError(t, err)
}

func TestScheduleDoesNotBlockAndDelivers(t *testing.T) {
	store := memory.NewMessageStore()
	s, err := reply.NewScheduler(echoEngine{}, store, reply.WithDelayRange(30*time.Millisecond, 60*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	s.Schedule(context.Background(), "s1", "hello")
	assert.Less(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 1, s.Pending())

	msgs, err := store.ListBySession("s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	waitDrained(t, s)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, s.Pending())

	msgs, err = store.ListBySession("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "re: hello", msgs[0].Content)
	assert.Equal(t, domain.SessionID("s1"), msgs[0].SessionID)
}

func TestScheduleDefaultDelayWithinThreeSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the real 1-3s delay window")
	}
	store := memory.NewMessageStore()
	eng := responder.Default()
	s, err := reply.NewScheduler(eng, store)
	require.NoError(t, err)

	start := time.Now()
	s.Schedule(context.Background(), "s1", "hello")

	require.Eventually(t, func() bool {
		msgs, err := store.ListBySession("s1")
		return err == nil && len(msgs) == 1
	}, 3500*time.Millisecond, 20*time.Millisecond)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, reply.DefaultMinDelay)

	msgs, err := store.ListBySession("s1")
	require.NoError(t, err)
	assert.Equal(t, eng.Generate("hello"), msgs[0].Content)
}

func TestScheduleSurvivesCancelledContext(t *testing.T) {
	store := memory.NewMessageStore()
	s, err := reply.NewScheduler(echoEngine{}, store, reply.WithDelayRange(5*time.Millisecond, 10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Schedule(ctx, "s1", "bye")
	cancel()

	waitDrained(t, s)
	msgs, err := store.ListBySession("s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRepliesMayLandOutOfPostingOrder(t *testing.T) {
	store := memory.NewMessageStore()
	delays := map[string]time.Duration{
		"first":  80 * time.Millisecond,
		"second": 5 * time.Millisecond,
	}
	s, err := reply.NewScheduler(echoEngine{}, store, reply.WithDelayFunc(func(text string) time.Duration {
		return delays[text]
	}))
	require.NoError(t, err)

	s.Schedule(context.Background(), "s1", "first")
	s.Schedule(context.Background(), "s1", "second")
	waitDrained(t, s)

	msgs, err := store.ListBySession("s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "re: second", msgs[0].Content)
	assert.Equal(t, "re: first", msgs[1].Content)
}

func TestManyRepliesSetIsComplete(t *testing.T) {
	store := memory.NewMessageStore()
	s, err := reply.NewScheduler(echoEngine{}, store, reply.WithDelayRange(time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)

	inputs := []string{"a", "b", "c", "d", "e", "f"}
	for _, in := range inputs {
		s.Schedule(context.Background(), "s1", in)
	}
	waitDrained(t, s)

	msgs, err := store.ListBySession("s1")
	require.NoError(t, err)

	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"re: a", "re: b", "re: c", "re: d", "re: e", "re: f"}, got)
}

func TestAppendFailureIsSwallowed(t *testing.T) {
	store := &failingStore{}
	s, err := reply.NewScheduler(echoEngine{}, store, reply.WithDelayFunc(func(string) time.Duration { return 0 }))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.Schedule(context.Background(), "s1", "x")
	})
	waitDrained(t, s)
	assert.Equal(t, 1, store.count())
	assert.Equal(t, 0, s.Pending())
}

func TestWaitHonoursContext(t *testing.T) {
	store := memory.NewMessageStore()
	s, err := reply.NewScheduler(echoEngine{}, store, reply.WithDelayFunc(func(string) time.Duration { return 200 * time.Millisecond }))
	require.NoError(t, err)

	s.Schedule(context.Background(), "s1", "slow")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = s.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The reply is still delivered afterwards.
	waitDrained(t, s)
	msgs, err := store.ListBySession("s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestScheduleLogsMatchedRule(t *testing.T) {
	prev := observability.Logger()
	t.Cleanup(func() { observability.SetLogger(prev) })
	var buf bytes.Buffer
	observability.SetLogger(zerolog.New(&buf))

	messages := memory.NewMessageStore()
	sched, err := reply.NewScheduler(responder.Default(), messages,
		reply.WithDelayFunc(func(string) time.Duration { return time.Millisecond }))
	require.NoError(t, err)

	sched.Schedule(context.Background(), "s1", "Tell me about investment plans")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Wait(ctx))

	assert.Contains(t, buf.String(), `"rule":"investment"`)
	assert.Contains(t, buf.String(), "reply delivered")
}
