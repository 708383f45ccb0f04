package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tia-chat/internal/client"
	"github.com/PabloGalante/tia-chat/internal/config"
	"github.com/PabloGalante/tia-chat/internal/observability"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ReplyMinDelayMS = 5
	cfg.ReplyMaxDelayMS = 10
	cfg.ShutdownTimeoutMS = 2000
	return cfg
}

func TestBuildAppServesDefaultSession(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultSessionID = "lobby"
	cfg.DefaultSessionTitle = "Lobby"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	assert.Positive(t, a.rules)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chat/default", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"lobby"`)
	assert.Contains(t, rr.Body.String(), `"title":"Lobby"`)
}

func TestBuildAppRejectsMissingRulesFile(t *testing.T) {
	cfg := testConfig()
	cfg.RulesFile = "does-not-exist.yaml"

	_, err := buildApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunChatPrintsReplies(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig())
	require.NoError(t, err)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	c := client.New(ts.URL, client.WithPolling(5*time.Millisecond, 2*time.Second))
	in := strings.NewReader("I need a loan\n\nthanks\n/quit\nignored\n")
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), c, "", in, &out, false))

	got := out.String()
	assert.Contains(t, got, "Tata Capital Chat (default-session)")
	assert.Contains(t, got, "you: I need a loan")
	assert.Contains(t, got, "you: thanks")
	assert.NotContains(t, got, "ignored")
	assert.Equal(t, 2, strings.Count(got, "tia: "))
	assert.Equal(t, 2, strings.Count(got, "(replied in "))
}

func TestRunChatUnknownSessionStartsEmpty(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig())
	require.NoError(t, err)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	c := client.New(ts.URL)
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), c, "fresh", strings.NewReader(""), &out, false))
	assert.Equal(t, "session fresh\n", out.String())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestFreshAppListsDefaultSessionMessages(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig())
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chat/default-session/messages", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chat/other/messages", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildAppAssignsDefaultOwner(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultUserID = "demo-user"

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/demo-user/sessions", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"default-session"`)
	assert.Contains(t, rr.Body.String(), `"userId":"demo-user"`)
}

func TestRunChatTimeoutKeepsSentLine(t *testing.T) {
	cfg := testConfig()
	cfg.ReplyMinDelayMS = 5000
	cfg.ReplyMaxDelayMS = 6000
	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	c := client.New(ts.URL, client.WithPolling(5*time.Millisecond, 50*time.Millisecond))
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), c, "", strings.NewReader("hello there\n"), &out, false))

	got := out.String()
	assert.Contains(t, got, "you: hello there")
	assert.Contains(t, got, "(no reply yet, try again later)")
	assert.NotContains(t, got, "tia: ")
}

func TestRunDrainsScheduledReplies(t *testing.T) {
	cfg := testConfig()
	cfg.ReplyMinDelayMS = 50
	cfg.ReplyMaxDelayMS = 60
	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, ln, 2*time.Second) }()

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat/default-session/messages",
		strings.NewReader(`{"content":"hello"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, a.scheduler.Pending())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, 0, a.scheduler.Pending())

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chat/default-session/messages", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, strings.Count(rr.Body.String(), `"id":`))
}

// lockedBuffer lets the test read logs while a pending reply timer may still write.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunLogsDroppedReplies(t *testing.T) {
	prev := observability.Logger()
	t.Cleanup(func() { observability.SetLogger(prev) })
	buf := &lockedBuffer{}
	observability.SetLogger(zerolog.New(buf))

	cfg := testConfig()
	cfg.ReplyMinDelayMS = 5000
	cfg.ReplyMaxDelayMS = 6000
	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/chat/default-session/messages",
		strings.NewReader(`{"content":"hello"}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.run(ctx, ln, 20*time.Millisecond))

	assert.Equal(t, 1, a.scheduler.Pending())
	assert.Contains(t, buf.String(), "dropping scheduled replies")
}
