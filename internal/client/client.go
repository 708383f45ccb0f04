// Package client talks to the chat HTTP API and implements the polling
// contract: after a post, re-read messages until the assistant answers or
// the give-up timeout fires.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultPollInterval = 1 * time.Second
	DefaultPollTimeout  = 10 * time.Second
)

// ErrReplyTimeout means no assistant reply appeared before the poll timeout.
var ErrReplyTimeout = errors.New("timed out waiting for assistant reply")

type Session struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
	Details []FieldError
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("api error %d: %s (%s: %s)", e.Status, e.Message, e.Details[0].Field, e.Details[0].Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPolling overrides the poll interval and give-up timeout.
func WithPolling(interval, timeout time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if timeout > 0 {
			c.pollTimeout = timeout
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		pollInterval: DefaultPollInterval,
		pollTimeout:  DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) DefaultSession(ctx context.Context) (*Session, error) {
	var out Session
	if err := c.do(ctx, http.MethodGet, "/api/chat/default", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var out []Message
	if err := c.do(ctx, http.MethodGet, messagesPath(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PostMessage(ctx context.Context, sessionID, content string) (*Message, error) {
	body := map[string]string{"content": content, "role": "user"}
	var out Message
	if err := c.do(ctx, http.MethodPost, messagesPath(sessionID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AwaitReply polls the session until an assistant message positioned after
// sent appears. It only re-reads; it never re-posts.
func (c *Client) AwaitReply(ctx context.Context, sessionID string, sent *Message) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrReplyTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}

		msgs, err := c.ListMessages(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return nil, err
		}
		if m := replyAfter(msgs, sent.ID); m != nil {
			return m, nil
		}
	}
}

// Send posts content and waits for the assistant's answer.
func (c *Client) Send(ctx context.Context, sessionID, content string) (*Message, *Message, error) {
	sent, err := c.PostMessage(ctx, sessionID, content)
	if err != nil {
		return nil, nil, err
	}
	answer, err := c.AwaitReply(ctx, sessionID, sent)
	if err != nil {
		return sent, nil, err
	}
	return sent, answer, nil
}

// replyAfter returns the first assistant message after the message with id sentID.
func replyAfter(msgs []Message, sentID string) *Message {
	seen := false
	for i := range msgs {
		if msgs[i].ID == sentID {
			seen = true
			continue
		}
		if seen && msgs[i].Role == "assistant" {
			m := msgs[i]
			return &m
		}
	}
	return nil
}

func messagesPath(sessionID string) string {
	return "/api/chat/" + url.PathEscape(sessionID) + "/messages"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string       `json:"error"`
			Details []FieldError `json:"details"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}
