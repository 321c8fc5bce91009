// Package aiclient is the AI client the refinement stages talk to.
//
// [Client.ChatCompletion] sends a message list to an llm.Provider and
// returns the response with its JSON payload extracted. A response that is
// not valid JSON is not an error: ParsedContent is nil and the caller applies
// its own fallback. Transport failures, timeouts and an open circuit breaker
// are reported as *[Error].
//
// [Decode] builds on ChatCompletion and returns a [Result] so callers can
// branch on the outcome without treating AI failures as exceptional.
package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/oratio/internal/observe"
	"github.com/MrWong99/oratio/internal/resilience"
	"github.com/MrWong99/oratio/pkg/provider/llm"
)

const (
	// DefaultTimeout bounds a single completion call.
	DefaultTimeout = 30 * time.Second

	defaultMaxTokens = 1500
)

// Response is the outcome of a successful completion call.
type Response struct {
	// ParsedContent is the JSON object found in the reply, or nil when the
	// reply held no parseable JSON.
	ParsedContent json.RawMessage

	// Raw is the unmodified reply text.
	Raw string

	Usage llm.Usage
}

// Option configures a [Client].
type Option func(*Client)

// WithTimeout sets the per-call deadline. d <= 0 keeps [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithBreaker guards every call with cb. An open breaker fails calls fast
// with [KindUnavailable].
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithMetrics records call counts, latency and token usage on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client sends chat completions to an llm.Provider. It is safe for
// concurrent use.
type Client struct {
	provider  llm.Provider
	timeout   time.Duration
	maxTokens int
	breaker   *resilience.CircuitBreaker
	metrics   *observe.Metrics
}

// New returns a Client over provider.
func New(provider llm.Provider, opts ...Option) *Client {
	c := &Client{
		provider:  provider,
		timeout:   DefaultTimeout,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

// ChatCompletion sends messages and extracts the JSON object of the reply.
// A leading system message becomes the request's system prompt.
func (c *Client) ChatCompletion(ctx context.Context, messages []llm.Message, temperature float64) (Response, error) {
	return c.complete(ctx, "chat", messages, temperature)
}

func (c *Client) complete(ctx context.Context, purpose string, messages []llm.Message, temperature float64) (Response, error) {
	if len(messages) == 0 {
		return Response{}, &Error{Kind: KindInvalidRequest, Err: errors.New("no messages")}
	}

	req := llm.CompletionRequest{
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
		JSONMode:    true,
	}
	if messages[0].Role == llm.RoleSystem {
		req.SystemPrompt = messages[0].Content
		messages = messages[1:]
	}
	req.Messages = messages

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = c.provider.Complete(ctx, req)
		if err == nil && resp == nil {
			err = errors.New("empty response")
		}
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	elapsed := time.Since(start)

	if err != nil {
		aerr := classify(ctx, err)
		c.record(ctx, purpose, aerr.Kind.String(), elapsed, llm.Usage{})
		return Response{}, aerr
	}

	out := Response{
		Raw:           resp.Content,
		Usage:         resp.Usage,
		ParsedContent: ExtractJSON(resp.Content),
	}
	status := "ok"
	if out.ParsedContent == nil {
		status = "malformed"
	}
	c.record(ctx, purpose, status, elapsed, resp.Usage)
	return out, nil
}

func (c *Client) record(ctx context.Context, purpose, status string, d time.Duration, u llm.Usage) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordAIRequest(ctx, purpose, status, d)
	c.metrics.RecordTokens(ctx, u.PromptTokens, u.CompletionTokens)
}

func classify(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrAllFailed):
		return &Error{Kind: KindUnavailable, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}

// ExtractJSON returns the JSON object or array held in s, tolerating
// markdown code fences and prose around it. It returns nil when none parses.
func ExtractJSON(s string) json.RawMessage {
	s = stripMarkdown(s)
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) && (s[0] == '{' || s[0] == '[') {
		return json.RawMessage(s)
	}
	// Fall back to the outermost object embedded in prose.
	i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}')
	if i < 0 || j <= i {
		return nil
	}
	if inner := s[i : j+1]; json.Valid([]byte(inner)) {
		return json.RawMessage(inner)
	}
	return nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```)
// around model output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// Decode sends messages tagged with purpose and unmarshals the JSON reply
// into T. Every failure, including a reply that is not valid JSON for T, is
// reported through the returned [Result].
func Decode[T any](ctx context.Context, c *Client, purpose string, messages []llm.Message, temperature float64) Result[T] {
	resp, err := c.complete(ctx, purpose, messages, temperature)
	if err != nil {
		return Fail[T](err)
	}
	if resp.ParsedContent == nil {
		return Fail[T](&Error{Kind: KindMalformed, Err: fmt.Errorf("%s: reply is not JSON", purpose)})
	}
	var v T
	if err := json.Unmarshal(resp.ParsedContent, &v); err != nil {
		return Fail[T](&Error{Kind: KindMalformed, Err: fmt.Errorf("%s: decode reply: %w", purpose, err)})
	}
	return OkWithUsage(v, resp.Usage)
}
