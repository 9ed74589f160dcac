// Package gateway wraps an llm.Client with the retry, backoff and
// response-repair policy shared by every pipeline call site.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/apex/log"

	"issue-routing-pipeline/llm"
	"issue-routing-pipeline/metrics"
	"issue-routing-pipeline/parser"
)

const jsonOnlyPrefix = "Return ONLY a single valid JSON object. No markdown, no code fences, no commentary.\n\n"

// Option configures a Gateway.
type Option func(*Gateway)

// WithMaxAttempts sets the transport attempt budget per logical call.
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) { g.maxAttempts = n }
}

// WithRepairBudget sets how many times a malformed response is re-prompted
// with the JSON-only prefix. Malformed output is a prompting failure, so it
// gets a smaller budget than transport retries.
func WithRepairBudget(n int) Option {
	return func(g *Gateway) { g.repairBudget = n }
}

// WithBaseDelay sets the initial backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(g *Gateway) { g.baseDelay = d }
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = fn }
}

// WithRand replaces the jitter source, for tests.
func WithRand(fn func() float64) Option {
	return func(g *Gateway) { g.rand = fn }
}

// Gateway issues one prompt/response exchange per Complete call and returns
// the extracted JSON object. No caching: identical prompts are always re-sent.
type Gateway struct {
	client       llm.Client
	maxAttempts  int
	repairBudget int
	baseDelay    time.Duration
	jitterFrac   float64
	sleep        func(context.Context, time.Duration) error
	rand         func() float64
}

func New(client llm.Client, opts ...Option) *Gateway {
	g := &Gateway{
		client:       client,
		maxAttempts:  5,
		repairBudget: 3,
		baseDelay:    500 * time.Millisecond,
		jitterFrac:   0.3,
		sleep:        sleepCtx,
		rand:         rand.Float64,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete sends prompt and returns the first JSON object in the response.
// Transport failures are retried with exponential backoff up to the attempt
// budget; malformed output triggers a bounded number of stricter re-prompts
// before surfacing as a terminal malformed error.
func (g *Gateway) Complete(ctx context.Context, prompt string, useSearchGrounding bool) (json.RawMessage, error) {
	for repair := 0; ; repair++ {
		p := prompt
		if repair > 0 {
			p = jsonOnlyPrefix + prompt
		}

		text, err := g.completeWithRetry(ctx, p, useSearchGrounding)
		if err != nil {
			return nil, err
		}

		extracted := parser.ExtractJSON(text)
		if isJSONObject(extracted) {
			return json.RawMessage(extracted), nil
		}

		if repair >= g.repairBudget {
			metrics.GatewayCallsTotal.WithLabelValues("malformed").Inc()
			return nil, &llm.ModelError{
				Kind:   llm.ErrMalformed,
				Reason: fmt.Sprintf("no parseable JSON object after %d repair attempts", g.repairBudget),
			}
		}
		log.WithField("attempt", repair+1).Warn("model returned unparseable JSON, re-prompting")
	}
}

func (g *Gateway) completeWithRetry(ctx context.Context, prompt string, useSearchGrounding bool) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		start := time.Now()
		text, err := g.client.Complete(ctx, prompt, useSearchGrounding)
		metrics.GatewayCallDuration.WithLabelValues(groundingLabel(useSearchGrounding)).
			Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.GatewayCallsTotal.WithLabelValues("ok").Inc()
			return text, nil
		}
		if !llm.IsRetryable(err) {
			metrics.GatewayCallsTotal.WithLabelValues(string(llm.KindOf(err))).Inc()
			return "", err
		}

		lastErr = err
		if attempt == g.maxAttempts {
			break
		}

		delay := g.backoff(attempt)
		log.Warnf("model call failed (%v), retrying in %v (attempt %d/%d)", err, delay, attempt, g.maxAttempts)
		metrics.GatewayRetriesTotal.Inc()
		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			return "", sleepErr
		}
	}

	metrics.GatewayCallsTotal.WithLabelValues("exhausted").Inc()
	return "", fmt.Errorf("model retries exhausted after %d attempts: %w", g.maxAttempts, lastErr)
}

// backoff doubles the base delay per attempt and adds up to 30% random jitter.
func (g *Gateway) backoff(attempt int) time.Duration {
	delay := g.baseDelay << uint(attempt-1)
	jitter := time.Duration(g.rand() * g.jitterFrac * float64(delay))
	return delay + jitter
}

func isJSONObject(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed))
}

func groundingLabel(grounded bool) string {
	if grounded {
		return "grounded"
	}
	return "ungrounded"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
