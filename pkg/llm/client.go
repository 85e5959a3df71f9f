package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dmvolsky/persona-telegram-bot/pkg/config"
	"github.com/dmvolsky/persona-telegram-bot/pkg/domain"
	"github.com/dmvolsky/persona-telegram-bot/pkg/logger"
)

const maxErrorBodyBytes = 2048

// Client talks to an OpenAI-compatible chat-completions endpoint. The
// endpoint, credentials and retry budget come from the config snapshot
// passed to each Send, so a reload takes effect on the next call.
type Client struct {
	hc         *http.Client
	newBackOff func() backoff.BackOff
}

func NewClient() *Client {
	return &Client{
		hc:         &http.Client{},
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2
	// no jitter: delays must be monotonically non-decreasing
	b.RandomizationFactor = 0
	return b
}

// Send issues the request with a per-attempt timeout, retrying transient
// failures up to cfg.MaxRetries additional attempts with the same payload.
// A failed call returns a classified *domain.LLMError.
func (c *Client) Send(ctx context.Context, cfg config.LLMAPI, payload domain.QueryPayload) (string, error) {
	body, err := json.Marshal(buildRequest(cfg.Model, payload))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	state := newAttempt(cfg.MaxRetries)
	wait := c.newBackOff()

	for {
		reply, llmErr := c.attempt(ctx, cfg, body)
		if llmErr == nil {
			return reply, nil
		}

		var out outcome
		state, out = state.next(llmErr)
		if out == outcomeGiveUp {
			return "", state.lastErr
		}

		slog.WarnContext(ctx, "Retrying model call",
			"kind", llmErr.Kind, "failures", state.failures, logger.Err(llmErr))

		select {
		case <-time.After(wait.NextBackOff()):
		case <-ctx.Done():
			return "", state.lastErr
		}
	}
}

func (c *Client) attempt(ctx context.Context, cfg config.LLMAPI, body []byte) (string, *domain.LLMError) {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", &domain.LLMError{Kind: domain.LLMNetworkError, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.Key)

	resp, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domain.LLMError{Kind: domain.LLMTimeout, Detail: fmt.Sprintf("no response within %s", cfg.Timeout())}
		}
		return "", &domain.LLMError{Kind: domain.LLMNetworkError, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		kind := domain.LLMServerError
		if resp.StatusCode == http.StatusTooManyRequests {
			kind = domain.LLMRateLimited
		}
		return "", &domain.LLMError{Kind: kind, StatusCode: resp.StatusCode, Detail: string(detail)}
	}

	var out chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.LLMError{Kind: domain.LLMMalformedResponse, Detail: err.Error()}
	}

	reply, ok := extractReply(&out)
	if !ok {
		return "", &domain.LLMError{Kind: domain.LLMMalformedResponse, Detail: "response has no choices with content"}
	}
	return reply, nil
}
