// Package notify posts the final report of a run to a callback URL.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/optimization-driver/internal/coordinator"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/config"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/logger"
	"github.com/GoSim-25-26J-441/optimization-driver/pkg/utils"
)

// SecretHeader carries the configured callback secret
const SecretHeader = "X-Optd-Callback-Secret"

// Payload is the JSON body sent to the callback URL
type Payload struct {
	RunID      string    `json:"run_id"`
	Strategy   string    `json:"strategy"`
	Status     string    `json:"status"`
	Best       *float64  `json:"best,omitempty"` // omitted while no sample succeeded
	BestX      []float64 `json:"best_x,omitempty"`
	Iterations int       `json:"iterations"`
	Samples    int       `json:"samples"`
	Errors     int       `json:"errors"`
	Converged  bool      `json:"converged"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Timestamp  int64     `json:"timestamp"` // When notification was sent
}

// NewPayload converts a run result
func NewPayload(res *coordinator.Result) Payload {
	p := Payload{
		RunID:      res.RunID,
		Strategy:   res.Strategy,
		Status:     string(res.Status),
		BestX:      res.BestX,
		Iterations: res.Iterations,
		Samples:    res.Samples,
		Errors:     res.Errors,
		Converged:  res.Converged,
		Reason:     res.Reason,
		ElapsedMs:  res.Elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC().UnixMilli(),
	}
	if !math.IsInf(res.Best, 0) && !math.IsNaN(res.Best) {
		best := res.Best
		p.Best = &best
	}
	if res.Err != nil {
		p.Error = res.Err.Error()
	}
	return p
}

// Notifier sends run completion callbacks
type Notifier struct {
	httpClient *http.Client
	url        string
	secret     string
	maxRetries int
	backoff    utils.BackoffStrategy
	log        *slog.Logger
}

// New creates a notifier from the run file's notify section. It returns nil
// when no URL is configured; a nil *Notifier sends nothing.
func New(cfg config.Notify, log *slog.Logger) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default
	}
	return &Notifier{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		secret:     cfg.Secret,
		maxRetries: cfg.GetMaxRetries(),
		backoff:    utils.NewBackoff("exponential", time.Second, 30*time.Second),
		log:        log,
	}, nil
}

// Notify posts the result, retrying non-2xx answers and transport errors
// with exponential backoff. It gives up when ctx is done.
func (n *Notifier) Notify(ctx context.Context, res *coordinator.Result) error {
	if n == nil || res == nil {
		return nil
	}
	payload := NewPayload(res)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	url := strings.ReplaceAll(n.url, "{run_id}", res.RunID)
	log := n.log.With("callback_url", url, "run_id", res.RunID)

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt)
			log.Debug("retrying notification", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("notification abandoned: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if lastErr = n.send(ctx, url, body); lastErr == nil {
			log.Info("notification sent", "status", payload.Status)
			return nil
		}
		log.Warn("notification attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("notification failed after %d attempt(s): %w", n.maxRetries+1, lastErr)
}

func (n *Notifier) send(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "optd/1.0")
	if n.secret != "" {
		req.Header.Set(SecretHeader, n.secret)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
