// Package push implements push-notification storage and best-effort
// delivery of final task snapshots to client-registered webhooks (spec
// §4.3). Delivery failures are logged, never propagated to protocol
// callers (§7).
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"goa.design/a2a-runtime/a2a"
	"goa.design/a2a-runtime/a2aserver/telemetry"
)

type (
	// ConfigStorage persists PushNotificationConfig values keyed by
	// (taskId, configId) (§4.3).
	ConfigStorage interface {
		Save(ctx context.Context, taskID string, config a2a.PushNotificationConfig) (a2a.PushNotificationConfig, error)
		Get(ctx context.Context, taskID, configID string) (a2a.PushNotificationConfig, error)
		GetAll(ctx context.Context, taskID string) ([]a2a.PushNotificationConfig, error)
		Delete(ctx context.Context, taskID, configID string) error
	}

	// Sender delivers a final task snapshot to a registered config's
	// webhook, best-effort.
	Sender interface {
		Send(ctx context.Context, config a2a.PushNotificationConfig, task *a2a.Task) error
	}

	inMemoryConfigStorage struct {
		mu      sync.RWMutex
		configs map[string]map[string]a2a.PushNotificationConfig
	}

	// HTTPSender is the reference Sender implementation: it POSTs the task
	// snapshot as JSON to config.URL, rate-limited per process and retried
	// with exponential backoff, swallowing failures after retries are
	// exhausted.
	HTTPSender struct {
		client   *http.Client
		limiter  *rate.Limiter
		logger   telemetry.Logger
		maxTries int
	}

	// HTTPSenderOption configures an HTTPSender.
	HTTPSenderOption func(*HTTPSender)
)

// NewInMemoryConfigStorage constructs the reference in-memory
// ConfigStorage.
func NewInMemoryConfigStorage() ConfigStorage {
	return &inMemoryConfigStorage{configs: make(map[string]map[string]a2a.PushNotificationConfig)}
}

func (s *inMemoryConfigStorage) Save(_ context.Context, taskID string, config a2a.PushNotificationConfig) (a2a.PushNotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs[taskID] == nil {
		s.configs[taskID] = make(map[string]a2a.PushNotificationConfig)
	}
	s.configs[taskID][config.ID] = config
	return config, nil
}

func (s *inMemoryConfigStorage) Get(_ context.Context, taskID, configID string) (a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[taskID][configID]
	if !ok {
		return a2a.PushNotificationConfig{}, fmt.Errorf("push config %q for task %q not found", configID, taskID)
	}
	return cfg, nil
}

func (s *inMemoryConfigStorage) GetAll(_ context.Context, taskID string) ([]a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]a2a.PushNotificationConfig, 0, len(s.configs[taskID]))
	for _, cfg := range s.configs[taskID] {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *inMemoryConfigStorage) Delete(_ context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs[taskID], configID)
	return nil
}

// WithHTTPClient overrides the underlying *http.Client used for delivery.
func WithHTTPClient(c *http.Client) HTTPSenderOption {
	return func(s *HTTPSender) { s.client = c }
}

// WithRateLimit bounds the steady-state delivery rate across all configs,
// protecting downstream webhooks from bursts when many tasks complete
// together.
func WithRateLimit(r rate.Limit, burst int) HTTPSenderOption {
	return func(s *HTTPSender) { s.limiter = rate.NewLimiter(r, burst) }
}

// WithMaxRetries bounds the number of delivery attempts before a failure is
// logged and dropped.
func WithMaxRetries(n int) HTTPSenderOption {
	return func(s *HTTPSender) { s.maxTries = n }
}

// WithLogger configures the logger used to report delivery failures.
func WithLogger(l telemetry.Logger) HTTPSenderOption {
	return func(s *HTTPSender) { s.logger = l }
}

// NewHTTPSender constructs the reference best-effort HTTP push sender.
func NewHTTPSender(opts ...HTTPSenderOption) *HTTPSender {
	s := &HTTPSender{
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(50), 50),
		logger:   telemetry.NewNoopLogger(),
		maxTries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers the task snapshot to config.URL. Errors are logged and
// returned to the caller (SessionManager) only for observability; callers
// must never surface them to protocol clients (§4.3, §7).
func (s *HTTPSender) Send(ctx context.Context, config a2a.PushNotificationConfig, task *a2a.Task) error {
	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn(ctx, "push notification rate limiter wait failed", "taskId", task.ID, "configId", config.ID, "error", err)
		return err
	}

	body, err := json.Marshal(task)
	if err != nil {
		s.logger.Error(ctx, "push notification marshal failed", "taskId", task.ID, "configId", config.ID, "error", err)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	var lastErr error
	for attempt := 1; attempt <= s.maxTries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.deliver(ctx, config, body)
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxTries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	s.logger.Warn(ctx, "push notification delivery exhausted retries", "taskId", task.ID, "configId", config.ID, "url", config.URL, "error", lastErr)
	return lastErr
}

func (s *HTTPSender) deliver(ctx context.Context, config a2a.PushNotificationConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+config.Token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push notification delivery failed with status %d", resp.StatusCode)
	}
	return nil
}
