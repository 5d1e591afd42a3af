package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BreatheLabs/stillpoint/pkg/clock"
	"github.com/BreatheLabs/stillpoint/pkg/infra/httpx"
	"github.com/BreatheLabs/stillpoint/pkg/types"
)

var ErrDeliveryFailed = errors.New("notification endpoint call failed")

const (
	defaultSinkTimeout  = 5 * time.Second
	defaultMaxFailures  = 5
	defaultResetTimeout = 30 * time.Second
)

type HTTPSinkConfig struct {
	Endpoint string
	AuthKey  string
	Timeout  time.Duration
}

// HTTPSink posts nudges to the device platform's notification endpoint. Each
// dispatch carries a fresh nudge id so the platform can deduplicate.
type HTTPSink struct {
	cfg     HTTPSinkConfig
	client  httpx.Client
	breaker httpx.CircuitBreaker
	clk     clock.Clock
	logger  *logrus.Logger
}

var _ Sink = (*HTTPSink)(nil)

func NewHTTPSink(
	cfg HTTPSinkConfig,
	client httpx.Client,
	breaker httpx.CircuitBreaker,
	clk clock.Clock,
	logger *logrus.Logger,
) *HTTPSink {
	if client == nil {
		client = &http.Client{}
	}
	if breaker == nil {
		breaker = httpx.NewCircuitBreaker("notification-sink", defaultMaxFailures, defaultResetTimeout)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSinkTimeout
	}
	return &HTTPSink{
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		clk:     clk,
		logger:  logger,
	}
}

// Send posts the nudge once. Failures are returned, never retried; the caller
// has already stamped the throttle.
func (s *HTTPSink) Send(ctx context.Context, sessionID, message string) error {
	err := s.breaker.Execute(func() error {
		return s.post(ctx, sessionID, message)
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).WithField("session_id", sessionID).Error("nudge delivery failed")
		}
		return err
	}
	return nil
}

func (s *HTTPSink) post(ctx context.Context, sessionID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	payload := types.NudgePayload{
		SessionID: sessionID,
		Message:   message,
		NudgeID:   uuid.NewString(),
		SentAt:    s.clk.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal nudge payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create nudge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AuthKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
