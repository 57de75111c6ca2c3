// Package notify delivers operational alerts (budget thresholds crossed,
// breakers opening and recovering).
//
// Every alert is logged. When a webhook URL is configured the event is
// additionally POSTed as JSON, with an optional HMAC-SHA256 signature so
// the receiver can verify origin. Delivery runs on its own goroutine:
// publishers (the ledger and the breaker group fire alerts while holding
// their locks) must never wait on the network.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/config"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/contracts"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

var _ contracts.AlertSink = (*Service)(nil)

const deliveryAttempts = 3

// Service implements contracts.AlertSink over a single webhook channel.
type Service struct {
	url     string
	secret  string
	client  *http.Client
	backoff time.Duration // settle time between delivery attempts, scaled by attempt
}

// NewService builds the alert sink. An empty webhook URL is valid and
// leaves the service in log-only mode.
func NewService(cfg config.AlertsConfig) *Service {
	s := &Service{
		url:    cfg.WebhookURL,
		secret: cfg.WebhookSecret,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		backoff: 2 * time.Second,
	}
	if s.url == "" {
		log.Info().Msg("🔕 No alert webhook configured, alerts are log-only")
	} else {
		log.Info().Str("url", s.url).Bool("signed", s.secret != "").Msg("📡 Alert webhook configured")
	}
	return s
}

// Publish logs the event and, when a webhook is configured, hands it to a
// delivery goroutine. It never blocks on network I/O.
func (s *Service) Publish(ctx context.Context, event models.AlertEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	evt := log.Info()
	if event.Kind == models.AlertBudgetExceeded || event.Kind == models.AlertBreakerOpened {
		evt = log.Warn()
	}
	evt.Str("kind", string(event.Kind)).
		Str("provider", event.Provider).
		Float64("value", event.Value).
		Float64("threshold", event.Threshold).
		Msg("Alert: " + event.Message)

	if s.url == "" {
		return
	}
	go s.deliver(event)
}

// deliver POSTs the event with retries. The request is rebuilt per attempt
// because a consumed body cannot be resent.
func (s *Service) deliver(event models.AlertEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal alert event")
		return
	}

	var lastErr error
	for attempt := 0; attempt < deliveryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.backoff)
		}
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to build alert webhook request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "research-fetch/1.0")
		req.Header.Set("X-Research-Event", string(event.Kind))
		if s.secret != "" {
			mac := hmac.New(sha256.New, []byte(s.secret))
			mac.Write(body)
			req.Header.Set("X-Research-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}
		lastErr = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, s.url)
	}

	log.Warn().
		Err(lastErr).
		Str("kind", string(event.Kind)).
		Int("attempts", deliveryAttempts).
		Msg("Alert webhook delivery failed")
}
