package notify_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ai-Whisperers/LangAi-sub002/internal/config"
	"github.com/Ai-Whisperers/LangAi-sub002/internal/notify"
	"github.com/Ai-Whisperers/LangAi-sub002/pkg/models"
)

type capturedRequest struct {
	event     string
	signature string
	body      []byte
}

func TestPublishDeliversSignedWebhook(t *testing.T) {
	received := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- capturedRequest{
			event:     r.Header.Get("X-Research-Event"),
			signature: r.Header.Get("X-Research-Signature"),
			body:      body,
		}
	}))
	defer srv.Close()

	svc := notify.NewService(config.AlertsConfig{
		WebhookURL:    srv.URL,
		WebhookSecret: "hush",
	})

	svc.Publish(context.Background(), models.AlertEvent{
		Kind:      models.AlertBreakerOpened,
		Provider:  "brave",
		Message:   "breaker opened after consecutive failures",
		Value:     3,
		Threshold: 3,
	})

	var got capturedRequest
	select {
	case got = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never called")
	}

	if got.event != string(models.AlertBreakerOpened) {
		t.Errorf("X-Research-Event = %q, want %q", got.event, models.AlertBreakerOpened)
	}

	mac := hmac.New(sha256.New, []byte("hush"))
	mac.Write(got.body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if got.signature != want {
		t.Errorf("X-Research-Signature = %q, want %q", got.signature, want)
	}

	var event models.AlertEvent
	if err := json.Unmarshal(got.body, &event); err != nil {
		t.Fatalf("decoding webhook body: %v", err)
	}
	if event.Kind != models.AlertBreakerOpened || event.Provider != "brave" {
		t.Errorf("delivered event = %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp = zero, want filled in at publish time")
	}
}

func TestPublishOmitsSignatureWithoutSecret(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-Research-Signature")
	}))
	defer srv.Close()

	svc := notify.NewService(config.AlertsConfig{WebhookURL: srv.URL})
	svc.Publish(context.Background(), models.AlertEvent{Kind: models.AlertBudgetWarning})

	select {
	case sig := <-received:
		if sig != "" {
			t.Errorf("X-Research-Signature = %q, want empty", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never called")
	}
}

func TestDeliveryRetriesUntilSuccess(t *testing.T) {
	hits := make(chan int, 3)
	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		hits <- attempt
		if attempt == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	svc := notify.NewService(config.AlertsConfig{WebhookURL: srv.URL})
	svc.SetBackoff(5 * time.Millisecond)

	svc.Publish(context.Background(), models.AlertEvent{Kind: models.AlertBudgetExceeded})

	deadline := time.After(2 * time.Second)
	for want := 1; want <= 2; want++ {
		select {
		case got := <-hits:
			if got != want {
				t.Fatalf("attempt = %d, want %d", got, want)
			}
		case <-deadline:
			t.Fatalf("delivery stopped after %d attempts, want a retry", want-1)
		}
	}
}

func TestPublishLogOnlyWithoutURL(t *testing.T) {
	svc := notify.NewService(config.AlertsConfig{})
	// Must not panic or block.
	svc.Publish(context.Background(), models.AlertEvent{
		Kind:    models.AlertBudgetWarning,
		Message: "spend passed the warn threshold",
	})
}
