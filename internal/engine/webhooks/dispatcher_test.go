package webhooks

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nagomirachel/flagsmith/internal/platform/config"
	"github.com/nagomirachel/flagsmith/internal/platform/database"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
)

func testConfig() config.WebhooksConfig {
	return config.WebhooksConfig{
		WorkerCount:     4,
		MaxAttempts:     3,
		BackoffBase:     10 * time.Millisecond,
		RequestTimeout:  2 * time.Second,
		DispatchTimeout: 5 * time.Second,
	}
}

func setupDispatcherTest(t *testing.T) (*sql.DB, *repositories.WebhookRepository, *repositories.DeliveryRepository, *models.Environment) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	org := &models.Organisation{Name: "Test Org"}
	if err := repositories.NewOrganisationRepository(db).Create(org); err != nil {
		t.Fatalf("Failed to create organisation: %v", err)
	}
	project := &models.Project{OrganisationID: org.ID, Name: "Test Project"}
	if err := repositories.NewProjectRepository(db).Create(project); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	env := &models.Environment{ProjectID: project.ID, Name: "Test Environment"}
	if err := repositories.NewEnvironmentRepository(db).Create(env); err != nil {
		t.Fatalf("Failed to create environment: %v", err)
	}

	return db, repositories.NewWebhookRepository(db), repositories.NewDeliveryRepository(db), env
}

func registerWebhook(t *testing.T, repo *repositories.WebhookRepository, envID, url, secret string, enabled bool) *models.Webhook {
	t.Helper()
	w := &models.Webhook{EnvironmentID: envID, URL: url, Secret: secret, Enabled: enabled}
	if err := repo.Create(w); err != nil {
		t.Fatalf("Failed to register webhook: %v", err)
	}
	return w
}

func deliveriesFor(t *testing.T, repo *repositories.DeliveryRepository, envID, webhookID string) []*models.Delivery {
	t.Helper()
	deliveries, err := repo.ListByWebhook(envID, webhookID, 50)
	if err != nil {
		t.Fatalf("Failed to list deliveries: %v", err)
	}
	return deliveries
}

func TestDispatcher_DeliversToEnabledWebhooks(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	type received struct {
		event     string
		signature string
		body      []byte
	}
	got := make(chan received, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			event:     r.Header.Get("X-Flagsmith-Event"),
			signature: r.Header.Get("X-Flagsmith-Signature"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var disabledHits int32
	disabledServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&disabledHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer disabledServer.Close()

	hook := registerWebhook(t, webhookRepo, env.ID, server.URL, "topsecret", true)
	disabled := registerWebhook(t, webhookRepo, env.ID, disabledServer.URL, "", false)

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Dispatch(env.ID, "FLAG_UPDATED", map[string]interface{}{"feature": "demo_flag"})
	d.Stop()

	select {
	case r := <-got:
		if r.event != "FLAG_UPDATED" {
			t.Errorf("Expected event header FLAG_UPDATED, got %s", r.event)
		}
		want := "sha256=" + Sign("topsecret", r.body)
		if r.signature != want {
			t.Errorf("Signature mismatch: got %s want %s", r.signature, want)
		}
	default:
		t.Fatal("Enabled webhook was never called")
	}

	if atomic.LoadInt32(&disabledHits) != 0 {
		t.Error("Disabled webhook must not receive deliveries")
	}

	deliveries := deliveriesFor(t, deliveryRepo, env.ID, hook.ID)
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery record, got %d", len(deliveries))
	}
	if deliveries[0].Status != models.DeliverySuccess {
		t.Errorf("Expected delivery success, got %s", deliveries[0].Status)
	}
	if got := deliveriesFor(t, deliveryRepo, env.ID, disabled.ID); len(got) != 0 {
		t.Errorf("Expected no delivery records for disabled webhook, got %d", len(got))
	}
}

func TestDispatcher_PermanentFailureIsNotRetried(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	hook := registerWebhook(t, webhookRepo, env.ID, server.URL, "", true)

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Dispatch(env.ID, "FLAG_UPDATED", nil)
	d.Stop()

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected exactly 1 attempt for a 4xx response, got %d", n)
	}

	deliveries := deliveriesFor(t, deliveryRepo, env.ID, hook.ID)
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery record, got %d", len(deliveries))
	}
	if deliveries[0].Status != models.DeliveryFailed {
		t.Errorf("Expected delivery failed, got %s", deliveries[0].Status)
	}
	if deliveries[0].LastStatusCode != http.StatusGone {
		t.Errorf("Expected last status 410, got %d", deliveries[0].LastStatusCode)
	}
}

func TestDispatcher_TransientFailureRetriesThenSucceeds(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hook := registerWebhook(t, webhookRepo, env.ID, server.URL, "", true)

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Dispatch(env.ID, "FLAG_UPDATED", nil)
	d.Stop()

	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}

	deliveries := deliveriesFor(t, deliveryRepo, env.ID, hook.ID)
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery record, got %d", len(deliveries))
	}
	if deliveries[0].Status != models.DeliverySuccess {
		t.Errorf("Expected delivery success after retry, got %s", deliveries[0].Status)
	}
	if deliveries[0].AttemptCount != 2 {
		t.Errorf("Expected attempt count 2, got %d", deliveries[0].AttemptCount)
	}
}

func TestDispatcher_RateLimitedResponseIsRetried(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registerWebhook(t, webhookRepo, env.ID, server.URL, "", true)

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Dispatch(env.ID, "FLAG_UPDATED", nil)
	d.Stop()

	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("Expected 429 to be retried, got %d attempts", n)
	}
}

func TestDispatcher_FailingEndpointDoesNotBlockOthers(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	start := time.Now()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	failingHook := registerWebhook(t, webhookRepo, env.ID, failing.URL, "", true)

	const healthyCount = 3
	healthyTimes := make(chan time.Duration, healthyCount)
	var healthyHooks []*models.Webhook
	for i := 0; i < healthyCount; i++ {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			healthyTimes <- time.Since(start)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()
		healthyHooks = append(healthyHooks, registerWebhook(t, webhookRepo, env.ID, server.URL, "", true))
	}

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Dispatch(env.ID, "FLAG_UPDATED", nil)
	d.Stop()

	// The failing endpoint burns its full retry budget...
	deliveries := deliveriesFor(t, deliveryRepo, env.ID, failingHook.ID)
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery record for failing webhook, got %d", len(deliveries))
	}
	if deliveries[0].Status != models.DeliveryFailed {
		t.Errorf("Expected failing delivery to exhaust retries, got %s", deliveries[0].Status)
	}
	if deliveries[0].AttemptCount != testConfig().MaxAttempts {
		t.Errorf("Expected %d attempts, got %d", testConfig().MaxAttempts, deliveries[0].AttemptCount)
	}

	// ...while every healthy endpoint is reached promptly, not serialized
	// behind the failing one's retries.
	for _, hook := range healthyHooks {
		got := deliveriesFor(t, deliveryRepo, env.ID, hook.ID)
		if len(got) != 1 || got[0].Status != models.DeliverySuccess {
			t.Errorf("Expected healthy webhook %s to succeed", hook.ID)
		}
	}
	for i := 0; i < healthyCount; i++ {
		select {
		case elapsed := <-healthyTimes:
			if elapsed > 2*time.Second {
				t.Errorf("Healthy endpoint delayed %v by failing neighbour", elapsed)
			}
		default:
			t.Error("Healthy endpoint was never called")
		}
	}
}

func TestDispatcher_ConnectionFailureExhaustsBudget(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	// A server that is already closed: every attempt is a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	hook := registerWebhook(t, webhookRepo, env.ID, url, "", true)

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Dispatch(env.ID, "FLAG_UPDATED", nil)
	d.Stop()

	deliveries := deliveriesFor(t, deliveryRepo, env.ID, hook.ID)
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery record, got %d", len(deliveries))
	}
	if deliveries[0].Status != models.DeliveryFailed {
		t.Errorf("Expected delivery failed, got %s", deliveries[0].Status)
	}
	if deliveries[0].AttemptCount != testConfig().MaxAttempts {
		t.Errorf("Expected %d attempts, got %d", testConfig().MaxAttempts, deliveries[0].AttemptCount)
	}
	if deliveries[0].LastError == "" {
		t.Error("Expected last error to be recorded")
	}
}

func TestDispatcher_DispatchDeadlineAbandonsRetries(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hook := registerWebhook(t, webhookRepo, env.ID, server.URL, "", true)

	// The deadline expires during the first backoff wait, so the retry
	// budget is never used up.
	cfg := testConfig()
	cfg.MaxAttempts = 5
	cfg.BackoffBase = 500 * time.Millisecond
	cfg.DispatchTimeout = 200 * time.Millisecond

	d := NewDispatcher(webhookRepo, deliveryRepo, cfg)
	d.Dispatch(env.ID, "FLAG_UPDATED", nil)
	d.Stop()

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected 1 attempt before the deadline, got %d", n)
	}

	deliveries := deliveriesFor(t, deliveryRepo, env.ID, hook.ID)
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery record, got %d", len(deliveries))
	}
	got := deliveries[0]
	if got.Status != models.DeliveryFailed {
		t.Errorf("Expected delivery failed, got %s", got.Status)
	}
	if got.AttemptCount >= cfg.MaxAttempts {
		t.Errorf("Expected fewer than %d recorded attempts, got %d", cfg.MaxAttempts, got.AttemptCount)
	}
	if !strings.Contains(got.LastError, "dispatch deadline exceeded") {
		t.Errorf("Expected deadline reason in last error, got %q", got.LastError)
	}
}

func TestDispatcher_DispatchAfterStopDoesNotPanic(t *testing.T) {
	_, webhookRepo, deliveryRepo, env := setupDispatcherTest(t)

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registerWebhook(t, webhookRepo, env.ID, server.URL, "", true)

	d := NewDispatcher(webhookRepo, deliveryRepo, testConfig())
	d.Stop()
	d.Stop() // idempotent

	d.Dispatch(env.ID, "FLAG_UPDATED", nil)

	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("Expected no deliveries after stop, got %d", n)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       outcome
	}{
		{"200", http.StatusOK, nil, outcomeSuccess},
		{"204", http.StatusNoContent, nil, outcomeSuccess},
		{"400", http.StatusBadRequest, nil, outcomePermanent},
		{"404", http.StatusNotFound, nil, outcomePermanent},
		{"410", http.StatusGone, nil, outcomePermanent},
		{"429", http.StatusTooManyRequests, nil, outcomeTransient},
		{"500", http.StatusInternalServerError, nil, outcomeTransient},
		{"503", http.StatusServiceUnavailable, nil, outcomeTransient},
		{"conn error", 0, http.ErrHandlerTimeout, outcomeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.statusCode, tt.err); got != tt.want {
				t.Errorf("classify(%d, %v) = %v, want %v", tt.statusCode, tt.err, got, tt.want)
			}
		})
	}
}
