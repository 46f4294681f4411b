package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nagomirachel/flagsmith/internal/pkg/metrics"
	"github.com/nagomirachel/flagsmith/internal/platform/config"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
	"github.com/rs/zerolog/log"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomePermanent
)

type job struct {
	delivery *models.Delivery
	webhook  *models.Webhook
	payload  []byte
}

// Dispatcher fans a domain event out to every enabled webhook of an
// environment. Deliveries run on a fixed worker pool so one unreachable
// endpoint cannot monopolize dispatch; retries for a single delivery are
// sequential with exponential backoff.
type Dispatcher struct {
	webhookRepo  *repositories.WebhookRepository
	deliveryRepo *repositories.DeliveryRepository
	client       *http.Client
	cfg          config.WebhooksConfig

	jobs chan job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(webhookRepo *repositories.WebhookRepository, deliveryRepo *repositories.DeliveryRepository, cfg config.WebhooksConfig) *Dispatcher {
	d := &Dispatcher{
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		client:       &http.Client{Timeout: cfg.RequestTimeout},
		cfg:          cfg,
		jobs:         make(chan job, cfg.WorkerCount*4),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch snapshots the environment's enabled webhooks and queues one
// delivery per webhook. Webhooks added or disabled afterwards do not join
// this dispatch. Dispatch never reports an error to the caller: the domain
// action that produced the event must succeed regardless of delivery fate.
func (d *Dispatcher) Dispatch(environmentID, eventType string, data interface{}) {
	hooks, err := d.webhookRepo.ListEnabled(environmentID)
	if err != nil {
		log.Error().Err(err).Str("environment", environmentID).Msg("failed to snapshot webhooks for dispatch")
		return
	}
	if len(hooks) == 0 {
		return
	}

	event := &models.WebhookEvent{
		ID:            "evt_" + uuid.New().String(),
		Event:         eventType,
		Timestamp:     time.Now().Unix(),
		EnvironmentID: environmentID,
		Data:          data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		return
	}

	for _, hook := range hooks {
		delivery := &models.Delivery{
			WebhookID:     hook.ID,
			EnvironmentID: environmentID,
			EventID:       event.ID,
			EventType:     eventType,
			Payload:       string(payload),
		}
		if err := d.deliveryRepo.Create(delivery); err != nil {
			log.Error().Err(err).Str("webhook", hook.ID).Msg("failed to record delivery")
			continue
		}

		// The read lock orders this send against Stop closing the channel;
		// enqueues after shutdown are dropped, never a send on a closed
		// channel. Dropped rows are finalized by the stale sweep.
		d.mu.RLock()
		if d.stopped {
			d.mu.RUnlock()
			return
		}
		d.jobs <- job{delivery: delivery, webhook: hook, payload: payload}
		d.mu.RUnlock()
	}
}

// Stop drains the queue and waits for in-flight deliveries. Safe to call
// while Dispatch is running; safe to call more than once.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

// deliver runs the full retry budget for one delivery. The dispatch deadline
// bounds the whole loop; hitting it abandons this delivery only.
func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DispatchTimeout)
	defer cancel()

	if err := d.deliveryRepo.UpdateStatus(j.delivery.ID, models.DeliveryDelivering); err != nil {
		log.Error().Err(err).Str("delivery", j.delivery.ID).Msg("failed to mark delivery in flight")
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		statusCode, err := d.attempt(ctx, j)

		switch classify(statusCode, err) {
		case outcomeSuccess:
			metrics.WebhookAttempts.WithLabelValues("success").Inc()
			d.finish(j, models.DeliverySuccess, statusCode, "")
			return

		case outcomePermanent:
			metrics.WebhookAttempts.WithLabelValues("permanent").Inc()
			d.finish(j, models.DeliveryFailed, statusCode, fmt.Sprintf("endpoint rejected delivery: HTTP %d", statusCode))
			return

		case outcomeTransient:
			metrics.WebhookAttempts.WithLabelValues("transient").Inc()
			reason := attemptError(statusCode, err)
			if attempt == d.cfg.MaxAttempts {
				d.finish(j, models.DeliveryFailed, statusCode, "retries exhausted: "+reason)
				return
			}

			backoff := d.cfg.BackoffBase * time.Duration(1<<(attempt-1))
			next := time.Now().Add(backoff).Unix()
			if err := d.deliveryRepo.RecordAttempt(j.delivery.ID, models.DeliveryDelivering, statusCode, reason, next); err != nil {
				log.Error().Err(err).Str("delivery", j.delivery.ID).Msg("failed to record delivery attempt")
			}

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				d.finish(j, models.DeliveryFailed, statusCode, "dispatch deadline exceeded: "+reason)
				return
			}
		}
	}
}

// attempt issues one signed POST and returns the response status code, or an
// error for connection-level failures.
func (d *Dispatcher) attempt(ctx context.Context, j job) (int, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.webhook.URL, bytes.NewReader(j.payload))
	if err != nil {
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flagsmith-Event", j.delivery.EventType)
	req.Header.Set("X-Flagsmith-Delivery", j.delivery.ID)
	if j.webhook.Secret != "" {
		req.Header.Set("X-Flagsmith-Signature", "sha256="+Sign(j.webhook.Secret, j.payload))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.WebhookLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	outcomeLabel := "failure"
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcomeLabel = "success"
	}
	metrics.WebhookLatency.WithLabelValues(outcomeLabel).Observe(time.Since(start).Seconds())
	return resp.StatusCode, nil
}

func (d *Dispatcher) finish(j job, status models.DeliveryStatus, statusCode int, lastError string) {
	if err := d.deliveryRepo.RecordAttempt(j.delivery.ID, status, statusCode, lastError, 0); err != nil {
		log.Error().Err(err).Str("delivery", j.delivery.ID).Msg("failed to record delivery outcome")
	}
	metrics.WebhookDeliveries.WithLabelValues(j.delivery.EventType, string(status)).Inc()

	if status == models.DeliveryFailed {
		log.Warn().
			Str("delivery", j.delivery.ID).
			Str("webhook", j.webhook.ID).
			Str("url", j.webhook.URL).
			Int("status_code", statusCode).
			Str("reason", lastError).
			Msg("webhook delivery failed")
	} else {
		log.Info().
			Str("delivery", j.delivery.ID).
			Str("webhook", j.webhook.ID).
			Msg("webhook delivered")
	}
}

// classify maps an attempt result to its retry class: 2xx is success, 429 and
// 5xx and connection errors are transient, every other 4xx is a permanent
// rejection.
func classify(statusCode int, err error) outcome {
	switch {
	case err != nil:
		return outcomeTransient
	case statusCode >= 200 && statusCode < 300:
		return outcomeSuccess
	case statusCode == http.StatusTooManyRequests:
		return outcomeTransient
	case statusCode >= 500:
		return outcomeTransient
	case statusCode >= 400:
		return outcomePermanent
	default:
		// 3xx and other oddities: treat as transient and let the budget decide
		return outcomeTransient
	}
}

func attemptError(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "request timed out"
		}
		return err.Error()
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}
