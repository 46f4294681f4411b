package models

// Webhook is a registered endpoint for one environment. A URL may be
// registered at most once per environment; EnvironmentID is fixed for the
// lifetime of the row.
type Webhook struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	URL           string `json:"url"`
	Secret        string `json:"secret,omitempty"`
	Enabled       bool   `json:"enabled"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

type WebhookEvent struct {
	ID            string      `json:"id"`
	Event         string      `json:"event"`
	Timestamp     int64       `json:"timestamp"`
	EnvironmentID string      `json:"environment_id"`
	Data          interface{} `json:"data"`
}

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDelivering DeliveryStatus = "delivering"
	DeliverySuccess    DeliveryStatus = "success"
	DeliveryFailed     DeliveryStatus = "failed"
)

// Delivery tracks one (event, webhook) pair through its retry budget.
// Terminal states are success and failed; anything else still alive past the
// staleness window is recovered by the background worker.
type Delivery struct {
	ID             string         `json:"id"`
	WebhookID      string         `json:"webhook_id"`
	EnvironmentID  string         `json:"environment_id"`
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Payload        string         `json:"payload"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	LastStatusCode int            `json:"last_status_code,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	NextRetryAt    int64          `json:"next_retry_at,omitempty"`
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
}
