package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(d *models.Delivery) error {
	d.ID = "del_" + uuid.New().String()
	d.Status = models.DeliveryPending
	d.CreatedAt = time.Now().Unix()
	d.UpdatedAt = d.CreatedAt

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, environment_id, event_id, event_type, payload, status, attempt_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err := r.db.Exec(query, d.ID, d.WebhookID, d.EnvironmentID, d.EventID, d.EventType, d.Payload, d.Status, d.CreatedAt, d.UpdatedAt)
	return err
}

// RecordAttempt bumps the attempt counter and stores the outcome of the
// latest try. Non-terminal statuses carry a next_retry_at so the recovery
// sweep can tell live retries from abandoned ones.
func (r *DeliveryRepository) RecordAttempt(id string, status models.DeliveryStatus, statusCode int, lastError string, nextRetryAt int64) error {
	query := `
		UPDATE webhook_deliveries
		SET status = ?, attempt_count = attempt_count + 1, last_status_code = ?, last_error = ?, next_retry_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, status, statusCode, lastError, nextRetryAt, time.Now().Unix(), id)
	return err
}

func (r *DeliveryRepository) UpdateStatus(id string, status models.DeliveryStatus) error {
	_, err := r.db.Exec(`UPDATE webhook_deliveries SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	return err
}

// ListByWebhook returns the delivery history for one webhook, newest first,
// scoped to the environment like every other read.
func (r *DeliveryRepository) ListByWebhook(environmentID, webhookID string, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, webhook_id, environment_id, event_id, event_type, payload, status, attempt_count, last_status_code, last_error, next_retry_at, created_at, updated_at
		FROM webhook_deliveries
		WHERE webhook_id = ? AND environment_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`
	rows, err := r.db.Query(query, webhookID, environmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// MarkStaleFailed finalizes deliveries left in a non-terminal state before
// the cutoff. These are dispatches interrupted by a crash or shutdown; they
// are reported as failed rather than silently dropped.
func (r *DeliveryRepository) MarkStaleFailed(cutoff int64) (int64, error) {
	query := `
		UPDATE webhook_deliveries
		SET status = ?, last_error = 'abandoned: dispatcher did not complete', updated_at = ?
		WHERE status IN (?, ?) AND updated_at < ?
	`
	res, err := r.db.Exec(query, models.DeliveryFailed, time.Now().Unix(), models.DeliveryPending, models.DeliveryDelivering, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDelivery(rows *sql.Rows) (*models.Delivery, error) {
	var d models.Delivery
	var statusCode sql.NullInt64
	var lastError sql.NullString
	var nextRetryAt sql.NullInt64

	err := rows.Scan(&d.ID, &d.WebhookID, &d.EnvironmentID, &d.EventID, &d.EventType, &d.Payload,
		&d.Status, &d.AttemptCount, &statusCode, &lastError, &nextRetryAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if statusCode.Valid {
		d.LastStatusCode = int(statusCode.Int64)
	}
	if lastError.Valid {
		d.LastError = lastError.String
	}
	if nextRetryAt.Valid {
		d.NextRetryAt = nextRetryAt.Int64
	}
	return &d, nil
}
