package repositories

import (
	"database/sql"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
)

type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// ValidateURL checks that raw parses as an absolute http/https URL.
func ValidateURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Create persists a new webhook for the environment. Duplicate URLs are
// rejected by the UNIQUE(environment_id, url) constraint, so two concurrent
// creates of the same URL cannot both win.
func (r *WebhookRepository) Create(webhook *models.Webhook) error {
	if err := ValidateURL(webhook.URL); err != nil {
		return err
	}

	webhook.ID = "wh_" + uuid.New().String()
	webhook.CreatedAt = time.Now().Unix()
	webhook.UpdatedAt = webhook.CreatedAt

	query := `
		INSERT INTO webhooks (id, environment_id, url, secret, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, webhook.ID, webhook.EnvironmentID, webhook.URL, webhook.Secret, webhook.Enabled, webhook.CreatedAt, webhook.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateURL
	}
	return err
}

// Get returns the webhook only if it belongs to the environment. An id that
// exists under another environment is reported as not found, never leaked.
func (r *WebhookRepository) Get(environmentID, id string) (*models.Webhook, error) {
	query := `
		SELECT id, environment_id, url, secret, enabled, created_at, updated_at
		FROM webhooks WHERE id = ? AND environment_id = ?
	`
	row := r.db.QueryRow(query, id, environmentID)

	var w models.Webhook
	err := row.Scan(&w.ID, &w.EnvironmentID, &w.URL, &w.Secret, &w.Enabled, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WebhookRepository) List(environmentID string) ([]*models.Webhook, error) {
	query := `
		SELECT id, environment_id, url, secret, enabled, created_at, updated_at
		FROM webhooks WHERE environment_id = ? ORDER BY created_at, id
	`
	return r.queryWebhooks(query, environmentID)
}

// ListEnabled returns the dispatch snapshot: every enabled webhook for the
// environment at this moment.
func (r *WebhookRepository) ListEnabled(environmentID string) ([]*models.Webhook, error) {
	query := `
		SELECT id, environment_id, url, secret, enabled, created_at, updated_at
		FROM webhooks WHERE environment_id = ? AND enabled = 1 ORDER BY created_at, id
	`
	return r.queryWebhooks(query, environmentID)
}

func (r *WebhookRepository) queryWebhooks(query string, args ...interface{}) ([]*models.Webhook, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		var w models.Webhook
		if err := rows.Scan(&w.ID, &w.EnvironmentID, &w.URL, &w.Secret, &w.Enabled, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, &w)
	}
	return webhooks, rows.Err()
}

// Update writes url/secret/enabled. The caller passes the already-merged
// webhook (full or partial update is a handler concern). The environment
// scope is part of the WHERE clause, and the unique constraint re-checks the
// new URL against the environment's other rows.
func (r *WebhookRepository) Update(webhook *models.Webhook) error {
	if err := ValidateURL(webhook.URL); err != nil {
		return err
	}
	webhook.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhooks SET url = ?, secret = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND environment_id = ?
	`
	res, err := r.db.Exec(query, webhook.URL, webhook.Secret, webhook.Enabled, webhook.UpdatedAt, webhook.ID, webhook.EnvironmentID)
	if isUniqueViolation(err) {
		return ErrDuplicateURL
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the webhook. Deleting an id that is gone, or that belongs to
// another environment, reports not found.
func (r *WebhookRepository) Delete(environmentID, id string) error {
	res, err := r.db.Exec(`DELETE FROM webhooks WHERE id = ? AND environment_id = ?`, id, environmentID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
