package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	"github.com/nagomirachel/flagsmith/internal/platform/auth"
	"github.com/rs/zerolog/log"
)

type Entry struct {
	ID            string                 `json:"id"`
	EnvironmentID string                 `json:"environment_id"`
	UserID        string                 `json:"user_id,omitempty"`
	Action        string                 `json:"action"`
	ResourceType  string                 `json:"resource_type"`
	ResourceID    string                 `json:"resource_id"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     int64                  `json:"created_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log records a control-plane change against the environment in whose scope
// it happened. Writes are fire-and-forget; audit must never slow a request.
func (l *Logger) Log(ctx context.Context, environmentID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	var userID string
	if claims, ok := ctx.Value(apiContext.Claims).(*auth.Claims); ok {
		userID = claims.UserID
	}

	entry := &Entry{
		ID:            "audit_" + uuid.New().String(),
		EnvironmentID: environmentID,
		UserID:        userID,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Metadata:      metadata,
		CreatedAt:     time.Now().Unix(),
	}

	metaJSON, _ := json.Marshal(metadata)

	go func() {
		query := `
			INSERT INTO audit_logs (id, environment_id, user_id, action, resource_type, resource_id, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := l.db.Exec(query, entry.ID, entry.EnvironmentID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, string(metaJSON), entry.CreatedAt); err != nil {
			log.Error().Err(err).Str("action", action).Msg("failed to write audit log")
		}
	}()
}
