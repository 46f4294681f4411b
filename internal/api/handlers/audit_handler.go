package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	"github.com/nagomirachel/flagsmith/internal/api/middleware"
	apierrors "github.com/nagomirachel/flagsmith/internal/pkg/errors"
	"github.com/nagomirachel/flagsmith/internal/platform/audit"
)

type AuditHandler struct {
	db *sql.DB
}

func NewAuditHandler(db *sql.DB) *AuditHandler {
	return &AuditHandler{db: db}
}

// List returns the most recent control-plane changes in the environment:
// webhook CRUD and feature state updates.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	env := r.Context().Value(apiContext.Environment).(*middleware.EnvironmentContext)

	query := `
		SELECT id, environment_id, user_id, action, resource_type, resource_id, metadata, created_at
		FROM audit_logs
		WHERE environment_id = ?
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := h.db.Query(query, env.ID)
	if err != nil {
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to list audit logs", nil)
		return
	}
	defer rows.Close()

	entries := []*audit.Entry{}
	for rows.Next() {
		var e audit.Entry
		var userID, metaStr sql.NullString
		if err := rows.Scan(&e.ID, &e.EnvironmentID, &userID, &e.Action, &e.ResourceType, &e.ResourceID, &metaStr, &e.CreatedAt); err != nil {
			continue
		}
		if userID.Valid {
			e.UserID = userID.String
		}
		if metaStr.Valid && metaStr.String != "" {
			json.Unmarshal([]byte(metaStr.String), &e.Metadata)
		}
		entries = append(entries, &e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
