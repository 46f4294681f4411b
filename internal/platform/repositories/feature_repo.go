package repositories

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
)

type FeatureRepository struct {
	db *sql.DB
}

func NewFeatureRepository(db *sql.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

func (r *FeatureRepository) Create(feature *models.Feature) error {
	feature.ID = "feat_" + uuid.New().String()
	feature.CreatedAt = time.Now().Unix()
	feature.UpdatedAt = feature.CreatedAt

	query := `
		INSERT INTO features (id, project_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, feature.ID, feature.ProjectID, feature.Name, feature.Description, feature.CreatedAt, feature.UpdatedAt)
	return err
}

// GetState returns the feature state for (environment, feature), scoped the
// same way as webhooks: a state row under another environment is not found.
func (r *FeatureRepository) GetState(environmentID, featureID string) (*models.FeatureState, error) {
	query := `
		SELECT id, environment_id, feature_id, enabled, value, created_at, updated_at
		FROM feature_states WHERE environment_id = ? AND feature_id = ?
	`
	row := r.db.QueryRow(query, environmentID, featureID)

	var fs models.FeatureState
	var value sql.NullString
	err := row.Scan(&fs.ID, &fs.EnvironmentID, &fs.FeatureID, &fs.Enabled, &value, &fs.CreatedAt, &fs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if value.Valid {
		fs.Value = value.String
	}
	return &fs, nil
}

// SetState upserts the per-environment state of a feature and reports
// whether a row changed.
func (r *FeatureRepository) SetState(state *models.FeatureState) error {
	now := time.Now().Unix()
	state.UpdatedAt = now

	query := `
		UPDATE feature_states SET enabled = ?, value = ?, updated_at = ?
		WHERE environment_id = ? AND feature_id = ?
	`
	res, err := r.db.Exec(query, state.Enabled, state.Value, now, state.EnvironmentID, state.FeatureID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	state.ID = "fs_" + uuid.New().String()
	state.CreatedAt = now
	insert := `
		INSERT INTO feature_states (id, environment_id, feature_id, enabled, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(insert, state.ID, state.EnvironmentID, state.FeatureID, state.Enabled, state.Value, state.CreatedAt, state.UpdatedAt)
	return err
}
