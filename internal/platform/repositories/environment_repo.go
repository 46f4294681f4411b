package repositories

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
)

type EnvironmentRepository struct {
	db *sql.DB
}

func NewEnvironmentRepository(db *sql.DB) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

func (r *EnvironmentRepository) Create(env *models.Environment) error {
	env.ID = "env_" + uuid.New().String()
	if env.APIKey == "" {
		env.APIKey = "ser." + strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	env.CreatedAt = time.Now().Unix()
	env.UpdatedAt = env.CreatedAt

	query := `
		INSERT INTO environments (id, project_id, name, api_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, env.ID, env.ProjectID, env.Name, env.APIKey, env.CreatedAt, env.UpdatedAt)
	return err
}

// GetByAPIKey resolves the opaque path token to an environment.
func (r *EnvironmentRepository) GetByAPIKey(apiKey string) (*models.Environment, error) {
	query := `
		SELECT id, project_id, name, api_key, created_at, updated_at
		FROM environments WHERE api_key = ?
	`
	row := r.db.QueryRow(query, apiKey)

	var env models.Environment
	err := row.Scan(&env.ID, &env.ProjectID, &env.Name, &env.APIKey, &env.CreatedAt, &env.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (r *EnvironmentRepository) GetByID(id string) (*models.Environment, error) {
	query := `
		SELECT id, project_id, name, api_key, created_at, updated_at
		FROM environments WHERE id = ?
	`
	row := r.db.QueryRow(query, id)

	var env models.Environment
	err := row.Scan(&env.ID, &env.ProjectID, &env.Name, &env.APIKey, &env.CreatedAt, &env.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}
