package repositories

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
)

type OrganisationRepository struct {
	db *sql.DB
}

func NewOrganisationRepository(db *sql.DB) *OrganisationRepository {
	return &OrganisationRepository{db: db}
}

func (r *OrganisationRepository) Create(org *models.Organisation) error {
	org.ID = "org_" + uuid.New().String()
	org.CreatedAt = time.Now().Unix()
	org.UpdatedAt = org.CreatedAt

	query := `
		INSERT INTO organisations (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	return err
}

func (r *OrganisationRepository) GetByID(id string) (*models.Organisation, error) {
	row := r.db.QueryRow(`SELECT id, name, created_at, updated_at FROM organisations WHERE id = ?`, id)

	var org models.Organisation
	err := row.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(project *models.Project) error {
	project.ID = "proj_" + uuid.New().String()
	project.CreatedAt = time.Now().Unix()
	project.UpdatedAt = project.CreatedAt

	query := `
		INSERT INTO projects (id, organisation_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, project.ID, project.OrganisationID, project.Name, project.CreatedAt, project.UpdatedAt)
	return err
}

func (r *ProjectRepository) GetByID(id string) (*models.Project, error) {
	row := r.db.QueryRow(`SELECT id, organisation_id, name, created_at, updated_at FROM projects WHERE id = ?`, id)

	var p models.Project
	err := row.Scan(&p.ID, &p.OrganisationID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
