package repositories

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nagomirachel/flagsmith/internal/platform/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *models.User) error {
	user.ID = "usr_" + uuid.New().String()
	if user.Role == "" {
		user.Role = "admin"
	}
	user.CreatedAt = time.Now().Unix()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, organisation_id, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, user.ID, user.OrganisationID, user.Email, user.PasswordHash, user.Role, user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	query := `
		SELECT id, organisation_id, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = ?
	`
	row := r.db.QueryRow(query, email)

	var u models.User
	err := row.Scan(&u.ID, &u.OrganisationID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
