package models

type Organisation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type User struct {
	ID             string `json:"id"`
	OrganisationID string `json:"organisation_id"`
	Email          string `json:"email"`
	PasswordHash   string `json:"-"`
	Role           string `json:"role"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

type Project struct {
	ID             string `json:"id"`
	OrganisationID string `json:"organisation_id"`
	Name           string `json:"name"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Environment is the scoping unit for webhooks. Its APIKey is the opaque
// token clients put in the URL path; the numeric-style row id never leaves
// the service.
type Environment struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

type Identity struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	Identifier    string `json:"identifier"`
	CreatedAt     int64  `json:"created_at"`
}

type Trait struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`
	TraitKey   string `json:"trait_key"`
	TraitValue string `json:"trait_value"`
	CreatedAt  int64  `json:"created_at"`
}

type Feature struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// FeatureState is the per-environment on/off switch and value for a feature.
// Updating one is the domain event that triggers webhook dispatch.
type FeatureState struct {
	ID            string `json:"id"`
	EnvironmentID string `json:"environment_id"`
	FeatureID     string `json:"feature_id"`
	Enabled       bool   `json:"enabled"`
	Value         string `json:"value,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}
