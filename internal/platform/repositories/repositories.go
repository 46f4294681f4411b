package repositories

import "errors"

// Sentinel errors shared by the repositories. Handlers translate these into
// HTTP outcomes; nothing below the API layer knows about status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateURL = errors.New("url already registered for this environment")
	ErrInvalidURL   = errors.New("url must be an absolute http or https URL")
)
