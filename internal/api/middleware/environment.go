package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	apierrors "github.com/nagomirachel/flagsmith/internal/pkg/errors"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
)

// EnvironmentContext is what handlers see after the path token has been
// resolved. Handlers scope every store call with ID; the raw api key never
// travels further down.
type EnvironmentContext struct {
	ID     string
	APIKey string
	Name   string
}

type EnvironmentMiddleware struct {
	envRepo *repositories.EnvironmentRepository
}

func NewEnvironmentMiddleware(envRepo *repositories.EnvironmentRepository) *EnvironmentMiddleware {
	return &EnvironmentMiddleware{envRepo: envRepo}
}

// Handle resolves the :env path parameter (an environment api key) and
// injects the environment scope. An unknown key is a plain 404 so callers
// cannot probe for key existence.
func (m *EnvironmentMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, ok := r.Context().Value(apiContext.Params).(httprouter.Params)
		if !ok {
			apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "No route parameters in context", nil)
			return
		}

		apiKey := params.ByName("env")
		env, err := m.envRepo.GetByAPIKey(apiKey)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "Environment not found", nil)
				return
			}
			apierrors.WriteError(w, http.StatusInternalServerError, apierrors.ErrCodeInternal, "Failed to resolve environment", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Environment, &EnvironmentContext{
			ID:     env.ID,
			APIKey: env.APIKey,
			Name:   env.Name,
		})
		next(w, r.WithContext(ctx))
	}
}
