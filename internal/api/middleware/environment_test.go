package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/julienschmidt/httprouter"
	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	"github.com/nagomirachel/flagsmith/internal/platform/repositories"
)

func requestWithEnvParam(apiKey string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	params := httprouter.Params{{Key: "env", Value: apiKey}}
	ctx := context.WithValue(req.Context(), apiContext.Params, params)
	return req.WithContext(ctx)
}

func TestEnvironmentMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	envRepo := repositories.NewEnvironmentRepository(db)
	mid := NewEnvironmentMiddleware(envRepo)

	t.Run("Known API key", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "project_id", "name", "api_key", "created_at", "updated_at"}).
			AddRow("env_123", "proj_1", "Test Environment", "ser.abc", 1234567890, 1234567890)

		mock.ExpectQuery("SELECT (.+) FROM environments WHERE api_key = ?").
			WithArgs("ser.abc").
			WillReturnRows(rows)

		rr := httptest.NewRecorder()
		handler := mid.Handle(func(w http.ResponseWriter, r *http.Request) {
			env := r.Context().Value(apiContext.Environment).(*EnvironmentContext)
			if env.ID != "env_123" {
				t.Errorf("Expected environment env_123, got %s", env.ID)
			}
			if env.APIKey != "ser.abc" {
				t.Errorf("Expected api key ser.abc, got %s", env.APIKey)
			}
			w.WriteHeader(http.StatusOK)
		})

		handler.ServeHTTP(rr, requestWithEnvParam("ser.abc"))

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
	})

	t.Run("Unknown API key", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM environments WHERE api_key = ?").
			WithArgs("ser.nope").
			WillReturnError(sql.ErrNoRows)

		rr := httptest.NewRecorder()
		handler := mid.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		})

		handler.ServeHTTP(rr, requestWithEnvParam("ser.nope"))

		if rr.Code != http.StatusNotFound {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusNotFound)
		}
	})

	t.Run("Missing route params", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler := mid.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		})

		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusInternalServerError)
		}
	})
}
