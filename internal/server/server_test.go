package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"movefines/internal/handlers"
	"movefines/internal/models"
	"movefines/internal/repository"

	"github.com/stretchr/testify/assert"
)

type tokenTable map[string]*repository.APIToken

func (t tokenTable) FindTokenByPlainToken(_ context.Context, plain string) (*repository.APIToken, error) {
	if tok, ok := t[plain]; ok {
		return tok, nil
	}
	return nil, repository.ErrTokenNotFound
}

type noTasks struct{}

func (noTasks) Enqueue(context.Context, string, []byte) (string, int, error) { return "", 0, nil }
func (noTasks) Tasks(context.Context, string) ([]models.Task, error)         { return nil, nil }

func TestRoutesRequireAbility(t *testing.T) {
	h := handlers.New(nil, nil, noTasks{})
	repo := tokenTable{
		"reader": {ID: 1, Name: "reader", Abilities: AbilityIntake},
	}
	srv := Routes(h, repo)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer reader")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status?reference=x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "status is open and the reference is unknown")
}
