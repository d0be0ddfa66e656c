package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"movefines/internal/repository"
)

type fakeRepo struct {
	token *repository.APIToken
	err   error
	got   string
}

func (f *fakeRepo) FindTokenByPlainToken(ctx context.Context, plainToken string) (*repository.APIToken, error) {
	f.got = plainToken
	return f.token, f.err
}

func TestBearerMiddleware_setsTokenName(t *testing.T) {
	fr := &fakeRepo{token: &repository.APIToken{ID: 7, Name: "scheduler", Abilities: "run"}}

	got := ""
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := GetTokenName(r.Context())
		if err != nil {
			t.Fatalf("expected token name present, got err: %v", err)
		}
		got = name
		w.WriteHeader(http.StatusAccepted)
	})

	srv := BearerMiddleware(fr, "run")(handler)

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("Authorization", "Bearer 7|secret")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if got != "scheduler" {
		t.Fatalf("expected token name scheduler, got %q", got)
	}
	if fr.got != "7|secret" {
		t.Fatalf("repo got %q", fr.got)
	}
}

func TestBearerMiddleware_queryToken(t *testing.T) {
	fr := &fakeRepo{token: &repository.APIToken{ID: 3, Abilities: "*"}}
	srv := BearerMiddleware(fr, "intake")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name, _ := GetTokenName(r.Context()); name != "token#3" {
			t.Fatalf("unexpected name %q", name)
		}
	}))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/intake?token=abc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestBearerMiddleware_rejects(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	cases := []struct {
		name   string
		repo   *fakeRepo
		header string
		want   int
	}{
		{"missing", &fakeRepo{}, "", http.StatusUnauthorized},
		{"unknown", &fakeRepo{err: errors.New("token not found")}, "Bearer nope", http.StatusUnauthorized},
		{"expired", &fakeRepo{token: &repository.APIToken{ID: 1, Abilities: "*", ExpiresAt: &past}}, "Bearer 1|x", http.StatusUnauthorized},
		{"no ability", &fakeRepo{token: &repository.APIToken{ID: 1, Abilities: "intake"}}, "Bearer 1|x", http.StatusForbidden},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := BearerMiddleware(c.repo, "run")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("should not reach handler")
			}))
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rr := httptest.NewRecorder()
			srv.ServeHTTP(rr, req)
			if rr.Code != c.want {
				t.Fatalf("expected %d, got %d", c.want, rr.Code)
			}
		})
	}
}

func TestBearerMiddleware_allowsOptions(t *testing.T) {
	reached := false
	srv := BearerMiddleware(&fakeRepo{}, "run")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/run", nil))
	if rr.Code != http.StatusNoContent || !reached {
		t.Fatalf("expected OPTIONS to pass through, got %d", rr.Code)
	}
}
