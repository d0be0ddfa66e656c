package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"movefines/internal/repository"
)

type ctxKey string

const TokenNameKey ctxKey = "tokenName"

type TokenRepo interface {
	FindTokenByPlainToken(ctx context.Context, plainToken string) (*repository.APIToken, error)
}

// BearerMiddleware admits requests carrying a token with the given
// ability, from the Authorization header or the token query parameter.
func BearerMiddleware(tokenRepo TokenRepo, ability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			plain := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				plain = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
			if plain == "" {
				plain = r.URL.Query().Get("token")
			}
			if plain == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tok, err := tokenRepo.FindTokenByPlainToken(r.Context(), plain)
			if err != nil || tok == nil {
				log.Printf("[AUTH] token rejected path=%s err=%v", r.URL.Path, err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if tok.ExpiresAt != nil && tok.ExpiresAt.Before(time.Now()) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
				return
			}
			if ability != "" && !tok.Can(ability) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			name := tok.Name
			if name == "" {
				name = "token#" + strconv.FormatInt(tok.ID, 10)
			}
			ctx := context.WithValue(r.Context(), TokenNameKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetTokenName(ctx context.Context) (string, error) {
	v, ok := ctx.Value(TokenNameKey).(string)
	if !ok || v == "" {
		return "", errors.New("token name not found in context")
	}
	return v, nil
}
