package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"movefines/internal/config/connections/postgres"
)

var ErrTokenNotFound = errors.New("token not found")

type APIToken struct {
	ID        int64
	Name      string
	TokenHash string
	Abilities string
	ExpiresAt *time.Time
}

// Can reports whether the token carries the ability; "*" grants all.
func (t APIToken) Can(ability string) bool {
	for _, a := range strings.Split(t.Abilities, ",") {
		a = strings.TrimSpace(a)
		if a == "*" || a == ability {
			return true
		}
	}
	return false
}

type TokenRepository struct {
	pg *postgres.Postgres
}

func NewTokenRepository(pg *postgres.Postgres) *TokenRepository {
	return &TokenRepository{pg: pg}
}

func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// SplitToken parses "<id>|<secret>". Tokens without an id prefix return a nil id.
func SplitToken(plain string) (*int64, string) {
	plain = strings.TrimSpace(plain)
	idx := strings.Index(plain, "|")
	if idx <= 0 {
		return nil, plain
	}
	id, err := strconv.ParseInt(plain[:idx], 10, 64)
	if err != nil {
		return nil, plain
	}
	return &id, plain[idx+1:]
}

func (r *TokenRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pg.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS api_tokens (
			id           bigserial PRIMARY KEY,
			name         text        NOT NULL,
			token        text        NOT NULL UNIQUE,
			abilities    text        NOT NULL DEFAULT '*',
			expires_at   timestamptz,
			last_used_at timestamptz,
			created_at   timestamptz NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure api_tokens schema: %w", err)
	}
	return nil
}

func (r *TokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*APIToken, error) {
	id, secret := SplitToken(plainToken)
	if secret == "" {
		return nil, errors.New("empty token")
	}
	hash := HashToken(secret)

	var (
		tok APIToken
		err error
	)
	if id != nil {
		err = r.pg.Pool.QueryRow(ctx, `
			SELECT id, name, token, abilities, expires_at
			FROM api_tokens
			WHERE id = $1 AND token = $2
			  AND (expires_at IS NULL OR expires_at > $3)
		`, *id, hash, time.Now()).Scan(&tok.ID, &tok.Name, &tok.TokenHash, &tok.Abilities, &tok.ExpiresAt)
	} else {
		err = r.pg.Pool.QueryRow(ctx, `
			SELECT id, name, token, abilities, expires_at
			FROM api_tokens
			WHERE token = $1
			  AND (expires_at IS NULL OR expires_at > $2)
			ORDER BY created_at DESC
			LIMIT 1
		`, hash, time.Now()).Scan(&tok.ID, &tok.Name, &tok.TokenHash, &tok.Abilities, &tok.ExpiresAt)
	}
	if err != nil {
		log.Printf("[TOKEN] lookup failed: %v", err)
		return nil, ErrTokenNotFound
	}

	if _, err := r.pg.Pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, tok.ID); err != nil {
		log.Printf("[TOKEN] touch id=%d: %v", tok.ID, err)
	}
	return &tok, nil
}
