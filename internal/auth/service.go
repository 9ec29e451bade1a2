package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"smartdesk/internal/redis"
)

const (
	tokenBytes    = 32
	issueAttempts = 5
	tokenCacheTTL = 5 * time.Minute
)

// Service manages session tokens: issue, validate, revoke. Successful
// validations are cached in redis so the hot path stays off the database.
type Service struct {
	db             *sql.DB
	cache          *redis.Client
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService builds the auth service. cache may be nil, in which case every
// validation reads the database.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		cache:          cache,
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// IssueToken stores a fresh random session token for the user and returns it.
// Retries on insert conflict since the token column is the primary key.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	for attempt := 0; attempt < issueAttempts; attempt++ {
		token, err := randomHex()
		if err != nil {
			return "", err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		); err == nil {
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// NewCSRFToken mints a random value for the CSRF double-submit pair.
func (s *Service) NewCSRFToken() (string, error) {
	return randomHex()
}

// ValidateToken resolves a session token to its user id. Expired rows are
// purged on sight.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (int64, error) {
	if authToken == "" {
		return 0, errors.New("token required")
	}
	if userID, ok := s.cachedUserID(ctx, authToken); ok {
		return userID, nil
	}
	var (
		userID  int64
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, authToken,
	).Scan(&userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("invalid token")
	}
	if err != nil {
		return 0, fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken)
		return 0, errors.New("token expired")
	}
	s.cacheToken(ctx, authToken, userID, time.Until(expires))
	return userID, nil
}

// RevokeToken removes one session token and its cache entry.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.dropCachedToken(ctx, authToken)
	return nil
}

// RevokeUserTokens ends every session belonging to the user. Tokens are read
// first so their cache entries can be invalidated after the delete.
func (s *Service) RevokeUserTokens(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM user_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("list user tokens: %w", err)
	}
	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list user tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	for _, t := range tokens {
		s.dropCachedToken(ctx, t)
	}
	return nil
}

func (s *Service) cachedUserID(ctx context.Context, authToken string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	raw, err := s.cache.Get(ctx, tokenCacheKey(authToken))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("auth token cache read failed: %v", err)
		}
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

// Cache TTL never outlives the token itself.
func (s *Service) cacheToken(ctx context.Context, authToken string, userID int64, remaining time.Duration) {
	if s.cache == nil || remaining <= 0 {
		return
	}
	ttl := tokenCacheTTL
	if remaining < ttl {
		ttl = remaining
	}
	if err := s.cache.Set(ctx, tokenCacheKey(authToken), strconv.FormatInt(userID, 10), ttl); err != nil {
		log.Printf("auth token cache write failed: %v", err)
	}
}

func (s *Service) dropCachedToken(ctx context.Context, authToken string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, tokenCacheKey(authToken)); err != nil && err != redis.ErrCacheMiss {
		log.Printf("auth token cache invalidate failed: %v", err)
	}
}

func tokenCacheKey(token string) string {
	return "auth:token:" + token
}

func randomHex() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName is the cookie that carries the session token.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName is the cookie half of the CSRF double-submit pair.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName is the header half of the CSRF double-submit pair.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured session lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
