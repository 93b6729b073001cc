package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"market-genome/internal/infra/metrics"
)

// AuthManager issues and checks short-lived admin bearer tokens. The
// static admin API key is only ever exchanged for a token.
type AuthManager struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(apiKey, secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AuthManager{apiKey: apiKey, secret: []byte(secret), ttl: ttl}
}

// Enabled reports whether admin routes can be reached at all.
func (a *AuthManager) Enabled() bool {
	return a != nil && a.apiKey != "" && len(a.secret) > 0
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthManager) Mint(now time.Time) (string, time.Time, error) {
	exp := now.Add(a.ttl)
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Subject:   "admin",
			Issuer:    "market-genome",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (a *AuthManager) CheckAPIKey(key string) bool {
	if !a.Enabled() || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return nil, errors.New("missing token")
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Role != "admin" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// RequireAdmin guards diagnostic routes.
func (a *AuthManager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			metrics.IncAdminAuth("check", "disabled")
			writeError(w, http.StatusForbidden, "admin access is not configured")
			return
		}
		if _, err := a.ParseFromRequest(r); err != nil {
			metrics.IncAdminAuth("check", "denied")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		metrics.IncAdminAuth("check", "ok")
		next.ServeHTTP(w, r)
	})
}
