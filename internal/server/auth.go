package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/docforge/docforge/internal/apierr"
)

// Auth guards the mutating admin surface with a bcrypt password exchange for
// short-lived HS256 bearer tokens. When no password hash is configured the
// surface is open; that is the local single-user development mode.
type Auth struct {
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuth returns an Auth. An empty passwordHash disables authentication.
func NewAuth(passwordHash, secret string, ttl time.Duration) *Auth {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Auth{
		passwordHash: []byte(passwordHash),
		secret:       []byte(secret),
		ttl:          ttl,
		now:          time.Now,
	}
}

// Enabled reports whether a password is configured.
func (a *Auth) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Login exchanges the admin password for a signed bearer token.
func (a *Auth) Login(password string) (string, error) {
	if !a.Enabled() {
		return "", apierr.BadRequest("authentication is not configured")
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", apierr.Unauthorized("invalid password")
	}
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", apierr.Internal("failed to sign token", err)
	}
	return signed, nil
}

// verify checks a bearer token's signature and expiry.
func (a *Auth) verify(raw string) error {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// Middleware rejects requests without a valid bearer token. A no-op when
// authentication is disabled.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, apierr.Unauthorized("missing bearer token"))
			return
		}
		if err := a.verify(raw); err != nil {
			writeError(w, apierr.Unauthorized("invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
