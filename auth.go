package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	roleUser  = "user"
	roleAdmin = "admin"
)

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens. The subject carries the
// opaque user id handed over by the authentication provider.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(subject, role string) (string, error) {
	now := t.now()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *TokenIssuer) Parse(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims, nil
}

// userFromRequest resolves the caller from a user-role bearer token. The
// token query parameter is only read when allowQuery is set, which the
// websocket upgrade needs because browsers cannot set headers on it.
func (t *TokenIssuer) userFromRequest(r *http.Request, allowQuery bool) (string, error) {
	var raw string
	if allowQuery {
		raw = r.URL.Query().Get("token")
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimPrefix(h, "Bearer ")
	}
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims, err := t.Parse(raw)
	if err != nil {
		return "", err
	}
	if claims.Role != roleUser {
		return "", fmt.Errorf("%w: role %q cannot act as a rider", ErrUnauthorized, claims.Role)
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) adminFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie("session")
	if err != nil {
		return "", fmt.Errorf("%w: no session", ErrUnauthorized)
	}
	claims, err := t.Parse(cookie.Value)
	if err != nil {
		return "", err
	}
	if claims.Role != roleAdmin {
		return "", fmt.Errorf("%w: not an admin session", ErrUnauthorized)
	}
	return claims.Subject, nil
}

type adminRecord struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func adminKey(email string) string { return "admin/" + strings.ToLower(email) }

// AdminStore keeps admin credentials in the record store.
type AdminStore struct {
	updater *recordUpdater
}

func NewAdminStore(updater *recordUpdater) *AdminStore {
	return &AdminStore{updater: updater}
}

// Create stores an admin unless one with that email exists already.
func (s *AdminStore) Create(ctx context.Context, email, passwordHash string) (bool, error) {
	var created bool
	_, err := updateJSON(ctx, s.updater, adminKey(email), func(rec *adminRecord) error {
		if rec.Email != "" {
			created = false
			return errUnchanged
		}
		created = true
		*rec = adminRecord{Email: email, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
		return nil
	})
	return created, err
}

func (s *AdminStore) Authenticate(ctx context.Context, email, password string) error {
	rec, _, err := readJSON[adminRecord](ctx, s.updater.store, adminKey(email))
	if err != nil {
		return err
	}
	if rec.Email == "" {
		return fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return err
	}
	return nil
}
