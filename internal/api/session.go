package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opensource-finance/claimwatch/internal/domain"
)

// UserDirectory resolves session subjects to accounts.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetCompany(ctx context.Context, id string) (*domain.Company, error)
}

var errNoSession = errors.New("no session token")

// SessionMiddleware authenticates the request from an HS256 session token
// carried in the session cookie or an Authorization: Bearer header, and
// stores the resulting principal in the request context.
func SessionMiddleware(users UserDirectory, secret []byte, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(r, users, secret, cookieName)
			if err != nil {
				if !errors.Is(err, errNoSession) {
					slog.Debug("session rejected", "error", err, "request_id", GetRequestID(r.Context()))
				}
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, users UserDirectory, secret []byte, cookieName string) (domain.Principal, error) {
	raw := sessionToken(r, cookieName)
	if raw == "" {
		return domain.Principal{}, errNoSession
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Principal{}, fmt.Errorf("parse session token: %w", err)
	}
	if claims.Subject == "" {
		return domain.Principal{}, errors.New("session token has no subject")
	}

	user, err := users.GetUser(r.Context(), claims.Subject)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("load user %s: %w", claims.Subject, err)
	}
	if !user.Active {
		return domain.Principal{}, fmt.Errorf("user %s is inactive", user.ID)
	}

	p := domain.Principal{
		UserID:    user.ID,
		Name:      user.Name,
		Role:      user.Role,
		CompanyID: user.CompanyID,
	}
	if user.CompanyID != "" {
		company, err := users.GetCompany(r.Context(), user.CompanyID)
		switch {
		case err == nil:
			p.CompanyName = company.Name
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Principal{}, fmt.Errorf("load company %s: %w", user.CompanyID, err)
		}
	}
	return p, nil
}

func sessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// NewSessionToken signs a session token for userID valid for ttl.
func NewSessionToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "claimwatch",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
