// Package auth resolves request credentials into a Principal. Two
// credential kinds are accepted: HS256 bearer tokens carrying the user
// id in the subject claim, and opaque API keys matched by SHA-256
// digest. The user row stays authoritative for tier, admin flag and
// active status on every request.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linkforge/linkforge/internal/domain"
	"github.com/linkforge/linkforge/internal/repository"
	"github.com/linkforge/linkforge/pkg/logger"
)

// Authenticator validates credentials against the user store
type Authenticator struct {
	users  repository.UserRepository
	secret []byte
	log    *logger.Logger
}

// NewAuthenticator creates an Authenticator. The secret signs and
// verifies bearer tokens; it must match the token issuer's.
func NewAuthenticator(users repository.UserRepository, jwtSecret string, log *logger.Logger) *Authenticator {
	return &Authenticator{
		users:  users,
		secret: []byte(jwtSecret),
		log:    log,
	}
}

// AuthenticateToken validates a bearer token and loads its user.
// Returns domain.ErrUnauthenticated for anything short of a valid
// token bound to an active account.
func (a *Authenticator) AuthenticateToken(ctx context.Context, tokenString string) (domain.Principal, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", domain.ErrUnauthenticated)
	}

	return a.loadPrincipal(ctx, func(ctx context.Context) (*domain.User, error) {
		return a.users.FindByID(ctx, claims.Subject)
	})
}

// AuthenticateAPIKey validates an opaque API key by digest lookup.
// Only the SHA-256 of a key is ever stored or compared, so a leaked
// database cannot reproduce keys.
func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, rawKey string) (domain.Principal, error) {
	if rawKey == "" {
		return domain.Principal{}, domain.ErrUnauthenticated
	}

	hash := HashAPIKey(rawKey)
	return a.loadPrincipal(ctx, func(ctx context.Context) (*domain.User, error) {
		return a.users.FindByAPIKeyHash(ctx, hash)
	})
}

// loadPrincipal finishes authentication: the account must exist and be
// active
func (a *Authenticator) loadPrincipal(ctx context.Context, find func(context.Context) (*domain.User, error)) (domain.Principal, error) {
	user, err := find(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Principal{}, fmt.Errorf("%w: unknown account", domain.ErrUnauthenticated)
		}
		return domain.Principal{}, err
	}

	if !user.IsActive {
		a.log.Warnw("rejected credential for deactivated account", "user_id", user.ID)
		return domain.Principal{}, fmt.Errorf("%w: account deactivated", domain.ErrUnauthenticated)
	}

	return user.Principal(), nil
}

// HashAPIKey produces the stored digest form of an API key
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
