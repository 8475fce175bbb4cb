// Package auth validates bearer session tokens presented at connection
// upgrade time.
//
// Tokens are HS256 JWTs issued by the journal's session layer. A token is
// accepted only when its signature verifies, its time claims hold, its
// subject is non-empty, and the subject resolves to an existing user in the
// identity store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shivam2014/trading-journal-stream/internal/model"
)

// Errors
var (
	// ErrUnauthenticated covers every client-fault rejection: missing or
	// malformed header, invalid token, empty subject, unknown user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUserNotFound is returned by identity stores for absent users.
	ErrUserNotFound = errors.New("user not found")
)

// IdentityStore resolves authenticated subjects to journal users.
type IdentityStore interface {
	// FindUserByID returns the user or ErrUserNotFound.
	FindUserByID(ctx context.Context, id string) (*model.User, error)
}

// Claims is the session token claim set.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates session JWTs against the shared signing secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given HMAC secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates a token string, returning its subject.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: token missing subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrUnauthenticated)
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
	}
	return token, nil
}

// Authenticator gates connection upgrades.
type Authenticator struct {
	verifier *Verifier
	store    IdentityStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(verifier *Verifier, store IdentityStore) *Authenticator {
	return &Authenticator{verifier: verifier, store: store}
}

// Authenticate validates the upgrade request and returns the user id.
//
// Client faults return errors wrapping ErrUnauthenticated; anything else
// (identity store outage) is an internal error the caller maps to a 500.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	token, err := BearerToken(r)
	if err != nil {
		return "", err
	}

	subject, err := a.verifier.VerifyToken(token)
	if err != nil {
		return "", err
	}

	user, err := a.store.FindUserByID(r.Context(), subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", fmt.Errorf("%w: unknown user %q", ErrUnauthenticated, subject)
		}
		return "", fmt.Errorf("identity lookup: %w", err)
	}
	return user.ID, nil
}
