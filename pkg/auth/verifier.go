// Package auth resolves bearer tokens to user ids.
package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier resolves a bearer token to the id of the user it belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// FirebaseVerifier validates Firebase ID tokens.
type FirebaseVerifier struct {
	client *fbauth.Client
}

// NewFirebaseVerifier initializes the Firebase app used for token
// verification. credentialsJSON holds a service-account key; empty falls
// back to Application Default Credentials.
func NewFirebaseVerifier(ctx context.Context, credentialsJSON []byte) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Verify checks the token's signature and expiry and returns the Firebase
// user id.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (string, error) {
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return decoded.UID, nil
}

// StaticVerifier maps fixed tokens to user ids. Used by the test suites.
type StaticVerifier map[string]string

// Verify looks the token up in the static map.
func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if userID, ok := v[token]; ok {
		return userID, nil
	}
	return "", ErrInvalidToken
}

// InsecureVerifier accepts every bearer token and resolves it to a fixed
// user id. It backs AUTH_DISABLED for local development; never wire it up
// in production.
type InsecureVerifier struct {
	UserID string
}

// Verify returns the configured user id regardless of the token.
func (v InsecureVerifier) Verify(context.Context, string) (string, error) {
	return v.UserID, nil
}
