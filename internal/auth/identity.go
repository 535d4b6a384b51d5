package auth

import (
	"context"
	"fmt"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"

	"github.com/readbook-app/readbook-api/internal/database"
)

// IdentityProvider mirrors accounts into the external identity system. The
// Realtime Database remains the source of truth; the provider only keeps the
// email/password identity in sync.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string) error
	UpdateIdentityPassword(ctx context.Context, email, newPassword string) error
	// DeleteIdentity removes the identity. A missing identity is not an error.
	DeleteIdentity(ctx context.Context, email string) error
}

// FirebaseIdentityProvider backs IdentityProvider with Firebase Auth.
type FirebaseIdentityProvider struct {
	client *fbauth.Client
}

func NewFirebaseIdentityProvider(client *fbauth.Client) *FirebaseIdentityProvider {
	return &FirebaseIdentityProvider{client: client}
}

func (p *FirebaseIdentityProvider) CreateIdentity(ctx context.Context, email, password string) error {
	params := (&fbauth.UserToCreate{}).
		Email(database.NormalizeEmail(email)).
		Password(password)

	if _, err := p.client.CreateUser(ctx, params); err != nil {
		return normalizeIdentityError(err)
	}
	return nil
}

func (p *FirebaseIdentityProvider) UpdateIdentityPassword(ctx context.Context, email, newPassword string) error {
	u, err := p.client.GetUserByEmail(ctx, database.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("failed to look up identity: %w", err)
	}

	params := (&fbauth.UserToUpdate{}).Password(newPassword)
	if _, err := p.client.UpdateUser(ctx, u.UID, params); err != nil {
		return normalizeIdentityError(err)
	}
	return nil
}

func (p *FirebaseIdentityProvider) DeleteIdentity(ctx context.Context, email string) error {
	u, err := p.client.GetUserByEmail(ctx, database.NormalizeEmail(email))
	if err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to look up identity: %w", err)
	}

	if err := p.client.DeleteUser(ctx, u.UID); err != nil {
		if fbauth.IsUserNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}

// normalizeIdentityError maps provider failures onto the package sentinels.
// The SDK exposes predicates for some cases and message matching covers the
// rest.
func normalizeIdentityError(err error) error {
	if fbauth.IsEmailAlreadyExists(err) {
		return ErrIdentityDuplicateEmail
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid email"):
		return ErrIdentityInvalidEmail
	case strings.Contains(msg, "password"):
		return ErrIdentityWeakPassword
	}
	return fmt.Errorf("identity provider error: %w", err)
}

var _ IdentityProvider = (*FirebaseIdentityProvider)(nil)
