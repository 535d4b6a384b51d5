package user

import (
	"context"
	"errors"
	"regexp"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrNotActivated   = errors.New("user not activated")
	ErrIDTaken        = errors.New("user id already exists")
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrFavoriteExists = errors.New("book already in favorites")
	ErrFavoriteAbsent = errors.New("book not in favorites")
)

var phoneRegex = regexp.MustCompile(`^[0-9]{10,11}$`)

// Store is the user persistence contract. The production implementation sits
// on the Realtime Database; tests use an in-memory one.
type Store interface {
	// Create persists a new inactive account and returns its ID.
	Create(ctx context.Context, params CreateParams) (int64, error)
	// FindByID returns the user, or ErrNotFound if absent or not activated.
	FindByID(ctx context.Context, id int64) (*User, error)
	// FindByEmail matches case-insensitively. Returns ErrNotFound if no
	// account has the email and ErrNotActivated if one exists but has not
	// completed OTP verification.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByEmailAny is FindByEmail without the activation check. Used to
	// locate pending registrations.
	FindByEmailAny(ctx context.Context, email string) (*User, error)
	// Update merges the patch into the record and bumps updatedAt.
	Update(ctx context.Context, id int64, patch Patch) (*User, error)
	// UpdatePassword replaces the password hash of the account with the email.
	UpdatePassword(ctx context.Context, email, newHash string) error
	// Activate flips isActive after a successful registration OTP.
	Activate(ctx context.Context, id int64) error

	AddFavorite(ctx context.Context, userID, bookID int64) error
	RemoveFavorite(ctx context.Context, userID, bookID int64) error
	Favorites(ctx context.Context, userID int64) ([]int64, error)

	// List returns every activated account.
	List(ctx context.Context) ([]*User, error)
	// HardDelete removes the record entirely.
	HardDelete(ctx context.Context, id int64) error
}

// ValidPhone reports whether the phone number has the accepted local format.
func ValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}
