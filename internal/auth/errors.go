package auth

import "errors"

var (
	// Validation
	ErrEmailRequired       = errors.New("email is required")
	ErrInvalidEmailFormat  = errors.New("invalid email format")
	ErrPasswordRequired    = errors.New("password is required")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch    = errors.New("password confirmation does not match")
	ErrFullNameRequired    = errors.New("full name is required")
	ErrInvalidRole         = errors.New("invalid role")
	ErrSamePassword        = errors.New("new password must differ from the old one")
	ErrWrongOldPassword    = errors.New("old password is incorrect")

	// Credentials and accounts
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountNotActivated = errors.New("account not activated, please verify your email")
	ErrEmailInUse          = errors.New("email already in use")
	ErrUserNotFound        = errors.New("no account associated with this email")

	// OTP
	ErrOTPNotFound        = errors.New("otp not found or expired")
	ErrOTPExpired         = errors.New("otp has expired")
	ErrOTPInvalid         = errors.New("invalid otp code")
	ErrOTPTooManyAttempts = errors.New("too many failed otp attempts, request a new code")

	// Tokens
	ErrInvalidToken = errors.New("invalid or expired token")

	// Identity provider
	ErrIdentityDuplicateEmail = errors.New("identity provider: email already registered")
	ErrIdentityInvalidEmail   = errors.New("identity provider: invalid email")
	ErrIdentityWeakPassword   = errors.New("identity provider: password too weak")
)
