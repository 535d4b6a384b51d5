package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/logging"
	"github.com/readbook-app/readbook-api/internal/user"
)

// Argon2id parameters - tuned for security vs performance balance
// Time: 3, Memory: 64MB, Threads: 4, KeyLen: 32 bytes
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// OTPMailer delivers one-time codes. Implementations must be safe to call
// from goroutines.
type OTPMailer interface {
	SendOTP(ctx context.Context, toEmail, code string, purpose OTPPurpose) error
}

// Service orchestrates the account lifecycle: registration, OTP activation,
// login, password flows and logout.
type Service struct {
	users    user.Store
	otp      *OTPStore
	tokens   *TokenService
	identity IdentityProvider
	mailer   OTPMailer
	logger   *logging.Logger
}

func NewService(
	users user.Store,
	otp *OTPStore,
	tokens *TokenService,
	identity IdentityProvider,
	mailer OTPMailer,
	logger *logging.Logger,
) *Service {
	return &Service{
		users:    users,
		otp:      otp,
		tokens:   tokens,
		identity: identity,
		mailer:   mailer,
		logger:   logger,
	}
}

// RegisterParams carries the registration request fields. ID is optional; a
// zero value lets the store allocate the next sequential one. An empty Role
// defaults to the regular user role.
type RegisterParams struct {
	ID              int64
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
	PhoneNumber     string
	Avatar          string
	Role            string
}

// Register creates a new inactive account and sends the activation OTP.
// Returns the new user ID.
func (s *Service) Register(ctx context.Context, params RegisterParams) (int64, error) {
	if err := validateRegistration(&params); err != nil {
		return 0, err
	}

	// The email must be free across both pending and activated accounts.
	_, err := s.users.FindByEmailAny(ctx, params.Email)
	if err == nil {
		return 0, ErrEmailInUse
	}
	if !errors.Is(err, user.ErrNotFound) {
		return 0, fmt.Errorf("failed to check email: %w", err)
	}

	if err := s.identity.CreateIdentity(ctx, params.Email, params.Password); err != nil {
		if errors.Is(err, ErrIdentityDuplicateEmail) {
			return 0, ErrEmailInUse
		}
		return 0, err
	}

	passwordHash, err := s.hashPassword(params.Password)
	if err != nil {
		return 0, fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.users.Create(ctx, user.CreateParams{
		ID:           params.ID,
		Email:        params.Email,
		PasswordHash: passwordHash,
		FullName:     strings.TrimSpace(params.FullName),
		PhoneNumber:  strings.TrimSpace(params.PhoneNumber),
		Avatar:       strings.TrimSpace(params.Avatar),
		Role:         params.Role,
	})
	if err != nil {
		// Roll back the provider identity so the email is usable again.
		if delErr := s.identity.DeleteIdentity(ctx, params.Email); delErr != nil {
			s.logger.Error("failed to roll back provider identity", "email", params.Email, "error", delErr.Error())
		}
		return 0, err
	}

	if err := s.sendOTP(ctx, params.Email, PurposeRegister); err != nil {
		return 0, err
	}

	return userID, nil
}

// VerifyOTP consumes the pending code and dispatches on its purpose: a
// registration code activates the account, a reset code clears the way for
// ResetPassword.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	purpose, err := s.otp.Verify(ctx, email, code)
	if err != nil {
		return "", err
	}

	switch purpose {
	case PurposeRegister:
		pending, err := s.users.FindByEmailAny(ctx, email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return "", ErrUserNotFound
			}
			return "", fmt.Errorf("failed to find pending account: %w", err)
		}
		if err := s.users.Activate(ctx, pending.ID); err != nil {
			return "", fmt.Errorf("failed to activate account: %w", err)
		}
		return "account activated successfully", nil

	case PurposeReset:
		if _, err := s.users.FindByEmail(ctx, email); err != nil {
			if user.IsMissing(err) {
				return "", ErrUserNotFound
			}
			return "", fmt.Errorf("failed to find account: %w", err)
		}
		return "otp verified, you can now set a new password", nil

	default:
		return "", fmt.Errorf("unknown otp purpose %q", purpose)
	}
}

// ResendOTP regenerates and resends a registration code.
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	return s.sendOTP(ctx, email, PurposeRegister)
}

// LoginResult is what a successful login returns. The user never carries the
// password hash.
type LoginResult struct {
	User   *user.User `json:"user"`
	Tokens AuthTokens `json:"tokens"`
}

// Login authenticates an activated account and issues a token pair. The
// caller is marked online.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotActivated) {
			return nil, ErrAccountNotActivated
		}
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.verifyPassword(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.IssueAccessToken(account.ID, account.Role)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.IssueRefreshToken(ctx, account.ID, account.Role)
	if err != nil {
		return nil, err
	}

	online := true
	lastLogin := time.Now().UnixMilli()
	if _, err := s.users.Update(ctx, account.ID, user.Patch{IsOnline: &online, LastLogin: &lastLogin}); err != nil {
		s.logger.Warn("failed to mark user online", "user_id", account.ID, "error", err.Error())
	}

	account.PasswordHash = ""

	return &LoginResult{
		User: account,
		Tokens: AuthTokens{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
	}, nil
}

// RefreshTokens exchanges a valid refresh token for a fresh access token.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// ForgotPassword sends a reset OTP to an existing activated account.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	if _, err := s.users.FindByEmail(ctx, email); err != nil {
		if user.IsMissing(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	return s.sendOTP(ctx, email, PurposeReset)
}

// ResetPassword sets a new password after a verified reset OTP. The provider
// identity is updated first so the two stores cannot drift on success.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	if _, err := s.users.FindByEmail(ctx, email); err != nil {
		if user.IsMissing(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.identity.UpdateIdentityPassword(ctx, email, newPassword); err != nil {
		return err
	}

	passwordHash, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, email, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.otp.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to clear otp after password reset", "email", email, "error", err.Error())
	}

	return nil
}

// ChangePassword replaces the password of an authenticated user after
// verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if len(newPassword) < 8 {
		return ErrPasswordTooShort
	}

	account, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if user.IsMissing(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !s.verifyPassword(account.PasswordHash, oldPassword) {
		return ErrWrongOldPassword
	}
	if s.verifyPassword(account.PasswordHash, newPassword) {
		return ErrSamePassword
	}

	if err := s.identity.UpdateIdentityPassword(ctx, account.Email, newPassword); err != nil {
		return err
	}

	passwordHash, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, account.Email, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// Logout marks the account offline and revokes its refresh session.
func (s *Service) Logout(ctx context.Context, email string) error {
	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if user.IsMissing(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	online := false
	lastLogout := time.Now().UnixMilli()
	if _, err := s.users.Update(ctx, account.ID, user.Patch{IsOnline: &online, LastLogout: &lastLogout}); err != nil {
		s.logger.Warn("failed to mark user offline", "user_id", account.ID, "error", err.Error())
	}

	if err := s.tokens.Revoke(ctx, account.ID); err != nil {
		return fmt.Errorf("failed to revoke refresh session: %w", err)
	}
	return nil
}

// sendOTP stores a fresh code synchronously and delivers the mail from a
// goroutine so slow SMTP never blocks the request.
func (s *Service) sendOTP(ctx context.Context, email string, purpose OTPPurpose) error {
	code := s.otp.Generate()
	if err := s.otp.Store(ctx, email, code, purpose); err != nil {
		return err
	}

	go func() {
		// Detach from the request context so cancellation does not drop the mail.
		mailCtx := context.Background()
		if err := s.mailer.SendOTP(mailCtx, email, code, purpose); err != nil {
			s.logger.Warn("failed to send otp email", "email", email, "purpose", string(purpose), "error", err.Error())
		}
	}()

	return nil
}

func validateRegistration(params *RegisterParams) error {
	email := strings.TrimSpace(params.Email)
	if email == "" {
		return ErrEmailRequired
	}
	if len(email) > 254 {
		return ErrInvalidEmailFormat
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmailFormat
	}
	if params.Password == "" {
		return ErrPasswordRequired
	}
	if len(params.Password) < 8 {
		return ErrPasswordTooShort
	}
	if params.Password != params.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(params.FullName) == "" {
		return ErrFullNameRequired
	}
	if !user.ValidPhone(strings.TrimSpace(params.PhoneNumber)) {
		return user.ErrInvalidPhone
	}
	if params.Role != "" && !config.ValidRole(params.Role) {
		return ErrInvalidRole
	}
	return nil
}

// hashPassword creates an argon2id hash of the password
func (s *Service) hashPassword(password string) (string, error) {
	// Generate random salt
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	// Hash password with argon2id
	hash := argon2.IDKey(
		[]byte(password),
		salt,
		argon2Time,
		argon2Memory,
		argon2Threads,
		argon2KeyLen,
	)

	// Encode as: $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		encodedSalt,
		encodedHash,
	), nil
}

// verifyPassword checks if a password matches the stored hash
func (s *Service) verifyPassword(encodedHash, password string) bool {
	// Parse the encoded hash
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	// Parse parameters
	var version int
	var memory, time uint32
	var threads uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads)
	if err != nil {
		return false
	}
	_, err = fmt.Sscanf(parts[2], "v=%d", &version)
	if err != nil {
		return false
	}

	// Decode salt and hash
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	// Hash the input password with the same parameters
	inputHash := argon2.IDKey(
		[]byte(password),
		salt,
		time,
		memory,
		threads,
		uint32(len(decodedHash)),
	)

	// Compare hashes using constant-time comparison
	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}
