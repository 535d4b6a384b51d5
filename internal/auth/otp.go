package auth

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/database"
)

// otpKey derives the record key for an email address.
func otpKey(email string) string {
	return database.EmailKey(email)
}

// OTPPurpose tells the verifier which flow requested the code, so a reset OTP
// can never activate an account and vice versa.
type OTPPurpose string

const (
	PurposeRegister OTPPurpose = "register"
	PurposeReset    OTPPurpose = "reset"
)

// OTPRecord is the stored shape of a pending code. Timestamps are unix millis.
type OTPRecord struct {
	Code      string     `json:"otp"`
	Purpose   OTPPurpose `json:"purpose"`
	Attempts  int        `json:"attempts"`
	CreatedAt int64      `json:"createdAt"`
	ExpiresAt int64      `json:"expiresAt"`
}

// OTPRecords is the persistence backend for OTP records, keyed by the
// path-safe email key. Get returns (nil, nil) when no record exists.
type OTPRecords interface {
	Set(ctx context.Context, key string, rec *OTPRecord) error
	Get(ctx context.Context, key string) (*OTPRecord, error)
	SetAttempts(ctx context.Context, key string, attempts int) error
	Delete(ctx context.Context, key string) error
}

// OTPStore issues and verifies one-time codes. At most one live code exists
// per email; storing a new one overwrites the previous.
type OTPStore struct {
	records     OTPRecords
	length      int
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewOTPStore(records OTPRecords, cfg *config.OTPConfig) *OTPStore {
	return &OTPStore{
		records:     records,
		length:      cfg.Length,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

// Generate returns a numeric code of the configured length.
func (s *OTPStore) Generate() string {
	digits := make([]byte, s.length)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

// Store saves a fresh code for the email, replacing any previous one.
func (s *OTPStore) Store(ctx context.Context, email, code string, purpose OTPPurpose) error {
	now := s.now()
	rec := &OTPRecord{
		Code:      code,
		Purpose:   purpose,
		Attempts:  0,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(s.ttl).UnixMilli(),
	}
	if err := s.records.Set(ctx, otpKey(email), rec); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

// Get returns the live record for the email, or nil if none exists.
func (s *OTPStore) Get(ctx context.Context, email string) (*OTPRecord, error) {
	return s.records.Get(ctx, otpKey(email))
}

// Verify checks a candidate code. A correct code consumes the record and
// returns its purpose. A wrong code counts an attempt; once the attempt limit
// is reached the record is destroyed and a new code must be requested.
func (s *OTPStore) Verify(ctx context.Context, email, candidate string) (OTPPurpose, error) {
	key := otpKey(email)

	rec, err := s.records.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get otp: %w", err)
	}
	if rec == nil {
		return "", ErrOTPNotFound
	}

	if s.now().UnixMilli() > rec.ExpiresAt {
		if err := s.records.Delete(ctx, key); err != nil {
			return "", fmt.Errorf("failed to delete expired otp: %w", err)
		}
		return "", ErrOTPExpired
	}

	if rec.Code != candidate {
		attempts := rec.Attempts + 1
		if attempts >= s.maxAttempts {
			if err := s.records.Delete(ctx, key); err != nil {
				return "", fmt.Errorf("failed to delete otp: %w", err)
			}
			return "", ErrOTPTooManyAttempts
		}
		if err := s.records.SetAttempts(ctx, key, attempts); err != nil {
			return "", fmt.Errorf("failed to update otp attempts: %w", err)
		}
		return "", ErrOTPInvalid
	}

	if err := s.records.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("failed to consume otp: %w", err)
	}
	return rec.Purpose, nil
}

// Delete clears any pending code for the email. Deleting a missing record is
// not an error.
func (s *OTPStore) Delete(ctx context.Context, email string) error {
	return s.records.Delete(ctx, otpKey(email))
}
