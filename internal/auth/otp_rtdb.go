package auth

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// RTDBOTPRecords persists OTP records under otps/<email key> in the Realtime
// Database.
type RTDBOTPRecords struct {
	db *db.Client
}

func NewRTDBOTPRecords(client *db.Client) *RTDBOTPRecords {
	return &RTDBOTPRecords{db: client}
}

func (r *RTDBOTPRecords) ref(key string) *db.Ref {
	return r.db.NewRef("otps/" + key)
}

func (r *RTDBOTPRecords) Set(ctx context.Context, key string, rec *OTPRecord) error {
	return r.ref(key).Set(ctx, rec)
}

func (r *RTDBOTPRecords) Get(ctx context.Context, key string) (*OTPRecord, error) {
	var rec OTPRecord
	if err := r.ref(key).Get(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to get otp record: %w", err)
	}
	if rec.Code == "" {
		return nil, nil
	}
	return &rec, nil
}

func (r *RTDBOTPRecords) SetAttempts(ctx context.Context, key string, attempts int) error {
	return r.ref(key).Update(ctx, map[string]any{"attempts": attempts})
}

func (r *RTDBOTPRecords) Delete(ctx context.Context, key string) error {
	return r.ref(key).Delete(ctx)
}

var _ OTPRecords = (*RTDBOTPRecords)(nil)
