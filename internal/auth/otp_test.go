package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readbook-app/readbook-api/internal/config"
)

func newTestOTPStore() *OTPStore {
	return NewOTPStore(NewMemoryOTPRecords(), &config.OTPConfig{
		Length:      6,
		TTL:         5 * time.Minute,
		MaxAttempts: 5,
	})
}

func TestOTPGenerate(t *testing.T) {
	store := newTestOTPStore()

	for i := 0; i < 50; i++ {
		code := store.Generate()
		assert.Len(t, code, 6)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "expected digit, got %q", c)
		}
	}
}

func TestOTPStoreOverwritesPreviousCode(t *testing.T) {
	ctx := context.Background()
	store := newTestOTPStore()

	require.NoError(t, store.Store(ctx, "user@example.com", "111111", PurposeRegister))
	require.NoError(t, store.Store(ctx, "user@example.com", "222222", PurposeReset))

	rec, err := store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "222222", rec.Code)
	assert.Equal(t, PurposeReset, rec.Purpose)
	assert.Equal(t, 0, rec.Attempts)
}

func TestOTPVerifySuccessConsumesRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestOTPStore()

	require.NoError(t, store.Store(ctx, "user@example.com", "123456", PurposeRegister))

	purpose, err := store.Verify(ctx, "user@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, PurposeRegister, purpose)

	// The code is single-use.
	_, err = store.Verify(ctx, "user@example.com", "123456")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPVerifyMissing(t *testing.T) {
	store := newTestOTPStore()

	_, err := store.Verify(context.Background(), "nobody@example.com", "123456")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPVerifyExpiredDeletesRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestOTPStore()

	require.NoError(t, store.Store(ctx, "user@example.com", "123456", PurposeRegister))

	store.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	_, err := store.Verify(ctx, "user@example.com", "123456")
	assert.ErrorIs(t, err, ErrOTPExpired)

	rec, err := store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestOTPVerifyWrongCodeCountsAttempt(t *testing.T) {
	ctx := context.Background()
	store := newTestOTPStore()

	require.NoError(t, store.Store(ctx, "user@example.com", "123456", PurposeRegister))

	_, err := store.Verify(ctx, "user@example.com", "000000")
	assert.ErrorIs(t, err, ErrOTPInvalid)

	rec, err := store.Get(ctx, "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Attempts)

	// The right code still works after a failed attempt.
	purpose, err := store.Verify(ctx, "user@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, PurposeRegister, purpose)
}

func TestOTPVerifyLockout(t *testing.T) {
	ctx := context.Background()
	store := newTestOTPStore()

	require.NoError(t, store.Store(ctx, "user@example.com", "123456", PurposeRegister))

	for i := 0; i < 4; i++ {
		_, err := store.Verify(ctx, "user@example.com", "000000")
		assert.ErrorIs(t, err, ErrOTPInvalid)
	}

	// The fifth wrong attempt destroys the record.
	_, err := store.Verify(ctx, "user@example.com", "000000")
	assert.ErrorIs(t, err, ErrOTPTooManyAttempts)

	// Even the right code is now rejected.
	_, err = store.Verify(ctx, "user@example.com", "123456")
	assert.ErrorIs(t, err, ErrOTPNotFound)
}

func TestOTPDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestOTPStore()

	assert.NoError(t, store.Delete(ctx, "nobody@example.com"))

	require.NoError(t, store.Store(ctx, "user@example.com", "123456", PurposeReset))
	assert.NoError(t, store.Delete(ctx, "user@example.com"))
	assert.NoError(t, store.Delete(ctx, "user@example.com"))
}
