package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are carried by both access and refresh tokens. The role rides along
// on refresh tokens too, so a refresh can mint a correctly scoped access
// token without a store lookup.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthTokens is the issued token pair.
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService issues and validates HS256 JWTs and tracks the live refresh
// session per user.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   SessionStore
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, sessions SessionStore) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   sessions,
	}
}

// IssueAccessToken creates a short-lived token carrying the user's role.
func (s *TokenService) IssueAccessToken(userID int64, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return token, nil
}

// IssueRefreshToken creates a long-lived token and records it as the user's
// only live refresh session, invalidating any previous one.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID int64, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	if err := s.sessions.Put(ctx, userID, token, s.refreshTTL); err != nil {
		return "", fmt.Errorf("failed to store refresh session: %w", err)
	}

	return token, nil
}

// Verify checks signature and expiry and returns the claims.
func (s *TokenService) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess validates an access token and returns the caller's identity.
// Satisfies the middleware's TokenVerifier contract.
func (s *TokenService) VerifyAccess(token string) (int64, string, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return 0, "", err
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", ErrInvalidToken
	}
	return userID, claims.Role, nil
}

// Refresh validates a refresh token against the stored session and issues a
// new access token. The refresh token itself is returned unchanged; a stale
// or revoked token is rejected even when its signature still verifies.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	stored, err := s.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get refresh session: %w", err)
	}
	if stored != refreshToken {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.IssueAccessToken(userID, claims.Role)
	if err != nil {
		return nil, err
	}

	return &AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Revoke drops the user's refresh session. Outstanding access tokens remain
// valid until they expire.
func (s *TokenService) Revoke(ctx context.Context, userID int64) error {
	return s.sessions.Delete(ctx, userID)
}
