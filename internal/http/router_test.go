package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readbook-app/readbook-api/internal/auth"
	"github.com/readbook-app/readbook-api/internal/book"
	"github.com/readbook-app/readbook-api/internal/config"
	"github.com/readbook-app/readbook-api/internal/database"
	"github.com/readbook-app/readbook-api/internal/logging"
	"github.com/readbook-app/readbook-api/internal/middleware"
	"github.com/readbook-app/readbook-api/internal/ratelimit"
	"github.com/readbook-app/readbook-api/internal/user"
)

// memUserStore is an in-memory user.Store for end-to-end router tests.
type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*user.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[int64]*user.User)}
}

func (m *memUserStore) Create(_ context.Context, params user.CreateParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !user.ValidPhone(params.PhoneNumber) {
		return 0, user.ErrInvalidPhone
	}
	id := params.ID
	if id > 0 {
		if _, ok := m.users[id]; ok {
			return 0, user.ErrIDTaken
		}
	} else {
		m.nextID++
		id = m.nextID
	}
	role := params.Role
	if role == "" {
		role = "user"
	}
	now := time.Now().UnixMilli()
	m.users[id] = &user.User{
		ID:            id,
		Email:         database.NormalizeEmail(params.Email),
		PasswordHash:  params.PasswordHash,
		FullName:      params.FullName,
		PhoneNumber:   params.PhoneNumber,
		Avatar:        params.Avatar,
		Role:          role,
		CreatedAt:     now,
		UpdatedAt:     now,
		FavoriteBooks: []int64{},
	}
	return id, nil
}

func (m *memUserStore) FindByID(_ context.Context, id int64) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byEmailLocked(email)
	if u == nil {
		return nil, user.ErrNotFound
	}
	if !u.IsActive {
		return nil, user.ErrNotActivated
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) FindByEmailAny(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byEmailLocked(email)
	if u == nil {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) byEmailLocked(email string) *user.User {
	normalized := database.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == normalized {
			return u
		}
	}
	return nil
}

func (m *memUserStore) Update(_ context.Context, id int64, patch user.Patch) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, user.ErrNotFound
	}
	if patch.Email != nil {
		u.Email = database.NormalizeEmail(*patch.Email)
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.PhoneNumber != nil {
		if !user.ValidPhone(*patch.PhoneNumber) {
			return nil, user.ErrInvalidPhone
		}
		u.PhoneNumber = *patch.PhoneNumber
	}
	if patch.Avatar != nil {
		u.Avatar = *patch.Avatar
	}
	if patch.IsOnline != nil {
		u.IsOnline = *patch.IsOnline
	}
	if patch.LastSeen != nil {
		u.LastSeen = *patch.LastSeen
	}
	if patch.LastLogin != nil {
		u.LastLogin = *patch.LastLogin
	}
	if patch.LastLogout != nil {
		u.LastLogout = *patch.LastLogout
	}
	u.UpdatedAt = time.Now().UnixMilli()
	cp := *u
	return &cp, nil
}

func (m *memUserStore) UpdatePassword(_ context.Context, email, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byEmailLocked(email)
	if u == nil {
		return user.ErrNotFound
	}
	if !u.IsActive {
		return user.ErrNotActivated
	}
	u.PasswordHash = newHash
	return nil
}

func (m *memUserStore) Activate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.IsActive = true
	return nil
}

func (m *memUserStore) AddFavorite(_ context.Context, userID, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.IsActive {
		return user.ErrNotFound
	}
	for _, id := range u.FavoriteBooks {
		if id == bookID {
			return user.ErrFavoriteExists
		}
	}
	u.FavoriteBooks = append(u.FavoriteBooks, bookID)
	return nil
}

func (m *memUserStore) RemoveFavorite(_ context.Context, userID, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.IsActive {
		return user.ErrNotFound
	}
	for i, id := range u.FavoriteBooks {
		if id == bookID {
			u.FavoriteBooks = append(u.FavoriteBooks[:i], u.FavoriteBooks[i+1:]...)
			return nil
		}
	}
	return user.ErrFavoriteAbsent
}

func (m *memUserStore) Favorites(_ context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.IsActive {
		return nil, user.ErrNotFound
	}
	return append([]int64(nil), u.FavoriteBooks...), nil
}

func (m *memUserStore) List(_ context.Context) ([]*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*user.User
	for _, u := range m.users {
		if u.IsActive {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUserStore) HardDelete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

var _ user.Store = (*memUserStore)(nil)

// memBookStore serves a fixed catalog.
type memBookStore struct {
	books map[int64]*book.Book
}

func (m *memBookStore) GetByID(_ context.Context, id int64) (*book.Book, error) {
	b, ok := m.books[id]
	if !ok || !b.IsActive {
		return nil, book.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// nullIdentity accepts every identity operation.
type nullIdentity struct{}

func (nullIdentity) CreateIdentity(context.Context, string, string) error         { return nil }
func (nullIdentity) UpdateIdentityPassword(context.Context, string, string) error { return nil }
func (nullIdentity) DeleteIdentity(context.Context, string) error                 { return nil }

// nullMailer drops outgoing mail.
type nullMailer struct{}

func (nullMailer) SendOTP(context.Context, string, string, auth.OTPPurpose) error { return nil }

type routerFixture struct {
	handler http.Handler
	users   *memUserStore
	otp     *auth.OTPStore
	tokens  *auth.TokenService
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:      "0",
			Env:       "dev",
			APIPrefix: "/v1",
		},
	}

	logger := logging.NewLogger(true)
	users := newMemUserStore()
	books := &memBookStore{books: map[int64]*book.Book{
		10: {ID: 10, Title: "The Silent Library", Author: "R. Chandra", IsActive: true},
		11: {ID: 11, Title: "Paper Cities", Author: "M. Okafor", IsActive: true},
		12: {ID: 12, Title: "Withdrawn Edition", Author: "T. Ames", IsActive: false},
	}}

	otpStore := auth.NewOTPStore(auth.NewMemoryOTPRecords(), &config.OTPConfig{
		Length:      6,
		TTL:         5 * time.Minute,
		MaxAttempts: 5,
	})
	tokens := auth.NewTokenService("router-test-secret", time.Minute, time.Hour, auth.NewMemorySessionStore())

	// A client pointed at a closed port; the limiter's failures are tolerated.
	deadRedis := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { deadRedis.Close() })
	rateLimiter := ratelimit.NewLimiter(deadRedis)

	identity := nullIdentity{}
	service := auth.NewService(users, otpStore, tokens, identity, nullMailer{}, logger)

	authHandler := auth.NewHandler(service, rateLimiter, logger)
	userHandler := user.NewHandler(users, books, identity, logger)
	authMiddleware := middleware.NewMiddleware(tokens)

	return &routerFixture{
		handler: NewRouter(cfg, authHandler, userHandler, authMiddleware, logger),
		users:   users,
		otp:     otpStore,
		tokens:  tokens,
	}
}

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (fx *routerFixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

// registerAndActivate drives the public registration flow and returns the new
// user's ID.
func (fx *routerFixture) registerAndActivate(t *testing.T, email, password string) int64 {
	t.Helper()

	rec, env := fx.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email":           email,
		"password":        password,
		"confirmPassword": password,
		"fullName":        "Router Test",
		"phoneNumber":     "0123456789",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.True(t, env.Success)
	id := int64(env.Data["userId"].(float64))

	otpRec, err := fx.otp.Get(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, otpRec)

	rec, _ = fx.do(t, http.MethodPost, "/v1/auth/verify-otp", "", map[string]any{
		"email": email,
		"otp":   otpRec.Code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return id
}

// login returns the access and refresh tokens for an activated account.
func (fx *routerFixture) login(t *testing.T, email, password string) (string, string) {
	t.Helper()

	rec, env := fx.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return env.Data["accessToken"].(string), env.Data["refreshToken"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	fx := newRouterFixture(t)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"api is running"}`, rec.Body.String())
}

func TestRegistrationLoginFlow(t *testing.T) {
	fx := newRouterFixture(t)

	id := fx.registerAndActivate(t, "flow@example.com", "secret-password")
	access, _ := fx.login(t, "flow@example.com", "secret-password")

	rec, env := fx.do(t, http.MethodGet, "/v1/users/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u := env.Data["user"].(map[string]any)
	assert.Equal(t, "flow@example.com", u["email"])
	assert.Equal(t, float64(id), u["_id"])
	// The hash never leaves the API.
	assert.NotContains(t, u, "password")
}

func TestLoginBeforeActivationRejected(t *testing.T) {
	fx := newRouterFixture(t)

	rec, _ := fx.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email":           "pending@example.com",
		"password":        "secret-password",
		"confirmPassword": "secret-password",
		"fullName":        "Pending User",
		"phoneNumber":     "0123456789",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := fx.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "pending@example.com",
		"password": "secret-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "account not activated, please verify your email", env.Message)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	fx := newRouterFixture(t)

	fx.registerAndActivate(t, "taken@example.com", "secret-password")

	rec, _ := fx.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email":           "taken@example.com",
		"password":        "secret-password",
		"confirmPassword": "secret-password",
		"fullName":        "Second Try",
		"phoneNumber":     "0123456789",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestValidationErrorShape(t *testing.T) {
	fx := newRouterFixture(t)

	rec, env := fx.do(t, http.MethodPost, "/v1/auth/verify-otp", "", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "email is required", env.Message)

	errs := env.Data["errors"].([]any)
	require.Len(t, errs, 2)
	assert.Equal(t, "email is required", errs[0])
	assert.Equal(t, "otp is required", errs[1])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	fx := newRouterFixture(t)

	rec, _ := fx.do(t, http.MethodGet, "/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = fx.do(t, http.MethodGet, "/v1/users/me", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	fx := newRouterFixture(t)

	fx.registerAndActivate(t, "session@example.com", "secret-password")
	_, refresh := fx.login(t, "session@example.com", "secret-password")

	rec, env := fx.do(t, http.MethodPost, "/v1/auth/refresh-token", "", map[string]any{
		"refreshToken": refresh,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, env.Data["accessToken"])

	rec, _ = fx.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]any{
		"email": "session@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The refresh session is gone.
	rec, _ = fx.do(t, http.MethodPost, "/v1/auth/refresh-token", "", map[string]any{
		"refreshToken": refresh,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordRequiresAuth(t *testing.T) {
	fx := newRouterFixture(t)

	rec, _ := fx.do(t, http.MethodPost, "/v1/auth/change-password", "", map[string]any{
		"oldPassword":     "secret-password",
		"newPassword":     "brand-new-pass",
		"confirmPassword": "brand-new-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePasswordFlow(t *testing.T) {
	fx := newRouterFixture(t)

	fx.registerAndActivate(t, "changer@example.com", "secret-password")
	access, _ := fx.login(t, "changer@example.com", "secret-password")

	rec, _ := fx.do(t, http.MethodPost, "/v1/auth/change-password", access, map[string]any{
		"oldPassword":     "secret-password",
		"newPassword":     "brand-new-pass",
		"confirmPassword": "brand-new-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fx.login(t, "changer@example.com", "brand-new-pass")
}

func TestFavoritesFlow(t *testing.T) {
	fx := newRouterFixture(t)

	id := fx.registerAndActivate(t, "favs@example.com", "secret-password")
	access, _ := fx.login(t, "favs@example.com", "secret-password")

	base := fmt.Sprintf("/v1/users/%d/favorites", id)

	rec, _ := fx.do(t, http.MethodPost, fmt.Sprintf("%s/10", base), access, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Duplicate add is rejected.
	rec, _ = fx.do(t, http.MethodPost, fmt.Sprintf("%s/10", base), access, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown and inactive books 404.
	rec, _ = fx.do(t, http.MethodPost, fmt.Sprintf("%s/999", base), access, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = fx.do(t, http.MethodPost, fmt.Sprintf("%s/12", base), access, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := fx.do(t, http.MethodGet, base, access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	books := env.Data["favoriteBooks"].([]any)
	require.Len(t, books, 1)
	assert.Equal(t, "The Silent Library", books[0].(map[string]any)["title"])

	rec, _ = fx.do(t, http.MethodDelete, fmt.Sprintf("%s/10", base), access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = fx.do(t, http.MethodDelete, fmt.Sprintf("%s/10", base), access, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersCannotTouchOtherAccounts(t *testing.T) {
	fx := newRouterFixture(t)

	fx.registerAndActivate(t, "alpha@example.com", "secret-password")
	otherID := fx.registerAndActivate(t, "beta@example.com", "secret-password")
	access, _ := fx.login(t, "alpha@example.com", "secret-password")

	rec, _ := fx.do(t, http.MethodPut, fmt.Sprintf("/v1/users/%d", otherID), access, map[string]any{
		"fullName": "Hijacked",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = fx.do(t, http.MethodGet, fmt.Sprintf("/v1/users/%d/favorites", otherID), access, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutesEnforceRights(t *testing.T) {
	fx := newRouterFixture(t)

	targetID := fx.registerAndActivate(t, "victim@example.com", "secret-password")
	userAccess, _ := fx.login(t, "victim@example.com", "secret-password")

	// A regular user is rejected.
	rec, _ := fx.do(t, http.MethodGet, "/v1/admin/users", userAccess, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminAccess, err := fx.tokens.IssueAccessToken(999, "admin")
	require.NoError(t, err)

	rec, env := fx.do(t, http.MethodGet, "/v1/admin/users", adminAccess, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, env.Data["users"])

	rec, _ = fx.do(t, http.MethodDelete, fmt.Sprintf("/v1/admin/users/%d", targetID), adminAccess, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The deleted account can no longer log in.
	rec, _ = fx.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email":    "victim@example.com",
		"password": "secret-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileUpdate(t *testing.T) {
	fx := newRouterFixture(t)

	id := fx.registerAndActivate(t, "profile@example.com", "secret-password")
	access, _ := fx.login(t, "profile@example.com", "secret-password")

	rec, env := fx.do(t, http.MethodPut, fmt.Sprintf("/v1/users/%d", id), access, map[string]any{
		"fullName":    "Renamed Reader",
		"phoneNumber": "09876543210",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u := env.Data["user"].(map[string]any)
	assert.Equal(t, "Renamed Reader", u["fullName"])
	assert.Equal(t, "09876543210", u["phoneNumber"])

	rec, _ = fx.do(t, http.MethodPut, fmt.Sprintf("/v1/users/%d", id), access, map[string]any{
		"phoneNumber": "not-a-phone",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
