package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/readbook-app/readbook-api/internal/httputil"
	"github.com/readbook-app/readbook-api/internal/logging"
	"github.com/readbook-app/readbook-api/internal/middleware"
	"github.com/readbook-app/readbook-api/internal/ratelimit"
	"github.com/readbook-app/readbook-api/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter *ratelimit.Limiter
	logger      *logging.Logger
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	ID              int64  `json:"_id,omitempty"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FullName        string `json:"fullName"`
	PhoneNumber     string `json:"phoneNumber"`
	Avatar          string `json:"avatar,omitempty"`
	Role            string `json:"role,omitempty"`
}

// VerifyOTPRequest represents the OTP verification request body
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// EmailRequest covers the endpoints keyed by email only.
type EmailRequest struct {
	Email string `json:"email"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ResetPasswordRequest represents the password reset request body
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ChangePasswordRequest represents the password change request body
type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Rate limit by IP
	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, "register")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for register", "ip", ip)
		httputil.RespondError(w, "too many requests, please try again later", http.StatusTooManyRequests)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, "register"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	userID, err := h.service.Register(r.Context(), RegisterParams{
		ID:              req.ID,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FullName:        req.FullName,
		PhoneNumber:     req.PhoneNumber,
		Avatar:          req.Avatar,
		Role:            req.Role,
	})
	if err != nil {
		h.respondServiceError(w, logger, err, "failed to register user")
		return
	}

	logger.Info("user registered successfully", "user_id", userID)

	httputil.RespondSuccess(w, "registration successful, please verify the otp sent to your email", map[string]any{
		"userId": userID,
	}, http.StatusCreated)
}

// VerifyOTP handles OTP verification for both registration and password reset
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid otp verification request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := requireFields(
		requiredField{"email", req.Email},
		requiredField{"otp", req.OTP},
	); len(errs) > 0 {
		httputil.RespondValidation(w, errs)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	message, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.respondServiceError(w, logger, err, "failed to verify otp")
		return
	}

	logger.Info("otp verified successfully")

	httputil.RespondSuccess(w, message, nil, http.StatusOK)
}

// ResendOTP handles resending a registration OTP
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid resend otp request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := requireFields(requiredField{"email", req.Email}); len(errs) > 0 {
		httputil.RespondValidation(w, errs)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if !h.passEmailRateLimits(w, r, logger, req.Email) {
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, logger, err, "failed to resend otp")
		return
	}

	logger.Info("otp resent successfully")

	httputil.RespondSuccess(w, "a new otp has been sent to your email", nil, http.StatusOK)
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	// Rate limit by IP
	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, "login")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for login", "ip", ip)
		httputil.RespondError(w, "too many requests, please try again later", http.StatusTooManyRequests)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, "login"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondServiceError(w, logger, err, "failed to login")
		return
	}

	logger.Info("user logged in successfully", "user_id", result.User.ID)

	httputil.RespondSuccess(w, "login successful", map[string]any{
		"user":         result.User,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
	}, http.StatusOK)
}

// Refresh handles access token refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		httputil.RespondError(w, "refresh token is required", http.StatusBadRequest)
		return
	}

	tokens, err := h.service.RefreshTokens(r.Context(), refreshToken)
	if err != nil {
		h.respondServiceError(w, logger, err, "failed to refresh token")
		return
	}

	logger.Info("access token refreshed successfully")

	httputil.RespondSuccess(w, "token refreshed successfully", tokens, http.StatusOK)
}

// ForgotPassword handles password reset OTP requests
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid forgot password request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := requireFields(requiredField{"email", req.Email}); len(errs) > 0 {
		httputil.RespondValidation(w, errs)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if !h.passEmailRateLimits(w, r, logger, req.Email) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, logger, err, "failed to process forgot password")
		return
	}

	logger.Info("password reset otp sent")

	httputil.RespondSuccess(w, "an otp has been sent to your email", nil, http.StatusOK)
}

// ResetPassword handles setting a new password after a verified reset OTP
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := requireFields(
		requiredField{"email", req.Email},
		requiredField{"newPassword", req.NewPassword},
		requiredField{"confirmPassword", req.ConfirmPassword},
	); len(errs) > 0 {
		httputil.RespondValidation(w, errs)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.service.ResetPassword(r.Context(), req.Email, req.NewPassword, req.ConfirmPassword); err != nil {
		h.respondServiceError(w, logger, err, "failed to reset password")
		return
	}

	logger.Info("password reset successfully")

	httputil.RespondSuccess(w, "password reset successfully, you can now login with your new password", nil, http.StatusOK)
}

// ChangePassword handles password changes for authenticated users
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", http.StatusUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid change password request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := requireFields(
		requiredField{"oldPassword", req.OldPassword},
		requiredField{"newPassword", req.NewPassword},
		requiredField{"confirmPassword", req.ConfirmPassword},
	); len(errs) > 0 {
		httputil.RespondValidation(w, errs)
		return
	}

	if err := h.service.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		h.respondServiceError(w, logger, err, "failed to change password")
		return
	}

	logger.Info("password changed successfully", "user_id", userID)

	httputil.RespondSuccess(w, "password changed successfully", nil, http.StatusOK)
}

// Logout handles user logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid logout request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if errs := requireFields(requiredField{"email", req.Email}); len(errs) > 0 {
		httputil.RespondValidation(w, errs)
		return
	}

	logger = logger.WithFields(map[string]any{"email": req.Email})

	if err := h.service.Logout(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, logger, err, "failed to logout")
		return
	}

	logger.Info("user logged out successfully")

	httputil.RespondSuccess(w, "logged out successfully", nil, http.StatusOK)
}

// passEmailRateLimits applies the shared IP limit and per-email cooldown used
// by the OTP-sending endpoints. Returns false when the response was already
// written.
func (h *Handler) passEmailRateLimits(w http.ResponseWriter, r *http.Request, logger *logging.Logger, email string) bool {
	ip := getClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
		// Continue despite error to avoid blocking legitimate requests
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip)
		httputil.RespondError(w, "too many requests, please try again later", http.StatusTooManyRequests)
		return false
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		logger.Warn("email on cooldown", "email", email)
		httputil.RespondError(w, "please wait before requesting another otp", http.StatusTooManyRequests)
		return false
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	return true
}

// respondServiceError maps service sentinels onto HTTP statuses. Unknown
// errors are logged and reported with the generic fallback message.
func (h *Handler) respondServiceError(w http.ResponseWriter, logger *logging.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrInvalidEmailFormat),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrFullNameRequired),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrSamePassword),
		errors.Is(err, ErrWrongOldPassword),
		errors.Is(err, ErrOTPNotFound),
		errors.Is(err, ErrOTPExpired),
		errors.Is(err, ErrOTPInvalid),
		errors.Is(err, ErrOTPTooManyAttempts),
		errors.Is(err, ErrIdentityInvalidEmail),
		errors.Is(err, ErrIdentityWeakPassword),
		errors.Is(err, user.ErrInvalidPhone):
		logger.Warn("request rejected", "error", err.Error())
		httputil.RespondError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountNotActivated),
		errors.Is(err, ErrInvalidToken):
		logger.Warn("request unauthorized", "error", err.Error())
		httputil.RespondError(w, err.Error(), http.StatusUnauthorized)

	case errors.Is(err, ErrUserNotFound):
		logger.Warn("account not found")
		httputil.RespondError(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, ErrEmailInUse), errors.Is(err, user.ErrIDTaken):
		logger.Warn("conflict", "error", err.Error())
		httputil.RespondError(w, err.Error(), http.StatusConflict)

	default:
		logger.Error("internal error", "error", err.Error())
		httputil.RespondError(w, fallback, http.StatusInternalServerError)
	}
}

type requiredField struct {
	name  string
	value string
}

// requireFields returns a validation message per missing field, in the order
// the fields are listed.
func requireFields(fields ...requiredField) []string {
	var errs []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, f.name+" is required")
		}
	}
	return errs
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (behind proxy/load balancer)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr format is "IP:port", extract just the IP
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
