package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/readbook-app/readbook-api/internal/book"
	"github.com/readbook-app/readbook-api/internal/httputil"
	"github.com/readbook-app/readbook-api/internal/logging"
	"github.com/readbook-app/readbook-api/internal/middleware"
)

// IdentityDeleter removes the external identity when an account is hard
// deleted.
type IdentityDeleter interface {
	DeleteIdentity(ctx context.Context, email string) error
}

// Handler contains HTTP handlers for user and favorites endpoints.
type Handler struct {
	store    Store
	books    book.Store
	identity IdentityDeleter
	logger   *logging.Logger
}

func NewHandler(store Store, books book.Store, identity IdentityDeleter, logger *logging.Logger) *Handler {
	return &Handler{
		store:    store,
		books:    books,
		identity: identity,
		logger:   logger,
	}
}

// UpdateRequest represents the profile update request body. Omitted fields
// are left unchanged.
type UpdateRequest struct {
	FullName    *string `json:"fullName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}

// Me returns the authenticated user's own record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", http.StatusUnauthorized)
		return
	}

	u, err := h.store.FindByID(r.Context(), userID)
	if err != nil {
		h.respondStoreError(w, logger, err, "failed to get user")
		return
	}

	httputil.RespondSuccess(w, "user retrieved successfully", map[string]any{"user": u}, http.StatusOK)
}

// Update modifies a user's profile. Callers may update themselves; admins may
// update anyone.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	targetID, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.store.Update(r.Context(), targetID, Patch{
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Avatar:      req.Avatar,
	})
	if err != nil {
		h.respondStoreError(w, logger, err, "failed to update user")
		return
	}

	logger.Info("user updated successfully", "user_id", targetID)

	httputil.RespondSuccess(w, "user updated successfully", map[string]any{"user": updated}, http.StatusOK)
}

// Favorites returns the target user's favorite books with catalog details.
func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	targetID, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}

	ids, err := h.store.Favorites(r.Context(), targetID)
	if err != nil {
		h.respondStoreError(w, logger, err, "failed to get favorite books")
		return
	}

	// Soft-deleted books silently drop out of the list.
	books := make([]*book.Book, 0, len(ids))
	for _, id := range ids {
		b, err := h.books.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, book.ErrNotFound) {
				continue
			}
			h.respondStoreError(w, logger, err, "failed to get favorite books")
			return
		}
		books = append(books, b)
	}

	httputil.RespondSuccess(w, "favorite books retrieved successfully", map[string]any{
		"favoriteBooks": books,
	}, http.StatusOK)
}

// AddFavorite adds a book to the target user's favorites.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	targetID, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}

	bookID, err := pathID(r, "bookId")
	if err != nil {
		httputil.RespondError(w, "invalid book id", http.StatusBadRequest)
		return
	}

	if _, err := h.books.GetByID(r.Context(), bookID); err != nil {
		if errors.Is(err, book.ErrNotFound) {
			httputil.RespondError(w, "book not found", http.StatusNotFound)
			return
		}
		logger.Error("failed to look up book", "error", err.Error())
		httputil.RespondError(w, "failed to add favorite book", http.StatusInternalServerError)
		return
	}

	if err := h.store.AddFavorite(r.Context(), targetID, bookID); err != nil {
		h.respondStoreError(w, logger, err, "failed to add favorite book")
		return
	}

	logger.Info("favorite book added", "user_id", targetID, "book_id", bookID)

	httputil.RespondSuccess(w, "book added to favorites successfully", nil, http.StatusOK)
}

// RemoveFavorite removes a book from the target user's favorites.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	targetID, ok := h.authorizeTarget(w, r)
	if !ok {
		return
	}

	bookID, err := pathID(r, "bookId")
	if err != nil {
		httputil.RespondError(w, "invalid book id", http.StatusBadRequest)
		return
	}

	if err := h.store.RemoveFavorite(r.Context(), targetID, bookID); err != nil {
		h.respondStoreError(w, logger, err, "failed to remove favorite book")
		return
	}

	logger.Info("favorite book removed", "user_id", targetID, "book_id", bookID)

	httputil.RespondSuccess(w, "book removed from favorites successfully", nil, http.StatusOK)
}

// List returns every activated user. Admin only, enforced by the router.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	users, err := h.store.List(r.Context())
	if err != nil {
		logger.Error("failed to list users", "error", err.Error())
		httputil.RespondError(w, "failed to list users", http.StatusInternalServerError)
		return
	}

	httputil.RespondSuccess(w, "users retrieved successfully", map[string]any{"users": users}, http.StatusOK)
}

// Delete removes an account and its provider identity. Admin only, enforced
// by the router.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	targetID, err := pathID(r, "userId")
	if err != nil {
		httputil.RespondError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	// Resolve the email first so the provider identity can be cleaned up.
	var email string
	if u, err := h.store.FindByID(r.Context(), targetID); err == nil {
		email = u.Email
	}

	if err := h.store.HardDelete(r.Context(), targetID); err != nil {
		h.respondStoreError(w, logger, err, "failed to delete user")
		return
	}

	if email != "" {
		if err := h.identity.DeleteIdentity(r.Context(), email); err != nil {
			logger.Warn("failed to delete provider identity", "user_id", targetID, "error", err.Error())
		}
	}

	logger.Info("user deleted", "user_id", targetID)

	httputil.RespondSuccess(w, "user deleted successfully", nil, http.StatusOK)
}

// authorizeTarget parses the userId path parameter and checks that the caller
// is the target user or an admin. Writes the error response itself.
func (h *Handler) authorizeTarget(w http.ResponseWriter, r *http.Request) (int64, bool) {
	callerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", http.StatusUnauthorized)
		return 0, false
	}

	targetID, err := pathID(r, "userId")
	if err != nil {
		httputil.RespondError(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}

	role, _ := middleware.RoleFromContext(r.Context())
	if callerID != targetID && role != "admin" {
		httputil.RespondError(w, "insufficient permissions", http.StatusForbidden)
		return 0, false
	}

	return targetID, true
}

func (h *Handler) respondStoreError(w http.ResponseWriter, logger *logging.Logger, err error, fallback string) {
	switch {
	case IsMissing(err):
		logger.Warn("user not found", "error", err.Error())
		httputil.RespondError(w, "user not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidPhone):
		logger.Warn("invalid phone number")
		httputil.RespondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrFavoriteExists), errors.Is(err, ErrFavoriteAbsent):
		logger.Warn("favorites conflict", "error", err.Error())
		httputil.RespondError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error(fallback, "error", err.Error())
		httputil.RespondError(w, fallback, http.StatusInternalServerError)
	}
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
