package user

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"firebase.google.com/go/v4/db"

	"github.com/readbook-app/readbook-api/internal/database"
)

// Repository persists users under users/<id> in the Realtime Database.
type Repository struct {
	db *db.Client
}

func NewRepository(client *db.Client) *Repository {
	return &Repository{db: client}
}

// record is the wire shape of a user node, password hash included.
type record struct {
	ID            int64   `json:"_id"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	FullName      string  `json:"fullName"`
	PhoneNumber   string  `json:"phoneNumber"`
	Avatar        string  `json:"avatar"`
	Role          string  `json:"role"`
	IsActive      bool    `json:"isActive"`
	IsOnline      bool    `json:"isOnline"`
	LastSeen      int64   `json:"lastSeen"`
	LastLogin     int64   `json:"lastLogin"`
	LastLogout    int64   `json:"lastLogout"`
	CreatedAt     int64   `json:"createdAt"`
	UpdatedAt     int64   `json:"updatedAt"`
	FavoriteBooks []int64 `json:"favoriteBooks"`
}

func (r *Repository) userRef(id int64) *db.Ref {
	return r.db.NewRef("users/" + strconv.FormatInt(id, 10))
}

// Create inserts a new inactive user. A caller-supplied ID must be free;
// otherwise the next sequential ID is allocated from the lastCustomId counter.
func (r *Repository) Create(ctx context.Context, params CreateParams) (int64, error) {
	if !ValidPhone(params.PhoneNumber) {
		return 0, ErrInvalidPhone
	}

	role := params.Role
	if role == "" {
		role = "user"
	}

	id := params.ID
	if id > 0 {
		var existing record
		if err := r.userRef(id).Get(ctx, &existing); err != nil {
			return 0, fmt.Errorf("failed to check user id: %w", err)
		}
		if existing.ID != 0 {
			return 0, ErrIDTaken
		}
	} else {
		newID, err := database.NextID(ctx, r.db, "lastCustomId")
		if err != nil {
			return 0, fmt.Errorf("failed to allocate user id: %w", err)
		}
		id = newID
	}

	now := time.Now().UnixMilli()
	rec := record{
		ID:            id,
		Email:         database.NormalizeEmail(params.Email),
		Password:      params.PasswordHash,
		FullName:      params.FullName,
		PhoneNumber:   params.PhoneNumber,
		Avatar:        params.Avatar,
		Role:          role,
		IsActive:      false,
		IsOnline:      false,
		LastSeen:      now,
		LastLogin:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
		FavoriteBooks: []int64{},
	}

	if err := r.userRef(id).Set(ctx, &rec); err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}

	return id, nil
}

// FindByID retrieves an activated user by ID.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	var rec record
	if err := r.userRef(id).Get(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if rec.ID == 0 || !rec.IsActive {
		return nil, ErrNotFound
	}
	return mapRecordToModel(&rec), nil
}

// FindByEmail retrieves an activated user by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	rec, err := r.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, ErrNotActivated
	}
	return mapRecordToModel(rec), nil
}

// FindByEmailAny retrieves a user by email regardless of activation state.
func (r *Repository) FindByEmailAny(ctx context.Context, email string) (*User, error) {
	rec, err := r.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return mapRecordToModel(rec), nil
}

func (r *Repository) findByEmail(ctx context.Context, email string) (*record, error) {
	nodes, err := r.db.NewRef("users").
		OrderByChild("email").
		EqualTo(database.NormalizeEmail(email)).
		GetOrdered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound
	}

	var rec record
	if err := nodes[0].Unmarshal(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode user record: %w", err)
	}
	return &rec, nil
}

// Update merges the patch into the record and bumps updatedAt. Only activated
// users can be updated.
func (r *Repository) Update(ctx context.Context, id int64, patch Patch) (*User, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"updatedAt": time.Now().UnixMilli(),
	}
	if patch.Email != nil {
		updates["email"] = database.NormalizeEmail(*patch.Email)
	}
	if patch.FullName != nil {
		updates["fullName"] = *patch.FullName
	}
	if patch.PhoneNumber != nil {
		if !ValidPhone(*patch.PhoneNumber) {
			return nil, ErrInvalidPhone
		}
		updates["phoneNumber"] = *patch.PhoneNumber
	}
	if patch.Avatar != nil {
		updates["avatar"] = *patch.Avatar
	}
	if patch.IsOnline != nil {
		updates["isOnline"] = *patch.IsOnline
	}
	if patch.LastSeen != nil {
		updates["lastSeen"] = *patch.LastSeen
	}
	if patch.LastLogin != nil {
		updates["lastLogin"] = *patch.LastLogin
	}
	if patch.LastLogout != nil {
		updates["lastLogout"] = *patch.LastLogout
	}

	if err := r.userRef(id).Update(ctx, updates); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return r.FindByID(ctx, id)
}

// UpdatePassword replaces the password hash of the activated account with the
// given email.
func (r *Repository) UpdatePassword(ctx context.Context, email, newHash string) error {
	rec, err := r.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !rec.IsActive {
		return ErrNotActivated
	}

	updates := map[string]any{
		"password":  newHash,
		"updatedAt": time.Now().UnixMilli(),
	}
	if err := r.userRef(rec.ID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// Activate flips isActive after OTP verification succeeds.
func (r *Repository) Activate(ctx context.Context, id int64) error {
	var rec record
	if err := r.userRef(id).Get(ctx, &rec); err != nil {
		return fmt.Errorf("failed to get user by id: %w", err)
	}
	if rec.ID == 0 {
		return ErrNotFound
	}

	updates := map[string]any{
		"isActive":  true,
		"updatedAt": time.Now().UnixMilli(),
	}
	if err := r.userRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	return nil
}

// AddFavorite appends a book to the user's favorites. Duplicate adds are an
// error; the book's existence is the caller's responsibility.
func (r *Repository) AddFavorite(ctx context.Context, userID, bookID int64) error {
	u, err := r.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	for _, id := range u.FavoriteBooks {
		if id == bookID {
			return ErrFavoriteExists
		}
	}

	updates := map[string]any{
		"favoriteBooks": append(u.FavoriteBooks, bookID),
		"updatedAt":     time.Now().UnixMilli(),
	}
	if err := r.userRef(userID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to add favorite book: %w", err)
	}
	return nil
}

// RemoveFavorite removes a book from the user's favorites. Removing a book
// that is not in the list is an error.
func (r *Repository) RemoveFavorite(ctx context.Context, userID, bookID int64) error {
	u, err := r.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	remaining := make([]int64, 0, len(u.FavoriteBooks))
	found := false
	for _, id := range u.FavoriteBooks {
		if id == bookID {
			found = true
			continue
		}
		remaining = append(remaining, id)
	}
	if !found {
		return ErrFavoriteAbsent
	}

	updates := map[string]any{
		"favoriteBooks": remaining,
		"updatedAt":     time.Now().UnixMilli(),
	}
	if err := r.userRef(userID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to remove favorite book: %w", err)
	}
	return nil
}

// Favorites returns the user's favorite book IDs.
func (r *Repository) Favorites(ctx context.Context, userID int64) ([]int64, error) {
	u, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.FavoriteBooks, nil
}

// List returns every activated user, ordered by ID.
func (r *Repository) List(ctx context.Context) ([]*User, error) {
	var all map[string]record
	if err := r.db.NewRef("users").Get(ctx, &all); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(all))
	for _, rec := range all {
		if !rec.IsActive {
			continue
		}
		users = append(users, mapRecordToModel(&rec))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// HardDelete removes the user node entirely, active or not.
func (r *Repository) HardDelete(ctx context.Context, id int64) error {
	var rec record
	if err := r.userRef(id).Get(ctx, &rec); err != nil {
		return fmt.Errorf("failed to get user by id: %w", err)
	}
	if rec.ID == 0 {
		return ErrNotFound
	}
	if err := r.userRef(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// mapRecordToModel converts the wire record to the domain model.
func mapRecordToModel(rec *record) *User {
	favorites := rec.FavoriteBooks
	if favorites == nil {
		favorites = []int64{}
	}
	return &User{
		ID:            rec.ID,
		Email:         rec.Email,
		PasswordHash:  rec.Password,
		FullName:      rec.FullName,
		PhoneNumber:   rec.PhoneNumber,
		Avatar:        rec.Avatar,
		Role:          rec.Role,
		IsActive:      rec.IsActive,
		IsOnline:      rec.IsOnline,
		LastSeen:      rec.LastSeen,
		LastLogin:     rec.LastLogin,
		LastLogout:    rec.LastLogout,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
		FavoriteBooks: favorites,
	}
}

var _ Store = (*Repository)(nil)

// IsMissing reports whether err means the account is unusable for lookups,
// treating "not activated" the same as missing.
func IsMissing(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotActivated)
}
