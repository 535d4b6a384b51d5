package user

// User is a platform account stored under users/<id> in the Realtime
// Database. Timestamps are unix milliseconds, matching what the mobile
// clients already consume.
type User struct {
	ID            int64   `json:"_id"`
	Email         string  `json:"email"`
	PasswordHash  string  `json:"-"` // Never expose password hash in JSON
	FullName      string  `json:"fullName"`
	PhoneNumber   string  `json:"phoneNumber"`
	Avatar        string  `json:"avatar"`
	Role          string  `json:"role"`
	IsActive      bool    `json:"isActive"`
	IsOnline      bool    `json:"isOnline"`
	LastSeen      int64   `json:"lastSeen"`
	LastLogin     int64   `json:"lastLogin"`
	LastLogout    int64   `json:"lastLogout,omitempty"`
	CreatedAt     int64   `json:"createdAt"`
	UpdatedAt     int64   `json:"updatedAt"`
	FavoriteBooks []int64 `json:"favoriteBooks"`
}

// CreateParams carries the already-validated, already-hashed inputs for a new
// account. ID may be zero, in which case the store allocates the next
// sequential one.
type CreateParams struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	PhoneNumber  string
	Avatar       string
	Role         string
}

// Patch lists the fields Update is allowed to touch. Nil fields are left
// unchanged.
type Patch struct {
	Email       *string
	FullName    *string
	PhoneNumber *string
	Avatar      *string
	IsOnline    *bool
	LastSeen    *int64
	LastLogin   *int64
	LastLogout  *int64
}
