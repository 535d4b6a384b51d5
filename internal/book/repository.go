package book

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/db"
)

// Repository reads books from books/<id> in the Realtime Database.
type Repository struct {
	db *db.Client
}

func NewRepository(client *db.Client) *Repository {
	return &Repository{db: client}
}

// GetByID retrieves a book. Absent and soft-deleted entries both map to
// ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Book, error) {
	var b Book
	ref := r.db.NewRef("books/" + strconv.FormatInt(id, 10))
	if err := ref.Get(ctx, &b); err != nil {
		return nil, fmt.Errorf("failed to get book by id: %w", err)
	}
	if b.ID == 0 || !b.IsActive {
		return nil, ErrNotFound
	}
	return &b, nil
}

var _ Store = (*Repository)(nil)
