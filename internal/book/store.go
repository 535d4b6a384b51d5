package book

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("book not found")

// Book is the slim view of a catalog entry the account service needs when
// validating favorites.
type Book struct {
	ID       int64  `json:"_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	CoverURL string `json:"coverUrl,omitempty"`
	IsActive bool   `json:"isActive"`
}

// Store looks up catalog entries. Soft-deleted books are reported as missing.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Book, error)
}
