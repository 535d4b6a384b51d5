package database

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// NextID atomically increments the named counter under metadata/ and returns
// the new value. The RTDB transaction retries on contention, so concurrent
// callers always observe distinct IDs.
func NextID(ctx context.Context, client *db.Client, counter string) (int64, error) {
	var next int64

	ref := client.NewRef("metadata/" + counter)
	err := ref.Transaction(ctx, func(node db.TransactionNode) (any, error) {
		var current int64
		if err := node.Unmarshal(&current); err != nil {
			return nil, err
		}
		next = current + 1
		return next, nil
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %q: %w", counter, err)
	}

	return next, nil
}
