package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetUserDisplayName resolves a user id to the name shown in rosters.
// Account management itself lives in the auth service; this is the only
// user query the room service needs.
func GetUserDisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	q := `SELECT username FROM users WHERE id = $1`
	if err := DB.QueryRow(ctx, q, id).Scan(&name); err != nil {
		return "", fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	return name, nil
}
