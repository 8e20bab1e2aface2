// internal/database/room.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guessop/server/internal/models"
)

// RoomsRepo persists room metadata. Transient round state never touches
// Postgres; only the room row and its pool association live here.
type RoomsRepo struct{}

// InsertRoom persists room metadata and its clip-pool association.
func (RoomsRepo) InsertRoom(ctx context.Context, id uuid.UUID, name string, ownerID uuid.UUID, maxPlayers int, pool models.ClipPool) error {
	q := `
	INSERT INTO rooms (id, name, owner_id, max_players, pool_type, collection_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	var collectionID *uuid.UUID
	if pool.Type == models.PoolCollection {
		collectionID = &pool.CollectionID
	}
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, id, name, ownerID, maxPlayers, pool.Type, collectionID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

// DeleteRoom removes the room row. Deleting an unknown room is a no-op.
func (RoomsRepo) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	_, err := DB.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

// DisplayName resolves a user id to the name shown in rosters.
func (RoomsRepo) DisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	return GetUserDisplayName(ctx, id)
}
