// internal/database/catalog.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/guessop/server/internal/models"
)

// CatalogClient is the read-only clip catalog: it resolves clip ids to
// media references and anime display names. It satisfies game.Catalog.
type CatalogClient struct{}

// ListClipIDs returns the ids of every clip a pool can draw from. The
// "all" pool is restricted to clips with a usable media path.
func (CatalogClient) ListClipIDs(ctx context.Context, pool models.ClipPool) ([]uuid.UUID, error) {
	var q string
	var args []interface{}
	switch pool.Type {
	case models.PoolAll:
		q = `SELECT id FROM videos WHERE media_url <> ''`
	case models.PoolCollection:
		q = `
		SELECT v.id
		FROM videos v
		JOIN collection_videos cv ON cv.video_id = v.id
		WHERE cv.collection_id = $1 AND v.media_url <> ''
		`
		args = append(args, pool.CollectionID)
	default:
		return nil, fmt.Errorf("unknown pool type %q", pool.Type)
	}

	rows, err := DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetClip fetches one clip record.
func (CatalogClient) GetClip(ctx context.Context, id uuid.UUID) (models.Clip, error) {
	var c models.Clip
	q := `SELECT id, anime_id, media_url FROM videos WHERE id = $1`
	err := DB.QueryRow(ctx, q, id).Scan(&c.ID, &c.AnimeID, &c.MediaURL)
	if err != nil {
		return c, fmt.Errorf("failed to fetch clip %s: %w", id, err)
	}
	return c, nil
}

// AnimeName resolves an anime id to its display name.
func (CatalogClient) AnimeName(ctx context.Context, animeID uuid.UUID) (models.AnswerOption, error) {
	var a models.AnswerOption
	q := `SELECT id, name FROM anime WHERE id = $1`
	err := DB.QueryRow(ctx, q, animeID).Scan(&a.ID, &a.Name)
	if err != nil {
		return a, fmt.Errorf("failed to fetch anime %s: %w", animeID, err)
	}
	return a, nil
}

// DecoyNames draws n distinct random anime excluding the correct one.
func (CatalogClient) DecoyNames(ctx context.Context, exclude uuid.UUID, n int) ([]models.AnswerOption, error) {
	q := `SELECT id, name FROM anime WHERE id <> $1 ORDER BY random() LIMIT $2`
	rows, err := DB.Query(ctx, q, exclude, n)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch decoys: %w", err)
	}
	defer rows.Close()

	var out []models.AnswerOption
	for rows.Next() {
		var a models.AnswerOption
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CollectionExists reports whether a clip collection is known.
func (CatalogClient) CollectionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM collections WHERE id = $1)`
	if err := DB.QueryRow(ctx, q, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", id, err)
	}
	return exists, nil
}
