// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/guessop/server/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup.
var Rdb *redis.Client

// Shared store key layout. The session:{token} keys are written by the
// auth service; this process only reads them.
const (
	roomKeyPrefix    = "room:"
	roomDirectoryKey = "rooms"
	sessionKeyPrefix = "session:"
)

// snapshotTTL expires abandoned room snapshots so the store cannot
// accumulate keys for rooms whose host process died.
const snapshotTTL = 24 * time.Hour

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// Store is the room-store client. It satisfies game.SnapshotStore and the
// directory/session needs of the handlers.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps the global client connected by ConnectRedis.
func NewStore() *Store {
	return &Store{rdb: Rdb}
}

// SaveRoomSnapshot overwrites the serialized room copy under room:{id}.
func (s *Store) SaveRoomSnapshot(ctx context.Context, snap models.RoomSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal room snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, roomKeyPrefix+snap.ID.String(), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to write room snapshot: %w", err)
	}
	return nil
}

// LoadRoomSnapshot reads the room:{id} copy; found is false when absent.
func (s *Store) LoadRoomSnapshot(ctx context.Context, id uuid.UUID) (models.RoomSnapshot, bool, error) {
	var snap models.RoomSnapshot
	data, err := s.rdb.Get(ctx, roomKeyPrefix+id.String()).Bytes()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to read room snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("failed to decode room snapshot: %w", err)
	}
	return snap, true, nil
}

// DeleteRoomSnapshot removes room:{id}. Deleting an absent key is a no-op.
func (s *Store) DeleteRoomSnapshot(ctx context.Context, id uuid.UUID) error {
	return s.rdb.Del(ctx, roomKeyPrefix+id.String()).Err()
}

// AddRoomToDirectory appends the id to the ordered list of live rooms.
func (s *Store) AddRoomToDirectory(ctx context.Context, id uuid.UUID) error {
	return s.rdb.RPush(ctx, roomDirectoryKey, id.String()).Err()
}

// RemoveRoomFromDirectory drops every occurrence of the id from the list.
func (s *Store) RemoveRoomFromDirectory(ctx context.Context, id uuid.UUID) error {
	return s.rdb.LRem(ctx, roomDirectoryKey, 0, id.String()).Err()
}

// ListRoomIDs returns the live room directory in insertion order.
func (s *Store) ListRoomIDs(ctx context.Context) ([]uuid.UUID, error) {
	raw, err := s.rdb.LRange(ctx, roomDirectoryKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read room directory: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// sessionRecord mirrors what the auth service writes under session:{token}.
type sessionRecord struct {
	UserID uuid.UUID `json:"userId"`
}

// LookupSession resolves a session token to a user id. A missing token
// returns found=false rather than an error.
func (s *Store) LookupSession(ctx context.Context, token string) (uuid.UUID, bool, error) {
	data, err := s.rdb.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return rec.UserID, true, nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
