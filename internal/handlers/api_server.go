// internal/handlers/api_server.go
package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/guessop/server/internal/game"
	"github.com/guessop/server/internal/models"
)

// RoomCatalog is the catalog surface the directory manager needs beyond
// what a running room consumes.
type RoomCatalog interface {
	game.Catalog
	CollectionExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// DirectoryStore is the shared-store surface for room bootstrap, listing
// and session resolution.
type DirectoryStore interface {
	game.SnapshotStore
	LoadRoomSnapshot(ctx context.Context, id uuid.UUID) (models.RoomSnapshot, bool, error)
	DeleteRoomSnapshot(ctx context.Context, id uuid.UUID) error
	AddRoomToDirectory(ctx context.Context, id uuid.UUID) error
	RemoveRoomFromDirectory(ctx context.Context, id uuid.UUID) error
	ListRoomIDs(ctx context.Context) ([]uuid.UUID, error)
	LookupSession(ctx context.Context, token string) (uuid.UUID, bool, error)
}

// Metadata persists room rows and resolves user display names.
type Metadata interface {
	InsertRoom(ctx context.Context, id uuid.UUID, name string, ownerID uuid.UUID, maxPlayers int, pool models.ClipPool) error
	DeleteRoom(ctx context.Context, id uuid.UUID) error
	DisplayName(ctx context.Context, id uuid.UUID) (string, error)
}

// RoomServer is the top-level handle shared by the HTTP handlers and the
// websocket gateway: the room registry plus every external collaborator.
type RoomServer struct {
	Registry *game.Registry
	Catalog  RoomCatalog
	Store    DirectoryStore
	Meta     Metadata
	Logger   *logrus.Logger
	Clock    clockwork.Clock
}

func NewRoomServer(catalog RoomCatalog, store DirectoryStore, meta Metadata, logger *logrus.Logger) *RoomServer {
	if logger == nil {
		logger = logrus.New()
	}
	return &RoomServer{
		Registry: game.NewRegistry(),
		Catalog:  catalog,
		Store:    store,
		Meta:     meta,
		Logger:   logger,
		Clock:    clockwork.NewRealClock(),
	}
}
