// internal/handlers/room.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guessop/server/internal/auth"
	"github.com/guessop/server/internal/game"
	"github.com/guessop/server/internal/models"
)

const (
	defaultMaxPlayers = 8
	maxMaxPlayers     = 16
)

type createRoomRequest struct {
	Name       string          `json:"name"`
	MaxPlayers int             `json:"maxPlayers"`
	Pool       models.ClipPool `json:"clipPool"`
}

type createRoomResponse struct {
	ID uuid.UUID `json:"id"`
}

// CreateRoomHandler allocates a room, persists its metadata, bootstraps
// the shared-store snapshot and directory entry, and spawns the room
// goroutine bound to the new id.
func CreateRoomHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ownerID, ok := authenticateRequest(w, r)
		if !ok {
			return
		}

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "room name required", http.StatusBadRequest)
			return
		}
		if req.MaxPlayers == 0 {
			req.MaxPlayers = defaultMaxPlayers
		}
		if req.MaxPlayers < 2 || req.MaxPlayers > maxMaxPlayers {
			http.Error(w, "maxPlayers out of range", http.StatusBadRequest)
			return
		}
		if req.Pool.Type == "" {
			req.Pool.Type = models.PoolAll
		}

		switch req.Pool.Type {
		case models.PoolAll:
		case models.PoolCollection:
			exists, err := rs.Catalog.CollectionExists(r.Context(), req.Pool.CollectionID)
			if err != nil {
				http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
				return
			}
			if !exists {
				http.Error(w, "unknown clip collection", http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, "unknown pool type", http.StatusBadRequest)
			return
		}

		room := game.NewRoom(game.RoomConfig{
			Name:       req.Name,
			OwnerID:    ownerID,
			MaxPlayers: req.MaxPlayers,
			Pool:       req.Pool,
			Catalog:    rs.Catalog,
			Store:      rs.Store,
			Clock:      rs.Clock,
			Logger:     rs.Logger,
		})
		if err := room.Start(r.Context()); err != nil {
			if errors.Is(err, game.ErrInvalidPool) {
				http.Error(w, "clip pool too small for history window", http.StatusBadRequest)
				return
			}
			rs.Logger.Errorf("room start failed: %v", err)
			http.Error(w, "failed to start room", http.StatusInternalServerError)
			return
		}

		if err := rs.Meta.InsertRoom(r.Context(), room.ID, req.Name, ownerID, req.MaxPlayers, req.Pool); err != nil {
			rs.Logger.Errorf("room insert failed: %v", err)
			room.Close()
			http.Error(w, "failed to persist room", http.StatusInternalServerError)
			return
		}

		// Best-effort bootstrap of the shared store; the heartbeat
		// reconciler repairs any write that fails here.
		if snap, ok := room.Snapshot(); ok {
			if err := rs.Store.SaveRoomSnapshot(r.Context(), snap); err != nil {
				rs.Logger.Warnf("room %s: initial snapshot write failed: %v", room.ID, err)
			}
		}
		if err := rs.Store.AddRoomToDirectory(r.Context(), room.ID); err != nil {
			rs.Logger.Warnf("room %s: directory append failed: %v", room.ID, err)
		}

		rs.Registry.Add(room)
		go reapRoom(rs, room)
		rs.Logger.Infof("room %s created by %s", room.ID, ownerID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(createRoomResponse{ID: room.ID})
	}
}

// ListRoomsHandler returns summaries for every room in the directory:
// rooms hosted here straight from the registry, rooms hosted by other
// processes from their shared-store snapshots.
func ListRoomsHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries := []models.RoomSummary{}
		local := make(map[uuid.UUID]bool)
		for _, room := range rs.Registry.List() {
			if s, ok := room.Summary(); ok {
				summaries = append(summaries, s)
				local[s.ID] = true
			}
		}

		ids, err := rs.Store.ListRoomIDs(r.Context())
		if err != nil {
			rs.Logger.Warnf("directory read failed: %v", err)
			ids = nil
		}
		for _, id := range ids {
			if local[id] {
				continue
			}
			snap, found, err := rs.Store.LoadRoomSnapshot(r.Context(), id)
			if err != nil || !found {
				continue
			}
			summaries = append(summaries, models.RoomSummary{
				ID:          snap.ID,
				Name:        snap.Name,
				Status:      snap.Status,
				PlayerCount: len(snap.Players),
				MaxPlayers:  snap.MaxPlayers,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

// GetRoomHandler returns the room snapshot: the authoritative copy when
// the room runs here, otherwise the shared-store copy.
func GetRoomHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := roomIDFromPath(w, r, "/rooms/")
		if !ok {
			return
		}
		if room, exists := rs.Registry.Get(roomID); exists {
			if snap, alive := room.Snapshot(); alive {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(snap)
				return
			}
		}
		snap, found, err := rs.Store.LoadRoomSnapshot(r.Context(), roomID)
		if err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		if !found {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

// DeleteRoomHandler tears the room down. Connected players get a
// room-closing broadcast before their connections drop. Deleting a room
// that does not exist succeeds; the whole operation is idempotent.
func DeleteRoomHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := authenticateRequest(w, r); !ok {
			return
		}
		roomID, ok := roomIDFromPath(w, r, "/rooms/")
		if !ok {
			return
		}

		if room, exists := rs.Registry.Remove(roomID); exists {
			room.Close()
		}
		if err := rs.Meta.DeleteRoom(r.Context(), roomID); err != nil {
			rs.Logger.Warnf("room %s: metadata delete failed: %v", roomID, err)
		}
		if err := rs.Store.RemoveRoomFromDirectory(r.Context(), roomID); err != nil {
			rs.Logger.Warnf("room %s: directory removal failed: %v", roomID, err)
		}
		if err := rs.Store.DeleteRoomSnapshot(r.Context(), roomID); err != nil {
			rs.Logger.Warnf("room %s: snapshot delete failed: %v", roomID, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RoomsHandler multiplexes /rooms and /rooms/{id} the way the mux
// patterns of this codebase expect.
func RoomsHandler(rs *RoomServer) http.HandlerFunc {
	create := CreateRoomHandler(rs)
	list := ListRoomsHandler(rs)
	get := GetRoomHandler(rs)
	del := DeleteRoomHandler(rs)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rooms" || r.URL.Path == "/rooms/" {
			switch r.Method {
			case http.MethodPost:
				create(w, r)
			case http.MethodGet:
				list(w, r)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}
		switch r.Method {
		case http.MethodGet:
			get(w, r)
		case http.MethodDelete:
			del(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// reapRoom waits for the room goroutine to exit and removes every trace
// of it. Rooms close themselves on selection faults, so teardown cannot
// be left to DeleteRoomHandler alone; running both is harmless since all
// the cleanup steps tolerate absence.
func reapRoom(rs *RoomServer, room *game.Room) {
	<-room.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rs.Registry.Remove(room.ID)
	if err := rs.Meta.DeleteRoom(ctx, room.ID); err != nil {
		rs.Logger.Warnf("room %s: metadata delete failed: %v", room.ID, err)
	}
	if err := rs.Store.RemoveRoomFromDirectory(ctx, room.ID); err != nil {
		rs.Logger.Warnf("room %s: directory removal failed: %v", room.ID, err)
	}
	if err := rs.Store.DeleteRoomSnapshot(ctx, room.ID); err != nil {
		rs.Logger.Warnf("room %s: snapshot delete failed: %v", room.ID, err)
	}
	rs.Logger.Infof("room %s reaped", room.ID)
}

func authenticateRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token := cookieValue(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		http.Error(w, "missing auth_token", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user id format in token", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return userID, true
}

// cookieValue pulls one cookie's value out of a raw Cookie header, or ""
// when the cookie is absent.
func cookieValue(header, name string) string {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, name+"="); ok {
			return v
		}
	}
	return ""
}

func roomIDFromPath(w http.ResponseWriter, r *http.Request, prefix string) (uuid.UUID, bool) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	idStr := strings.SplitN(rest, "/", 2)[0]
	roomID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return roomID, true
}
