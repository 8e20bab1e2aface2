// internal/handlers/room_ws_test.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guessop/server/internal/game"
)

func wsURL(srv *httptest.Server, roomID uuid.UUID, session string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/ws/" + roomID.String()
	if session != "" {
		u += "?session=" + session
	}
	return u
}

func dialRoom(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"guessop"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func TestRoomWSJoinDeliversRoomState(t *testing.T) {
	env := newTestEnv(t, 10)
	id := env.createRoom(t, "ws room")
	userID := uuid.New()
	env.store.setSession("tok-1", userID)

	srv := httptest.NewServer(RoomWSHandler(env.rs.Logger, env.rs))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dialRoom(t, ctx, wsURL(srv, id, "tok-1"))

	// The membership broadcast from the join can land first; the state
	// snapshot follows it.
	var state game.Event
	for i := 0; i < 5; i++ {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var ev game.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == game.EventRoomState {
			state = ev
			break
		}
	}
	require.Equal(t, game.EventRoomState, state.Type, "no state snapshot after join")
	require.NotNil(t, state.State)
	assert.Equal(t, id, state.State.ID)
	require.Len(t, state.State.Players, 1)
	assert.Equal(t, userID, state.State.Players[0].UserID)
}

func TestRoomWSRejectsUnknownSession(t *testing.T) {
	env := newTestEnv(t, 10)
	id := env.createRoom(t, "ws room")

	srv := httptest.NewServer(RoomWSHandler(env.rs.Logger, env.rs))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dialRoom(t, ctx, wsURL(srv, id, "bogus"))

	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev game.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, game.EventUnauthorized, ev.Type)

	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

// outageStore fails session lookups the way a Redis outage would.
type outageStore struct {
	*stubStore
}

func (outageStore) LookupSession(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, errors.New("store unreachable")
}

// A store failure is not an auth verdict: the client gets a transient
// close, not unauthorized.
func TestRoomWSSessionStoreOutage(t *testing.T) {
	env := newTestEnv(t, 10)
	id := env.createRoom(t, "ws room")
	env.rs.Store = outageStore{env.store}

	srv := httptest.NewServer(RoomWSHandler(env.rs.Logger, env.rs))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := dialRoom(t, ctx, wsURL(srv, id, "tok-1"))

	_, _, err := c.Read(ctx)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}
