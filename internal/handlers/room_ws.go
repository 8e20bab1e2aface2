// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guessop/server/internal/game"
	"github.com/guessop/server/internal/middleware"
)

// RoomWSHandler terminates player connections for one room: it resolves
// the session token against the shared store, registers the player with
// the room goroutine, and runs the read/write pumps.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/rooms/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room_id", http.StatusBadRequest)
			return
		}
		roomID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid room_id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"guessop"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "guessop" {
			c.Close(BadSubprotocolError, "client must speak the guessop subprotocol")
			return
		}

		// Session tokens are issued by the auth service and looked up in
		// the shared store. No token or an unknown one gets an
		// unauthorized event and an immediate close; no PlayerState is
		// created.
		token := r.URL.Query().Get("session")
		userID, found := uuid.Nil, false
		if token != "" {
			userID, found, err = rs.Store.LookupSession(r.Context(), token)
			if err != nil {
				// A store outage is not an auth verdict; close with a
				// transient failure so the client retries instead of
				// discarding its token.
				logger.Warnf("session lookup failed for room %s: %v", roomID, err)
				c.Close(websocket.StatusInternalError, "session lookup failed")
				return
			}
		}
		if !found {
			rejectUnauthorized(r.Context(), c)
			return
		}

		room, exists := rs.Registry.Get(roomID)
		if !exists {
			c.Close(InvalidRoomIDError, "room does not exist")
			return
		}

		name, err := rs.Meta.DisplayName(r.Context(), userID)
		if err != nil {
			logger.Warnf("room %s: error fetching user %s name: %v", roomID, userID, err)
			name = fmt.Sprintf("User_%s", userID.String()[:4])
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := game.NewPlayerConn(userID, name, token, cancel)

		snap, err := room.Join(conn)
		if err != nil {
			switch {
			case errors.Is(err, game.ErrRoomFull):
				c.Close(RoomFullError, "room is full")
			case errors.Is(err, game.ErrRoomClosed):
				c.Close(InvalidRoomIDError, "room is closing")
			default:
				c.Close(websocket.StatusInternalError, "join failed")
			}
			return
		}
		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		// The joining player immediately gets the full room state so a
		// page reload resumes mid-round.
		conn.Send(game.Event{Type: game.EventRoomState, State: &snap})

		go writePump(ctx, c, conn, logger)
		readPump(ctx, c, room, conn, logger)

		room.Leave(conn.ID)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, nil)
	}
}

// rejectUnauthorized emits the unauthorized event before closing so the
// client can distinguish auth failure from a transport error.
func rejectUnauthorized(ctx context.Context, c *websocket.Conn) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(game.Event{Type: game.EventUnauthorized})
	_ = c.Write(writeCtx, websocket.MessageText, data)
	c.Close(websocket.StatusPolicyViolation, "unauthorized")
}

// readPump decodes inbound frames exactly once into typed messages and
// dispatches them to the room. Messages invalid for the current round
// phase are dropped by the room, not errored.
func readPump(ctx context.Context, c *websocket.Conn, room *game.Room, conn *game.PlayerConn, logger *logrus.Logger) {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus != websocket.StatusNormalClosure &&
				closeStatus != websocket.StatusGoingAway &&
				!strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("read error for conn %s: %v", conn.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet game.ClientMessage
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("invalid json from conn %s: %v", conn.ID, err)
			continue
		}

		switch packet.Type {
		case game.MsgMarkReady:
			room.MarkReady(conn.ID)
		case game.MsgMarkLoaded:
			room.MarkLoaded(conn.ID)
		case game.MsgSubmitGuess:
			if packet.AnswerID != nil {
				room.SubmitGuess(conn.ID, *packet.AnswerID)
			}
		case game.MsgChat:
			room.Chat(conn.ID, packet.Text)
		case game.MsgPong:
			room.Pong(conn.ID, packet.Seq)
		default:
			logger.Warnf("unknown message type %q from conn %s", packet.Type, conn.ID)
		}
	}
}

// writePump drains the connection's outbound queue. A write failure tears
// down only this connection; other players are unaffected.
func writePump(ctx context.Context, c *websocket.Conn, conn *game.PlayerConn, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The room cancels connections during teardown right after
			// queueing room-closing; deliver whatever is still queued.
			flushPending(c, conn)
			return
		case ev := <-conn.Out:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warnf("failed to marshal outgoing msg for conn %s: %v", conn.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write to websocket for conn %s: %v", conn.ID, err)
				return
			}
			// room-closing is the last frame a room ever sends; close
			// the socket cleanly after delivering it.
			if ev.Type == game.EventRoomClosing {
				c.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("failed to send ping to conn %s: %v", conn.ID, err)
				return
			}
		}
	}
}

// flushPending performs a best-effort drain of queued outbound events
// after the connection context is cancelled.
func flushPending(c *websocket.Conn, conn *game.PlayerConn) {
	writeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for {
		select {
		case ev := <-conn.Out:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
				return
			}
			if ev.Type == game.EventRoomClosing {
				c.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
		default:
			return
		}
	}
}
