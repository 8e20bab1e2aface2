// internal/game/conn.go
package game

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PlayerConn is a single player's live connection to a room. The gateway
// owns the websocket; the room only ever sees this handle and pushes
// events onto Out. Out is buffered and writes never block: a slow or dead
// consumer drops messages instead of stalling the room.
type PlayerConn struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	SessionKey string
	Out        chan Event
	Cancel     func()
}

// outChanSize bounds the per-connection send buffer.
const outChanSize = 32

func NewPlayerConn(userID uuid.UUID, name, sessionKey string, cancel func()) *PlayerConn {
	return &PlayerConn{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		SessionKey: sessionKey,
		Out:        make(chan Event, outChanSize),
		Cancel:     cancel,
	}
}

// Send pushes ev onto the connection's outbound queue non-blockingly.
func (c *PlayerConn) Send(ev Event) {
	select {
	case c.Out <- ev:
	default:
		logrus.Warnf("conn %s: out queue full, dropped %s", c.ID, ev.Type)
	}
}
