// internal/game/heartbeat.go
package game

import "github.com/google/uuid"

// sweepHeartbeats runs on every heartbeat tick: it evicts connections
// whose last pong is older than the staleness threshold, then pings the
// survivors. Eviction takes the same cleanup path as a client disconnect
// and is not surfaced to other players as an error.
func (r *Room) sweepHeartbeats() {
	if r.state == stateClosing {
		return
	}
	now := r.clock.Now()

	var stale []uuid.UUID
	for connID, slot := range r.players {
		if now.Sub(slot.state.LastPongAt) > r.StaleThreshold {
			stale = append(stale, connID)
		}
	}
	for _, connID := range stale {
		r.logger.Warnf("room %s: evicting stale connection %s", r.ID, connID)
		r.leave(connID)
	}

	for connID, slot := range r.players {
		r.pingSeq++
		r.pings[connID] = pingProbe{seq: r.pingSeq, sentAt: now}
		slot.conn.Send(Event{Type: EventPing, Ping: &PingPayload{Seq: r.pingSeq}})
	}
}

// pong records liveness and, when the sequence matches the outstanding
// probe, the measured round-trip time for display.
func (r *Room) pong(connID uuid.UUID, seq int64) {
	slot, ok := r.players[connID]
	if !ok {
		return
	}
	now := r.clock.Now()
	slot.state.LastPongAt = now
	if probe, ok := r.pings[connID]; ok && probe.seq == seq {
		slot.state.RTTMillis = now.Sub(probe.sentAt).Milliseconds()
		delete(r.pings, connID)
	}
}

// flushSnapshot reconciles the shared store copy, but only when local
// state has diverged since the last write.
func (r *Room) flushSnapshot() {
	if !r.dirty || r.store == nil {
		return
	}
	if err := r.store.SaveRoomSnapshot(r.ctx, r.snapshot()); err != nil {
		r.logger.Warnf("room %s: snapshot flush failed: %v", r.ID, err)
		return
	}
	r.dirty = false
}
