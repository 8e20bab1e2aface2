// internal/game/room_test.go
package game

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guessop/server/internal/models"
)

// fakeCatalog serves a fixed set of clips, one anime per clip.
type fakeCatalog struct {
	clips map[uuid.UUID]models.Clip
	names map[uuid.UUID]models.AnswerOption
}

func newFakeCatalog(n int) *fakeCatalog {
	fc := &fakeCatalog{
		clips: make(map[uuid.UUID]models.Clip),
		names: make(map[uuid.UUID]models.AnswerOption),
	}
	for i := 0; i < n; i++ {
		animeID := uuid.New()
		clipID := uuid.New()
		fc.clips[clipID] = models.Clip{
			ID:       clipID,
			AnimeID:  animeID,
			MediaURL: fmt.Sprintf("https://cdn.example/clips/%d.webm", i),
		}
		fc.names[animeID] = models.AnswerOption{ID: animeID, Name: fmt.Sprintf("Anime %02d", i)}
	}
	return fc
}

func (f *fakeCatalog) ListClipIDs(_ context.Context, _ models.ClipPool) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(f.clips))
	for id := range f.clips {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeCatalog) GetClip(_ context.Context, id uuid.UUID) (models.Clip, error) {
	return f.clips[id], nil
}

func (f *fakeCatalog) AnimeName(_ context.Context, animeID uuid.UUID) (models.AnswerOption, error) {
	return f.names[animeID], nil
}

func (f *fakeCatalog) DecoyNames(_ context.Context, exclude uuid.UUID, n int) ([]models.AnswerOption, error) {
	out := make([]models.AnswerOption, 0, n)
	for id, opt := range f.names {
		if id == exclude || len(out) == n {
			continue
		}
		out = append(out, opt)
	}
	return out, nil
}

// fakeStore records every snapshot flush.
type fakeStore struct {
	mu    sync.Mutex
	saves []models.RoomSnapshot
}

func (f *fakeStore) SaveRoomSnapshot(_ context.Context, snap models.RoomSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, snap)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) last() (models.RoomSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return models.RoomSnapshot{}, false
	}
	return f.saves[len(f.saves)-1], true
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestRoom(t *testing.T, clk clockwork.Clock, cat Catalog, store SnapshotStore) *Room {
	t.Helper()
	r := NewRoom(RoomConfig{
		Name:       "test room",
		OwnerID:    uuid.New(),
		MaxPlayers: 8,
		Pool:       models.ClipPool{Type: models.PoolAll},
		Catalog:    cat,
		Store:      store,
		Clock:      clk,
		Logger:     quietLogger(),
	})
	// Tests drive the fake clock far beyond the real pong cadence; keep
	// eviction out of the way unless a test opts back in.
	r.StaleThreshold = time.Hour
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Close)
	return r
}

// flush drains everything already enqueued on the room goroutine. Safe to
// call from require.Eventually conditions, unlike a failing assertion.
func flush(r *Room) { r.doWait(func() {}) }

func joinPlayer(t *testing.T, r *Room, name, sessionKey string) *PlayerConn {
	t.Helper()
	conn := NewPlayerConn(uuid.New(), name, sessionKey, func() {})
	_, err := r.Join(conn)
	require.NoError(t, err)
	return conn
}

// sync flushes everything already enqueued on the room goroutine.
func (r *Room) sync(t *testing.T) {
	t.Helper()
	require.True(t, r.doWait(func() {}), "room closed unexpectedly")
}

func drain(c *PlayerConn) []Event {
	var out []Event
	for {
		select {
		case ev := <-c.Out:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countType(evs []Event, et EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == et {
			n++
		}
	}
	return n
}

func findEvent(evs []Event, et EventType) (Event, bool) {
	for _, ev := range evs {
		if ev.Type == et {
			return ev, true
		}
	}
	return Event{}, false
}

// correctAnswer reads the in-flight round's answer off the room goroutine.
func correctAnswer(t *testing.T, r *Room) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	require.True(t, r.doWait(func() {
		if r.round != nil {
			id = r.round.Correct.ID
		}
	}))
	require.NotEqual(t, uuid.Nil, id, "no round in flight")
	return id
}

// A pool the same size as the history window must be rejected up front:
// after one full window of reveals no unseen clip would remain and the
// next round could only starve.
func TestStartRejectsPoolNotExceedingHistoryWindow(t *testing.T) {
	for _, size := range []int{HistoryCapacity - 1, HistoryCapacity} {
		r := NewRoom(RoomConfig{
			Name:    "tiny",
			Pool:    models.ClipPool{Type: models.PoolAll},
			Catalog: newFakeCatalog(size),
			Clock:   clockwork.NewFakeClock(),
			Logger:  quietLogger(),
		})
		err := r.Start(context.Background())
		assert.ErrorIs(t, err, ErrInvalidPool, "pool size %d", size)
	}
}

// A completed readiness barrier must start exactly one round, no matter
// how the final mark-ready lands or how often it is repeated.
func TestReadyBarrierStartsExactlyOneRound(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)

	conns := []*PlayerConn{
		joinPlayer(t, r, "alice", "s-a"),
		joinPlayer(t, r, "bob", "s-b"),
		joinPlayer(t, r, "carol", "s-c"),
	}
	for _, c := range conns {
		r.MarkReady(c.ID)
	}
	r.sync(t)

	for _, c := range conns {
		evs := drain(c)
		assert.Equal(t, 1, countType(evs, EventRoundStarted))
	}

	// A stray repeat after the barrier completed is ignored.
	r.MarkReady(conns[0].ID)
	r.sync(t)
	for _, c := range conns {
		assert.Zero(t, countType(drain(c), EventRoundStarted))
	}
}

func TestRoundStartedHidesCorrectAnswer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	c := joinPlayer(t, r, "alice", "s-a")

	r.MarkReady(c.ID)
	r.sync(t)

	ev, ok := findEvent(drain(c), EventRoundStarted)
	require.True(t, ok)
	require.NotNil(t, ev.Round)
	assert.Len(t, ev.Round.Candidates, DecoyCount+1)
	assert.NotEmpty(t, ev.Round.ClipRef)

	// The announced candidates include the answer but nothing singles it out.
	correct := correctAnswer(t, r)
	found := 0
	for _, opt := range ev.Round.Candidates {
		if opt.ID == correct {
			found++
		}
	}
	assert.Equal(t, 1, found)
}

func TestGuessingScoresOnceAndIgnoresDuplicates(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")
	bob := joinPlayer(t, r, "bob", "s-b")

	r.MarkReady(alice.ID)
	r.MarkReady(bob.ID)
	r.MarkLoaded(alice.ID)
	r.MarkLoaded(bob.ID)
	r.sync(t)

	evs := drain(alice)
	_, ok := findEvent(evs, EventGuessingOpen)
	require.True(t, ok, "guess window should open once everyone loaded")
	drain(bob)

	correct := correctAnswer(t, r)
	wrong := uuid.New()

	r.SubmitGuess(alice.ID, correct)
	r.SubmitGuess(alice.ID, correct) // duplicate, ignored
	r.SubmitGuess(bob.ID, wrong)
	r.sync(t)

	evs = drain(alice)
	require.Equal(t, 1, countType(evs, EventScoreUpdate))
	scoreEv, _ := findEvent(evs, EventScoreUpdate)
	assert.Equal(t, ScoreAward, scoreEv.Score.Score)
	assert.Equal(t, alice.UserID, scoreEv.Score.UserID)

	// Deadline passes: reveal carries the answer and the scoreboard.
	clk.Advance(r.GuessWindow)
	require.Eventually(t, func() bool {
		snap, ok := r.Snapshot()
		return ok && snap.Round != nil && snap.Round.Phase == models.PhaseRevealed
	}, time.Second, 5*time.Millisecond)

	evs = drain(bob)
	reveal, ok := findEvent(evs, EventRoundRevealed)
	require.True(t, ok)
	assert.Equal(t, correct, reveal.Reveal.Correct.ID)
	for _, entry := range reveal.Reveal.Scores {
		if entry.UserID == alice.UserID {
			assert.Equal(t, ScoreAward, entry.Score)
		}
		if entry.UserID == bob.UserID {
			assert.Zero(t, entry.Score)
		}
	}

	// Guesses after the reveal never score.
	r.SubmitGuess(bob.ID, correct)
	r.sync(t)
	assert.Zero(t, countType(drain(bob), EventScoreUpdate))
}

func TestLoadBarrierTimeoutForfeitsUnloadedPlayer(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")
	bob := joinPlayer(t, r, "bob", "s-b")

	r.MarkReady(alice.ID)
	r.MarkReady(bob.ID)
	r.MarkLoaded(alice.ID)
	r.sync(t)

	// Bob never loads; the barrier gives up after the wait.
	clk.Advance(r.LoadBarrierWait)
	require.Eventually(t, func() bool {
		snap, ok := r.Snapshot()
		return ok && snap.Round != nil && snap.Round.Phase == models.PhaseGuessing
	}, time.Second, 5*time.Millisecond)

	correct := correctAnswer(t, r)
	r.SubmitGuess(bob.ID, correct) // forfeited, ignored
	r.SubmitGuess(alice.ID, correct)
	r.sync(t)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	for _, p := range snap.Players {
		switch p.Name {
		case "alice":
			assert.Equal(t, ScoreAward, p.Score)
		case "bob":
			assert.Zero(t, p.Score, "an unloaded player forfeits the round")
		}
	}
}

func TestRevealPauseRearmsReadinessBarrier(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")

	r.MarkReady(alice.ID)
	r.MarkLoaded(alice.ID)
	r.sync(t)

	clk.Advance(r.GuessWindow)
	require.Eventually(t, func() bool {
		snap, ok := r.Snapshot()
		return ok && snap.Round != nil && snap.Round.Phase == models.PhaseRevealed
	}, time.Second, 5*time.Millisecond)

	clk.Advance(r.RevealPause)
	require.Eventually(t, func() bool {
		snap, ok := r.Snapshot()
		return ok && snap.Round == nil && snap.Status == models.RoomWaiting
	}, time.Second, 5*time.Millisecond)

	// Ready flags were reset; the next round needs a fresh barrier.
	snap, _ := r.Snapshot()
	require.Len(t, snap.Players, 1)
	assert.False(t, snap.Players[0].Ready)
	assert.False(t, snap.Players[0].Loaded)

	// And the cycle runs again from here.
	drain(alice)
	r.MarkReady(alice.ID)
	r.sync(t)
	assert.Equal(t, 1, countType(drain(alice), EventRoundStarted))
}

func TestNoRepeatWithinHistoryWindowAcrossRounds(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(6), nil)
	alice := joinPlayer(t, r, "alice", "s-a")

	seen := make([]uuid.UUID, 0, 8)
	for i := 0; i < 8; i++ {
		r.MarkReady(alice.ID)
		r.MarkLoaded(alice.ID)
		r.sync(t)

		snap, ok := r.Snapshot()
		require.True(t, ok)
		require.NotNil(t, snap.Round, "round %d did not start", i)
		clipID := snap.Round.Clip.ID
		start := len(seen) - HistoryCapacity
		if start < 0 {
			start = 0
		}
		for _, prev := range seen[start:] {
			require.NotEqual(t, prev, clipID, "round %d repeated a recent clip", i)
		}
		seen = append(seen, clipID)

		clk.Advance(r.GuessWindow)
		require.Eventually(t, func() bool {
			snap, ok := r.Snapshot()
			return ok && snap.Round != nil && snap.Round.Phase == models.PhaseRevealed
		}, time.Second, 5*time.Millisecond)
		clk.Advance(r.RevealPause)
		require.Eventually(t, func() bool {
			snap, ok := r.Snapshot()
			return ok && snap.Round == nil
		}, time.Second, 5*time.Millisecond)
	}
}

func TestLeaveCompletesReadyBarrier(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")
	bob := joinPlayer(t, r, "bob", "s-b")

	r.MarkReady(alice.ID)
	r.sync(t)
	drain(alice)

	// Bob, the only holdout, disconnects; the barrier is now satisfied.
	r.Leave(bob.ID)
	r.sync(t)
	assert.Equal(t, 1, countType(drain(alice), EventRoundStarted))
}

func TestLastLeaveAbortsRound(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")

	r.MarkReady(alice.ID)
	r.MarkLoaded(alice.ID)
	r.sync(t)

	r.Leave(alice.ID)
	r.sync(t)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	assert.Nil(t, snap.Round)
	assert.Equal(t, models.RoomWaiting, snap.Status)
	assert.Empty(t, snap.Players)
}

func TestHeartbeatEvictsStaleConnection(t *testing.T) {
	clk := clockwork.NewFakeClock()
	cat := newFakeCatalog(10)
	store := &fakeStore{}

	r := NewRoom(RoomConfig{
		Name:       "hb",
		MaxPlayers: 8,
		Pool:       models.ClipPool{Type: models.PoolAll},
		Catalog:    cat,
		Store:      store,
		Clock:      clk,
		Logger:     quietLogger(),
	})
	r.HeartbeatPeriod = 2 * time.Second
	r.StaleThreshold = 5 * time.Second
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Close)

	alive := joinPlayer(t, r, "alive", "s-1")
	ghost := joinPlayer(t, r, "ghost", "s-2")

	// alive answers every probe, ghost never does.
	require.Eventually(t, func() bool {
		clk.Advance(r.HeartbeatPeriod)
		flush(r)
		for _, ev := range drain(alive) {
			if ev.Type == EventPing {
				r.Pong(alive.ID, ev.Ping.Seq)
			}
		}
		drain(ghost)
		snap, ok := r.Snapshot()
		return ok && len(snap.Players) == 1
	}, time.Second, time.Millisecond)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alive", snap.Players[0].Name)

	// The eviction was announced to the survivor and reconciled to the store.
	found := false
	for _, ev := range drain(alive) {
		if ev.Type == EventMembershipUpdate && len(ev.Membership.Players) == 1 {
			found = true
		}
	}
	assert.True(t, found, "survivor should see a one-player roster")
	assert.Positive(t, store.count(), "dirty state should flush to the store")
}

func TestPongRecordsRoundTrip(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	c := joinPlayer(t, r, "alice", "s-a")

	clk.Advance(r.HeartbeatPeriod)
	var ping Event
	require.Eventually(t, func() bool {
		flush(r)
		ev, ok := findEvent(drain(c), EventPing)
		if ok {
			ping = ev
		}
		return ok
	}, time.Second, time.Millisecond)

	clk.Advance(40 * time.Millisecond)
	r.Pong(c.ID, ping.Ping.Seq)
	r.sync(t)

	snap, _ := r.Snapshot()
	require.Len(t, snap.Players, 1)
	assert.Equal(t, int64(40), snap.Players[0].RTTMillis)
}

func TestReconnectRebindsSessionAndKeepsScore(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-alice")

	r.MarkReady(alice.ID)
	r.MarkLoaded(alice.ID)
	r.sync(t)
	r.SubmitGuess(alice.ID, correctAnswer(t, r))
	r.sync(t)

	// Leave an outstanding ping probe on the old connection.
	clk.Advance(r.HeartbeatPeriod)
	require.Eventually(t, func() bool {
		flush(r)
		_, ok := findEvent(drain(alice), EventPing)
		return ok
	}, time.Second, time.Millisecond)

	var cancelled bool
	alice.Cancel = func() { cancelled = true }

	fresh := NewPlayerConn(alice.UserID, "alice", "s-alice", func() {})
	snap, err := r.Join(fresh)
	require.NoError(t, err)

	require.Len(t, snap.Players, 1, "rebind must not duplicate the player")
	assert.Equal(t, ScoreAward, snap.Players[0].Score)
	assert.Equal(t, fresh.ID, snap.Players[0].ConnID)
	assert.True(t, cancelled, "the stale connection is torn down")
	assert.NotNil(t, snap.Round, "mid-round snapshot lets the client resume")

	// The replaced connection's probe goes with it.
	var staleProbe bool
	require.True(t, r.doWait(func() {
		_, staleProbe = r.pings[alice.ID]
	}))
	assert.False(t, staleProbe, "rebind must drop the old connection's probe")
}

func TestJoinRejectsWhenFull(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := NewRoom(RoomConfig{
		Name:       "full",
		MaxPlayers: 2,
		Pool:       models.ClipPool{Type: models.PoolAll},
		Catalog:    newFakeCatalog(10),
		Clock:      clk,
		Logger:     quietLogger(),
	})
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(r.Close)

	joinPlayer(t, r, "a", "s-1")
	joinPlayer(t, r, "b", "s-2")

	_, err := r.Join(NewPlayerConn(uuid.New(), "c", "s-3", func() {}))
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestCloseBroadcastsAndStopsTimers(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")

	r.MarkReady(alice.ID)
	r.MarkLoaded(alice.ID)
	r.sync(t)
	drain(alice)

	r.Close()
	<-r.Done()

	assert.Equal(t, 1, countType(drain(alice), EventRoomClosing))

	// The room is gone: no API responds and a late deadline fires nothing.
	_, ok := r.Snapshot()
	assert.False(t, ok)
	clk.Advance(time.Minute)
	assert.Zero(t, countType(drain(alice), EventRoundRevealed))

	// Closing twice is fine.
	r.Close()
}

// Selection starvation is room-fatal: the room tells everyone it is
// closing and its goroutine exits.
func TestSelectionExhaustionClosesRoom(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(HistoryCapacity+1), nil)
	alice := joinPlayer(t, r, "alice", "s-a")
	drain(alice)

	// Fill a window as large as the pool so no unseen clip remains.
	require.True(t, r.doWait(func() {
		r.history = NewHistory(len(r.poolIDs))
		for _, id := range r.poolIDs {
			r.history.Push(id)
		}
	}))

	r.MarkReady(alice.ID)
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not close after selection starved")
	}

	assert.Equal(t, 1, countType(drain(alice), EventRoomClosing))
	_, err := r.Join(NewPlayerConn(uuid.New(), "late", "s-l", func() {}))
	assert.ErrorIs(t, err, ErrRoomClosed)
}

// The last store write for a room marks it OFFLINE so readers that race
// the directory cleanup do not see a joinable ghost.
func TestTeardownWritesOfflineSnapshot(t *testing.T) {
	clk := clockwork.NewFakeClock()
	store := &fakeStore{}
	r := newTestRoom(t, clk, newFakeCatalog(10), store)
	joinPlayer(t, r, "alice", "s-a")

	r.Close()
	<-r.Done()

	snap, ok := store.last()
	require.True(t, ok, "teardown must flush a final snapshot")
	assert.Equal(t, models.RoomOffline, snap.Status)
	assert.Empty(t, snap.Players)
}

func TestJoinAfterCloseFails(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	r.Close()

	_, err := r.Join(NewPlayerConn(uuid.New(), "late", "s-l", func() {}))
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestChatRelayedToEveryone(t *testing.T) {
	clk := clockwork.NewFakeClock()
	r := newTestRoom(t, clk, newFakeCatalog(10), nil)
	alice := joinPlayer(t, r, "alice", "s-a")
	bob := joinPlayer(t, r, "bob", "s-b")
	drain(alice)
	drain(bob)

	r.Chat(alice.ID, "gg")
	r.sync(t)

	for _, c := range []*PlayerConn{alice, bob} {
		ev, ok := findEvent(drain(c), EventChat)
		require.True(t, ok)
		assert.Equal(t, "gg", ev.Chat.Text)
		assert.Equal(t, "alice", ev.Chat.Name)
	}
}
