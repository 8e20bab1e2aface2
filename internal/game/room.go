// internal/game/room.go
package game

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/guessop/server/internal/models"
)

// Catalog resolves clip ids to playable media and display names. The
// production implementation queries Postgres; tests use an in-memory fake.
type Catalog interface {
	ListClipIDs(ctx context.Context, pool models.ClipPool) ([]uuid.UUID, error)
	GetClip(ctx context.Context, id uuid.UUID) (models.Clip, error)
	AnimeName(ctx context.Context, animeID uuid.UUID) (models.AnswerOption, error)
	DecoyNames(ctx context.Context, exclude uuid.UUID, n int) ([]models.AnswerOption, error)
}

// SnapshotStore is the slice of the shared room store the orchestrator
// writes to: reconciled copies of the room for cross-process reads.
type SnapshotStore interface {
	SaveRoomSnapshot(ctx context.Context, snap models.RoomSnapshot) error
}

// Round pacing and scoring defaults.
const (
	DefaultGuessWindow     = 10 * time.Second
	DefaultLoadBarrierWait = 10 * time.Second
	DefaultRevealPause     = 5 * time.Second
	DefaultHeartbeatPeriod = 2 * time.Second
	DefaultStaleThreshold  = 60 * time.Second

	ScoreAward = 100
	DecoyCount = 3
)

// roomState is the orchestrator's fine-grained machine. The coarse
// RoomStatus shown in snapshots is derived from it.
type roomState int

const (
	stateWaiting roomState = iota
	stateBarrierReady
	stateBarrierLoaded
	stateGuessing
	stateRevealed
	stateClosing
)

type playerSlot struct {
	state models.PlayerState
	conn  *PlayerConn
}

type pingProbe struct {
	seq    int64
	sentAt time.Time
}

// Room owns one game session. All mutable state below the inbox is
// confined to the run goroutine: public methods enqueue closures and the
// loop applies them one at a time, so round-advance decisions never race.
type Room struct {
	ID         uuid.UUID
	Name       string
	OwnerID    uuid.UUID
	MaxPlayers int
	Pool       models.ClipPool

	GuessWindow     time.Duration
	LoadBarrierWait time.Duration
	RevealPause     time.Duration
	HeartbeatPeriod time.Duration
	StaleThreshold  time.Duration

	catalog Catalog
	store   SnapshotStore
	clock   clockwork.Clock
	logger  *logrus.Logger

	inbox  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the run goroutine.
	state      roomState
	players    map[uuid.UUID]*playerSlot
	round      *models.Round
	guessed    map[uuid.UUID]bool
	history    *History
	poolIDs    []uuid.UUID
	phaseTimer clockwork.Timer
	hbTicker   clockwork.Ticker
	pingSeq    int64
	pings      map[uuid.UUID]pingProbe
	dirty      bool
}

// RoomConfig carries everything a room needs at spawn time.
type RoomConfig struct {
	ID         uuid.UUID
	Name       string
	OwnerID    uuid.UUID
	MaxPlayers int
	Pool       models.ClipPool
	Catalog    Catalog
	Store      SnapshotStore
	Clock      clockwork.Clock
	Logger     *logrus.Logger
}

func NewRoom(cfg RoomConfig) *Room {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Room{
		ID:         cfg.ID,
		Name:       cfg.Name,
		OwnerID:    cfg.OwnerID,
		MaxPlayers: cfg.MaxPlayers,
		Pool:       cfg.Pool,

		GuessWindow:     DefaultGuessWindow,
		LoadBarrierWait: DefaultLoadBarrierWait,
		RevealPause:     DefaultRevealPause,
		HeartbeatPeriod: DefaultHeartbeatPeriod,
		StaleThreshold:  DefaultStaleThreshold,

		catalog: cfg.Catalog,
		store:   cfg.Store,
		clock:   cfg.Clock,
		logger:  cfg.Logger,

		inbox:   make(chan func(), 16),
		done:    make(chan struct{}),
		players: make(map[uuid.UUID]*playerSlot),
		pings:   make(map[uuid.UUID]pingProbe),
		history: NewHistory(HistoryCapacity),
	}
}

// Start resolves the clip pool, verifies it can outlast the history
// window, and launches the room goroutine. The pool must be strictly
// larger than the window: once the window is full an unseen clip still
// has to exist, or selection starves on the next round.
func (r *Room) Start(ctx context.Context) error {
	ids, err := r.catalog.ListClipIDs(ctx, r.Pool)
	if err != nil {
		return err
	}
	if len(ids) <= HistoryCapacity {
		return ErrInvalidPool
	}
	r.poolIDs = ids
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go r.run()
	return nil
}

func (r *Room) run() {
	r.hbTicker = r.clock.NewTicker(r.HeartbeatPeriod)
	defer r.hbTicker.Stop()

	for r.state != stateClosing {
		select {
		case fn := <-r.inbox:
			fn()
		case <-r.hbTicker.Chan():
			r.sweepHeartbeats()
			r.flushSnapshot()
		case <-r.timerChan():
			r.onPhaseTimer()
		case <-r.ctx.Done():
			r.beginClose()
		}
	}
	r.teardown()
	close(r.done)
}

// do runs fn on the room goroutine; returns false if the room has closed.
func (r *Room) do(fn func()) bool {
	select {
	case r.inbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

// doWait runs fn on the room goroutine and waits for it to complete.
func (r *Room) doWait(fn func()) bool {
	ran := make(chan struct{})
	if !r.do(func() { fn(); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-r.done:
		return false
	}
}

// timerChan is nil when no phase timer is armed, which removes the case
// from the select.
func (r *Room) timerChan() <-chan time.Time {
	if r.phaseTimer == nil {
		return nil
	}
	return r.phaseTimer.Chan()
}

func (r *Room) armPhaseTimer(d time.Duration) {
	r.disarmPhaseTimer()
	r.phaseTimer = r.clock.NewTimer(d)
}

func (r *Room) disarmPhaseTimer() {
	if r.phaseTimer != nil {
		r.phaseTimer.Stop()
		r.phaseTimer = nil
	}
}

// ---- public API (callable from any goroutine) ----

// Join registers conn with the room and returns the current snapshot so a
// reconnecting client can resume mid-round. A connection presenting a
// session key that already has a PlayerState rebinds to it instead of
// creating a duplicate.
func (r *Room) Join(conn *PlayerConn) (models.RoomSnapshot, error) {
	var snap models.RoomSnapshot
	var err error
	ok := r.doWait(func() {
		snap, err = r.join(conn)
	})
	if !ok {
		return models.RoomSnapshot{}, ErrRoomClosed
	}
	return snap, err
}

func (r *Room) Leave(connID uuid.UUID)      { r.do(func() { r.leave(connID) }) }
func (r *Room) MarkReady(connID uuid.UUID)  { r.do(func() { r.markReady(connID) }) }
func (r *Room) MarkLoaded(connID uuid.UUID) { r.do(func() { r.markLoaded(connID) }) }

func (r *Room) SubmitGuess(connID, answerID uuid.UUID) {
	r.do(func() { r.submitGuess(connID, answerID) })
}

func (r *Room) Chat(connID uuid.UUID, text string) {
	r.do(func() { r.chat(connID, text) })
}

func (r *Room) Pong(connID uuid.UUID, seq int64) {
	r.do(func() { r.pong(connID, seq) })
}

// Close broadcasts room-closing, disconnects everyone and stops the room
// goroutine. Safe to call more than once.
func (r *Room) Close() {
	r.do(func() { r.beginClose() })
	<-r.done
}

// Done is closed once the room goroutine has fully torn down.
func (r *Room) Done() <-chan struct{} { return r.done }

// Summary returns the directory-listing view; ok is false once closed.
func (r *Room) Summary() (models.RoomSummary, bool) {
	var s models.RoomSummary
	ok := r.doWait(func() { s = r.summary() })
	return s, ok
}

// Snapshot returns the current authoritative state as a snapshot.
func (r *Room) Snapshot() (models.RoomSnapshot, bool) {
	var s models.RoomSnapshot
	ok := r.doWait(func() { s = r.snapshot() })
	return s, ok
}

// ---- state machine (run goroutine only) ----

func (r *Room) join(conn *PlayerConn) (models.RoomSnapshot, error) {
	if r.state == stateClosing {
		return models.RoomSnapshot{}, ErrRoomClosed
	}

	// Reconnect with the same session token rebinds to the existing
	// PlayerState, keeping score across a page reload.
	for connID, slot := range r.players {
		if slot.conn.SessionKey == conn.SessionKey {
			slot.conn.Cancel()
			delete(r.players, connID)
			delete(r.pings, connID)
			slot.conn = conn
			slot.state.ConnID = conn.ID
			slot.state.LastPongAt = r.clock.Now()
			r.players[conn.ID] = slot
			r.dirty = true
			r.broadcastMembership()
			return r.snapshot(), nil
		}
	}

	if len(r.players) >= r.MaxPlayers {
		return models.RoomSnapshot{}, ErrRoomFull
	}
	r.players[conn.ID] = &playerSlot{
		state: models.PlayerState{
			ConnID:     conn.ID,
			UserID:     conn.UserID,
			Name:       conn.Name,
			LastPongAt: r.clock.Now(),
		},
		conn: conn,
	}
	r.logger.Infof("room %s: player %s (%s) joined", r.ID, conn.UserID, conn.Name)
	r.dirty = true
	r.broadcastMembership()
	return r.snapshot(), nil
}

func (r *Room) leave(connID uuid.UUID) {
	slot, ok := r.players[connID]
	if !ok {
		return
	}
	delete(r.players, connID)
	delete(r.pings, connID)
	slot.conn.Cancel()
	r.logger.Infof("room %s: player %s left", r.ID, slot.state.UserID)
	r.dirty = true
	r.broadcastMembership()

	if len(r.players) == 0 {
		r.abortRound()
		return
	}
	// A departure can complete a barrier the remaining players already
	// satisfied.
	switch r.state {
	case stateBarrierReady:
		if r.allReady() {
			r.startRound()
		}
	case stateBarrierLoaded:
		if r.allReadyLoaded() {
			r.openGuessing()
		}
	}
}

// abortRound drops any in-flight round and returns the room to WAITING.
func (r *Room) abortRound() {
	r.disarmPhaseTimer()
	r.round = nil
	r.guessed = nil
	r.state = stateWaiting
	r.dirty = true
}

func (r *Room) markReady(connID uuid.UUID) {
	slot, ok := r.players[connID]
	if !ok || (r.state != stateWaiting && r.state != stateBarrierReady) {
		return
	}
	if slot.state.Ready {
		return
	}
	slot.state.Ready = true
	r.state = stateBarrierReady
	r.dirty = true
	r.broadcastMembership()
	if r.allReady() {
		r.startRound()
	}
}

func (r *Room) allReady() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, slot := range r.players {
		if !slot.state.Ready {
			return false
		}
	}
	return true
}

func (r *Room) allReadyLoaded() bool {
	for _, slot := range r.players {
		if slot.state.Ready && !slot.state.Loaded {
			return false
		}
	}
	return true
}

// startRound picks an unseen clip, composes the answer set and enters the
// load barrier. Selection happens exactly once per round.
func (r *Room) startRound() {
	clipID, err := SelectClip(r.poolIDs, r.history)
	if err != nil {
		r.logger.Errorf("room %s: selection failed: %v", r.ID, err)
		r.beginClose()
		return
	}

	clip, err := r.catalog.GetClip(r.ctx, clipID)
	if err != nil {
		r.failSelection(err)
		return
	}
	correct, err := r.catalog.AnimeName(r.ctx, clip.AnimeID)
	if err != nil {
		r.failSelection(err)
		return
	}
	decoys, err := r.catalog.DecoyNames(r.ctx, clip.AnimeID, DecoyCount)
	if err != nil {
		r.failSelection(err)
		return
	}

	candidates := append(decoys, correct)
	shuffleAnswers(candidates)

	r.round = &models.Round{
		ID:         uuid.New(),
		Clip:       clip,
		Correct:    correct,
		Candidates: candidates,
		Phase:      models.PhaseLoading,
		StartedAt:  r.clock.Now(),
	}
	r.guessed = make(map[uuid.UUID]bool)
	for _, slot := range r.players {
		slot.state.Loaded = false
	}

	r.broadcast(Event{Type: EventRoundStarted, Round: &RoundStartedPayload{
		RoundID:    r.round.ID,
		ClipRef:    clip.MediaURL,
		Candidates: candidates,
	}})
	r.state = stateBarrierLoaded
	r.armPhaseTimer(r.LoadBarrierWait)
	r.dirty = true
}

// failSelection handles transient catalog errors: the round is not
// started and players must re-ready, which retries naturally.
func (r *Room) failSelection(err error) {
	r.logger.Warnf("room %s: could not compose round: %v", r.ID, err)
	for _, slot := range r.players {
		slot.state.Ready = false
	}
	r.state = stateWaiting
	r.dirty = true
	r.broadcastMembership()
}

func (r *Room) markLoaded(connID uuid.UUID) {
	slot, ok := r.players[connID]
	if !ok || r.state != stateBarrierLoaded {
		return
	}
	slot.state.Loaded = true
	if r.allReadyLoaded() {
		r.openGuessing()
	}
}

func (r *Room) openGuessing() {
	r.disarmPhaseTimer()

	// Players who never finished buffering forfeit this round but stay in
	// the room.
	for _, slot := range r.players {
		if slot.state.Ready && !slot.state.Loaded {
			r.guessed[slot.state.UserID] = true
		}
	}

	deadline := r.clock.Now().Add(r.GuessWindow)
	r.round.Phase = models.PhaseGuessing
	r.round.Deadline = deadline
	r.state = stateGuessing
	r.armPhaseTimer(r.GuessWindow)
	r.broadcast(Event{Type: EventGuessingOpen, Guessing: &GuessingOpenPayload{
		RoundID:  r.round.ID,
		Deadline: deadline,
	}})
	r.dirty = true
}

func (r *Room) submitGuess(connID, answerID uuid.UUID) {
	slot, ok := r.players[connID]
	// A guess outside the guessing window or a second guess in the same
	// round is ignored, not errored.
	if !ok || r.state != stateGuessing || r.guessed[slot.state.UserID] {
		return
	}
	r.guessed[slot.state.UserID] = true

	if answerID == r.round.Correct.ID {
		// Every correct guess before the deadline scores, not only the
		// fastest. Product decision carried over from the original game.
		slot.state.Score += ScoreAward
		r.dirty = true
		r.broadcast(Event{Type: EventScoreUpdate, Score: &ScoreUpdatePayload{
			UserID: slot.state.UserID,
			Score:  slot.state.Score,
		}})
	}
}

func (r *Room) onPhaseTimer() {
	r.phaseTimer = nil
	switch r.state {
	case stateBarrierLoaded:
		r.openGuessing()
	case stateGuessing:
		r.reveal()
	case stateRevealed:
		r.nextCycle()
	}
}

func (r *Room) reveal() {
	r.disarmPhaseTimer()
	r.round.Phase = models.PhaseRevealed
	r.history.Push(r.round.Clip.ID)
	r.broadcast(Event{Type: EventRoundRevealed, Reveal: &RoundRevealedPayload{
		RoundID: r.round.ID,
		Correct: r.round.Correct,
		Scores:  r.roster(),
	}})
	r.state = stateRevealed
	r.armPhaseTimer(r.RevealPause)
	r.dirty = true
}

// nextCycle folds the revealed round into history and rearms the
// readiness barrier, or idles the room if everyone is gone.
func (r *Room) nextCycle() {
	r.disarmPhaseTimer()
	r.round = nil
	r.guessed = nil
	for _, slot := range r.players {
		slot.state.Ready = false
		slot.state.Loaded = false
	}
	if len(r.players) == 0 {
		r.state = stateWaiting
	} else {
		r.state = stateBarrierReady
		r.broadcastMembership()
	}
	r.dirty = true
}

func (r *Room) chat(connID uuid.UUID, text string) {
	slot, ok := r.players[connID]
	if !ok || text == "" {
		return
	}
	r.broadcast(Event{Type: EventChat, Chat: &ChatPayload{
		UserID: slot.state.UserID,
		Name:   slot.state.Name,
		Text:   text,
		SentAt: r.clock.Now().Unix(),
	}})
}

func (r *Room) beginClose() {
	if r.state == stateClosing {
		return
	}
	r.disarmPhaseTimer()
	r.broadcast(Event{Type: EventRoomClosing})
	r.state = stateClosing
	r.logger.Infof("room %s: closing", r.ID)
}

func (r *Room) teardown() {
	for _, slot := range r.players {
		slot.conn.Cancel()
	}
	r.players = make(map[uuid.UUID]*playerSlot)

	// Last store write before the goroutine exits: OFFLINE marks a room
	// that no longer runs anywhere, as opposed to CLOSING mid-teardown.
	// The directory manager deletes the key once it observes Done.
	if r.store != nil {
		snap := r.snapshot()
		snap.Status = models.RoomOffline
		if err := r.store.SaveRoomSnapshot(r.ctx, snap); err != nil {
			r.logger.Warnf("room %s: final snapshot write failed: %v", r.ID, err)
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
}

// ---- views ----

func (r *Room) status() models.RoomStatus {
	switch r.state {
	case stateBarrierLoaded, stateGuessing, stateRevealed:
		return models.RoomPlaying
	case stateClosing:
		return models.RoomClosing
	default:
		return models.RoomWaiting
	}
}

func (r *Room) roster() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.players))
	for _, slot := range r.players {
		out = append(out, RosterEntry{
			UserID:    slot.state.UserID,
			Name:      slot.state.Name,
			Ready:     slot.state.Ready,
			Score:     slot.state.Score,
			RTTMillis: slot.state.RTTMillis,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Room) summary() models.RoomSummary {
	return models.RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		Status:      r.status(),
		PlayerCount: len(r.players),
		MaxPlayers:  r.MaxPlayers,
	}
}

func (r *Room) snapshot() models.RoomSnapshot {
	players := make([]models.PlayerState, 0, len(r.players))
	for _, slot := range r.players {
		players = append(players, slot.state)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })

	var round *models.Round
	if r.round != nil {
		cp := *r.round
		round = &cp
	}
	return models.RoomSnapshot{
		ID:         r.ID,
		Name:       r.Name,
		OwnerID:    r.OwnerID,
		MaxPlayers: r.MaxPlayers,
		Status:     r.status(),
		Pool:       r.Pool,
		History:    r.history.IDs(),
		Players:    players,
		Round:      round,
		UpdatedAt:  r.clock.Now(),
	}
}

func (r *Room) broadcast(ev Event) {
	for _, slot := range r.players {
		slot.conn.Send(ev)
	}
}

func (r *Room) broadcastMembership() {
	r.broadcast(Event{Type: EventMembershipUpdate, Membership: &MembershipPayload{
		Players: r.roster(),
	}})
}
