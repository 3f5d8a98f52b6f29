// Package director runs the conversation in every room: it schedules
// turns, calls the completion provider, applies negotiation tool calls,
// and backs off when the shared provider is rate limited.
package director

import (
	"context"
	"errors"
	"math/rand/v2"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/ids"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/keypool"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/ledger"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/llm"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/pacing"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/pause"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/store"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidRoom  = errors.New("a room needs two distinct agents")
	ErrRoomBusy     = errors.New("room is generating")
)

// Deps are the director's collaborators. Provider, Keys and Ledger are
// required; the rest have usable defaults.
type Deps struct {
	Provider llm.Provider
	Keys     keypool.Pool
	Ledger   store.LedgerStore
	Activity store.ActivityLog
	Events   events.Publisher
	Pause    *pause.Controller
	Clock    clock.Clock
	// Rand returns values in [0, 1) for jitter and pacing.
	Rand   func() float64
	Logger zerolog.Logger
}

// roomState is the director-private record behind a models.Room. All
// fields are guarded by Director.mu.
type roomState struct {
	room models.Room

	// timer is the single pending GenerateTurn for this room. timerSeq
	// identifies it so a timer that fires after being replaced is
	// ignored.
	timer    *clock.Timer
	timerSeq uint64

	// teardown is the delayed destroy after an end cue. Pause onset
	// leaves it running.
	teardown *clock.Timer

	// epoch changes whenever an in-flight turn is superseded (watchdog)
	// or the room is destroyed; completions from an older epoch are
	// dropped.
	epoch uint64

	lastDelay time.Duration
	ending    bool
}

// Director owns every room's conversation state.
type Director struct {
	cfg      Config
	provider llm.Provider
	keys     keypool.Pool
	ledger   store.LedgerStore
	activity store.ActivityLog
	events   events.Publisher
	pause    *pause.Controller
	clock    clock.Clock
	rand     func() float64
	pacer    *pacing.Calculator
	settler  *ledger.Engine
	logger   zerolog.Logger

	// ctx bounds work started from timers; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*roomState
	// names caches agent display names for use under mu, where the
	// ledger must not be called.
	names map[string]string
}

// New builds a director. It registers itself as the pause controller's
// resume handler.
func New(cfg Config, deps Deps) (*Director, error) {
	if deps.Provider == nil || deps.Keys == nil || deps.Ledger == nil {
		return nil, errors.New("director: provider, key pool and ledger are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Pause == nil {
		deps.Pause = pause.New(deps.Clock)
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Director{
		cfg:      cfg,
		provider: deps.Provider,
		keys:     deps.Keys,
		ledger:   deps.Ledger,
		activity: deps.Activity,
		events:   deps.Events,
		pause:    deps.Pause,
		clock:    deps.Clock,
		rand:     deps.Rand,
		pacer:    pacing.New(cfg.Pacing, deps.Rand),
		settler:  ledger.NewEngine(deps.Ledger, deps.Clock, deps.Logger),
		logger:   deps.Logger.With().Str("component", "director").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[string]*roomState),
		names:    make(map[string]string),
	}
	d.pause.SetResumeHandler(d.onResume)
	return d, nil
}

// Config returns the effective configuration.
func (d *Director) Config() Config {
	return d.cfg
}

// Close stops every timer. Rooms are kept so snapshots stay readable
// during shutdown.
func (d *Director) Close() {
	d.cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rs := range d.rooms {
		d.cancelTimerLocked(rs)
		rs.teardown.Stop()
		rs.teardown = nil
	}
}

// CreateRoom starts a conversation between two agents. agents[0] speaks
// first.
func (d *Director) CreateRoom(ctx context.Context, roomID string, agents [2]string) error {
	if roomID == "" || agents[0] == "" || agents[1] == "" || agents[0] == agents[1] {
		return ErrInvalidRoom
	}

	now := d.clock.Now()
	d.mu.Lock()
	if _, ok := d.rooms[roomID]; ok {
		d.mu.Unlock()
		return ErrRoomExists
	}
	rs := &roomState{
		room: models.Room{
			ID:             roomID,
			Agents:         agents,
			CurrentTurn:    agents[0],
			State:          models.StateIdle,
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}
	d.rooms[roomID] = rs
	if paused, _ := d.pause.Active(); !paused {
		d.scheduleLocked(rs, d.cfg.OpeningDelay)
	}
	snapshot := snapshotRoom(rs)
	n := len(d.rooms)
	d.mu.Unlock()

	metrics.ActiveRooms.Set(float64(n))
	d.rememberNames(d.loadAgent(ctx, agents[0]), d.loadAgent(ctx, agents[1]))
	d.logger.Info().Str("room", roomID).Strs("agents", agents[:]).Msg("room created")
	d.publish(ctx, events.Event{Type: events.RoomCreated, RoomID: roomID, Payload: events.RoomPayload{Room: snapshot}})
	return nil
}

// DestroyRoom tears a room down. No GenerateTurn runs for roomID after
// it returns.
func (d *Director) DestroyRoom(ctx context.Context, roomID string) error {
	d.mu.Lock()
	rs, ok := d.rooms[roomID]
	if !ok {
		d.mu.Unlock()
		return ErrRoomNotFound
	}
	d.cancelTimerLocked(rs)
	rs.teardown.Stop()
	rs.teardown = nil
	rs.epoch++
	rs.room.State = models.StateDestroyed
	delete(d.rooms, roomID)
	n := len(d.rooms)
	d.mu.Unlock()

	metrics.ActiveRooms.Set(float64(n))
	if err := d.ledger.ClearOffer(ctx, roomID); err != nil {
		d.logger.Warn().Err(err).Str("room", roomID).Msg("failed to clear stored offer")
	}
	d.logger.Info().Str("room", roomID).Msg("room destroyed")
	d.publish(ctx, events.Event{Type: events.RoomDestroyed, RoomID: roomID})
	return nil
}

// KickRoom schedules an immediate turn for an idle room, resetting its
// retry state.
func (d *Director) KickRoom(ctx context.Context, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if rs.room.IsGenerating {
		return ErrRoomBusy
	}
	rs.room.RetryAttempt = 0
	d.scheduleLocked(rs, 0)
	return nil
}

// Room returns a snapshot of one room.
func (d *Director) Room(roomID string) (models.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return snapshotRoom(rs), true
}

// Rooms returns snapshots of every room, oldest first.
func (d *Director) Rooms() []models.Room {
	d.mu.Lock()
	out := make([]models.Room, 0, len(d.rooms))
	for _, rs := range d.rooms {
		out = append(out, snapshotRoom(rs))
	}
	d.mu.Unlock()

	sortRooms(out)
	return out
}

// PauseState reports the global pause.
func (d *Director) PauseState() pause.State {
	return d.pause.State()
}

// SetPauseState pauses generation until the given time (PauseDuration
// from now when zero) or resumes it. Pausing never publishes
// globalPauseRequested; the request came from outside.
func (d *Director) SetPauseState(paused bool, until time.Time) {
	if !paused {
		if d.pause.Resume() {
			d.logger.Info().Msg("global pause lifted")
		}
		return
	}
	if until.IsZero() {
		until = d.clock.Now().Add(d.cfg.PauseDuration)
	}
	resumeAt, started := d.pause.PauseUntil(until, "requested")
	if started {
		d.onPauseStarted(resumeAt, "requested")
	}
}

// triggerGlobalPause starts the pause after total credential
// exhaustion and escalates it. Only the call that actually starts the
// pause publishes.
func (d *Director) triggerGlobalPause(ctx context.Context, reason string) {
	until, started := d.pause.Pause(d.cfg.PauseDuration, reason)
	if !started {
		return
	}
	d.onPauseStarted(until, reason)
	d.publish(ctx, events.Event{
		Type: events.GlobalPauseRequested,
		Payload: events.GlobalPausePayload{
			DurationMs: d.cfg.PauseDuration.Milliseconds(),
			Reason:     reason,
			ResumeTime: until,
		},
	})
}

// onPauseStarted cancels every pending turn so nothing races the pause.
func (d *Director) onPauseStarted(until time.Time, reason string) {
	metrics.GlobalPauses.Inc()
	metrics.Paused.Set(1)

	d.mu.Lock()
	cancelled := 0
	for _, rs := range d.rooms {
		if rs.timer != nil {
			cancelled++
		}
		d.cancelTimerLocked(rs)
		if !rs.room.IsGenerating && !rs.ending {
			rs.room.State = models.StateGlobalPaused
		}
	}
	d.mu.Unlock()

	d.logger.Warn().
		Str("reason", reason).
		Time("resume_at", until).
		Int("cancelled_timers", cancelled).
		Msg("global pause started")
}

// onResume restarts every idle room with a stagger so the provider does
// not see a burst.
func (d *Director) onResume() {
	metrics.Paused.Set(0)

	d.mu.Lock()
	states := make([]*roomState, 0, len(d.rooms))
	for _, rs := range d.rooms {
		if rs.room.IsGenerating || rs.ending {
			continue
		}
		states = append(states, rs)
	}
	sort.Slice(states, func(i, j int) bool {
		a, b := states[i].room, states[j].room
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for i, rs := range states {
		rs.room.State = models.StateIdle
		d.scheduleLocked(rs, d.cfg.ResumeStaggerBase+time.Duration(i)*d.cfg.ResumeStaggerStep)
	}
	d.mu.Unlock()

	d.logger.Info().Int("rooms", len(states)).Msg("global pause ended, restarting rooms")
}

// scheduleLocked replaces the room's pending turn with one after delay.
func (d *Director) scheduleLocked(rs *roomState, delay time.Duration) {
	d.cancelTimerLocked(rs)
	rs.timerSeq++
	seq, roomID := rs.timerSeq, rs.room.ID
	rs.timer = d.clock.AfterFunc(delay, func() { d.fire(roomID, seq) })
}

func (d *Director) cancelTimerLocked(rs *roomState) {
	if rs.timer == nil {
		return
	}
	rs.timer.Stop()
	rs.timer = nil
	rs.timerSeq++
}

// fire runs a scheduled turn if its timer is still the current one.
func (d *Director) fire(roomID string, seq uint64) {
	defer d.recoverCallback("turn timer", roomID)

	d.mu.Lock()
	rs, ok := d.rooms[roomID]
	if !ok || rs.timerSeq != seq {
		d.mu.Unlock()
		return
	}
	rs.timer = nil
	d.mu.Unlock()

	if d.ctx.Err() != nil {
		return
	}
	d.GenerateTurn(d.ctx, roomID)
}

func (d *Director) recoverCallback(what, roomID string) {
	if r := recover(); r != nil {
		d.logger.Error().
			Str("room", roomID).
			Str("callback", what).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("recovered from panic")
	}
}

// withTurn runs f on the room's state if the room still exists and the
// turn identified by epoch has not been superseded.
func (d *Director) withTurn(roomID string, epoch uint64, f func(rs *roomState)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.rooms[roomID]
	if !ok || rs.epoch != epoch {
		return false
	}
	f(rs)
	return true
}

// withRoom runs f on the room's state if the room still exists,
// whatever its epoch.
func (d *Director) withRoom(roomID string, f func(rs *roomState)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rs, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	f(rs)
	return true
}

func (d *Director) rememberNames(agents ...*models.Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range agents {
		d.names[a.ID] = a.DisplayName()
	}
}

// displayName returns the cached name for id, or id itself. Callers
// hold d.mu.
func (d *Director) displayName(id string) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return id
}

// endGenerationLocked clears the in-flight markers.
func endGenerationLocked(rs *roomState) {
	rs.room.IsGenerating = false
	rs.room.GeneratingSince = nil
}

// appendLocked adds a message to the room window and returns it.
func (d *Director) appendLocked(rs *roomState, sender, text string, kind models.MessageKind) models.ChatMessage {
	now := d.clock.Now()
	msg := models.ChatMessage{
		ID:        ids.NewMessageID(now),
		RoomID:    rs.room.ID,
		Sender:    sender,
		Text:      text,
		Kind:      kind,
		Timestamp: now.UnixMilli(),
	}
	rs.room.Messages = models.AppendWindow(rs.room.Messages, msg)
	rs.room.LastActivityAt = now
	return msg
}

// passTurnLocked hands the turn to the counterpart and returns the
// turnChanged event.
func passTurnLocked(rs *roomState) events.Event {
	previous := rs.room.CurrentTurn
	rs.room.CurrentTurn = rs.room.Counterpart(previous)
	return events.Event{
		Type:    events.TurnChanged,
		RoomID:  rs.room.ID,
		Payload: events.TurnChangedPayload{CurrentTurn: rs.room.CurrentTurn, PreviousTurn: previous},
	}
}

func (d *Director) publish(ctx context.Context, evs ...events.Event) {
	now := d.clock.Now()
	for _, ev := range evs {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		if err := d.events.Publish(ctx, ev); err != nil {
			d.logger.Warn().Err(err).Str("event", string(ev.Type)).Str("room", ev.RoomID).Msg("failed to publish event")
		}
	}
}

// record appends messages and trades to the activity log.
func (d *Director) record(ctx context.Context, msgs []models.ChatMessage, trades []models.TradeRecord) {
	if d.activity == nil {
		return
	}
	for _, msg := range msgs {
		if err := d.activity.AppendMessage(ctx, msg); err != nil {
			d.logger.Warn().Err(err).Str("room", msg.RoomID).Msg("failed to log message")
		}
	}
	for _, trade := range trades {
		if err := d.activity.AppendTrade(ctx, trade); err != nil {
			d.logger.Warn().Err(err).Str("room", trade.RoomID).Msg("failed to log trade")
		}
	}
}

func messageEvents(msgs []models.ChatMessage) []events.Event {
	out := make([]events.Event, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, events.Event{
			Type:    events.NewConversationTurn,
			RoomID:  msg.RoomID,
			Payload: events.NewTurnPayload{Turn: msg},
		})
	}
	return out
}

func roomUpdated(rs *roomState) events.Event {
	return events.Event{Type: events.RoomUpdated, RoomID: rs.room.ID, Payload: events.RoomPayload{Room: snapshotRoom(rs)}}
}

func snapshotRoom(rs *roomState) models.Room {
	r := rs.room
	r.Messages = append([]models.ChatMessage(nil), rs.room.Messages...)
	r.Topics = append([]string(nil), rs.room.Topics...)
	if rs.room.ActiveOffer != nil {
		offer := *rs.room.ActiveOffer
		r.ActiveOffer = &offer
	}
	if rs.room.GeneratingSince != nil {
		since := *rs.room.GeneratingSince
		r.GeneratingSince = &since
	}
	return r
}

func sortRooms(rooms []models.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})
}

// jitter returns a random duration in [0, max).
func (d *Director) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(d.rand() * float64(max))
}
