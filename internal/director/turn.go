package director

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/keypool"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/llm"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// turn is the bookkeeping for one GenerateTurn cycle.
type turn struct {
	roomID   string
	epoch    uint64
	attempt  int
	speaker  string
	listener string

	// Display names, filled in by buildRequest.
	speakerName  string
	listenerName string
}

// GenerateTurn runs one turn for the room's current speaker: acquire a
// credential, ask the provider, apply tool calls, publish, and schedule
// the next turn. It is safe to call at any time; calls during a global
// pause reschedule, calls for unknown or busy rooms do nothing.
func (d *Director) GenerateTurn(ctx context.Context, roomID string) {
	if d.deferForPause(roomID) {
		return
	}

	t, ok := d.beginTurn(roomID)
	if !ok {
		return
	}
	log := d.logger.With().Str("room", roomID).Str("agent", t.speaker).Int("attempt", t.attempt).Logger()

	cred, ok, err := d.keys.Acquire(ctx, t.speaker)
	if err != nil {
		log.Warn().Err(err).Msg("credential acquisition failed")
		ok = false
	}
	if !ok {
		d.handleNoCredential(ctx, t)
		return
	}

	req, ok := d.buildRequest(ctx, &t, cred)
	if !ok {
		return
	}

	d.publish(ctx, thinking(roomID, t.speaker, true))
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, d.cfg.CompletionTimeout)
	completion, err := d.provider.Complete(cctx, req)
	cancel()
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())

	switch {
	case err != nil && llm.IsRateLimit(err):
		d.handleRateLimit(ctx, t, cred, err)
	case err != nil:
		log.Error().Err(err).Str("key", cred.ID).Msg("completion failed")
		d.handleProviderError(ctx, t)
	default:
		if completion == nil {
			completion = &llm.Completion{}
		}
		d.completeTurn(ctx, t, completion)
	}
}

// deferForPause reschedules the room past the end of an active global
// pause. It reports whether the call was deferred.
func (d *Director) deferForPause(roomID string) bool {
	paused, remaining := d.pause.Active()
	if !paused {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if rs, ok := d.rooms[roomID]; ok && !rs.room.IsGenerating && !rs.ending {
		rs.room.State = models.StateGlobalPaused
		d.scheduleLocked(rs, remaining+d.cfg.PauseBuffer)
	}
	return true
}

// beginTurn marks the room as generating. It fails for missing rooms,
// rooms already generating and rooms waiting on teardown.
func (d *Director) beginTurn(roomID string) (turn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rs, ok := d.rooms[roomID]
	if !ok || rs.room.IsGenerating || rs.ending {
		return turn{}, false
	}
	d.cancelTimerLocked(rs)

	now := d.clock.Now()
	rs.epoch++
	rs.room.IsGenerating = true
	rs.room.GeneratingSince = &now
	rs.room.State = models.StateAcquiring
	return turn{
		roomID:   roomID,
		epoch:    rs.epoch,
		attempt:  rs.room.RetryAttempt,
		speaker:  rs.room.CurrentTurn,
		listener: rs.room.Counterpart(rs.room.CurrentTurn),
	}, true
}

// handleNoCredential backs off, escalates to a global pause, or gives
// up, depending on how exhausted the pool is.
func (d *Director) handleNoCredential(ctx context.Context, t turn) {
	exhausted, err := d.keys.AllOnCooldown(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Str("room", t.roomID).Msg("cooldown check failed")
	}

	if exhausted {
		d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
			endGenerationLocked(rs)
			rs.room.RetryAttempt = 0
			rs.room.State = models.StateGlobalPaused
		})
		metrics.TurnsGenerated.WithLabelValues("no_credential").Inc()
		d.triggerGlobalPause(ctx, "all credentials on cooldown")
		return
	}

	if t.attempt < d.cfg.MaxRetries {
		delay := d.backoff(t.attempt)
		d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
			endGenerationLocked(rs)
			rs.room.RetryAttempt = t.attempt + 1
			rs.room.State = models.StateIdle
			d.scheduleLocked(rs, delay)
		})
		metrics.TurnsGenerated.WithLabelValues("no_credential").Inc()
		d.logger.Debug().
			Str("room", t.roomID).
			Str("agent", t.speaker).
			Int("attempt", t.attempt+1).
			Dur("delay", delay).
			Msg("no credential available, backing off")
		return
	}

	d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
		endGenerationLocked(rs)
		rs.room.RetryAttempt = 0
		rs.room.State = models.StateIdle
	})
	metrics.TurnsGenerated.WithLabelValues("abandoned").Inc()
	d.logger.Warn().
		Str("room", t.roomID).
		Str("agent", t.speaker).
		Int("attempts", t.attempt).
		Msg("no credential after retries, abandoning turn")
}

// backoff is min(base*factor^attempt, max) plus jitter.
func (d *Director) backoff(attempt int) time.Duration {
	delay := float64(d.cfg.RetryBase) * math.Pow(d.cfg.RetryFactor, float64(attempt))
	if delay > float64(d.cfg.RetryMax) {
		delay = float64(d.cfg.RetryMax)
	}
	return time.Duration(delay) + d.jitter(d.cfg.RetryJitter)
}

// rateLimitCooldown grows mildly with the attempt count. A longer
// Retry-After from the provider wins.
func (d *Director) rateLimitCooldown(attempt int, err error) time.Duration {
	cooldown := time.Duration(float64(d.cfg.RateLimitCooldown)*(1+0.25*float64(attempt))) + d.jitter(d.cfg.RateLimitJitter)
	if rl := asRateLimit(err); rl != nil && rl.RetryAfter > cooldown {
		cooldown = rl.RetryAfter
	}
	return cooldown
}

// handleRateLimit cools the credential down and never retries this
// turn. The room is restarted by resume, the watchdog or a kick.
func (d *Director) handleRateLimit(ctx context.Context, t turn, cred keypool.Credential, err error) {
	metrics.RateLimitHits.Inc()
	metrics.TurnsGenerated.WithLabelValues("rate_limited").Inc()

	cooldown := d.rateLimitCooldown(t.attempt, err)
	if rerr := d.keys.ReportRateLimit(ctx, cred, cooldown); rerr != nil {
		d.logger.Warn().Err(rerr).Str("key", cred.ID).Msg("failed to report rate limit")
	}
	d.logger.Warn().
		Str("room", t.roomID).
		Str("agent", t.speaker).
		Str("key", cred.ID).
		Dur("cooldown", cooldown).
		Msg("provider rate limited")

	current := d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
		endGenerationLocked(rs)
		rs.room.RetryAttempt = t.attempt + 1
		rs.room.State = models.StateRateLimited
	})
	if current {
		d.publish(ctx, thinking(t.roomID, t.speaker, false))
	}

	exhausted, cerr := d.keys.AllOnCooldown(ctx)
	if cerr != nil {
		d.logger.Warn().Err(cerr).Msg("cooldown check failed")
	}
	if exhausted {
		d.triggerGlobalPause(ctx, "all credentials rate limited")
	}
}

// handleProviderError hands the turn to the counterpart so one failure
// never wedges the conversation.
func (d *Director) handleProviderError(ctx context.Context, t turn) {
	metrics.TurnsGenerated.WithLabelValues("provider_error").Inc()

	var (
		msgs []models.ChatMessage
		evs  []events.Event
	)
	current := d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
		endGenerationLocked(rs)
		rs.room.RetryAttempt = 0
		rs.room.State = models.StateProviderError
		msgs = append(msgs, d.appendLocked(rs, models.SystemSender, t.speakerName+" encountered an error.", models.MessageSystem))
		evs = append(evs, passTurnLocked(rs))
		if paused, _ := d.pause.Active(); !paused {
			d.scheduleLocked(rs, d.cfg.ErrorHandoffDelay)
			rs.room.State = models.StateIdle
		}
		evs = append(evs, roomUpdated(rs))
	})
	if !current {
		return
	}

	d.record(ctx, msgs, nil)
	d.publish(ctx, thinking(t.roomID, t.speaker, false))
	d.publish(ctx, messageEvents(msgs)...)
	d.publish(ctx, evs...)
}

// completeTurn applies a successful completion to the room.
func (d *Director) completeTurn(ctx context.Context, t turn, completion *llm.Completion) {
	text := sanitize(completion.Text, t.speakerName)

	// A superseded turn must not touch the offer.
	if !d.withTurn(t.roomID, t.epoch, func(rs *roomState) { rs.room.State = models.StateGenerating }) {
		d.logger.Info().Str("room", t.roomID).Str("agent", t.speaker).Msg("dropping superseded completion")
		return
	}

	outcome := d.processToolCalls(ctx, t, completion.ToolCalls)

	var (
		msgs  []models.ChatMessage
		evs   []events.Event
		delay time.Duration
		cue   string
	)
	current := d.withTurn(t.roomID, t.epoch, func(rs *roomState) {
		endGenerationLocked(rs)
		rs.room.RetryAttempt = 0
		rs.room.TurnCount++
		outcome.applyLocked(rs)

		if text != "" {
			msgs = append(msgs, d.appendLocked(rs, t.speaker, text, models.MessageAgent))
		}
		for _, line := range outcome.narration {
			msgs = append(msgs, d.appendLocked(rs, models.SystemSender, line, models.MessageSystem))
		}
		if len(msgs) > 0 {
			msgs = append(msgs, d.appendLocked(rs, models.SystemSender, "It's now "+t.listenerName+"'s turn.", models.MessageSystem))
		}
		evs = append(evs, passTurnLocked(rs))

		rs.room.State = models.StateCompleted
		if len(completion.ToolCalls) > 0 {
			rs.room.State = models.StateToolHandled
		}

		if cue = matchEndCue(text, d.cfg.EndCues); cue != "" {
			rs.ending = true
			d.cancelTimerLocked(rs)
			roomID := rs.room.ID
			rs.teardown.Stop()
			rs.teardown = d.clock.AfterFunc(d.cfg.EndGrace, func() { d.teardown(roomID) })
		} else {
			delay = d.pacer.Delay(text, rs.lastDelay)
			rs.lastDelay = delay
			rs.room.LastDelayMs = delay.Milliseconds()
			if paused, _ := d.pause.Active(); !paused {
				d.scheduleLocked(rs, delay)
				rs.room.State = models.StateIdle
			}
		}
		evs = append(evs, roomUpdated(rs))
	})
	if !current {
		// The ledger may already have moved. Offers it consumed must
		// leave the room too, or they could be accepted again.
		d.logger.Info().Str("room", t.roomID).Str("agent", t.speaker).Msg("room changed during tool handling, dropping turn")
		var updated []events.Event
		d.withRoom(t.roomID, func(rs *roomState) {
			if outcome.applyStaleLocked(rs) {
				updated = append(updated, roomUpdated(rs))
			}
		})
		d.record(ctx, nil, outcome.trades)
		d.publish(ctx, outcome.tradeEvents(t.roomID)...)
		d.publish(ctx, updated...)
		return
	}

	label := "completed"
	if len(completion.ToolCalls) > 0 {
		label = "tool_handled"
	}
	metrics.TurnsGenerated.WithLabelValues(label).Inc()
	if delay > 0 {
		metrics.TurnDelay.Observe(delay.Seconds())
	}
	d.logger.Debug().
		Str("room", t.roomID).
		Str("agent", t.speaker).
		Int("tools", len(completion.ToolCalls)).
		Dur("delay", delay).
		Msg("turn completed")

	d.record(ctx, msgs, outcome.trades)
	d.publish(ctx, thinking(t.roomID, t.speaker, false))
	d.publish(ctx, messageEvents(msgs)...)
	d.publish(ctx, evs...)
	d.publish(ctx, outcome.tradeEvents(t.roomID)...)

	if cue != "" {
		d.logger.Info().Str("room", t.roomID).Str("cue", cue).Dur("grace", d.cfg.EndGrace).Msg("conversation ended")
		d.publish(ctx, events.Event{
			Type:    events.ConversationEnded,
			RoomID:  t.roomID,
			Payload: events.ConversationEndedPayload{AgentID: t.speaker, Cue: cue, Grace: d.cfg.EndGrace},
		})
	}
}

// teardown destroys a room whose conversation ended.
func (d *Director) teardown(roomID string) {
	defer d.recoverCallback("teardown", roomID)
	if err := d.DestroyRoom(d.ctx, roomID); err != nil && !errors.Is(err, ErrRoomNotFound) {
		d.logger.Warn().Err(err).Str("room", roomID).Msg("teardown failed")
	}
}

func thinking(roomID, agentID string, on bool) events.Event {
	return events.Event{
		Type:    events.AgentThinking,
		RoomID:  roomID,
		Payload: events.AgentThinkingPayload{AgentID: agentID, IsThinking: on},
	}
}
