package director

import (
	"context"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

// CheckForStuckTurns force-advances rooms that have been generating for
// longer than StuckThreshold and restarts idle rooms that lost their
// schedule (for example after a rate limit). It returns the number of
// stuck rooms it advanced.
func (d *Director) CheckForStuckTurns() int {
	now := d.clock.Now()
	paused, _ := d.pause.Active()

	type handoff struct {
		roomID  string
		speaker string
		msgs    []models.ChatMessage
		evs     []events.Event
	}
	var (
		stuck     []handoff
		restarted []string
	)

	d.mu.Lock()
	for _, rs := range d.rooms {
		if rs.ending {
			continue
		}
		if rs.room.IsGenerating {
			if rs.room.GeneratingSince == nil || now.Sub(*rs.room.GeneratingSince) <= d.cfg.StuckThreshold {
				continue
			}
			h := handoff{roomID: rs.room.ID, speaker: rs.room.CurrentTurn}
			speakerName := d.displayName(rs.room.CurrentTurn)
			listenerName := d.displayName(rs.room.Counterpart(rs.room.CurrentTurn))

			// Any completion still in flight now belongs to a dead epoch.
			rs.epoch++
			endGenerationLocked(rs)
			rs.room.RetryAttempt = 0
			h.msgs = append(h.msgs, d.appendLocked(rs, models.SystemSender,
				speakerName+" stopped thinking. Passing the turn to "+listenerName+".", models.MessageSystem))
			h.evs = append(h.evs, passTurnLocked(rs))
			rs.room.State = models.StateGlobalPaused
			if !paused {
				rs.room.State = models.StateIdle
				d.scheduleLocked(rs, d.cfg.ErrorHandoffDelay)
			}
			h.evs = append(h.evs, roomUpdated(rs))
			stuck = append(stuck, h)
			continue
		}

		if !paused && rs.timer == nil && now.Sub(rs.room.LastActivityAt) >= d.cfg.StuckThreshold {
			rs.room.RetryAttempt = 0
			rs.room.State = models.StateIdle
			d.scheduleLocked(rs, d.cfg.ErrorHandoffDelay)
			restarted = append(restarted, rs.room.ID)
		}
	}
	d.mu.Unlock()

	for _, h := range stuck {
		metrics.StuckTurns.Inc()
		d.logger.Warn().Str("room", h.roomID).Str("agent", h.speaker).Msg("turn stuck, passing to counterpart")
		d.record(d.ctx, h.msgs, nil)
		d.publish(d.ctx, thinking(h.roomID, h.speaker, false))
		d.publish(d.ctx, messageEvents(h.msgs)...)
		d.publish(d.ctx, h.evs...)
	}
	for _, roomID := range restarted {
		d.logger.Info().Str("room", roomID).Msg("restarting idle room")
	}
	return len(stuck)
}

// RunWatchdog calls CheckForStuckTurns every interval until ctx ends.
// A zero interval uses WatchdogInterval.
func (d *Director) RunWatchdog(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = d.cfg.WatchdogInterval
	}
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Director) sweep() {
	defer d.recoverCallback("watchdog", "")
	d.CheckForStuckTurns()
}
