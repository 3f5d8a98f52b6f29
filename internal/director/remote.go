package director

import (
	"encoding/json"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/events"
)

// HandleRemoteEvent applies events published by other processes that
// share the credential pool. Only globalPauseRequested matters: the
// local director pauses until the same deadline. An instance receiving
// its own event is a no-op because the deadline is not later.
func (d *Director) HandleRemoteEvent(ev events.RemoteEvent) {
	if ev.Type != events.GlobalPauseRequested {
		return
	}
	var payload events.GlobalPausePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		d.logger.Warn().Err(err).Msg("ignoring malformed remote pause")
		return
	}
	if !payload.ResumeTime.After(d.clock.Now()) {
		return
	}
	d.logger.Info().Str("reason", payload.Reason).Time("resume_at", payload.ResumeTime).Msg("remote global pause")
	d.SetPauseState(true, payload.ResumeTime)
}
