package signal

import (
	"context"

	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleToggle serves AUDIO, MEDIA and DATA.
func (ctl *SignalWSController) handleToggle(ctx context.Context, c *WsSignalConn, user domain.UserID, env *protocol.Envelope) {
	enabled, ok := env.EnabledFlag()
	if !ok {
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Str("type", env.Type).Msg("toggle: missing enabled")
		return
	}
	room := env.RoomID()
	if err := ctl.Orch.ToggleMedia(ctx, room, user, domain.MediaKindFromSignal(env.Type), enabled); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", env.Type).Msg("toggle")
		return
	}
	ctl.broadcastRoster(room, "")
}
