package signal

import (
	"context"

	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/rs/zerolog/log"
)

// authenticate validates the envelope's token. A rejected token drops only this message.
func (ctl *SignalWSController) authenticate(ctx context.Context, c *WsSignalConn, env *protocol.Envelope) (domain.Identity, bool) {
	ident, err := ctl.Auth.Validate(ctx, env.Token)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.id)).Str("type", env.Type).Msg("token rejected")
		return domain.Identity{}, false
	}

	prev, rooms := ctl.conns.authenticate(c.id, ident.ID)
	if prev != "" {
		log.Info().
			Str("module", "signal").
			Str("conn", string(c.id)).
			Str("from_user", string(prev)).
			Str("user", string(ident.ID)).
			Msg("connection switched user")
		ctl.cleanup(ctx, c, prev, rooms)
	}
	return ident, true
}
