package app

import (
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/rs/zerolog/log"
)

// MediaTracker keeps the audio/video/screen flags of live sessions.
// Flags are read back through Registry.ListMembers.
type MediaTracker struct {
	reg *Registry
}

func NewMediaTracker(reg *Registry) *MediaTracker {
	return &MediaTracker{reg: reg}
}

// SetFlag changes exactly one flag. Unknown users and kinds are logged and ignored.
func (t *MediaTracker) SetFlag(userID domain.UserID, kind domain.MediaKind, enabled bool) bool {
	if !kind.Valid() {
		log.Warn().Str("module", "app.media").Str("user", string(userID)).Str("kind", string(kind)).Msg("unknown media kind")
		return false
	}
	ok := t.reg.updateMedia(userID, func(s domain.MediaState) domain.MediaState {
		return s.With(kind, enabled)
	})
	if !ok {
		log.Warn().Str("module", "app.media").Str("user", string(userID)).Str("kind", string(kind)).Msg("no session for media toggle")
		return false
	}
	log.Debug().Str("module", "app.media").Str("user", string(userID)).Str("kind", string(kind)).Bool("enabled", enabled).Msg("media flag set")
	return true
}
