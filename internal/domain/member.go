package domain

// MediaKind names one of the three independent media flags of a member.
type MediaKind string

const (
	MediaAudio  MediaKind = "audio"
	MediaVideo  MediaKind = "video"
	MediaScreen MediaKind = "screen"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaAudio, MediaVideo, MediaScreen:
		return true
	}
	return false
}

// MediaKindFromSignal maps a toggle message type (AUDIO, MEDIA, DATA) to its flag.
// Unknown types map to a kind that is not Valid.
func MediaKindFromSignal(msgType string) MediaKind {
	switch msgType {
	case "AUDIO":
		return MediaAudio
	case "MEDIA":
		return MediaVideo
	case "DATA":
		return MediaScreen
	}
	return MediaKind(msgType)
}

// MediaState holds the per-member flags. All false for a fresh session.
type MediaState struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
}

// With returns a copy with exactly one flag changed.
func (s MediaState) With(kind MediaKind, enabled bool) MediaState {
	switch kind {
	case MediaAudio:
		s.Audio = enabled
	case MediaVideo:
		s.Video = enabled
	case MediaScreen:
		s.Screen = enabled
	}
	return s
}

// Member is a read-only snapshot of a room member used for rosters.
// No transport or lifecycle logic here.
type Member struct {
	User  Identity
	Room  RoomID
	Media MediaState
}
