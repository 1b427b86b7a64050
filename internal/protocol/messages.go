package protocol

import (
	"encoding/json"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MemberView is how a room member appears in rosters and join replies.
type MemberView struct {
	ID              domain.UserID `json:"id"`
	Nickname        string        `json:"nickname"`
	ProfileImageURL string        `json:"profile_image_url"`
	Audio           bool          `json:"audio"`
	Video           bool          `json:"video"`
	Screen          bool          `json:"screen"`
}

func Members(ms []domain.Member) []MemberView {
	out := make([]MemberView, 0, len(ms))
	for _, m := range ms {
		out = append(out, MemberView{
			ID:              m.User.ID,
			Nickname:        m.User.Nickname,
			ProfileImageURL: m.User.ProfileImageURL,
			Audio:           m.Media.Audio,
			Video:           m.Media.Video,
			Screen:          m.Media.Screen,
		})
	}
	return out
}

// JoinResponse answers an offer once the engine produced the SDP answer.
type JoinResponse struct {
	ID        string        `json:"id"`
	UserID    domain.UserID `json:"user_id"`
	SDPAnswer string        `json:"sdpAnswer"`
	Users     []MemberView  `json:"users"`
}

func NewJoinResponse(user domain.UserID, sdpAnswer string, members []domain.Member) JoinResponse {
	return JoinResponse{ID: "response", UserID: user, SDPAnswer: sdpAnswer, Users: Members(members)}
}

// RosterMessage is the reply to getUsers and the broadcast after membership or media changes.
type RosterMessage struct {
	ChannelID domain.RoomID `json:"channelId"`
	Users     []MemberView  `json:"users"`
}

func NewRoster(room domain.RoomID, members []domain.Member) RosterMessage {
	return RosterMessage{ChannelID: room, Users: Members(members)}
}

// ICECandidateMessage pushes a server-side candidate to the endpoint's owner.
type ICECandidateMessage struct {
	ID        string                  `json:"id"`
	UserID    domain.UserID           `json:"userId"`
	RoomID    domain.RoomID           `json:"roomId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func NewICECandidate(room domain.RoomID, user domain.UserID, c webrtc.ICECandidateInit) ICECandidateMessage {
	return ICECandidateMessage{ID: "iceCandidate", UserID: user, RoomID: room, Candidate: c}
}

type ErrorMessage struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	RoomID  domain.RoomID `json:"roomId,omitempty"`
	Message string        `json:"message"`
}

func NewError(msgType string, room domain.RoomID, message string) ErrorMessage {
	return ErrorMessage{ID: "error", Type: msgType, RoomID: room, Message: message}
}

func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
