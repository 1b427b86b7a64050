// Package protocol is the wire format of the signaling channel.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
)

var ErrMalformed = errors.New("malformed message")

// Inbound message types.
const (
	TypeGetUsers  = "getUsers"
	TypeOffer     = "offer"
	TypeCandidate = "candidate"
	TypeAudio     = "AUDIO"
	TypeMedia     = "MEDIA"
	TypeData      = "DATA"
	TypeLeave     = "leave"
)

// Envelope is one inbound message: {token, type, data: {roomId, ...}}.
type Envelope struct {
	Token   string `json:"token"`
	Type    string `json:"type"`
	Data    *Data  `json:"data"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type Data struct {
	RoomID    domain.RoomID `json:"roomId"`
	SDPOffer  string        `json:"sdpOffer,omitempty"`
	Candidate *Candidate    `json:"candidate,omitempty"`
	Enabled   *bool         `json:"enabled,omitempty"`
}

// Candidate is a remote ICE candidate. Clients send either the full
// {candidate, sdpMid, sdpMLineIndex} object or only the candidate line.
type Candidate webrtc.ICECandidateInit

func (c *Candidate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var line string
		if err := json.Unmarshal(b, &line); err != nil {
			return err
		}
		*c = Candidate{Candidate: line}
		return nil
	}
	return json.Unmarshal(b, (*webrtc.ICECandidateInit)(c))
}

func (c Candidate) Init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit(c)
}

// Decode parses and validates the fields every message needs.
// Type-specific payload is checked by the handler.
func Decode(b []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case env.Token == "":
		return nil, fmt.Errorf("%w: token missing", ErrMalformed)
	case env.Type == "":
		return nil, fmt.Errorf("%w: type missing", ErrMalformed)
	case env.Data == nil || env.Data.RoomID == "":
		return nil, fmt.Errorf("%w: data.roomId missing", ErrMalformed)
	}
	return &env, nil
}

// EnabledFlag reads the toggle value from the envelope, falling back to data.
func (e *Envelope) EnabledFlag() (bool, bool) {
	if e.Enabled != nil {
		return *e.Enabled, true
	}
	if e.Data != nil && e.Data.Enabled != nil {
		return *e.Data.Enabled, true
	}
	return false, false
}

func (e *Envelope) RoomID() domain.RoomID {
	if e.Data == nil {
		return ""
	}
	return e.Data.RoomID
}
