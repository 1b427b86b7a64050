package app

import "github.com/dkeye/voicegate/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	}
	return "none"
}

// ParseBackpressureAction accepts the config spelling; anything else means KickMember.
func ParseBackpressureAction(s string) BackpressureAction {
	switch s {
	case "drop":
		return DropFrame
	case "none":
		return NoAction
	}
	return KickMember
}

// Policy decides what happens to a recipient whose send queue is full.
type Policy interface {
	OnBackPressure(conn core.SignalConnection) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(core.SignalConnection) BackpressureAction {
	return p.Action
}
