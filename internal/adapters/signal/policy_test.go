package signal

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/pion/webrtc/v4"
)

type fullConn struct {
	err    error
	closed atomic.Bool
}

func (c *fullConn) ID() core.ConnID          { return "full" }
func (c *fullConn) TrySend(core.Frame) error { return c.err }
func (c *fullConn) Close()                   { c.closed.Store(true) }

func TestBackpressurePolicy(t *testing.T) {
	cases := []struct {
		action app.BackpressureAction
		err    error
		closed bool
	}{
		{app.KickMember, core.ErrBackpressure, true},
		{app.DropFrame, core.ErrBackpressure, false},
		{app.KickMember, core.ErrConnectionClosed, false},
	}
	for _, tc := range cases {
		ctl := NewSignalWSController(nil, nil, Options{Policy: app.SimplePolicy{Action: tc.action}})
		c := &fullConn{err: tc.err}
		ctl.deliver(c, core.Frame(`{}`))
		if c.closed.Load() != tc.closed {
			t.Fatalf("action %v err %v: closed = %v, want %v", tc.action, tc.err, c.closed.Load(), tc.closed)
		}
	}
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	if !rl.Allow("c") || !rl.Allow("c") {
		t.Fatalf("first two attempts refused")
	}
	if rl.Allow("c") {
		t.Fatalf("third attempt allowed inside the window")
	}
	if !rl.Allow("other") {
		t.Fatalf("connections share a window")
	}
	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("c") {
		t.Fatalf("window did not slide")
	}
	rl.Forget("c")
	if !NewRateLimiter(0, time.Second).Allow("c") {
		t.Fatalf("zero limit must disable limiting")
	}
}

func TestCandidateGateHoldsUntilOpen(t *testing.T) {
	var sent []string
	g := newCandidateGate(func(m protocol.ICECandidateMessage) { sent = append(sent, m.Candidate.Candidate) })
	h := g.handler(domain.RoomID("r1"), domain.UserID("a"))

	h(webrtc.ICECandidateInit{Candidate: "1"})
	h(webrtc.ICECandidateInit{Candidate: "2"})
	if len(sent) != 0 {
		t.Fatalf("sent before open: %v", sent)
	}
	g.open()
	h(webrtc.ICECandidateInit{Candidate: "3"})
	if len(sent) != 3 || sent[0] != "1" || sent[2] != "3" {
		t.Fatalf("sent = %v", sent)
	}

	sent = nil
	d := newCandidateGate(func(m protocol.ICECandidateMessage) { sent = append(sent, m.Candidate.Candidate) })
	dh := d.handler("r1", "a")
	dh(webrtc.ICECandidateInit{Candidate: "x"})
	d.discard()
	dh(webrtc.ICECandidateInit{Candidate: "y"})
	if len(sent) != 0 {
		t.Fatalf("discarded gate sent %v", sent)
	}
}

func TestParseBroadcastScope(t *testing.T) {
	if ParseBroadcastScope("global") != ScopeGlobal || ParseBroadcastScope("room") != ScopeRoom || ParseBroadcastScope("") != ScopeRoom {
		t.Fatalf("scope parsing")
	}
}
