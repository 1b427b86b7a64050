package signal

import (
	"context"
	"sync"

	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// candidateGate holds server candidates until the join reply carrying the SDP answer
// has been queued; browsers reject candidates that precede the remote description.
type candidateGate struct {
	send func(protocol.ICECandidateMessage)

	mu      sync.Mutex
	state   int // 0 pending, 1 open, 2 discarded
	pending []protocol.ICECandidateMessage
}

func newCandidateGate(send func(protocol.ICECandidateMessage)) *candidateGate {
	return &candidateGate{send: send}
}

func (g *candidateGate) handler(room domain.RoomID, user domain.UserID) func(webrtc.ICECandidateInit) {
	return func(ci webrtc.ICECandidateInit) {
		msg := protocol.NewICECandidate(room, user, ci)
		g.mu.Lock()
		switch g.state {
		case 0:
			g.pending = append(g.pending, msg)
			g.mu.Unlock()
		case 1:
			g.mu.Unlock()
			g.send(msg)
		default:
			g.mu.Unlock()
		}
	}
}

func (g *candidateGate) open() {
	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.state = 1
	// flushed under the lock so later candidates cannot overtake held ones
	for _, msg := range pending {
		g.send(msg)
	}
	g.mu.Unlock()
}

func (g *candidateGate) discard() {
	g.mu.Lock()
	g.pending = nil
	g.state = 2
	g.mu.Unlock()
}

func (ctl *SignalWSController) handleCandidate(ctx context.Context, c *WsSignalConn, user domain.UserID, env *protocol.Envelope) {
	if env.Data.Candidate == nil {
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Msg("candidate: missing data.candidate")
		return
	}
	room := env.RoomID()
	if err := ctl.Orch.AddCandidate(ctx, room, user, env.Data.Candidate.Init()); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(room)).Str("user", string(user)).Msg("add ice candidate")
	}
}
