package orch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/core/coretest"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
)

func newOrch(engine *coretest.Engine, timeout time.Duration) *Orchestrator {
	reg := app.NewRegistry(engine, nil)
	return New(reg, app.NewMediaTracker(reg), timeout)
}

func joinReq(room domain.RoomID, user string, conn core.ConnID) JoinRequest {
	return JoinRequest{
		Room:     room,
		User:     domain.Identity{ID: domain.UserID(user), Nickname: user},
		Conn:     conn,
		SDPOffer: "offer-" + user,
	}
}

func TestJoinReturnsAnswerAndRoster(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)

	res, err := o.Join(context.Background(), joinReq("r1", "a", "c1"))
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.SDPAnswer != "answer:offer-a" {
		t.Fatalf("answer = %q", res.SDPAnswer)
	}
	if len(res.Members) != 1 || res.Members[0].User.ID != "a" {
		t.Fatalf("members = %+v", res.Members)
	}

	res, err = o.Join(context.Background(), joinReq("r1", "b", "c2"))
	if err != nil {
		t.Fatalf("Join b: %v", err)
	}
	if len(res.Members) != 2 {
		t.Fatalf("second join sees %d members, want 2", len(res.Members))
	}
	if engine.PipelinesCreated.Load() != 1 {
		t.Fatalf("pipelines created = %d", engine.PipelinesCreated.Load())
	}
}

func TestJoinGathersCandidates(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	got := make(chan webrtc.ICECandidateInit, 1)

	req := joinReq("r1", "a", "c1")
	req.OnCandidate = func(c webrtc.ICECandidateInit) { got <- c }
	if _, err := o.Join(context.Background(), req); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if engine.Gathered("endpoint-2") != 1 {
		t.Fatalf("candidates not gathered")
	}
	if !engine.EmitCandidate("endpoint-2", webrtc.ICECandidateInit{Candidate: "candidate:x"}) {
		t.Fatalf("endpoint has no candidate callback")
	}
	if c := <-got; c.Candidate != "candidate:x" {
		t.Fatalf("candidate = %+v", c)
	}
}

func TestRejoinReleasesReplacedEndpoint(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()

	if _, err := o.Join(ctx, joinReq("r1", "a", "c1")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := o.Join(ctx, joinReq("r1", "a", "c1")); err != nil {
		t.Fatalf("re-Join: %v", err)
	}
	if engine.EndpointReleases("endpoint-2") != 1 {
		t.Fatalf("replaced endpoint released %d times", engine.EndpointReleases("endpoint-2"))
	}
	if n := len(o.Roster("r1")); n != 1 {
		t.Fatalf("roster has %d members", n)
	}
}

func TestJoinOtherRoomLeavesFirst(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()

	o.Join(ctx, joinReq("r1", "a", "c1"))
	res, err := o.Join(ctx, joinReq("r2", "a", "c1"))
	if err != nil {
		t.Fatalf("Join r2: %v", err)
	}
	if res.LeftRoom != "r1" {
		t.Fatalf("LeftRoom = %q", res.LeftRoom)
	}
	if o.Registry.HasPipeline("r1") || len(o.Roster("r1")) != 0 {
		t.Fatalf("r1 kept state after the move")
	}
}

func TestJoinOfferFailureRemovesEndpoint(t *testing.T) {
	engine := coretest.NewEngine()
	engine.FailOffer.Store(true)
	o := newOrch(engine, time.Second)

	_, err := o.Join(context.Background(), joinReq("r1", "a", "c1"))
	if !errors.Is(err, core.ErrEngine) {
		t.Fatalf("err = %v, want ErrEngine", err)
	}
	if o.Registry.HasPipeline("r1") || len(o.Roster("r1")) != 0 {
		t.Fatalf("failed join left a partial endpoint")
	}
	if engine.ReleasedEndpointCount() != 1 || engine.ReleasedPipelineCount() != 1 {
		t.Fatalf("released endpoints=%d pipelines=%d", engine.ReleasedEndpointCount(), engine.ReleasedPipelineCount())
	}
}

func TestFailedRenegotiationRestoresSession(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()

	if _, err := o.Join(ctx, joinReq("r1", "a", "c1")); err != nil {
		t.Fatalf("Join a: %v", err)
	}
	if _, err := o.Join(ctx, joinReq("r1", "b", "c2")); err != nil {
		t.Fatalf("Join b: %v", err)
	}
	if !o.Media.SetFlag("a", domain.MediaAudio, true) {
		t.Fatalf("SetFlag: no session")
	}

	engine.FailOffer.Store(true)
	req := joinReq("r1", "a", "c3")
	if _, err := o.Join(ctx, req); !errors.Is(err, core.ErrEngine) {
		t.Fatalf("err = %v, want ErrEngine", err)
	}
	if n := len(o.Roster("r1")); n != 2 {
		t.Fatalf("roster has %d members, want 2", n)
	}
	m, owner, ok := o.Registry.Session("a")
	if !ok || owner != "c1" || !m.Media.Audio {
		t.Fatalf("session = %+v owner=%s ok=%v", m, owner, ok)
	}
	if engine.EndpointReleases("endpoint-2") != 0 {
		t.Fatalf("original endpoint released")
	}
	if engine.EndpointReleases("endpoint-4") != 1 {
		t.Fatalf("failed endpoint released %d times", engine.EndpointReleases("endpoint-4"))
	}

	engine.FailOffer.Store(false)
	if err := o.AddCandidate(ctx, "r1", "a", webrtc.ICECandidateInit{Candidate: "candidate:y"}); err != nil {
		t.Fatalf("AddCandidate on restored session: %v", err)
	}
	if got := engine.Candidates("endpoint-2"); len(got) != 1 {
		t.Fatalf("candidates on original endpoint = %v", got)
	}
}

func TestRenegotiationTimeoutRestoresSession(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := o.Join(ctx, joinReq("r1", "a", "c1")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	engine.DropOffer.Store(true)
	if _, err := o.Join(ctx, joinReq("r1", "a", "c1")); !errors.Is(err, ErrOfferTimeout) {
		t.Fatalf("err = %v, want ErrOfferTimeout", err)
	}
	if !o.Registry.HasPipeline("r1") || len(o.Roster("r1")) != 1 {
		t.Fatalf("timed out renegotiation dropped the session")
	}
	if engine.EndpointReleases("endpoint-2") != 0 || engine.EndpointReleases("endpoint-3") != 1 {
		t.Fatalf("releases: original=%d failed=%d", engine.EndpointReleases("endpoint-2"), engine.EndpointReleases("endpoint-3"))
	}
}

func TestJoinOfferTimeout(t *testing.T) {
	engine := coretest.NewEngine()
	engine.DropOffer.Store(true)
	o := newOrch(engine, 20*time.Millisecond)

	_, err := o.Join(context.Background(), joinReq("r1", "a", "c1"))
	if !errors.Is(err, ErrOfferTimeout) {
		t.Fatalf("err = %v, want ErrOfferTimeout", err)
	}
	if o.Registry.HasPipeline("r1") {
		t.Fatalf("timed out join kept the pipeline")
	}
}

func TestLateAnswerAfterTimeoutIsDropped(t *testing.T) {
	engine := coretest.NewEngine()
	engine.OfferDelay = 50 * time.Millisecond
	o := newOrch(engine, 10*time.Millisecond)

	if _, err := o.Join(context.Background(), joinReq("r1", "a", "c1")); !errors.Is(err, ErrOfferTimeout) {
		t.Fatalf("err = %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if len(o.Roster("r1")) != 0 {
		t.Fatalf("late answer resurrected the session")
	}
}

func TestDisconnectOnlyRemovesOwnedSessions(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()

	o.Join(ctx, joinReq("r1", "a", "old"))
	o.Join(ctx, joinReq("r1", "a", "new"))
	o.Join(ctx, joinReq("r1", "b", "cb"))

	if left := o.Disconnect(ctx, "old", "a", []domain.RoomID{"r1"}); len(left) != 0 {
		t.Fatalf("old connection removed %v", left)
	}
	if len(o.Roster("r1")) != 2 {
		t.Fatalf("roster shrank")
	}
	left := o.Disconnect(ctx, "new", "a", []domain.RoomID{"r1"})
	if len(left) != 1 || left[0] != "r1" {
		t.Fatalf("left = %v", left)
	}
	if r := o.Roster("r1"); len(r) != 1 || r[0].User.ID != "b" {
		t.Fatalf("roster = %+v", r)
	}
}

func TestEvictRoom(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()

	o.Join(ctx, joinReq("r1", "a", "c1"))
	o.Join(ctx, joinReq("r1", "b", "c2"))
	removed := o.EvictRoom(ctx, "r1")
	if len(removed) != 2 {
		t.Fatalf("removed = %+v", removed)
	}
	if engine.ReleasedEndpointCount() != 2 || engine.ReleasedPipelineCount() != 1 {
		t.Fatalf("released endpoints=%d pipelines=%d", engine.ReleasedEndpointCount(), engine.ReleasedPipelineCount())
	}
	if o.Leave(ctx, "r1", "a") {
		t.Fatalf("leave after eviction reported a removal")
	}
}

func TestToggleMedia(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()
	o.Join(ctx, joinReq("r1", "a", "c1"))

	if err := o.ToggleMedia(ctx, "r1", "a", domain.MediaKindFromSignal("AUDIO"), true); err != nil {
		t.Fatalf("ToggleMedia: %v", err)
	}
	if on, set := engine.Flow("endpoint-2", domain.MediaAudio); !set || !on {
		t.Fatalf("audio flow not connected")
	}
	if err := o.ToggleMedia(ctx, "r1", "a", domain.MediaScreen, true); err != nil {
		t.Fatalf("ToggleMedia screen: %v", err)
	}
	if got := o.Roster("r1")[0].Media; got != (domain.MediaState{Audio: true, Screen: true}) {
		t.Fatalf("media = %+v", got)
	}
	if err := o.ToggleMedia(ctx, "r1", "a", domain.MediaKind("smell"), true); !errors.Is(err, ErrUnknownMediaKind) {
		t.Fatalf("err = %v", err)
	}
	if err := o.ToggleMedia(ctx, "r1", "ghost", domain.MediaAudio, true); err != nil {
		t.Fatalf("unknown user toggle err = %v", err)
	}
}

func TestAddCandidateForwardsToEndpoint(t *testing.T) {
	engine := coretest.NewEngine()
	o := newOrch(engine, time.Second)
	ctx := context.Background()
	o.Join(ctx, joinReq("r1", "a", "c1"))

	if err := o.AddCandidate(ctx, "r1", "a", webrtc.ICECandidateInit{Candidate: "candidate:y"}); err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}
	if got := engine.Candidates("endpoint-2"); len(got) != 1 || got[0].Candidate != "candidate:y" {
		t.Fatalf("candidates = %+v", got)
	}
	if err := o.AddCandidate(ctx, "r1", "ghost", webrtc.ICECandidateInit{}); !errors.Is(err, app.ErrNoEndpoint) {
		t.Fatalf("err = %v", err)
	}
}
