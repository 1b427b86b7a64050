package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/core/coretest"
	"github.com/dkeye/voicegate/internal/core/mock"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/sourcegraph/conc"
	"go.uber.org/mock/gomock"
)

func ident(id string) domain.Identity {
	return domain.Identity{ID: domain.UserID(id), Nickname: "nick-" + id}
}

func join(t *testing.T, reg *Registry, room domain.RoomID, user string) core.Endpoint {
	t.Helper()
	ep, _, err := reg.CreateEndpoint(context.Background(), room, core.ConnID("conn-"+user), ident(user), nil)
	if err != nil {
		t.Fatalf("CreateEndpoint(%s, %s): %v", room, user, err)
	}
	return ep
}

func TestConcurrentFirstJoinsCreateOnePipeline(t *testing.T) {
	engine := coretest.NewEngine()
	engine.CreateDelay = 5 * time.Millisecond
	reg := NewRegistry(engine, nil)

	const n = 32
	var wg conc.WaitGroup
	for i := range n {
		wg.Go(func() {
			_, _, err := reg.CreateEndpoint(context.Background(), "r1", "c", ident(fmt.Sprintf("u%02d", i)), nil)
			if err != nil {
				t.Errorf("join %d: %v", i, err)
			}
		})
	}
	wg.Wait()

	if got := engine.PipelinesCreated.Load(); got != 1 {
		t.Fatalf("pipelines created = %d, want 1", got)
	}
	if got := len(reg.ListMembers("r1")); got != n {
		t.Fatalf("members = %d, want %d", got, n)
	}
	if !reg.HasPipeline("r1") {
		t.Fatalf("room with members has no pipeline")
	}
}

func TestConcurrentPipelineLookupsShareHandle(t *testing.T) {
	engine := coretest.NewEngine()
	engine.CreateDelay = 2 * time.Millisecond
	reg := NewRegistry(engine, nil)

	results := make([]core.Pipeline, 8)
	var wg conc.WaitGroup
	for i := range results {
		wg.Go(func() {
			p, err := reg.getOrCreatePipeline(context.Background(), "r1")
			if err != nil {
				t.Errorf("getOrCreatePipeline: %v", err)
			}
			results[i] = p
		})
	}
	wg.Wait()

	for _, p := range results[1:] {
		if p != results[0] {
			t.Fatalf("callers observed different pipelines")
		}
	}
}

func TestRoomsDoNotContend(t *testing.T) {
	const rooms = 4
	engine := coretest.NewEngine()
	var arrived atomic.Int32
	all := make(chan struct{})
	// every CreatePipeline waits until all rooms are inside it at once
	engine.OnCreatePipeline = func() {
		if arrived.Add(1) == rooms {
			close(all)
		}
		select {
		case <-all:
		case <-time.After(5 * time.Second):
			t.Errorf("independent rooms serialized: %d of %d creations in flight", arrived.Load(), rooms)
		}
	}
	reg := NewRegistry(engine, nil)

	var wg conc.WaitGroup
	for i := range rooms {
		wg.Go(func() {
			if _, _, err := reg.CreateEndpoint(context.Background(), domain.RoomID(fmt.Sprintf("room-%d", i)), "c", ident("u"), nil); err != nil {
				t.Errorf("join room-%d: %v", i, err)
			}
		})
	}
	wg.Wait()

	if got := engine.PipelinesCreated.Load(); got != rooms {
		t.Fatalf("pipelines created = %d, want %d", got, rooms)
	}
}

func TestPipelineExistsIffMembers(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	a := join(t, reg, "r1", "a")
	b := join(t, reg, "r1", "b")

	if !reg.RemoveUser(ctx, "r1", "a") {
		t.Fatalf("RemoveUser(a) reported absent")
	}
	if !reg.HasPipeline("r1") {
		t.Fatalf("pipeline released while b is still in the room")
	}
	if engine.EndpointReleases(a.EndpointID()) != 1 {
		t.Fatalf("endpoint of a not released once")
	}

	reg.RemoveUser(ctx, "r1", "b")
	if reg.HasPipeline("r1") {
		t.Fatalf("empty room kept its pipeline")
	}
	if engine.EndpointReleases(b.EndpointID()) != 1 || engine.ReleasedPipelineCount() != 1 {
		t.Fatalf("teardown incomplete: b=%d pipelines=%d", engine.EndpointReleases(b.EndpointID()), engine.ReleasedPipelineCount())
	}

	if reg.RemoveUser(ctx, "r1", "b") {
		t.Fatalf("second RemoveUser reported a removal")
	}
	if engine.EndpointReleases(b.EndpointID()) != 1 {
		t.Fatalf("endpoint released twice")
	}
	if len(reg.Rooms()) != 0 {
		t.Fatalf("rooms left behind: %v", reg.Rooms())
	}
}

func TestRejoinAfterTeardownCreatesNewPipeline(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)

	join(t, reg, "r1", "a")
	reg.RemoveUser(context.Background(), "r1", "a")
	join(t, reg, "r1", "a")

	if got := engine.PipelinesCreated.Load(); got != 2 {
		t.Fatalf("pipelines created = %d, want 2", got)
	}
	if !reg.HasPipeline("r1") {
		t.Fatalf("rejoined room has no pipeline")
	}
}

func TestListMembersUnknownRoom(t *testing.T) {
	reg := NewRegistry(coretest.NewEngine(), nil)
	got := reg.ListMembers("nope")
	if got == nil || len(got) != 0 {
		t.Fatalf("ListMembers(unknown) = %#v, want empty slice", got)
	}
}

func TestListMembersSortedWithProfile(t *testing.T) {
	reg := NewRegistry(coretest.NewEngine(), nil)
	for _, u := range []string{"c", "a", "b"} {
		join(t, reg, "r1", u)
	}
	got := reg.ListMembers("r1")
	for i, want := range []domain.UserID{"a", "b", "c"} {
		if got[i].User.ID != want {
			t.Fatalf("member %d = %s, want %s", i, got[i].User.ID, want)
		}
		if got[i].User.Nickname != "nick-"+string(want) {
			t.Fatalf("profile lost: %+v", got[i].User)
		}
		if got[i].Media != (domain.MediaState{}) {
			t.Fatalf("fresh member has flags set: %+v", got[i].Media)
		}
	}
}

func TestCreateEndpointReportsReplaced(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)

	first := join(t, reg, "r1", "a")
	second, replaced, err := reg.CreateEndpoint(context.Background(), "r1", "conn-2", ident("a"), nil)
	if err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}
	if replaced != first {
		t.Fatalf("replaced = %v, want %v", replaced, first)
	}
	if engine.EndpointReleases(first.EndpointID()) != 0 {
		t.Fatalf("registry released the replaced endpoint itself")
	}
	if _, owner, _ := reg.Session("a"); owner != "conn-2" {
		t.Fatalf("session owner = %s, want conn-2", owner)
	}
	if len(reg.ListMembers("r1")) != 1 {
		t.Fatalf("replacement duplicated the member")
	}

	reg.RemoveUser(context.Background(), "r1", "a")
	if engine.EndpointReleases(second.EndpointID()) != 1 {
		t.Fatalf("current endpoint not released")
	}
}

func TestCreateEndpointFailureLeavesNoPipeline(t *testing.T) {
	engine := coretest.NewEngine()
	engine.FailCreateEndpoint.Store(true)
	reg := NewRegistry(engine, nil)

	_, _, err := reg.CreateEndpoint(context.Background(), "r1", "c", ident("a"), nil)
	if !errors.Is(err, core.ErrEngine) {
		t.Fatalf("err = %v, want ErrEngine", err)
	}
	if reg.HasPipeline("r1") || len(reg.Rooms()) != 0 {
		t.Fatalf("failed join left room state behind")
	}
	if engine.ReleasedPipelineCount() != 1 {
		t.Fatalf("pipeline created for the failed join was not released")
	}
	if _, ok := reg.RoomOf("a"); ok {
		t.Fatalf("failed join recorded a session")
	}
}

func TestCreateEndpointFailureKeepsExistingRoom(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	join(t, reg, "r1", "a")

	engine.FailCreateEndpoint.Store(true)
	if _, _, err := reg.CreateEndpoint(context.Background(), "r1", "c", ident("b"), nil); err == nil {
		t.Fatalf("expected failure")
	}
	if !reg.HasPipeline("r1") || engine.ReleasedPipelineCount() != 0 {
		t.Fatalf("failure of b disturbed a's room")
	}
}

func TestCreatePipelineFailure(t *testing.T) {
	engine := coretest.NewEngine()
	engine.FailCreatePipeline.Store(true)
	reg := NewRegistry(engine, nil)

	if _, _, err := reg.CreateEndpoint(context.Background(), "r1", "c", ident("a"), nil); !errors.Is(err, core.ErrEngine) {
		t.Fatalf("err = %v, want ErrEngine", err)
	}
	if len(reg.Rooms()) != 0 || engine.EndpointsCreated.Load() != 0 {
		t.Fatalf("state after pipeline failure")
	}
}

func TestRemoveRoomReleasesEverything(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	eps := []core.Endpoint{join(t, reg, "r1", "a"), join(t, reg, "r1", "b"), join(t, reg, "r1", "c")}
	join(t, reg, "r2", "d")

	removed := reg.RemoveRoom(context.Background(), "r1")
	if len(removed) != 3 || removed[0].User.ID != "a" {
		t.Fatalf("removed = %+v", removed)
	}
	for _, ep := range eps {
		if engine.EndpointReleases(ep.EndpointID()) != 1 {
			t.Fatalf("endpoint %s not released once", ep.EndpointID())
		}
	}
	if reg.HasPipeline("r1") || len(reg.ListMembers("r1")) != 0 {
		t.Fatalf("room survived teardown")
	}
	if _, ok := reg.RoomOf("a"); ok {
		t.Fatalf("session of a survived teardown")
	}
	if !reg.HasPipeline("r2") {
		t.Fatalf("teardown of r1 touched r2")
	}
	if reg.RemoveRoom(context.Background(), "r1") != nil {
		t.Fatalf("second teardown removed members")
	}
}

func TestRemoveRoomContinuesPastEngineErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := mock.NewMockEngine(ctrl)
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	pipeline := &coretest.Pipeline{ID: "p"}
	engine.EXPECT().CreatePipeline(gomock.Any()).Return(pipeline, nil).Times(1)
	engine.EXPECT().CreateEndpoint(gomock.Any(), pipeline, gomock.Any()).Return(&coretest.Endpoint{ID: "e1"}, nil)
	engine.EXPECT().CreateEndpoint(gomock.Any(), pipeline, gomock.Any()).Return(&coretest.Endpoint{ID: "e2"}, nil)
	engine.EXPECT().ReleaseEndpoint(gomock.Any(), gomock.Any()).Return(errors.New("kms gone")).Times(2)
	engine.EXPECT().ReleasePipeline(gomock.Any(), pipeline).Return(nil).Times(1)

	join(t, reg, "r1", "a")
	join(t, reg, "r1", "b")
	if got := reg.RemoveRoom(ctx, "r1"); len(got) != 2 {
		t.Fatalf("removed %d members, want 2", len(got))
	}
	if reg.HasPipeline("r1") {
		t.Fatalf("pipeline kept after failed endpoint releases")
	}
}

func TestMoveToAnotherRoomKeepsOldEndpointUntilRemoved(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	join(t, reg, "r1", "a")
	join(t, reg, "r2", "a")
	if room, _ := reg.RoomOf("a"); room != "r2" {
		t.Fatalf("RoomOf(a) = %s, want r2", room)
	}

	reg.RemoveUser(ctx, "r1", "a")
	if room, ok := reg.RoomOf("a"); !ok || room != "r2" {
		t.Fatalf("removal from r1 dropped the r2 session")
	}
	if reg.HasPipeline("r1") {
		t.Fatalf("r1 pipeline leaked")
	}
}

func TestEnginePassThroughs(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()
	ep := join(t, reg, "r1", "a")

	if err := reg.GatherCandidates(ctx, "r1", "a"); err != nil {
		t.Fatalf("GatherCandidates: %v", err)
	}
	if engine.Gathered(ep.EndpointID()) != 1 {
		t.Fatalf("gather not forwarded")
	}
	if err := reg.SetMediaFlow(ctx, "r1", "a", domain.MediaAudio, false); err != nil {
		t.Fatalf("SetMediaFlow: %v", err)
	}
	if on, set := engine.Flow(ep.EndpointID(), domain.MediaAudio); !set || on {
		t.Fatalf("audio flow = (%v, %v), want disconnected", on, set)
	}
	if err := reg.SetMediaFlow(ctx, "r1", "a", domain.MediaScreen, true); err != nil {
		t.Fatalf("SetMediaFlow(screen): %v", err)
	}
	if _, set := engine.Flow(ep.EndpointID(), domain.MediaScreen); set {
		t.Fatalf("screen toggle reached the engine")
	}
	if err := reg.GatherCandidates(ctx, "r1", "ghost"); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("err = %v, want ErrNoEndpoint", err)
	}
}

func TestMediaTrackerSetFlag(t *testing.T) {
	reg := NewRegistry(coretest.NewEngine(), nil)
	tracker := NewMediaTracker(reg)

	if tracker.SetFlag("a", domain.MediaAudio, true) {
		t.Fatalf("SetFlag succeeded without a session")
	}
	join(t, reg, "r1", "a")

	if !tracker.SetFlag("a", domain.MediaAudio, true) {
		t.Fatalf("SetFlag failed for a member")
	}
	if tracker.SetFlag("a", domain.MediaKind("smell"), true) {
		t.Fatalf("unknown kind accepted")
	}
	got := reg.ListMembers("r1")[0].Media
	if got != (domain.MediaState{Audio: true}) {
		t.Fatalf("media = %+v, want audio only", got)
	}
	tracker.SetFlag("a", domain.MediaScreen, true)
	tracker.SetFlag("a", domain.MediaAudio, false)
	if got := reg.ListMembers("r1")[0].Media; got != (domain.MediaState{Screen: true}) {
		t.Fatalf("media = %+v, want screen only", got)
	}
}

type recordingPresence struct {
	events chan string
}

func (p recordingPresence) Joined(_ context.Context, room domain.RoomID, user domain.UserID) {
	p.events <- "join " + string(room) + " " + string(user)
}

func (p recordingPresence) Left(_ context.Context, room domain.RoomID, user domain.UserID) {
	p.events <- "leave " + string(room) + " " + string(user)
}

func (p recordingPresence) Cleared(_ context.Context, room domain.RoomID) {
	p.events <- "clear " + string(room)
}

func TestPresenceReceivesMembershipChanges(t *testing.T) {
	p := recordingPresence{events: make(chan string, 16)}
	reg := NewRegistry(coretest.NewEngine(), p)
	ctx := context.Background()

	join(t, reg, "r1", "a")
	join(t, reg, "r1", "a")
	reg.RemoveUser(ctx, "r1", "a")
	join(t, reg, "r2", "b")
	reg.RemoveRoom(ctx, "r2")
	close(p.events)

	var got []string
	for e := range p.events {
		got = append(got, e)
	}
	want := []string{"join r1 a", "leave r1 a", "join r2 b", "clear r2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("presence events = %v, want %v", got, want)
	}
}

func TestRemoveOwnedBySparesNewerConnection(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	reg.CreateEndpoint(ctx, "r1", "old", ident("a"), nil)
	ep, _, _ := reg.CreateEndpoint(ctx, "r1", "new", ident("a"), nil)
	reg.CommitEndpoint(ctx, "r1", "a", ep)

	if reg.RemoveOwnedBy(ctx, "r1", "a", "old") {
		t.Fatalf("stale connection removed the newer session")
	}
	if owner, ok := reg.Owner("r1", "a"); !ok || owner != "new" {
		t.Fatalf("owner = %s, %v", owner, ok)
	}
	if !reg.RemoveOwnedBy(ctx, "r1", "a", "new") {
		t.Fatalf("owning connection could not remove its session")
	}
	if reg.HasPipeline("r1") {
		t.Fatalf("pipeline leaked")
	}
}

func TestCommitEndpointReleasesReplaced(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	first := join(t, reg, "r1", "a")
	second := join(t, reg, "r1", "a")
	third := join(t, reg, "r1", "a")
	reg.CommitEndpoint(ctx, "r1", "a", third)

	for _, ep := range []core.Endpoint{first, second} {
		if n := engine.EndpointReleases(ep.EndpointID()); n != 1 {
			t.Fatalf("%s released %d times", ep.EndpointID(), n)
		}
	}
	if engine.EndpointReleases(third.EndpointID()) != 0 {
		t.Fatalf("committed endpoint released")
	}
	reg.RemoveUser(ctx, "r1", "a")
	if engine.ReleasedEndpointCount() != 3 {
		t.Fatalf("released endpoints = %d, want 3", engine.ReleasedEndpointCount())
	}
}

func TestRollbackEndpointRestoresReplaced(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	first := join(t, reg, "r1", "a")
	join(t, reg, "r1", "b")
	second, _, err := reg.CreateEndpoint(ctx, "r1", "conn-new", ident("a"), nil)
	if err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}

	reg.RollbackEndpoint(ctx, "r1", "a", second)
	if engine.EndpointReleases(second.EndpointID()) != 1 || engine.EndpointReleases(first.EndpointID()) != 0 {
		t.Fatalf("releases: rolled back=%d restored=%d",
			engine.EndpointReleases(second.EndpointID()), engine.EndpointReleases(first.EndpointID()))
	}
	if _, owner, ok := reg.Session("a"); !ok || owner != "conn-a" {
		t.Fatalf("session owner = %s, %v; want conn-a", owner, ok)
	}
	if len(reg.ListMembers("r1")) != 2 {
		t.Fatalf("rollback changed membership: %+v", reg.ListMembers("r1"))
	}
	if ep, err := reg.endpointOf("r1", "a"); err != nil || ep != first {
		t.Fatalf("current endpoint = %v, %v", ep, err)
	}
}

func TestRollbackEndpointOfFirstJoinRemovesUser(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	ep := join(t, reg, "r1", "a")
	reg.RollbackEndpoint(ctx, "r1", "a", ep)
	if reg.HasPipeline("r1") || len(reg.Rooms()) != 0 {
		t.Fatalf("rolled back first join kept room state")
	}
	if _, ok := reg.RoomOf("a"); ok {
		t.Fatalf("rolled back first join kept the session")
	}
	if engine.EndpointReleases(ep.EndpointID()) != 1 {
		t.Fatalf("endpoint released %d times", engine.EndpointReleases(ep.EndpointID()))
	}
}

func TestRollbackOfSupersededEndpoint(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	first := join(t, reg, "r1", "a")
	second := join(t, reg, "r1", "a")
	third := join(t, reg, "r1", "a")

	reg.RollbackEndpoint(ctx, "r1", "a", second)
	if ep, _ := reg.endpointOf("r1", "a"); ep != third {
		t.Fatalf("rollback of a superseded endpoint replaced the current one")
	}
	if engine.EndpointReleases(second.EndpointID()) != 1 {
		t.Fatalf("superseded endpoint not released")
	}

	reg.RollbackEndpoint(ctx, "r1", "a", third)
	if ep, _ := reg.endpointOf("r1", "a"); ep != first {
		t.Fatalf("current endpoint = %v, want the first", ep)
	}
	if engine.ReleasedEndpointCount() != 2 {
		t.Fatalf("released endpoints = %d, want 2", engine.ReleasedEndpointCount())
	}
}

func TestRemoveUserReleasesUnsettledEndpoints(t *testing.T) {
	engine := coretest.NewEngine()
	reg := NewRegistry(engine, nil)
	ctx := context.Background()

	join(t, reg, "r1", "a")
	join(t, reg, "r1", "a")
	reg.RemoveUser(ctx, "r1", "a")
	if engine.ReleasedEndpointCount() != 2 {
		t.Fatalf("released endpoints = %d, want 2", engine.ReleasedEndpointCount())
	}

	join(t, reg, "r2", "b")
	join(t, reg, "r2", "b")
	reg.RemoveRoom(ctx, "r2")
	if engine.ReleasedEndpointCount() != 4 {
		t.Fatalf("released endpoints = %d after teardown, want 4", engine.ReleasedEndpointCount())
	}
}
