package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/dkeye/voicegate/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var ErrNoEndpoint = errors.New("no endpoint for user in room")

type sessionEntry struct {
	Room     domain.RoomID
	User     domain.Identity
	Owner    core.ConnID
	Endpoint core.Endpoint
	Media    domain.MediaState
	// prev is the session this one replaced, kept until the offer on Endpoint settles.
	prev *sessionEntry
}

// endpoints returns e's endpoint followed by those of any unsettled predecessors.
func (e *sessionEntry) endpoints() []core.Endpoint {
	var out []core.Endpoint
	for ; e != nil; e = e.prev {
		out = append(out, e.Endpoint)
	}
	return out
}

// room is locked in the order room.mu, then Registry.mu.
// pipeline and members are written only while both are held.
type room struct {
	id       domain.RoomID
	mu       sync.Mutex
	closed   bool
	pipeline core.Pipeline
	members  map[domain.UserID]*sessionEntry
}

type Registry struct {
	engine   core.Engine
	presence Presence

	mu       sync.RWMutex
	rooms    map[domain.RoomID]*room
	sessions map[domain.UserID]*sessionEntry
}

func NewRegistry(engine core.Engine, presence Presence) *Registry {
	if presence == nil {
		presence = NoopPresence{}
	}
	return &Registry{
		engine:   engine,
		presence: presence,
		rooms:    make(map[domain.RoomID]*room),
		sessions: make(map[domain.UserID]*sessionEntry),
	}
}

// lockRoom returns the live room with its mutex held, or nil when it does not exist
// and create is false. A room closed between lookup and lock is looked up again.
func (r *Registry) lockRoom(id domain.RoomID, create bool) *room {
	for {
		r.mu.RLock()
		rm, ok := r.rooms[id]
		r.mu.RUnlock()
		if !ok {
			if !create {
				return nil
			}
			r.mu.Lock()
			if rm, ok = r.rooms[id]; !ok {
				rm = &room{id: id, members: make(map[domain.UserID]*sessionEntry)}
				r.rooms[id] = rm
				metrics.RoomsActive.Set(float64(len(r.rooms)))
			}
			r.mu.Unlock()
		}
		rm.mu.Lock()
		if !rm.closed {
			return rm
		}
		rm.mu.Unlock()
	}
}

// dropLocked removes rm from the map once it holds neither members nor a pipeline.
// Caller holds rm.mu.
func (r *Registry) dropLocked(rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(rm.members) > 0 || rm.pipeline != nil {
		return
	}
	rm.closed = true
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	metrics.RoomsActive.Set(float64(len(r.rooms)))
}

func (r *Registry) getOrCreatePipeline(ctx context.Context, roomID domain.RoomID) (core.Pipeline, error) {
	rm := r.lockRoom(roomID, true)
	defer rm.mu.Unlock()
	p, _, err := r.pipelineLocked(ctx, rm)
	if err != nil {
		r.dropLocked(rm)
	}
	return p, err
}

// pipelineLocked runs with rm.mu held, so concurrent first joins create one pipeline.
func (r *Registry) pipelineLocked(ctx context.Context, rm *room) (core.Pipeline, bool, error) {
	if rm.pipeline != nil {
		return rm.pipeline, false, nil
	}
	p, err := r.engine.CreatePipeline(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("create pipeline for room %s: %w", rm.id, err)
	}
	r.mu.Lock()
	rm.pipeline = p
	r.mu.Unlock()
	metrics.PipelineOps.WithLabelValues("create").Inc()
	log.Info().Str("module", "app.registry").Str("room", string(rm.id)).Str("pipeline", p.PipelineID()).Msg("pipeline created")
	return p, true, nil
}

// CreateEndpoint records a fresh session for user in roomID. A previous endpoint of the
// same user in the same room is returned as replaced. It stays allocated until the caller
// settles the new one with CommitEndpoint or RollbackEndpoint.
func (r *Registry) CreateEndpoint(
	ctx context.Context,
	roomID domain.RoomID,
	owner core.ConnID,
	user domain.Identity,
	onCandidate core.CandidateHandler,
) (ep core.Endpoint, replaced core.Endpoint, err error) {
	rm := r.lockRoom(roomID, true)
	defer rm.mu.Unlock()

	p, created, err := r.pipelineLocked(ctx, rm)
	if err != nil {
		r.dropLocked(rm)
		return nil, nil, err
	}
	ep, err = r.engine.CreateEndpoint(ctx, p, onCandidate)
	if err != nil {
		if created && len(rm.members) == 0 {
			r.releasePipelineLocked(ctx, rm)
		}
		return nil, nil, fmt.Errorf("create endpoint for %s in room %s: %w", user.ID, roomID, err)
	}

	entry := &sessionEntry{Room: roomID, User: user, Owner: owner, Endpoint: ep}
	r.mu.Lock()
	if prev, ok := rm.members[user.ID]; ok {
		replaced = prev.Endpoint
		entry.prev = prev
	}
	rm.members[user.ID] = entry
	r.sessions[user.ID] = entry
	r.mu.Unlock()

	if replaced == nil {
		metrics.EndpointsActive.Inc()
		r.presence.Joined(ctx, roomID, user.ID)
	}
	log.Info().
		Str("module", "app.registry").
		Str("room", string(roomID)).
		Str("user", string(user.ID)).
		Str("conn", string(owner)).
		Str("endpoint", ep.EndpointID()).
		Bool("replaced", replaced != nil).
		Msg("endpoint created")
	return ep, replaced, nil
}

// releasePipelineLocked releases the pipeline of an empty room and drops the room.
func (r *Registry) releasePipelineLocked(ctx context.Context, rm *room) {
	r.mu.Lock()
	p := rm.pipeline
	rm.pipeline = nil
	r.mu.Unlock()
	if p != nil {
		if err := r.engine.ReleasePipeline(ctx, p); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("room", string(rm.id)).Msg("release pipeline failed")
		}
		metrics.PipelineOps.WithLabelValues("release").Inc()
		log.Info().Str("module", "app.registry").Str("room", string(rm.id)).Str("pipeline", p.PipelineID()).Msg("pipeline released")
	}
	r.dropLocked(rm)
}

// releaseEndpoint logs engine failures; the handle is dropped either way.
func (r *Registry) releaseEndpoint(ctx context.Context, ep core.Endpoint) {
	if ep == nil {
		return
	}
	if err := r.engine.ReleaseEndpoint(ctx, ep); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("endpoint", ep.EndpointID()).Msg("release endpoint failed")
	}
}

// findLocked returns the entry holding ep, current or still awaiting settlement,
// and the entry that replaced it. Caller holds r.mu.
func findLocked(cur *sessionEntry, ep core.Endpoint) (found, next *sessionEntry) {
	for e := cur; e != nil; next, e = e, e.prev {
		if e.Endpoint == ep {
			return e, next
		}
	}
	return nil, nil
}

// CommitEndpoint settles a negotiated endpoint and releases the sessions it replaced.
func (r *Registry) CommitEndpoint(ctx context.Context, roomID domain.RoomID, userID domain.UserID, ep core.Endpoint) {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return
	}
	defer rm.mu.Unlock()

	r.mu.Lock()
	var stale []core.Endpoint
	if e, _ := findLocked(rm.members[userID], ep); e != nil {
		stale = e.prev.endpoints()
		e.prev = nil
	}
	r.mu.Unlock()

	for _, old := range stale {
		r.releaseEndpoint(ctx, old)
	}
}

// RollbackEndpoint undoes a CreateEndpoint whose offer failed. The session ep replaced,
// if any, becomes current again; otherwise the user is removed. ep is released either way.
func (r *Registry) RollbackEndpoint(ctx context.Context, roomID domain.RoomID, userID domain.UserID, ep core.Endpoint) {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return
	}
	defer rm.mu.Unlock()

	r.mu.Lock()
	e, next := findLocked(rm.members[userID], ep)
	switch {
	case e == nil:
		r.mu.Unlock()
		return
	case next != nil:
		// a newer join took over; unlink ep from its chain
		next.prev = e.prev
	case e.prev != nil:
		rm.members[userID] = e.prev
		if r.sessions[userID] == e {
			r.sessions[userID] = e.prev
		}
	default:
		r.mu.Unlock()
		r.removeLocked(ctx, rm, userID, func(s *sessionEntry) bool { return s == e })
		return
	}
	r.mu.Unlock()

	r.releaseEndpoint(ctx, ep)
	log.Info().
		Str("module", "app.registry").
		Str("room", string(roomID)).
		Str("user", string(userID)).
		Str("endpoint", ep.EndpointID()).
		Msg("endpoint rolled back")
}

// RemoveUser is idempotent. The last member out releases the room's pipeline.
func (r *Registry) RemoveUser(ctx context.Context, roomID domain.RoomID, userID domain.UserID) bool {
	return r.removeUser(ctx, roomID, userID, nil)
}

// RemoveOwnedBy removes the user only while conn still owns the session, so a
// newer connection of the same user is left alone.
func (r *Registry) RemoveOwnedBy(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn core.ConnID) bool {
	return r.removeUser(ctx, roomID, userID, func(e *sessionEntry) bool { return e.Owner == conn })
}

func (r *Registry) removeUser(ctx context.Context, roomID domain.RoomID, userID domain.UserID, match func(*sessionEntry) bool) bool {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return false
	}
	defer rm.mu.Unlock()
	return r.removeLocked(ctx, rm, userID, match)
}

// removeLocked runs with rm.mu held.
func (r *Registry) removeLocked(ctx context.Context, rm *room, userID domain.UserID, match func(*sessionEntry) bool) bool {
	roomID := rm.id
	r.mu.Lock()
	entry, ok := rm.members[userID]
	if ok && match != nil && !match(entry) {
		r.mu.Unlock()
		return false
	}
	if ok {
		delete(rm.members, userID)
	}
	if s, found := r.sessions[userID]; found && s.Room == roomID {
		delete(r.sessions, userID)
	}
	empty := len(rm.members) == 0
	r.mu.Unlock()

	if ok {
		for _, ep := range entry.endpoints() {
			r.releaseEndpoint(ctx, ep)
		}
		metrics.EndpointsActive.Dec()
		r.presence.Left(ctx, roomID, userID)
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("user", string(userID)).Msg("user removed")
	}
	if empty {
		r.releasePipelineLocked(ctx, rm)
	}
	return ok
}

// RemoveRoom tears the room down regardless of its members and returns who was removed.
func (r *Registry) RemoveRoom(ctx context.Context, roomID domain.RoomID) []domain.Member {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return nil
	}
	defer rm.mu.Unlock()

	r.mu.Lock()
	members := rm.members
	rm.members = make(map[domain.UserID]*sessionEntry)
	for uid, entry := range members {
		if r.sessions[uid] == entry {
			delete(r.sessions, uid)
		}
	}
	r.mu.Unlock()

	removed := make([]domain.Member, 0, len(members))
	p := pool.New().WithErrors()
	for _, entry := range members {
		removed = append(removed, entry.snapshot())
		for _, ep := range entry.endpoints() {
			p.Go(func() error {
				if err := r.engine.ReleaseEndpoint(ctx, ep); err != nil {
					return fmt.Errorf("release endpoint %s: %w", ep.EndpointID(), err)
				}
				return nil
			})
		}
	}
	if err := p.Wait(); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("room", string(roomID)).Msg("room teardown incomplete")
	}
	metrics.EndpointsActive.Sub(float64(len(members)))
	r.releasePipelineLocked(ctx, rm)
	r.presence.Cleared(ctx, roomID)
	sortMembers(removed)

	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Int("members", len(removed)).Msg("room removed")
	return removed
}

func (e *sessionEntry) snapshot() domain.Member {
	return domain.Member{User: e.User, Room: e.Room, Media: e.Media}
}

func sortMembers(ms []domain.Member) {
	slices.SortFunc(ms, func(a, b domain.Member) int { return cmp.Compare(a.User.ID, b.User.ID) })
}

// ListMembers never fails; unknown or empty rooms yield an empty slice.
func (r *Registry) ListMembers(roomID domain.RoomID) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return []domain.Member{}
	}
	out := make([]domain.Member, 0, len(rm.members))
	for _, entry := range rm.members {
		out = append(out, entry.snapshot())
	}
	sortMembers(out)
	return out
}

func (r *Registry) endpointOf(roomID domain.RoomID, userID domain.UserID) (core.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[roomID]; ok {
		if entry, ok := rm.members[userID]; ok {
			return entry.Endpoint, nil
		}
	}
	return nil, fmt.Errorf("%w: room %s user %s", ErrNoEndpoint, roomID, userID)
}

func (r *Registry) ProcessOffer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, sdpOffer string, done core.OfferCallback) error {
	ep, err := r.endpointOf(roomID, userID)
	if err != nil {
		return err
	}
	r.engine.ProcessOffer(ctx, ep, sdpOffer, done)
	return nil
}

func (r *Registry) GatherCandidates(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	ep, err := r.endpointOf(roomID, userID)
	if err != nil {
		return err
	}
	return r.engine.GatherCandidates(ctx, ep)
}

func (r *Registry) AddICECandidate(ctx context.Context, roomID domain.RoomID, userID domain.UserID, c webrtc.ICECandidateInit) error {
	ep, err := r.endpointOf(roomID, userID)
	if err != nil {
		return err
	}
	return r.engine.AddICECandidate(ctx, ep, c)
}

// SetMediaFlow pauses or resumes the user's outgoing flow. Screen sharing has no
// engine-side flow and only changes the tracked flag.
func (r *Registry) SetMediaFlow(ctx context.Context, roomID domain.RoomID, userID domain.UserID, kind domain.MediaKind, enabled bool) error {
	if kind != domain.MediaAudio && kind != domain.MediaVideo {
		return nil
	}
	ep, err := r.endpointOf(roomID, userID)
	if err != nil {
		return err
	}
	if enabled {
		return r.engine.Connect(ctx, ep, kind)
	}
	return r.engine.Disconnect(ctx, ep, kind)
}

// updateMedia applies fn to the user's current session.
func (r *Registry) updateMedia(userID domain.UserID, fn func(domain.MediaState) domain.MediaState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[userID]
	if !ok {
		return false
	}
	entry.Media = fn(entry.Media)
	return true
}

func (r *Registry) RoomOf(userID domain.UserID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[userID]
	if !ok {
		return "", false
	}
	return entry.Room, true
}

// Session returns the user's current session and the connection that created it.
func (r *Registry) Session(userID domain.UserID) (domain.Member, core.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[userID]
	if !ok {
		return domain.Member{}, "", false
	}
	return entry.snapshot(), entry.Owner, true
}

// Owner reports which connection created the user's session in roomID.
func (r *Registry) Owner(roomID domain.RoomID, userID domain.UserID) (core.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[roomID]; ok {
		if entry, ok := rm.members[userID]; ok {
			return entry.Owner, true
		}
	}
	return "", false
}

func (r *Registry) HasPipeline(roomID domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	return ok && rm.pipeline != nil
}

func (r *Registry) Rooms() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(r.rooms))
	for id, rm := range r.rooms {
		if len(rm.members) == 0 {
			continue
		}
		out = append(out, domain.RoomInfo{ID: id, MemberCount: len(rm.members)})
	}
	slices.SortFunc(out, func(a, b domain.RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
