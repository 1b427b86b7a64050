package sfu

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RelayManager forwards every published source of one pipeline to its subscribers.
type RelayManager struct {
	id string

	mu     sync.RWMutex
	relays map[string]*Relay
	// muted remembers paused kinds per endpoint so relays started later inherit them.
	muted map[string]map[webrtc.RTPCodecType]bool
}

func NewRelayManager(pipelineID string) *RelayManager {
	return &RelayManager{
		id:     pipelineID,
		relays: make(map[string]*Relay),
		muted:  make(map[string]map[webrtc.RTPCodecType]bool),
	}
}

// StartRelay creates a new Relay for src and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, src Source, read PacketReader) {
	logger := log.With().
		Str("module", "relay").
		Str("pipeline", m.id).
		Str("src", src.Key()).
		Str("kind", src.Kind.String()).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, read, cancel)

	m.mu.Lock()
	if old, ok := m.relays[src.Key()]; ok {
		logger.Info().Msg("replacing existing relay for source")
		old.stop()
	}
	relay.muted.Store(m.muted[src.Endpoint][src.Kind])
	m.relays[src.Key()] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger)
}

// AddSubscriber attaches an OutTrack to the relay of srcKey for dst.
func (m *RelayManager) AddSubscriber(srcKey, dst string, w RTPWriter) bool {
	m.mu.RLock()
	relay, ok := m.relays[srcKey]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, NewOutTrack(w))
	return true
}

// MarkSubscriberDelete marks dst's OutTrack on srcKey as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(srcKey, dst string) {
	m.mu.RLock()
	relay, ok := m.relays[srcKey]
	m.mu.RUnlock()
	if !ok {
		return
	}

	relay.mu.RLock()
	ot, ok := relay.outTracks[dst]
	relay.mu.RUnlock()
	if !ok {
		return
	}
	ot.MarkDelete()
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(srcKey string) {
	m.mu.Lock()
	relay, ok := m.relays[srcKey]
	if ok {
		delete(m.relays, srcKey)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.stop()
}

// DropEndpoint stops everything ep publishes and unsubscribes it from everything else.
func (m *RelayManager) DropEndpoint(ep string) {
	m.mu.Lock()
	var stopped []*Relay
	for key, relay := range m.relays {
		if relay.Src.Endpoint == ep {
			stopped = append(stopped, relay)
			delete(m.relays, key)
		}
	}
	delete(m.muted, ep)
	rest := make([]string, 0, len(m.relays))
	for key := range m.relays {
		rest = append(rest, key)
	}
	m.mu.Unlock()

	for _, r := range stopped {
		r.stop()
	}
	for _, key := range rest {
		m.MarkSubscriberDelete(key, ep)
	}
}

// SetMuted pauses or resumes forwarding of ep's sources of the given kind.
func (m *RelayManager) SetMuted(ep string, kind webrtc.RTPCodecType, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds, ok := m.muted[ep]
	if !ok {
		kinds = make(map[webrtc.RTPCodecType]bool)
		m.muted[ep] = kinds
	}
	kinds[kind] = muted
	for _, relay := range m.relays {
		if relay.Src.Endpoint == ep && relay.Src.Kind == kind {
			relay.muted.Store(muted)
		}
	}
}

// Sources lists every published source ordered by key.
func (m *RelayManager) Sources() []Source {
	m.mu.RLock()
	out := make([]Source, 0, len(m.relays))
	for _, relay := range m.relays {
		out = append(out, relay.Src)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Source) int { return strings.Compare(a.Key(), b.Key()) })
	return out
}

// HasRelay reports whether a relay exists for srcKey.
func (m *RelayManager) HasRelay(srcKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[srcKey]
	return ok
}

// StopAll stops every relay of the pipeline.
func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[string]*Relay)
	m.muted = make(map[string]map[webrtc.RTPCodecType]bool)
	m.mu.Unlock()
	for _, r := range relays {
		r.stop()
	}
}
