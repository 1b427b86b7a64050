// Package coretest provides an in-memory core.Engine for tests.
package coretest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
)

type Pipeline struct{ ID string }

func (p *Pipeline) PipelineID() string { return p.ID }

type Endpoint struct {
	ID          string
	Pipeline    *Pipeline
	OnCandidate core.CandidateHandler
}

func (e *Endpoint) EndpointID() string { return e.ID }

// Engine records every call. Answers are "answer:" + offer.
type Engine struct {
	// CreateDelay widens the window for racing first joins.
	CreateDelay time.Duration
	// OfferDelay postpones the ProcessOffer callback.
	OfferDelay time.Duration
	// OnCreatePipeline runs at the start of every CreatePipeline call.
	OnCreatePipeline func()

	FailCreatePipeline atomic.Bool
	FailCreateEndpoint atomic.Bool
	FailOffer          atomic.Bool
	// DropOffer never invokes the ProcessOffer callback.
	DropOffer atomic.Bool

	PipelinesCreated atomic.Int32
	EndpointsCreated atomic.Int32
	OffersProcessed  atomic.Int32

	seq atomic.Int64

	mu                sync.Mutex
	releasedEndpoints map[string]int
	releasedPipelines map[string]int
	endpoints         map[string]*Endpoint
	candidates        map[string][]webrtc.ICECandidateInit
	flows             map[string]map[domain.MediaKind]bool
	gathered          map[string]int
}

func NewEngine() *Engine {
	return &Engine{
		releasedEndpoints: make(map[string]int),
		releasedPipelines: make(map[string]int),
		endpoints:         make(map[string]*Endpoint),
		candidates:        make(map[string][]webrtc.ICECandidateInit),
		flows:             make(map[string]map[domain.MediaKind]bool),
		gathered:          make(map[string]int),
	}
}

func (e *Engine) CreatePipeline(context.Context) (core.Pipeline, error) {
	if e.OnCreatePipeline != nil {
		e.OnCreatePipeline()
	}
	if e.CreateDelay > 0 {
		time.Sleep(e.CreateDelay)
	}
	if e.FailCreatePipeline.Load() {
		return nil, fmt.Errorf("%w: create pipeline refused", core.ErrEngine)
	}
	e.PipelinesCreated.Add(1)
	return &Pipeline{ID: fmt.Sprintf("pipeline-%d", e.seq.Add(1))}, nil
}

func (e *Engine) CreateEndpoint(_ context.Context, p core.Pipeline, onCandidate core.CandidateHandler) (core.Endpoint, error) {
	if e.FailCreateEndpoint.Load() {
		return nil, fmt.Errorf("%w: create endpoint refused", core.ErrEngine)
	}
	e.EndpointsCreated.Add(1)
	ep := &Endpoint{
		ID:          fmt.Sprintf("endpoint-%d", e.seq.Add(1)),
		Pipeline:    p.(*Pipeline),
		OnCandidate: onCandidate,
	}
	e.mu.Lock()
	e.endpoints[ep.ID] = ep
	e.mu.Unlock()
	return ep, nil
}

func (e *Engine) ProcessOffer(_ context.Context, _ core.Endpoint, sdpOffer string, done core.OfferCallback) {
	e.OffersProcessed.Add(1)
	if e.DropOffer.Load() {
		return
	}
	fail := e.FailOffer.Load()
	go func() {
		if e.OfferDelay > 0 {
			time.Sleep(e.OfferDelay)
		}
		if fail {
			done("", fmt.Errorf("%w: offer rejected", core.ErrEngine))
			return
		}
		done("answer:"+sdpOffer, nil)
	}()
}

func (e *Engine) GatherCandidates(_ context.Context, ep core.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gathered[ep.EndpointID()]++
	return nil
}

func (e *Engine) AddICECandidate(_ context.Context, ep core.Endpoint, c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates[ep.EndpointID()] = append(e.candidates[ep.EndpointID()], c)
	return nil
}

func (e *Engine) Connect(_ context.Context, ep core.Endpoint, kind domain.MediaKind) error {
	e.setFlow(ep, kind, true)
	return nil
}

func (e *Engine) Disconnect(_ context.Context, ep core.Endpoint, kind domain.MediaKind) error {
	e.setFlow(ep, kind, false)
	return nil
}

func (e *Engine) setFlow(ep core.Endpoint, kind domain.MediaKind, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flows[ep.EndpointID()] == nil {
		e.flows[ep.EndpointID()] = make(map[domain.MediaKind]bool)
	}
	e.flows[ep.EndpointID()][kind] = on
}

func (e *Engine) ReleaseEndpoint(_ context.Context, ep core.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releasedEndpoints[ep.EndpointID()]++
	return nil
}

func (e *Engine) ReleasePipeline(_ context.Context, p core.Pipeline) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releasedPipelines[p.PipelineID()]++
	return nil
}

func (e *Engine) Close() error { return nil }

// EmitCandidate fires the endpoint's candidate callback as the engine would.
func (e *Engine) EmitCandidate(endpointID string, c webrtc.ICECandidateInit) bool {
	e.mu.Lock()
	ep, ok := e.endpoints[endpointID]
	e.mu.Unlock()
	if !ok || ep.OnCandidate == nil {
		return false
	}
	ep.OnCandidate(c)
	return true
}

func (e *Engine) EndpointReleases(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releasedEndpoints[id]
}

func (e *Engine) PipelineReleases(id string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releasedPipelines[id]
}

func (e *Engine) ReleasedEndpointCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.releasedEndpoints)
}

func (e *Engine) ReleasedPipelineCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.releasedPipelines)
}

func (e *Engine) Candidates(endpointID string) []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), e.candidates[endpointID]...)
}

// Flow reports the last Connect/Disconnect for the endpoint and kind.
func (e *Engine) Flow(endpointID string, kind domain.MediaKind) (on bool, set bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	on, set = e.flows[endpointID][kind]
	return on, set
}

func (e *Engine) Gathered(endpointID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gathered[endpointID]
}
