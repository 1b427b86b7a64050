package core

import (
	"context"
	"errors"

	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -destination=mock/mock_engine.go -package=mock github.com/dkeye/voicegate/internal/core Engine,Pipeline,Endpoint

// ErrEngine wraps every failure reported by an SFU engine.
var ErrEngine = errors.New("sfu engine")

// Pipeline is an opaque per-room media context owned by the engine.
type Pipeline interface {
	PipelineID() string
}

// Endpoint is an opaque per-user media entry point bound to one Pipeline.
type Endpoint interface {
	EndpointID() string
}

// CandidateHandler receives every local ICE candidate the engine discovers for an endpoint.
type CandidateHandler func(webrtc.ICECandidateInit)

// OfferCallback is invoked exactly once per ProcessOffer, on any goroutine.
type OfferCallback func(sdpAnswer string, err error)

// Engine is the SFU collaborator. Handles it returns are never interpreted by callers.
type Engine interface {
	CreatePipeline(ctx context.Context) (Pipeline, error)
	// CreateEndpoint binds a new endpoint to p. onCandidate may be called until the endpoint is released.
	CreateEndpoint(ctx context.Context, p Pipeline, onCandidate CandidateHandler) (Endpoint, error)
	// ProcessOffer negotiates the offer asynchronously and reports through done.
	ProcessOffer(ctx context.Context, ep Endpoint, sdpOffer string, done OfferCallback)
	GatherCandidates(ctx context.Context, ep Endpoint) error
	AddICECandidate(ctx context.Context, ep Endpoint, c webrtc.ICECandidateInit) error
	// Connect resumes the endpoint's outgoing media flow of the given kind.
	Connect(ctx context.Context, ep Endpoint, kind domain.MediaKind) error
	// Disconnect pauses the endpoint's outgoing media flow of the given kind.
	Disconnect(ctx context.Context, ep Endpoint, kind domain.MediaKind) error
	ReleaseEndpoint(ctx context.Context, ep Endpoint) error
	ReleasePipeline(ctx context.Context, p Pipeline) error
	Close() error
}
