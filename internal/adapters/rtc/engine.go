package rtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicegate/internal/app/sfu"
	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Pipeline is one room's forwarding plane.
type Pipeline struct {
	id     string
	relays *sfu.RelayManager

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

func (p *Pipeline) PipelineID() string { return p.id }

func (p *Pipeline) add(ep *Endpoint) {
	p.mu.Lock()
	p.endpoints[ep.id] = ep
	p.mu.Unlock()
}

func (p *Pipeline) remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.endpoints[id]; !ok {
		return false
	}
	delete(p.endpoints, id)
	return true
}

func (p *Pipeline) drain() []*Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Endpoint, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, ep)
	}
	p.endpoints = make(map[string]*Endpoint)
	return out
}

type Endpoint struct {
	id       string
	pipeline *Pipeline
	conn     *WebRTCConnection
}

func (e *Endpoint) EndpointID() string { return e.id }

// Engine is an in-process SFU built on pion. Each endpoint is one PeerConnection;
// published tracks are relayed to endpoints that negotiate after the track appeared.
// The server never renegotiates on its own.
type Engine struct {
	api    *webrtc.API
	cfg    webrtc.Configuration
	ctx    context.Context
	cancel context.CancelFunc
	seq    atomic.Int64

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

func NewEngine(cfg webrtc.Configuration) (*Engine, error) {
	api, err := newAPI()
	if err != nil {
		return nil, fmt.Errorf("%w: media engine: %w", core.ErrEngine, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		api:       api,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		pipelines: make(map[string]*Pipeline),
	}, nil
}

func (e *Engine) CreatePipeline(context.Context) (core.Pipeline, error) {
	id := fmt.Sprintf("pipeline-%d", e.seq.Add(1))
	p := &Pipeline{
		id:        id,
		relays:    sfu.NewRelayManager(id),
		endpoints: make(map[string]*Endpoint),
	}
	e.mu.Lock()
	e.pipelines[id] = p
	e.mu.Unlock()
	log.Info().Str("module", "webrtc").Str("pipeline", id).Msg("pipeline created")
	return p, nil
}

func (e *Engine) CreateEndpoint(_ context.Context, p core.Pipeline, onCandidate core.CandidateHandler) (core.Endpoint, error) {
	pl, ok := p.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: foreign pipeline %T", core.ErrEngine, p)
	}
	id := fmt.Sprintf("endpoint-%d", e.seq.Add(1))
	conn, err := NewWebRTCConnection(e.api, e.cfg, id)
	if err != nil {
		return nil, fmt.Errorf("%w: peer connection: %w", core.ErrEngine, err)
	}
	ep := &Endpoint{id: id, pipeline: pl, conn: conn}
	if onCandidate != nil {
		conn.OnICECandidate(onCandidate)
	}
	conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		pl.publish(ctx, ep, track)
	})
	conn.OnClosed(func() { pl.relays.DropEndpoint(id) })
	conn.Start(e.ctx)
	pl.add(ep)
	return ep, nil
}

func (p *Pipeline) publish(ctx context.Context, ep *Endpoint, track *webrtc.TrackRemote) {
	src := sfu.Source{
		Endpoint: ep.id,
		TrackID:  track.ID(),
		StreamID: track.StreamID(),
		Kind:     track.Kind(),
		Codec:    track.Codec().RTPCodecCapability,
	}
	p.relays.StartRelay(ctx, src, func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	})
}

// subscribe attaches every source published so far, except ep's own, before the answer is created.
func (p *Pipeline) subscribe(ep *Endpoint) {
	for _, src := range p.relays.Sources() {
		if src.Endpoint == ep.id {
			continue
		}
		local, err := webrtc.NewTrackLocalStaticRTP(src.Codec, src.TrackID, src.StreamID)
		if err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("src", src.Key()).Msg("local track")
			continue
		}
		sender, err := ep.conn.AddLocalTrack(local)
		if err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("src", src.Key()).Str("endpoint", ep.id).Msg("add track")
			continue
		}
		go drainRTCP(sender)
		p.relays.AddSubscriber(src.Key(), ep.id, local)
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (e *Engine) ProcessOffer(_ context.Context, ep core.Endpoint, sdpOffer string, done core.OfferCallback) {
	endpoint, err := endpointOf(ep)
	if err != nil {
		go done("", err)
		return
	}
	go func() {
		if err := endpoint.conn.SetRemoteOffer(sdpOffer); err != nil {
			done("", fmt.Errorf("%w: remote offer: %w", core.ErrEngine, err))
			return
		}
		endpoint.pipeline.subscribe(endpoint)
		answer, err := endpoint.conn.Answer()
		if err != nil {
			done("", fmt.Errorf("%w: answer: %w", core.ErrEngine, err))
			return
		}
		done(answer, nil)
	}()
}

func (e *Engine) GatherCandidates(_ context.Context, ep core.Endpoint) error {
	endpoint, err := endpointOf(ep)
	if err != nil {
		return err
	}
	endpoint.conn.StartGathering()
	return nil
}

func (e *Engine) AddICECandidate(_ context.Context, ep core.Endpoint, c webrtc.ICECandidateInit) error {
	endpoint, err := endpointOf(ep)
	if err != nil {
		return err
	}
	if err := endpoint.conn.AddICECandidate(c); err != nil {
		return fmt.Errorf("%w: add candidate: %w", core.ErrEngine, err)
	}
	return nil
}

func (e *Engine) Connect(_ context.Context, ep core.Endpoint, kind domain.MediaKind) error {
	return e.setMuted(ep, kind, false)
}

func (e *Engine) Disconnect(_ context.Context, ep core.Endpoint, kind domain.MediaKind) error {
	return e.setMuted(ep, kind, true)
}

func (e *Engine) setMuted(ep core.Endpoint, kind domain.MediaKind, muted bool) error {
	endpoint, err := endpointOf(ep)
	if err != nil {
		return err
	}
	var t webrtc.RTPCodecType
	switch kind {
	case domain.MediaAudio:
		t = webrtc.RTPCodecTypeAudio
	case domain.MediaVideo:
		t = webrtc.RTPCodecTypeVideo
	case domain.MediaScreen:
		// Screen shares arrive as ordinary video tracks.
		return nil
	default:
		return fmt.Errorf("%w: unknown media kind %q", core.ErrEngine, kind)
	}
	endpoint.pipeline.relays.SetMuted(endpoint.id, t, muted)
	return nil
}

func (e *Engine) ReleaseEndpoint(_ context.Context, ep core.Endpoint) error {
	endpoint, err := endpointOf(ep)
	if err != nil {
		return err
	}
	endpoint.pipeline.remove(endpoint.id)
	endpoint.pipeline.relays.DropEndpoint(endpoint.id)
	endpoint.conn.Close()
	return nil
}

func (e *Engine) ReleasePipeline(_ context.Context, p core.Pipeline) error {
	pl, ok := p.(*Pipeline)
	if !ok {
		return fmt.Errorf("%w: foreign pipeline %T", core.ErrEngine, p)
	}
	e.mu.Lock()
	delete(e.pipelines, pl.id)
	e.mu.Unlock()
	e.closePipeline(pl)
	log.Info().Str("module", "webrtc").Str("pipeline", pl.id).Msg("pipeline released")
	return nil
}

func (e *Engine) closePipeline(pl *Pipeline) {
	for _, ep := range pl.drain() {
		ep.conn.Close()
	}
	pl.relays.StopAll()
}

func (e *Engine) Close() error {
	e.mu.Lock()
	pipelines := e.pipelines
	e.pipelines = make(map[string]*Pipeline)
	e.mu.Unlock()
	for _, pl := range pipelines {
		e.closePipeline(pl)
	}
	e.cancel()
	return nil
}

func endpointOf(ep core.Endpoint) (*Endpoint, error) {
	endpoint, ok := ep.(*Endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: foreign endpoint %T", core.ErrEngine, ep)
	}
	return endpoint, nil
}
