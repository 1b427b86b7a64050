package kurento

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/voicegate/internal/core"
	"github.com/dkeye/voicegate/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Pipeline struct{ id string }

func (p *Pipeline) PipelineID() string { return p.id }

type Endpoint struct {
	id       string
	pipeline string
}

func (e *Endpoint) EndpointID() string { return e.id }

// Engine implements core.Engine on top of one Client session.
type Engine struct {
	client *Client
}

func NewEngine(c *Client) *Engine {
	return &Engine{client: c}
}

func (e *Engine) CreatePipeline(ctx context.Context) (core.Pipeline, error) {
	id, err := e.create(ctx, "MediaPipeline", map[string]any{})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "kurento").Str("pipeline", id).Msg("pipeline created")
	return &Pipeline{id: id}, nil
}

func (e *Engine) CreateEndpoint(ctx context.Context, p core.Pipeline, onCandidate core.CandidateHandler) (core.Endpoint, error) {
	id, err := e.create(ctx, "WebRtcEndpoint", map[string]any{"mediaPipeline": p.PipelineID()})
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{id: id, pipeline: p.PipelineID()}

	if onCandidate != nil {
		e.client.Listen(id, func(ev Event) {
			if ev.Type != "IceCandidateFound" {
				return
			}
			cand, err := decodeCandidate(ev.Data)
			if err != nil {
				log.Warn().Err(err).Str("module", "kurento").Str("endpoint", id).Msg("bad candidate event")
				return
			}
			onCandidate(cand)
		})
	}
	if _, err := e.client.Call(ctx, "subscribe", map[string]any{
		"type":   "IceCandidateFound",
		"object": id,
	}); err != nil {
		e.client.Forget(id)
		_ = e.release(context.WithoutCancel(ctx), id)
		return nil, wrap("subscribe", err)
	}
	return ep, nil
}

func (e *Engine) ProcessOffer(ctx context.Context, ep core.Endpoint, sdpOffer string, done core.OfferCallback) {
	go func() {
		raw, err := e.invoke(ctx, ep.EndpointID(), "processOffer", map[string]any{"offer": sdpOffer})
		if err != nil {
			done("", err)
			return
		}
		var answer string
		if err := json.Unmarshal(raw, &answer); err != nil {
			done("", wrap("processOffer", err))
			return
		}
		done(answer, nil)
	}()
}

func (e *Engine) GatherCandidates(ctx context.Context, ep core.Endpoint) error {
	_, err := e.invoke(ctx, ep.EndpointID(), "gatherCandidates", map[string]any{})
	return err
}

func (e *Engine) AddICECandidate(ctx context.Context, ep core.Endpoint, c webrtc.ICECandidateInit) error {
	cand := map[string]any{
		"__module__": "kurento",
		"__type__":   "IceCandidate",
		"candidate":  c.Candidate,
	}
	if c.SDPMid != nil {
		cand["sdpMid"] = *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		cand["sdpMLineIndex"] = *c.SDPMLineIndex
	}
	_, err := e.invoke(ctx, ep.EndpointID(), "addIceCandidate", map[string]any{"candidate": cand})
	return err
}

// Connect loops the endpoint's media of kind back into itself.
func (e *Engine) Connect(ctx context.Context, ep core.Endpoint, kind domain.MediaKind) error {
	return e.link(ctx, ep, kind, "connect")
}

func (e *Engine) Disconnect(ctx context.Context, ep core.Endpoint, kind domain.MediaKind) error {
	return e.link(ctx, ep, kind, "disconnect")
}

func (e *Engine) link(ctx context.Context, ep core.Endpoint, kind domain.MediaKind, op string) error {
	mt, err := mediaType(kind)
	if err != nil {
		return err
	}
	_, err = e.invoke(ctx, ep.EndpointID(), op, map[string]any{
		"sink":      ep.EndpointID(),
		"mediaType": mt,
	})
	return err
}

func (e *Engine) ReleaseEndpoint(ctx context.Context, ep core.Endpoint) error {
	e.client.Forget(ep.EndpointID())
	return e.release(ctx, ep.EndpointID())
}

func (e *Engine) ReleasePipeline(ctx context.Context, p core.Pipeline) error {
	if err := e.release(ctx, p.PipelineID()); err != nil {
		return err
	}
	log.Info().Str("module", "kurento").Str("pipeline", p.PipelineID()).Msg("pipeline released")
	return nil
}

func (e *Engine) Close() error {
	return e.client.Close()
}

// Healthy reports whether the media server connection is up.
func (e *Engine) Healthy() error {
	return e.client.Healthy()
}

func (e *Engine) create(ctx context.Context, typ string, ctor map[string]any) (string, error) {
	raw, err := e.client.Call(ctx, "create", map[string]any{
		"type":              typ,
		"constructorParams": ctor,
		"properties":        map[string]any{},
	})
	if err != nil {
		return "", wrap("create "+typ, err)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", wrap("create "+typ, err)
	}
	return id, nil
}

func (e *Engine) invoke(ctx context.Context, object, op string, params map[string]any) (json.RawMessage, error) {
	raw, err := e.client.Call(ctx, "invoke", map[string]any{
		"object":          object,
		"operation":       op,
		"operationParams": params,
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return raw, nil
}

func (e *Engine) release(ctx context.Context, object string) error {
	if _, err := e.client.Call(ctx, "release", map[string]any{"object": object}); err != nil {
		return wrap("release", err)
	}
	return nil
}

func mediaType(kind domain.MediaKind) (string, error) {
	switch kind {
	case domain.MediaAudio:
		return "AUDIO", nil
	case domain.MediaVideo:
		return "VIDEO", nil
	case domain.MediaScreen:
		return "DATA", nil
	}
	return "", fmt.Errorf("%w: unknown media kind %q", core.ErrEngine, kind)
}

func decodeCandidate(data json.RawMessage) (webrtc.ICECandidateInit, error) {
	var payload struct {
		Candidate struct {
			Candidate     string  `json:"candidate"`
			SDPMid        *string `json:"sdpMid"`
			SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
		} `json:"candidate"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return webrtc.ICECandidateInit{}, err
	}
	return webrtc.ICECandidateInit{
		Candidate:     payload.Candidate.Candidate,
		SDPMid:        payload.Candidate.SDPMid,
		SDPMLineIndex: payload.Candidate.SDPMLineIndex,
	}, nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: kurento %s: %w", core.ErrEngine, op, err)
}
