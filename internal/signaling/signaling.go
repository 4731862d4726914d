// Package signaling relays WebRTC call setup between connected users.
// Nothing here is persisted; an absent peer simply misses the signal.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/metrics"
	"github.com/zfogg/beacon/internal/presence"
	"github.com/zfogg/beacon/internal/telemetry"
	"github.com/zfogg/beacon/internal/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotOnline means the callee has no live connection
	ErrNotOnline = errors.New("user not online")
	ErrNoTarget  = errors.New("signal requires a target user")
	ErrNoPayload = errors.New("signal requires a payload")
)

// Publisher delivers an event to a connection handle
type Publisher interface {
	Publish(handleID, event string, payload interface{}) bool
}

// route maps an inbound signal to the event the callee receives and the key
// its payload travels under
type route struct {
	outbound string
	field    string
}

var routes = map[string]route{
	websocket.EventCallUser:     {outbound: websocket.EventCallMade, field: "offer"},
	websocket.EventMakeAnswer:   {outbound: websocket.EventAnswerMade, field: "answer"},
	websocket.EventICECandidate: {outbound: websocket.EventICECandidate, field: "candidate"},
}

// Relay forwards call signals to the callee's current connection
type Relay struct {
	registry  presence.Registry
	publisher Publisher
}

func NewRelay(registry presence.Registry, publisher Publisher) *Relay {
	return &Relay{registry: registry, publisher: publisher}
}

// CallUser forwards an SDP offer as call-made
func (r *Relay) CallUser(ctx context.Context, from, to string, offer json.RawMessage) error {
	return r.Relay(ctx, websocket.EventCallUser, from, to, offer)
}

// MakeAnswer forwards an SDP answer as answer-made
func (r *Relay) MakeAnswer(ctx context.Context, from, to string, answer json.RawMessage) error {
	return r.Relay(ctx, websocket.EventMakeAnswer, from, to, answer)
}

// ICECandidate forwards a candidate under the same event name
func (r *Relay) ICECandidate(ctx context.Context, from, to string, candidate json.RawMessage) error {
	return r.Relay(ctx, websocket.EventICECandidate, from, to, candidate)
}

// Relay looks up to and publishes {from, <field>: payload} under the renamed event
func (r *Relay) Relay(ctx context.Context, event, from, to string, payload json.RawMessage) error {
	rt, ok := routes[event]
	if !ok {
		return fmt.Errorf("unknown signaling event %q", event)
	}
	if strings.TrimSpace(to) == "" {
		return ErrNoTarget
	}
	if len(payload) == 0 {
		return ErrNoPayload
	}

	ctx, span := telemetry.TraceSignal(ctx, event)
	defer span.End()
	telemetry.SetUserContext(span, from)

	handle, ok := r.registry.Lookup(ctx, to)
	if !ok {
		metrics.Get().SignalingRelaysTotal.WithLabelValues(event, "offline").Inc()
		return ErrNotOnline
	}

	out := map[string]interface{}{
		"from":   from,
		rt.field: payload,
	}
	if !r.publisher.Publish(handle, rt.outbound, out) {
		metrics.Get().SignalingRelaysTotal.WithLabelValues(event, "dropped").Inc()
		return ErrNotOnline
	}

	metrics.Get().SignalingRelaysTotal.WithLabelValues(event, "delivered").Inc()
	logger.Log.Debug("Signal relayed",
		logger.WithEvent(event),
		logger.WithUserID(from),
		zap.String("to", to))
	return nil
}

// signalPayload is the client frame for all three signaling events
type signalPayload struct {
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (p signalPayload) value(event string) json.RawMessage {
	switch event {
	case websocket.EventCallUser:
		return p.Offer
	case websocket.EventMakeAnswer:
		return p.Answer
	default:
		return p.Candidate
	}
}

// RegisterHandlers wires the socket events into the hub. The sender is always
// the connection's identified user; a "from" in the frame is ignored.
func (r *Relay) RegisterHandlers(hub *websocket.Hub) {
	for event := range routes {
		hub.RegisterHandler(event, r.handleSocket)
	}
}

func (r *Relay) handleSocket(client *websocket.Client, msg *websocket.Message) error {
	from, ok := client.RequireUser(msg)
	if !ok {
		return nil
	}

	var p signalPayload
	if err := msg.ParsePayload(&p); err != nil {
		client.SendReplyError(msg, "invalid_payload", "malformed signaling payload")
		return nil
	}

	err := r.Relay(client.Context(), msg.Type, from, p.To, p.value(msg.Type))
	switch {
	case err == nil, errors.Is(err, ErrNotOnline):
		// an absent callee is not reported over the socket
		return nil
	case errors.Is(err, ErrNoTarget), errors.Is(err, ErrNoPayload):
		client.SendReplyError(msg, "invalid_payload", err.Error())
		return nil
	default:
		return err
	}
}
