package telemetry

import (
	"context"
	"time"

	"github.com/odvcencio/gensession/pkg/logging"
)

// Sink submits telemetry envelopes to the backend.
type Sink interface {
	SendTelemetryEvent(ctx context.Context, env Envelope) error
}

// Reporter is the fire-and-forget front of a Sink. Submission errors are
// logged and counted; they never reach the caller.
type Reporter struct {
	sink   Sink
	info   ClientInfoProvider
	optOut bool
	logger *logging.Logger
	hub    *Hub
	tabID  string
	now    func() time.Time
}

// ReporterOption customizes a Reporter.
type ReporterOption func(*Reporter)

// WithLogger routes submission failures to logger.
func WithLogger(logger *logging.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = logger }
}

// WithHub mirrors every submitted event onto hub.
func WithHub(hub *Hub, tabID string) ReporterOption {
	return func(r *Reporter) {
		r.hub = hub
		r.tabID = tabID
	}
}

// WithOptOut records the user's opt-out preference on every envelope.
func WithOptOut(optOut bool) ReporterOption {
	return func(r *Reporter) { r.optOut = optOut }
}

// NewReporter builds a Reporter. A nil sink makes every send a no-op.
func NewReporter(sink Sink, info ClientInfoProvider, opts ...ReporterOption) *Reporter {
	r := &Reporter{sink: sink, info: info, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendGeneration submits a doc-generation event.
func (r *Reporter) SendGeneration(ctx context.Context, ev GenerationEvent) {
	if r == nil {
		return
	}
	recordGeneration(ev)
	r.send(ctx, Envelope{Kind: KindDocGeneration, Generation: &ev}, EventDocGeneration)
}

// SendAcceptance submits a doc-acceptance event.
func (r *Reporter) SendAcceptance(ctx context.Context, ev AcceptanceEvent) {
	if r == nil {
		return
	}
	recordAcceptance(ev)
	r.send(ctx, Envelope{Kind: KindDocAcceptance, Acceptance: &ev}, EventDocAcceptance)
}

func (r *Reporter) send(ctx context.Context, env Envelope, hubType EventType) {
	env.OptOut = r.optOut
	env.SentAt = r.now()
	if r.info != nil {
		env.UserContext = r.info.UserContext()
	}

	r.hub.Publish(Event{
		Type:      hubType,
		TabID:     r.tabID,
		SessionID: env.ConversationID(),
		Data:      map[string]any{"kind": string(env.Kind)},
	})

	if r.sink == nil {
		return
	}

	err := r.safeSend(ctx, env)
	if err == nil {
		r.logger.Debug(logging.CategoryTelemetry, "submitted", "telemetry event submitted", map[string]any{
			"kind":            string(env.Kind),
			"conversation_id": env.ConversationID(),
		})
		return
	}

	metricSubmitFailures.WithLabelValues(string(env.Kind)).Inc()
	r.logger.Error(logging.CategoryTelemetry, "submit_failed", "failed to send telemetry event", map[string]any{
		"kind":            string(env.Kind),
		"conversation_id": env.ConversationID(),
		"error":           err.Error(),
	})
	r.hub.Publish(Event{
		Type:      EventTelemetrySubmitError,
		TabID:     r.tabID,
		SessionID: env.ConversationID(),
		Data:      map[string]any{"kind": string(env.Kind), "error": err.Error()},
	})
}

// safeSend converts a panicking sink into an error so telemetry can never
// take down an interaction.
func (r *Reporter) safeSend(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError{value: p}
		}
	}()
	return r.sink.SendTelemetryEvent(ctx, env)
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return "telemetry sink panicked"
}
