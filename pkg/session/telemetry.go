package session

import (
	"context"

	"github.com/odvcencio/gensession/pkg/telemetry"
)

// SendDocGenerationTelemetryEvent reports a generation round. It never
// fails; submission problems are logged by the reporter.
func (s *Session) SendDocGenerationTelemetryEvent(ctx context.Context, ev telemetry.GenerationEvent) {
	if ev.ConversationID == "" {
		ev.ConversationID = s.currentConversationID()
	}
	s.cfg.Reporter.SendGeneration(ctx, ev)
}

// SendDocAcceptanceTelemetryEvent reports the user's decision on a round.
func (s *Session) SendDocAcceptanceTelemetryEvent(ctx context.Context, ev telemetry.AcceptanceEvent) {
	if ev.ConversationID == "" {
		ev.ConversationID = s.currentConversationID()
	}
	s.cfg.Reporter.SendAcceptance(ctx, ev)
}
