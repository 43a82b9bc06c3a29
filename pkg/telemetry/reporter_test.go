package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/gensession/pkg/logging"
)

type recordingSink struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
	boom bool
}

func (s *recordingSink) SendTelemetryEvent(_ context.Context, env Envelope) error {
	if s.boom {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return s.err
}

var testClient = StaticClientInfo{
	IDECategory: "VSCODE",
	Product:     "DocGeneration",
	ClientID:    "client-1",
	IDEVersion:  "1.90.0",
}

func TestReporterStampsEnvelope(t *testing.T) {
	sink := &recordingSink{}
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewReporter(sink, testClient, WithOptOut(true))
	r.now = func() time.Time { return fixed }

	r.SendGeneration(context.Background(), GenerationEvent{
		ConversationID:     "c1",
		NumberOfAddedChars: 120,
		NumberOfAddedLines: 10,
		NumberOfAddedFiles: 1,
		Interaction:        InteractionGenerateReadme,
	})

	require.Len(t, sink.envs, 1)
	env := sink.envs[0]
	assert.Equal(t, KindDocGeneration, env.Kind)
	assert.True(t, env.OptOut)
	assert.Equal(t, fixed, env.SentAt)
	assert.Equal(t, "c1", env.ConversationID())
	assert.Equal(t, "client-1", env.UserContext.ClientID)
	assert.Equal(t, "DocGeneration", env.UserContext.Product)
	assert.Equal(t, OperatingSystem(), env.UserContext.OperatingSystem)
	assert.Nil(t, env.Acceptance)
}

func TestReporterSwallowsSinkErrors(t *testing.T) {
	var logBuf bytes.Buffer
	hub := NewHub()
	defer hub.Close()
	events, unsub := hub.Subscribe()
	defer unsub()

	sink := &recordingSink{err: errors.New("503 service unavailable")}
	r := NewReporter(sink, testClient, WithLogger(logging.NewWriterLogger(&logBuf, "s")), WithHub(hub, "tab-1"))

	before := testutil.ToFloat64(metricSubmitFailures.WithLabelValues(string(KindDocAcceptance)))
	assert.NotPanics(t, func() {
		r.SendAcceptance(context.Background(), AcceptanceEvent{ConversationID: "c1", Decision: DecisionAccept, NumberOfAddedChars: 5})
	})
	after := testutil.ToFloat64(metricSubmitFailures.WithLabelValues(string(KindDocAcceptance)))

	assert.Equal(t, before+1, after)
	assert.True(t, strings.Contains(logBuf.String(), "submit_failed"), logBuf.String())

	var types []EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []EventType{EventDocAcceptance, EventTelemetrySubmitError}, types)
}

func TestReporterRecoversFromPanickingSink(t *testing.T) {
	r := NewReporter(&recordingSink{boom: true}, testClient)
	assert.NotPanics(t, func() {
		r.SendGeneration(context.Background(), GenerationEvent{ConversationID: "c1"})
	})
}

func TestReporterNilSinkAndNilReporter(t *testing.T) {
	r := NewReporter(nil, nil)
	assert.NotPanics(t, func() { r.SendGeneration(context.Background(), GenerationEvent{}) })

	var nilReporter *Reporter
	assert.NotPanics(t, func() { nilReporter.SendAcceptance(context.Background(), AcceptanceEvent{}) })
}

func TestGenerationMetrics(t *testing.T) {
	label := string(InteractionUpdateReadme)
	before := testutil.ToFloat64(metricGeneratedLines.WithLabelValues(label))

	NewReporter(nil, nil).SendGeneration(context.Background(), GenerationEvent{
		Interaction:        InteractionUpdateReadme,
		NumberOfAddedLines: 7,
	})

	assert.Equal(t, before+7, testutil.ToFloat64(metricGeneratedLines.WithLabelValues(label)))
}
