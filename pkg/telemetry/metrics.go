package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricGeneratedChars = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "generated_chars_total",
		Help:      "Characters produced by code generation, by interaction type.",
	}, []string{"interaction"})
	metricGeneratedLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "generated_lines_total",
		Help:      "Lines produced by code generation, by interaction type.",
	}, []string{"interaction"})
	metricGeneratedFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "generated_files_total",
		Help:      "Files produced by code generation, by interaction type.",
	}, []string{"interaction"})
	metricAcceptances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "acceptance_decisions_total",
		Help:      "User decisions on generated change sets.",
	}, []string{"decision"})
	metricAcceptedChars = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "accepted_chars_total",
		Help:      "Characters the user accepted into the workspace.",
	})
	metricSubmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "telemetry_submit_failures_total",
		Help:      "Telemetry events the backend rejected or never received.",
	}, []string{"kind"})
	metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gensession",
		Name:      "state_transitions_total",
		Help:      "Session state transitions, by destination phase.",
	}, []string{"phase"})
	metricGenerationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gensession",
		Name:      "codegen_duration_seconds",
		Help:      "Wall time from starting code generation to its terminal status.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

func interactionLabel(it InteractionType) string {
	if it == "" {
		return "unknown"
	}
	return string(it)
}

func recordGeneration(ev GenerationEvent) {
	label := interactionLabel(ev.Interaction)
	metricGeneratedChars.WithLabelValues(label).Add(float64(ev.NumberOfAddedChars))
	metricGeneratedLines.WithLabelValues(label).Add(float64(ev.NumberOfAddedLines))
	metricGeneratedFiles.WithLabelValues(label).Add(float64(ev.NumberOfAddedFiles))
}

func recordAcceptance(ev AcceptanceEvent) {
	metricAcceptances.WithLabelValues(string(ev.Decision)).Inc()
	if ev.Decision == DecisionAccept {
		metricAcceptedChars.Add(float64(ev.NumberOfAddedChars))
	}
}

// RecordTransition counts a state change into phase.
func RecordTransition(phase string) {
	metricTransitions.WithLabelValues(phase).Inc()
}
