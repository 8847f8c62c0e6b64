package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lextale_sessions_active",
		Help: "Sessions with a connected participant",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lextale_sessions_total",
		Help: "Finished sessions by final status",
	}, []string{"status"})

	TrialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lextale_trials_total",
		Help: "Logged trials by outcome",
	}, []string{"outcome"})

	ReactionTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lextale_reaction_time_seconds",
		Help:    "Reaction time from first audio start to selection",
		Buckets: []float64{0.2, 0.4, 0.6, 0.8, 1.0, 1.25, 1.5, 2.0, 3.0, 5.0},
	}, []string{"option"})

	AudioLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lextale_audio_latency_seconds",
		Help:    "Calibrated delay between play request and playback start",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1.0},
	})

	Replays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lextale_replays_total",
		Help: "Replay requests accepted during trials",
	})

	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lextale_gate_rejections_total",
		Help: "Advance attempts refused by a phase gate",
	}, []string{"phase"})

	PlaybackFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lextale_playback_failures_total",
		Help: "Playback that failed or never started",
	}, []string{"stage", "reason"})

	SubmissionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lextale_submission_errors_total",
		Help: "Result submissions that returned an error",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lextale_sessions_expired_total",
		Help: "Abandoned sessions expired by the cleanup service",
	})
)
