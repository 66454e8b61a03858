package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds process-wide delivery counters. Every recorder also feeds the
// matching Prometheus collector.
type Stats struct {
	mu       sync.RWMutex
	snapshot Snapshot

	registry     *prometheus.Registry
	cycles       *prometheus.CounterVec
	cycleTime    prometheus.Histogram
	fetched      prometheus.Counter
	outcomes     *prometheus.CounterVec
	waits        prometheus.Counter
	waitSeconds  prometheus.Counter
	lastCycleSec prometheus.Gauge
}

type Snapshot struct {
	StartedAt          time.Time     `json:"started_at"`
	Cycles             int64         `json:"cycles"`
	CycleErrors        int64         `json:"cycle_errors"`
	LastCycleAt        *time.Time    `json:"last_cycle_at,omitempty"`
	LastCycleDuration  time.Duration `json:"last_cycle_duration"`
	Fetched            int64         `json:"fetched"`
	AlreadySeen        int64         `json:"already_seen"`
	Posted             int64         `json:"posted"`
	SkippedUnreachable int64         `json:"skipped_unreachable"`
	SkippedEmpty       int64         `json:"skipped_empty"`
	Failed             int64         `json:"failed"`
	Interrupted        int64         `json:"interrupted"`
	RateLimitWaits     int64         `json:"rate_limit_waits"`
	RateLimitWaitTotal time.Duration `json:"rate_limit_wait_total"`
}

// Outcome labels used by RecordOutcome.
const (
	OutcomePosted             = "posted"
	OutcomeAlreadySeen        = "already_seen"
	OutcomeSkippedUnreachable = "skipped_unreachable"
	OutcomeSkippedEmpty       = "skipped_empty"
	OutcomeFailed             = "failed"
	OutcomeInterrupted        = "interrupted"
)

func New(startedAt time.Time) *Stats {
	s := &Stats{
		snapshot: Snapshot{StartedAt: startedAt},
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "answer_relay_poll_cycles_total",
			Help: "Poll cycles run, by result.",
		}, []string{"result"}),
		cycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "answer_relay_poll_cycle_duration_seconds",
			Help:    "Duration of poll cycles in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "answer_relay_candidates_fetched_total",
			Help: "Valid candidate answers fetched from the source store.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "answer_relay_deliveries_total",
			Help: "Candidate deliveries, by outcome.",
		}, []string{"outcome"}),
		waits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "answer_relay_rate_limit_waits_total",
			Help: "Number of waits for a rate limit window to reset.",
		}),
		waitSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "answer_relay_rate_limit_wait_seconds_total",
			Help: "Total seconds spent waiting for rate limit resets.",
		}),
		lastCycleSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "answer_relay_last_cycle_timestamp_seconds",
			Help: "Unix time of the last finished poll cycle.",
		}),
	}

	s.registry.MustRegister(s.cycles, s.cycleTime, s.fetched, s.outcomes, s.waits, s.waitSeconds, s.lastCycleSec)
	return s
}

func (s *Stats) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Stats) RecordCycle(finishedAt time.Time, duration time.Duration, err error) {
	s.mu.Lock()
	s.snapshot.Cycles++
	if err != nil {
		s.snapshot.CycleErrors++
	}
	s.snapshot.LastCycleAt = &finishedAt
	s.snapshot.LastCycleDuration = duration
	s.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	s.cycles.WithLabelValues(result).Inc()
	s.cycleTime.Observe(duration.Seconds())
	s.lastCycleSec.Set(float64(finishedAt.Unix()))
}

func (s *Stats) RecordFetched(n int) {
	s.mu.Lock()
	s.snapshot.Fetched += int64(n)
	s.mu.Unlock()

	s.fetched.Add(float64(n))
}

func (s *Stats) RecordOutcome(outcome string) {
	s.mu.Lock()
	switch outcome {
	case OutcomePosted:
		s.snapshot.Posted++
	case OutcomeAlreadySeen:
		s.snapshot.AlreadySeen++
	case OutcomeSkippedUnreachable:
		s.snapshot.SkippedUnreachable++
	case OutcomeSkippedEmpty:
		s.snapshot.SkippedEmpty++
	case OutcomeFailed:
		s.snapshot.Failed++
	case OutcomeInterrupted:
		s.snapshot.Interrupted++
	}
	s.mu.Unlock()

	s.outcomes.WithLabelValues(outcome).Inc()
}

func (s *Stats) RecordRateLimitWait(d time.Duration) {
	s.mu.Lock()
	s.snapshot.RateLimitWaits++
	s.snapshot.RateLimitWaitTotal += d
	s.mu.Unlock()

	s.waits.Inc()
	s.waitSeconds.Add(d.Seconds())
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snapshot
	if s.snapshot.LastCycleAt != nil {
		at := *s.snapshot.LastCycleAt
		out.LastCycleAt = &at
	}
	return out
}
