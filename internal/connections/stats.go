package connections

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at     time.Time
	ms     int64
	failed bool
}

// LatencySnapshot aggregates the samples of one endpoint.
type LatencySnapshot struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Latency tracks recent call latencies of one endpoint within a rolling window.
type Latency struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewLatency(maxAge time.Duration) *Latency {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Latency{
		samples: make([]sample, 0, 64),
		maxAge:  maxAge,
	}
}

// Record adds one call. Failed calls count toward Errors and the latency
// distribution alike.
func (l *Latency) Record(d time.Duration, failed bool) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)
	l.samples = append(l.samples, sample{at: now, ms: ms, failed: failed})
}

func (l *Latency) Snapshot() LatencySnapshot {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	if len(l.samples) == 0 {
		return LatencySnapshot{}
	}

	values := make([]int64, 0, len(l.samples))
	var sum int64
	errs := 0
	for _, s := range l.samples {
		values = append(values, s.ms)
		sum += s.ms
		if s.failed {
			errs++
		}
	}
	slices.Sort(values)

	return LatencySnapshot{
		Count:  len(values),
		Errors: errs,
		MinMs:  values[0],
		MaxMs:  values[len(values)-1],
		AvgMs:  float64(sum) / float64(len(values)),
		P50Ms:  percentile(values, 50),
		P95Ms:  percentile(values, 95),
		P99Ms:  percentile(values, 99),
	}
}

func (l *Latency) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.maxAge)
	keep := l.samples[:0]
	for _, s := range l.samples {
		if !s.at.Before(cutoff) {
			keep = append(keep, s)
		}
	}
	l.samples = keep
}

// Stats keeps one Latency per backend endpoint.
type Stats struct {
	mu       sync.Mutex
	maxAge   time.Duration
	byTarget map[string]*Latency
}

func NewStats(maxAge time.Duration) *Stats {
	return &Stats{maxAge: maxAge, byTarget: make(map[string]*Latency)}
}

func (s *Stats) Record(endpoint string, d time.Duration, failed bool) {
	s.mu.Lock()
	l, ok := s.byTarget[endpoint]
	if !ok {
		l = NewLatency(s.maxAge)
		s.byTarget[endpoint] = l
	}
	s.mu.Unlock()
	l.Record(d, failed)
}

// Snapshot returns per-endpoint aggregates.
func (s *Stats) Snapshot() map[string]LatencySnapshot {
	s.mu.Lock()
	targets := make(map[string]*Latency, len(s.byTarget))
	for k, v := range s.byTarget {
		targets[k] = v
	}
	s.mu.Unlock()

	out := make(map[string]LatencySnapshot, len(targets))
	for k, l := range targets {
		out[k] = l.Snapshot()
	}
	return out
}

func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return lo + ((hi - lo) * weight)
}
