// Package metrics collects playback counters and gauges surfaced through the
// engine's health snapshot.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of all recorded metrics.
type Snapshot struct {
	Counters map[string]int64         `json:"counters,omitempty"`
	Gauges   map[string]float64       `json:"gauges,omitempty"`
	Timings  map[string]TimingSummary `json:"timings,omitempty"`
	TakenAt  time.Time                `json:"taken_at"`
}

// TimingSummary aggregates observed durations for one timing series.
type TimingSummary struct {
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Collector records counters, gauges and timings. Safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string]TimingSummary
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string]TimingSummary),
	}
}

// IncrCounter adds delta to the named counter.
func (c *Collector) IncrCounter(name string, delta int64) {
	c.mu.Lock()
	c.counters[name] += delta
	c.mu.Unlock()
}

// SetGauge records the current value of the named gauge.
func (c *Collector) SetGauge(name string, value float64) {
	c.mu.Lock()
	c.gauges[name] = value
	c.mu.Unlock()
}

// ObserveTiming folds a duration into the named timing series.
func (c *Collector) ObserveTiming(name string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.timings[name]
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
	s.Count++
	s.Total += d
	c.timings[name] = s
}

// Snapshot returns a copy of all series.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Counters: make(map[string]int64, len(c.counters)),
		Gauges:   make(map[string]float64, len(c.gauges)),
		Timings:  make(map[string]TimingSummary, len(c.timings)),
		TakenAt:  time.Now(),
	}
	for k, v := range c.counters {
		snap.Counters[k] = v
	}
	for k, v := range c.gauges {
		snap.Gauges[k] = v
	}
	for k, v := range c.timings {
		snap.Timings[k] = v
	}
	return snap
}
