// Package observability tracks validation outcomes: per-property failure
// frequency for operators and Prometheus counters for scraping.
package observability

import (
	"sort"
	"sync"
	"time"
)

// ValidationStats tracks which properties fail validation most often, per
// kind.
type ValidationStats struct {
	mu       sync.RWMutex
	failures map[string]*PropertyStats
	window   time.Duration
}

// PropertyStats holds failure statistics for one kind/property pair.
type PropertyStats struct {
	Kind      string
	Property  string
	Frequency int64
	LastSeen  time.Time
	Codes     map[string]int // error code → count (e.g., "TYPE_COERCION" → 3)
}

// NewValidationStats creates a new failure tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewValidationStats(window time.Duration) *ValidationStats {
	return &ValidationStats{
		failures: make(map[string]*PropertyStats),
		window:   window,
	}
}

// RecordFailure records a rejected property.
// This method is O(1) and thread-safe.
func (v *ValidationStats) RecordFailure(kind, property, code string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := kind + "/" + property
	stats, exists := v.failures[key]
	if !exists {
		stats = &PropertyStats{
			Kind:     kind,
			Property: property,
			Codes:    make(map[string]int),
		}
		v.failures[key] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Codes[code]++
}

// GetTopFailures returns the top N failing properties by frequency.
// Returns a copy of the stats sorted by frequency (descending), ties broken
// by kind then property.
func (v *ValidationStats) GetTopFailures(n int) []PropertyStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if n <= 0 || len(v.failures) == 0 {
		return []PropertyStats{}
	}

	stats := make([]PropertyStats, 0, len(v.failures))
	for _, s := range v.failures {
		statsCopy := PropertyStats{
			Kind:      s.Kind,
			Property:  s.Property,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Codes:     make(map[string]int, len(s.Codes)),
		}
		for code, count := range s.Codes {
			statsCopy.Codes[code] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].Kind != stats[j].Kind {
			return stats[i].Kind < stats[j].Kind
		}
		return stats[i].Property < stats[j].Property
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (v *ValidationStats) Prune() {
	v.mu.Lock()
	defer v.mu.Unlock()

	threshold := time.Now().Add(-v.window)
	for key, stats := range v.failures {
		if stats.LastSeen.Before(threshold) {
			delete(v.failures, key)
		}
	}
}
