package embedding

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker is the process-wide embedding circuit breaker. Once the failure
// threshold is reached it stays open until an explicit Reset: there is no
// automatic half-open probing, so a flapping provider cannot cause retry
// storms.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	failures  int
	open      bool
	gauge     prometheus.Gauge
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures. gauge (optional) mirrors the open state for observability.
func NewBreaker(threshold int, gauge prometheus.Gauge) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{threshold: threshold, gauge: gauge}
}

// Open reports whether calls should be rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// RecordFailure counts one provider failure, opening the breaker at the
// threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.open = true
		b.setGauge(1)
	}
}

// RecordSuccess clears the consecutive-failure count. It never closes an
// open breaker; that requires an explicit Reset.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		b.failures = 0
	}
}

// Reset closes the breaker and zeroes the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.failures = 0
	b.setGauge(0)
}

func (b *Breaker) setGauge(v float64) {
	if b.gauge != nil {
		b.gauge.Set(v)
	}
}
