package web

// limiter.go bounds the number of aggregations the service runs at once.
//
// Each aggregation holds its whole table in memory, so parallel requests are
// capped with a semaphore. When every slot is taken a request waits up to
// maxWait and then fails with ErrTooManyAggregations. WaitForDrain lets the
// server finish in-flight aggregations during shutdown.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyAggregations is returned when no slot frees up within the wait
// time. Clients should retry after a short delay.
var ErrTooManyAggregations = errors.New("too many concurrent aggregations")

const (
	// DefaultMaxConcurrent is used when the configured limit is not positive.
	DefaultMaxConcurrent = 5

	// DefaultMaxWait is used when the configured wait is not positive.
	DefaultMaxWait = 30 * time.Second
)

// Limiter is a counting semaphore for aggregations.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewLimiter allows at most maxConcurrent simultaneous aggregations.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. It returns ErrTooManyAggregations after maxWait,
// or ctx's error when ctx ends first. Every successful Acquire must be paired
// with Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyAggregations
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// LimiterStatus is a snapshot of the limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports current usage.
func (l *Limiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

// WaitForDrain blocks until no aggregation is running or ctx ends.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.active.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
