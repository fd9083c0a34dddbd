package perfstats

import (
	"time"

	"github.com/bmharper/ringbuffer"
)

// Throughput measures events per second, both over the entire lifetime
// of the meter, and over the most recent window of events.
// It is not safe for concurrent use.
type Throughput struct {
	start  time.Time
	count  int64
	window int
	recent ringbuffer.RingP[time.Time]
}

// windowSize is the number of recent events used for the rolling rate
func NewThroughput(start time.Time, windowSize int) *Throughput {
	if windowSize < 2 {
		windowSize = 2
	}
	// RingP needs a power of 2, and holds one less than its size
	size := 2
	for size < windowSize+1 {
		size *= 2
	}
	return &Throughput{
		start:  start,
		window: windowSize,
		recent: ringbuffer.NewRingP[time.Time](size),
	}
}

// Record one event at time 'now'
func (t *Throughput) Tick(now time.Time) {
	t.count++
	t.recent.Add(now)
	for t.recent.Len() > t.window {
		t.recent.Next()
	}
}

func (t *Throughput) Count() int64 {
	return t.count
}

// Average events per second since the meter was created
func (t *Throughput) Overall(now time.Time) float64 {
	elapsed := now.Sub(t.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.count) / elapsed
}

// Events per second across the recent window.
// Returns zero until there are at least two events.
func (t *Throughput) Recent() float64 {
	n := t.recent.Len()
	if n < 2 {
		return 0
	}
	span := t.recent.Peek(n - 1).Sub(t.recent.Peek(0)).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(n-1) / span
}
