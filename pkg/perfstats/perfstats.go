package perfstats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Accumulate samples of how long something took
type TimeAccumulator struct {
	Samples int64
	Total   time.Duration
	Max     time.Duration
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.Samples++
	a.Total += v
	if v > a.Max {
		a.Max = v
	}
}

func (a *TimeAccumulator) Average() time.Duration {
	if a.Samples == 0 {
		return 0
	}
	return time.Duration(a.Total.Nanoseconds() / a.Samples)
}

// Pipeline stages that we time for every frame
const (
	StageDecode = "decode"
	StageInfer  = "infer"
	StageRender = "render"
	StageEncode = "encode"
)

// StageTimes holds a TimeAccumulator per named stage. It is safe for concurrent use.
type StageTimes struct {
	lock   sync.Mutex
	stages map[string]*TimeAccumulator
}

func NewStageTimes() *StageTimes {
	return &StageTimes{
		stages: map[string]*TimeAccumulator{},
	}
}

func (s *StageTimes) Add(stage string, d time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	a := s.stages[stage]
	if a == nil {
		a = &TimeAccumulator{}
		s.stages[stage] = a
	}
	a.AddSample(d)
}

// Merge adds all of the samples from 'other' into s
func (s *StageTimes) Merge(other *StageTimes) {
	snap := other.Snapshot()
	s.lock.Lock()
	defer s.lock.Unlock()
	for name, o := range snap {
		a := s.stages[name]
		if a == nil {
			a = &TimeAccumulator{}
			s.stages[name] = a
		}
		a.Samples += o.Samples
		a.Total += o.Total
		a.Max = max(a.Max, o.Max)
	}
}

// Snapshot returns a copy of the accumulators
func (s *StageTimes) Snapshot() map[string]TimeAccumulator {
	s.lock.Lock()
	defer s.lock.Unlock()
	r := make(map[string]TimeAccumulator, len(s.stages))
	for k, v := range s.stages {
		r[k] = *v
	}
	return r
}

// Returns something like "decode 1.2ms, infer 35.0ms", with stages sorted by name
func (s *StageTimes) String() string {
	snap := s.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := []string{}
	for _, n := range names {
		a := snap[n]
		parts = append(parts, fmt.Sprintf("%v %.1fms", n, float64(a.Average().Microseconds())/1000))
	}
	return strings.Join(parts, ", ")
}
