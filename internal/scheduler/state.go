package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"campusinfo/internal/crawler"
)

type Kind string

const (
	Full Kind = "full"
	Demo Kind = "demo"
)

// RunInfo records one finished crawl run.
type RunInfo struct {
	Kind       Kind          `json:"kind"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stats      crawler.Stats `json:"stats"`
	Error      string        `json:"error,omitempty"`
}

// RunState is a single-slot guard: at most one run holds it at a time.
type RunState struct {
	running atomic.Bool

	mu      sync.Mutex
	current Kind
	since   time.Time
	last    *RunInfo
}

// TryStart claims the slot. It returns false when a run already holds it.
func (s *RunState) TryStart(kind Kind) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.current = kind
	s.since = time.Now()
	s.mu.Unlock()
	return true
}

func (s *RunState) IsRunning() bool { return s.running.Load() }

// Done records info and releases the slot.
func (s *RunState) Done(info RunInfo) {
	s.mu.Lock()
	s.last = &info
	s.current = ""
	s.mu.Unlock()
	s.running.Store(false)
}

// Current returns the kind and start time of the active run.
func (s *RunState) Current() (Kind, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return "", time.Time{}, false
	}
	return s.current, s.since, true
}

func (s *RunState) LastRun() (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunInfo{}, false
	}
	return *s.last, true
}
