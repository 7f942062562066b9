package merge

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// adaptiveSem is a concurrency gate that can shrink while in use. Rate-limit
// responses halve the width; the permits being given up are swallowed as
// in-flight workers release them, so shrinking never interrupts running
// work.
type adaptiveSem struct {
	sem *semaphore.Weighted

	mu    sync.Mutex
	width int64
	owed  int64 // permits to swallow on release instead of returning
}

func newAdaptiveSem(width int) *adaptiveSem {
	if width < 1 {
		width = 1
	}
	return &adaptiveSem{
		sem:   semaphore.NewWeighted(int64(width)),
		width: int64(width),
	}
}

func (s *adaptiveSem) acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

func (s *adaptiveSem) release() {
	s.mu.Lock()
	if s.owed > 0 {
		s.owed--
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.sem.Release(1)
}

// halve cuts the target width in half, flooring at one so the run can
// always make progress. It reports the new width and whether it changed.
func (s *adaptiveSem) halve() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.width / 2
	if next < 1 {
		next = 1
	}
	if next == s.width {
		return int(s.width), false
	}
	s.owed += s.width - next
	s.width = next
	return int(next), true
}

func (s *adaptiveSem) currentWidth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.width)
}
