package merge

import (
	"context"
	"testing"
)

func TestAdaptiveSemHalving(t *testing.T) {
	s := newAdaptiveSem(8)

	if w, changed := s.halve(); !changed || w != 4 {
		t.Errorf("halve() = (%d, %v), want (4, true)", w, changed)
	}
	if w, changed := s.halve(); !changed || w != 2 {
		t.Errorf("halve() = (%d, %v), want (2, true)", w, changed)
	}
	if w, changed := s.halve(); !changed || w != 1 {
		t.Errorf("halve() = (%d, %v), want (1, true)", w, changed)
	}
	// Width floors at one so the run can always make progress.
	if w, changed := s.halve(); changed || w != 1 {
		t.Errorf("halve() = (%d, %v), want (1, false)", w, changed)
	}
}

func TestAdaptiveSemSwallowsOwedPermits(t *testing.T) {
	s := newAdaptiveSem(4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := s.acquire(ctx); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}

	// Shrink to 1 while all permits are in flight: 3 permits are now owed.
	if w, _ := s.halve(); w != 2 {
		t.Fatalf("width = %d, want 2", w)
	}
	if w, _ := s.halve(); w != 1 {
		t.Fatalf("width = %d, want 1", w)
	}

	for i := 0; i < 4; i++ {
		s.release()
	}

	// Only one permit survived the shrink.
	if err := s.acquire(ctx); err != nil {
		t.Fatalf("acquire after shrink: %v", err)
	}
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.acquire(canceled); err == nil {
		t.Error("expected second acquire to block at width 1")
	}
	s.release()
}

func TestAdaptiveSemMinimumWidth(t *testing.T) {
	s := newAdaptiveSem(0)
	if s.currentWidth() != 1 {
		t.Errorf("width = %d, want 1", s.currentWidth())
	}
}
