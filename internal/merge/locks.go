package merge

import (
	"sync"

	"github.com/halvari/crmdedup/internal/types"
)

// idLocks hands out one advisory lock per canonical ID. Two plans whose ID
// sets overlap must never run concurrently; everything else may.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *idLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

// lockAll acquires the lock of every distinct ID in ids. Acquisition always
// happens in canonical ID order, so overlapping lock sets serialize instead
// of deadlocking. The returned function releases in reverse order.
func (l *idLocks) lockAll(ids []string) (unlock func()) {
	sorted := append([]string(nil), ids...)
	types.SortIDs(sorted)

	ms := make([]*sync.Mutex, 0, len(sorted))
	prev := ""
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		ms = append(ms, l.get(id))
	}
	for _, m := range ms {
		m.Lock()
	}
	return func() {
		for i := len(ms) - 1; i >= 0; i-- {
			ms[i].Unlock()
		}
	}
}
