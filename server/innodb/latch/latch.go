package latch

import "sync"

// Latch is a reader/writer lock shared by the storage layers.
type Latch struct {
	mu sync.RWMutex
}

// NewLatch creates an unlocked latch.
func NewLatch() *Latch {
	return &Latch{}
}

// Lock acquires the latch in exclusive mode.
func (l *Latch) Lock() {
	l.mu.Lock()
}

// Unlock releases exclusive mode.
func (l *Latch) Unlock() {
	l.mu.Unlock()
}

// RLock acquires the latch in shared mode.
func (l *Latch) RLock() {
	l.mu.RLock()
}

// RUnlock releases shared mode.
func (l *Latch) RUnlock() {
	l.mu.RUnlock()
}

// TryLock attempts exclusive mode without blocking.
func (l *Latch) TryLock() bool {
	return l.mu.TryLock()
}

// TryRLock attempts shared mode without blocking.
func (l *Latch) TryRLock() bool {
	return l.mu.TryRLock()
}
