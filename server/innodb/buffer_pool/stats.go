package buffer_pool

import "sync/atomic"

// Stats tracks buffer pool cache behaviour.
type Stats struct {
	hitCount      uint64
	missCount     uint64
	evictionCount uint64
}

func (s *Stats) recordHit() {
	atomic.AddUint64(&s.hitCount, 1)
}

func (s *Stats) recordMiss() {
	atomic.AddUint64(&s.missCount, 1)
}

func (s *Stats) recordEviction() {
	atomic.AddUint64(&s.evictionCount, 1)
}

// HitCount returns the number of page-table hits.
func (s *Stats) HitCount() uint64 {
	return atomic.LoadUint64(&s.hitCount)
}

// MissCount returns the number of page-table misses.
func (s *Stats) MissCount() uint64 {
	return atomic.LoadUint64(&s.missCount)
}

// EvictionCount returns the number of evicted frames.
func (s *Stats) EvictionCount() uint64 {
	return atomic.LoadUint64(&s.evictionCount)
}

// HitRatio returns hits / (hits + misses).
func (s *Stats) HitRatio() float64 {
	hits := s.HitCount()
	total := hits + s.MissCount()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
