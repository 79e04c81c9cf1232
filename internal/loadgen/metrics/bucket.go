package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucketStore keeps time-bucketed metrics in a fixed-size ring buffer.
//
// Interval counters are updated lock-free; the ring itself is guarded by a
// mutex and only touched by the emitter and readers.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	currentRequests atomic.Int64
	currentFailures atomic.Int64
}

// NewTimeBucketStore creates a store retaining at most maxBuckets buckets.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds one request to the current interval.
func (s *TimeBucketStore) RecordRequest(success bool) {
	s.currentRequests.Add(1)
	if !success {
		s.currentFailures.Add(1)
	}
}

// CreateBucket closes the current interval and appends it to the ring.
func (s *TimeBucketStore) CreateBucket(
	totalRequests, totalSuccesses, totalFailures, totalBytes int64,
	latencies LatencyPercentiles,
	activeUsers int,
	phase Phase,
) *TimeBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	intervalRequests := s.currentRequests.Swap(0)
	intervalFailures := s.currentFailures.Swap(0)

	intervalDuration := now.Sub(s.lastBucketTime).Seconds()
	if intervalDuration <= 0 {
		intervalDuration = 1.0
	}

	intervalErrorRate := 0.0
	if intervalRequests > 0 {
		intervalErrorRate = float64(intervalFailures) / float64(intervalRequests)
	}

	bucket := &TimeBucket{
		Timestamp:         now,
		TotalRequests:     totalRequests,
		TotalSuccesses:    totalSuccesses,
		TotalFailures:     totalFailures,
		TotalBytes:        totalBytes,
		IntervalRequests:  intervalRequests,
		IntervalRPS:       float64(intervalRequests) / intervalDuration,
		IntervalErrorRate: intervalErrorRate,
		LatencyP50:        latencies.P50,
		LatencyP95:        latencies.P95,
		LatencyP99:        latencies.P99,
		ActiveUsers:       activeUsers,
		Phase:             phase,
	}

	s.buckets[s.head] = bucket
	s.head = (s.head + 1) % s.maxBuckets
	if s.count < s.maxBuckets {
		s.count++
	}
	s.lastBucketTime = now

	return bucket
}

// GetBuckets returns a copy of all buckets in chronological order.
func (s *TimeBucketStore) GetBuckets() []*TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, s.count)
	start := 0
	if s.count == s.maxBuckets {
		start = s.head
	}
	for i := 0; i < s.count; i++ {
		result[i] = s.buckets[(start+i)%s.maxBuckets]
	}
	return result
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (s *TimeBucketStore) GetLatestBucket() *TimeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.count == 0 {
		return nil
	}
	return s.buckets[(s.head-1+s.maxBuckets)%s.maxBuckets]
}

// Count returns the number of buckets stored.
func (s *TimeBucketStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Reset clears all buckets and interval counters.
func (s *TimeBucketStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buckets = make([]*TimeBucket, s.maxBuckets)
	s.head = 0
	s.count = 0
	s.lastBucketTime = time.Now()
	s.currentRequests.Store(0)
	s.currentFailures.Store(0)
}

// CalculateSteadyStateRPS averages interval RPS over steady-phase buckets.
// The second return value is the number of buckets that contributed.
func (s *TimeBucketStore) CalculateSteadyStateRPS() (float64, int) {
	var total float64
	n := 0
	for _, b := range s.GetBuckets() {
		if b.Phase != PhaseSteady {
			continue
		}
		total += b.IntervalRPS
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return total / float64(n), n
}
