package metrics

import "testing"

func TestTimeBucketStore_RingBuffer(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := 0; i < 5; i++ {
		store.RecordRequest(true)
		store.CreateBucket(int64(i+1), int64(i+1), 0, 0, LatencyPercentiles{}, 1, PhaseSteady)
	}

	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	buckets := store.GetBuckets()
	for i, want := range []int64{3, 4, 5} {
		if buckets[i].TotalRequests != want {
			t.Errorf("buckets[%d].TotalRequests = %d, want %d", i, buckets[i].TotalRequests, want)
		}
	}

	if latest := store.GetLatestBucket(); latest.TotalRequests != 5 {
		t.Errorf("latest TotalRequests = %d, want 5", latest.TotalRequests)
	}
}

func TestTimeBucketStore_IntervalErrorRate(t *testing.T) {
	store := NewTimeBucketStore(10)

	store.RecordRequest(true)
	store.RecordRequest(false)
	store.RecordRequest(false)
	store.RecordRequest(true)

	b := store.CreateBucket(4, 2, 2, 0, LatencyPercentiles{}, 2, PhaseSpawning)
	if b.IntervalRequests != 4 {
		t.Errorf("IntervalRequests = %d, want 4", b.IntervalRequests)
	}
	if b.IntervalErrorRate != 0.5 {
		t.Errorf("IntervalErrorRate = %f, want 0.5", b.IntervalErrorRate)
	}

	// Interval counters reset after each bucket
	b = store.CreateBucket(4, 2, 2, 0, LatencyPercentiles{}, 2, PhaseSpawning)
	if b.IntervalRequests != 0 {
		t.Errorf("IntervalRequests after reset = %d, want 0", b.IntervalRequests)
	}
}

func TestTimeBucketStore_SteadyStateRPS(t *testing.T) {
	store := NewTimeBucketStore(10)

	if rps, n := store.CalculateSteadyStateRPS(); rps != 0 || n != 0 {
		t.Errorf("empty store = (%f, %d), want (0, 0)", rps, n)
	}

	store.CreateBucket(0, 0, 0, 0, LatencyPercentiles{}, 0, PhaseSpawning)
	store.CreateBucket(0, 0, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)
	store.CreateBucket(0, 0, 0, 0, LatencyPercentiles{}, 0, PhaseSteady)

	if _, n := store.CalculateSteadyStateRPS(); n != 2 {
		t.Errorf("steady buckets = %d, want 2", n)
	}

	store.Reset()
	if store.Count() != 0 || store.GetLatestBucket() != nil {
		t.Error("Reset() did not clear buckets")
	}
}
