package util

import "testing"

// TestHistogramEmpty verifies estimators on an empty histogram
func TestHistogramEmpty(t *testing.T) {
	h := NewSizeHistogram()

	if h.Count() != 0 {
		t.Errorf("Expected 0 samples, got %d", h.Count())
	}
	if h.AverageSize() != 0 {
		t.Errorf("Expected average 0, got %d", h.AverageSize())
	}
	if h.MedianEstimate() != 0 {
		t.Errorf("Expected median 0, got %d", h.MedianEstimate())
	}
}

// TestBucketIndex verifies the power-of-two bucket mapping
func TestBucketIndex(t *testing.T) {
	cases := []struct {
		size, idx int
	}{
		{0, 0}, {15, 0}, {16, 1}, {31, 1}, {32, 2},
		{64, 3}, {100, 3}, {127, 3}, {128, 4},
		{1 << 30, sizeBucketCount - 1}, {-5, 0},
	}
	for _, c := range cases {
		if got := bucketIndex(c.size); got != c.idx {
			t.Errorf("bucketIndex(%d) = %d, expected %d", c.size, got, c.idx)
		}
	}
}

// TestHistogramEstimates verifies average and median on a known distribution
func TestHistogramEstimates(t *testing.T) {
	h := NewSizeHistogram()

	for i := 0; i < 100; i++ {
		h.AddSample(100) // bucket [64, 128)
	}

	if h.Count() != 100 {
		t.Errorf("Expected 100 samples, got %d", h.Count())
	}
	if h.AverageSize() != 100 {
		t.Errorf("Expected average 100, got %d", h.AverageSize())
	}

	// the median estimate is the midpoint of the [64, 128) bucket
	if m := h.MedianEstimate(); m != 96 {
		t.Errorf("Expected median estimate 96, got %d", m)
	}
}

// TestHistogramPercentile verifies percentile estimation across buckets
func TestHistogramPercentile(t *testing.T) {
	h := NewSizeHistogram()

	for i := 0; i < 99; i++ {
		h.AddSample(10)
	}
	h.AddSample(1 << 20)

	// rank 50 lands in the sub-granule bucket
	if p50 := h.PercentileEstimate(50); p50 != 8 {
		t.Errorf("Expected p50 estimate 8, got %d", p50)
	}

	// rank 100 lands in the megabyte bucket
	if p100 := h.PercentileEstimate(100); p100 < 1<<20 {
		t.Errorf("Expected p100 in the megabyte range, got %d", p100)
	}
}

// TestHistogramReset verifies Reset clears all state
func TestHistogramReset(t *testing.T) {
	h := NewSizeHistogram()
	h.AddSample(512)
	h.Reset()

	if h.Count() != 0 || h.AverageSize() != 0 {
		t.Error("Reset should clear all samples")
	}
	if h.MedianEstimate() != 0 {
		t.Error("Reset should clear the buckets")
	}
}
