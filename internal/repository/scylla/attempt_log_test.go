package scylla

import (
	"testing"
	"time"
)

func TestBucketDate(t *testing.T) {
	in := time.Date(2026, time.March, 14, 23, 59, 58, 0, time.UTC)
	want := time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC)
	if got := bucketDate(in); !got.Equal(want) {
		t.Fatalf("bucketDate(%v) = %v, want %v", in, got, want)
	}
}

func TestLookbackBucketsNewestFirst(t *testing.T) {
	now := time.Date(2026, time.March, 2, 10, 30, 0, 0, time.UTC)
	buckets := lookbackBuckets(now, 3)
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}

	want := []time.Time{
		time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC),
	}
	for i, b := range buckets {
		if !b.Equal(want[i]) {
			t.Fatalf("bucket %d = %v, want %v", i, b, want[i])
		}
	}
}
