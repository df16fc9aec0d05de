package kol

import (
	"testing"
	"time"
)

func rolloverAt(days int) time.Time {
	return time.Unix(1044847800, 0).Add(time.Duration(days) * 24 * time.Hour)
}

func TestDayCounting(t *testing.T) {
	if got := Day(rolloverAt(100)); got != 100 {
		t.Fatalf("expected day 100, got %d", got)
	}

	if got := Day(rolloverAt(100).Add(23 * time.Hour)); got != 100 {
		t.Fatalf("a day lasts until the next rollover, got %d", got)
	}

	if got := Day(rolloverAt(101)); got != 101 {
		t.Fatalf("expected day 101 at the boundary, got %d", got)
	}
}

func TestSecondsToRollover(t *testing.T) {
	at := rolloverAt(100).Add(12 * time.Hour)

	if got := SecondsToRollover(at); got != 12*60*60 {
		t.Fatalf("expected 12h to rollover, got %d", got)
	}

	if got := SecondsElapsedInDay(at); got != 12*60*60 {
		t.Fatalf("expected 12h elapsed, got %d", got)
	}
}

func TestSecondsToNearestRollover(t *testing.T) {
	if got := SecondsToNearestRollover(rolloverAt(100).Add(time.Minute)); got != 60 {
		t.Fatalf("expected 60s behind, got %d", got)
	}

	if got := SecondsToNearestRollover(rolloverAt(100).Add(-time.Minute)); got != 60 {
		t.Fatalf("expected 60s ahead, got %d", got)
	}
}

func TestIsRolloverRisk(t *testing.T) {
	if !IsRolloverRisk(rolloverAt(100).Add(-2*time.Minute), 3) {
		t.Fatalf("two minutes out should be a risk at three minutes")
	}

	if IsRolloverRisk(rolloverAt(100).Add(-4*time.Minute), 3) {
		t.Fatalf("four minutes out should be safe at three minutes")
	}

	if !IsRolloverRisk(rolloverAt(100).Add(2*time.Minute), 3) {
		t.Fatalf("the risk window extends past the rollover too")
	}
}

func TestIsRolloverFaxWindow(t *testing.T) {
	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"two minutes out", -2 * time.Minute, true},
		{"just inside", -179 * time.Second, true},
		{"too early", -3 * time.Minute, false},
		{"too late", -60 * time.Second, false},
		{"after rollover", time.Minute, false},
	}

	for _, tc := range cases {
		if got := IsRolloverFaxWindow(rolloverAt(100).Add(tc.offset)); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
