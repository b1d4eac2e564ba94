package strategy

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestNotReadyTimeout_Eligible(t *testing.T) {
	s := &NotReadyTimeout{Threshold: 2 * time.Minute}

	tests := []struct {
		name    string
		tracked map[string]time.Time
		now     time.Time
		want    []string
	}{
		{
			name:    "nothing tracked",
			tracked: map[string]time.Time{},
			now:     t0,
			want:    []string{},
		},
		{
			name:    "below threshold",
			tracked: map[string]time.Time{"worker2": t0},
			now:     t0.Add(90 * time.Second),
			want:    []string{},
		},
		{
			name:    "exactly at threshold",
			tracked: map[string]time.Time{"worker2": t0},
			now:     t0.Add(2 * time.Minute),
			want:    []string{"worker2"},
		},
		{
			name:    "past threshold",
			tracked: map[string]time.Time{"worker2": t0},
			now:     t0.Add(130 * time.Second),
			want:    []string{"worker2"},
		},
		{
			name: "several cross in the same cycle",
			tracked: map[string]time.Time{
				"worker3": t0,
				"worker1": t0.Add(-time.Minute),
				"worker2": t0.Add(time.Minute),
			},
			now:  t0.Add(2*time.Minute + 10*time.Second),
			want: []string{"worker1", "worker3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Eligible(tt.tracked, tt.now)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNotReadyTimeout_FreshEntryNeverEligible(t *testing.T) {
	for _, threshold := range []time.Duration{0, time.Nanosecond, time.Second} {
		s := &NotReadyTimeout{Threshold: threshold}
		if got := s.Eligible(map[string]time.Time{"n": t0}, t0); len(got) != 0 {
			t.Errorf("threshold %s: entry stamped this cycle must not be eligible, got %v", threshold, got)
		}
	}
}

func TestNotReadyTimeout_Remaining(t *testing.T) {
	s := &NotReadyTimeout{Threshold: 2 * time.Minute}

	if got := s.Remaining(t0, t0.Add(90*time.Second)); got != 30*time.Second {
		t.Errorf("expected 30s remaining, got %s", got)
	}
	if got := s.Remaining(t0, t0.Add(3*time.Minute)); got != 0 {
		t.Errorf("expected 0 remaining, got %s", got)
	}
}

func TestNotReadyTimeout_Name(t *testing.T) {
	var s EvictionStrategy = &NotReadyTimeout{}
	if s.Name() != "NotReadyTimeout" {
		t.Errorf("unexpected name %q", s.Name())
	}
}
