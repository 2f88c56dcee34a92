package display

import (
	"testing"
	"time"

	"weight-monitor/types"
)

func TestCurrentBeforeFirstReading(t *testing.T) {
	s := New()
	snap := s.Current()
	if snap.HasReading {
		t.Fatalf("fresh state should have no reading")
	}
	if snap.Seq != 0 {
		t.Fatalf("seq mismatch: got=%d want=0", snap.Seq)
	}
}

func TestUpdateDerivesLabels(t *testing.T) {
	tests := []struct {
		name      string
		reading   types.Reading
		stability types.Stability
		label     string
	}{
		{
			name:      "stable-gross",
			reading:   types.Reading{StatusCode: "ST", TypeCode: "GS", Weight: 123},
			stability: types.StabilityStable,
			label:     "GROSS",
		},
		{
			name:      "other-codes-pass-through",
			reading:   types.Reading{StatusCode: "AB", TypeCode: "XY", Sign: types.SignNegative, Weight: 45},
			stability: types.StabilityUnstable,
			label:     "XY",
		},
		{
			name:      "us-is-unstable",
			reading:   types.Reading{StatusCode: "US", TypeCode: "NT", Weight: 2},
			stability: types.StabilityUnstable,
			label:     "NT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New()
			s.Update(tc.reading)
			snap := s.Current()
			if !snap.HasReading {
				t.Fatalf("snapshot should hold a reading")
			}
			if snap.Reading != tc.reading {
				t.Fatalf("reading mismatch: got=%+v want=%+v", snap.Reading, tc.reading)
			}
			if snap.Stability != tc.stability {
				t.Fatalf("stability mismatch: got=%s want=%s", snap.Stability, tc.stability)
			}
			if snap.TypeLabel != tc.label {
				t.Fatalf("label mismatch: got=%q want=%q", snap.TypeLabel, tc.label)
			}
		})
	}
}

func TestUpdateReplacesSnapshotInOrder(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s := New()
	s.now = func() time.Time { return at }

	s.Update(types.Reading{StatusCode: "ST", TypeCode: "GS", Weight: 1})
	at = at.Add(time.Second)
	s.Update(types.Reading{StatusCode: "US", TypeCode: "GS", Weight: 2})

	snap := s.Current()
	if snap.Reading.Weight != 2 || snap.Stability != types.StabilityUnstable {
		t.Fatalf("snapshot mismatch: got=%+v", snap)
	}
	if snap.Seq != 2 {
		t.Fatalf("seq mismatch: got=%d want=2", snap.Seq)
	}
	if !snap.UpdatedAt.Equal(at) {
		t.Fatalf("updated_at mismatch: got=%s want=%s", snap.UpdatedAt, at)
	}
}
