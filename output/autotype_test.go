package output

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"weight-monitor/types"
)

type recorder struct {
	copied []string
	pastes int
}

func stubDesktop(t *testing.T) *recorder {
	t.Helper()
	rec := &recorder{}
	prevClip, prevPaste := writeClipboard, pasteAndSubmit
	writeClipboard = func(text string) error {
		rec.copied = append(rec.copied, text)
		return nil
	}
	pasteAndSubmit = func() error {
		rec.pastes++
		return nil
	}
	t.Cleanup(func() {
		writeClipboard, pasteAndSubmit = prevClip, prevPaste
	})
	return rec
}

func stable(w uint64) types.DisplaySnapshot {
	return types.DisplaySnapshot{
		HasReading: true,
		Reading:    types.Reading{StatusCode: "ST", TypeCode: "GS", Weight: w},
		Stability:  types.StabilityStable,
		TypeLabel:  "GROSS",
	}
}

func TestCopyWeight(t *testing.T) {
	rec := stubDesktop(t)

	if _, err := CopyWeight(types.DisplaySnapshot{}); !errors.Is(err, ErrNoReading) {
		t.Fatalf("error mismatch: got=%v want=%v", err, ErrNoReading)
	}

	text, err := CopyWeight(stable(1520))
	if err != nil {
		t.Fatalf("CopyWeight error: %v", err)
	}
	if text != "1520" {
		t.Fatalf("text mismatch: got=%q want=%q", text, "1520")
	}
	if len(rec.copied) != 1 || rec.copied[0] != "1520" {
		t.Fatalf("clipboard mismatch: got=%v", rec.copied)
	}
}

func TestCopyWeightClipboardFailure(t *testing.T) {
	stubDesktop(t)
	writeClipboard = func(string) error { return errors.New("no display") }

	if _, err := CopyWeight(stable(10)); err == nil {
		t.Fatalf("expected clipboard error")
	}
}

func TestTyperOffer(t *testing.T) {
	rec := stubDesktop(t)
	typer := NewTyper(5)

	unstable := stable(100)
	unstable.Stability = types.StabilityUnstable

	steps := []struct {
		name string
		snap types.DisplaySnapshot
		want bool
	}{
		{name: "no-reading", snap: types.DisplaySnapshot{}, want: false},
		{name: "unstable", snap: unstable, want: false},
		{name: "zero", snap: stable(0), want: false},
		{name: "first-stable", snap: stable(100), want: true},
		{name: "same-weight", snap: stable(100), want: false},
		{name: "below-threshold", snap: stable(104), want: false},
		{name: "at-threshold", snap: stable(105), want: true},
		{name: "drop-back", snap: stable(90), want: true},
	}

	for _, step := range steps {
		got, err := typer.Offer(step.snap)
		if err != nil {
			t.Fatalf("%s: Offer error: %v", step.name, err)
		}
		if got != step.want {
			t.Fatalf("%s: typed mismatch: got=%v want=%v", step.name, got, step.want)
		}
	}

	if rec.pastes != 3 {
		t.Fatalf("paste count mismatch: got=%d want=3", rec.pastes)
	}
	want := []string{"100", "105", "90"}
	for i := range want {
		if rec.copied[i] != want[i] {
			t.Fatalf("copied[%d] mismatch: got=%q want=%q", i, rec.copied[i], want[i])
		}
	}
}

func TestTyperPasteFailureKeepsLastWeight(t *testing.T) {
	stubDesktop(t)
	pasteAndSubmit = func() error { return errors.New("no keyboard") }

	typer := NewTyper(1)
	if _, err := typer.Offer(stable(50)); err == nil {
		t.Fatalf("expected paste error")
	}

	pasteAndSubmit = func() error { return nil }
	typed, err := typer.Offer(stable(50))
	if err != nil {
		t.Fatalf("Offer error: %v", err)
	}
	if !typed {
		t.Fatalf("a failed paste must not count as typed")
	}
}

func TestTyperRunTypesOnReadingEvents(t *testing.T) {
	rec := stubDesktop(t)
	typer := NewTyper(1)

	events := make(chan types.Event, 4)
	events <- types.Event{Kind: types.EventState}
	events <- types.Event{Kind: types.EventReading}
	events <- types.Event{Kind: types.EventMalformed}
	close(events)

	done := make(chan struct{})
	go func() {
		typer.Run(context.Background(), events, func() types.DisplaySnapshot { return stable(42) }, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after events closed")
	}
	if rec.pastes != 1 {
		t.Fatalf("paste count mismatch: got=%d want=1", rec.pastes)
	}
}
