package output

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"github.com/rs/zerolog"

	"weight-monitor/types"
)

var ErrNoReading = errors.New("no reading yet")

var (
	writeClipboard = clipboard.WriteAll
	pasteAndSubmit = simulateKeyPress
)

// CopyWeight puts the current weight on the clipboard and returns the copied text.
func CopyWeight(snap types.DisplaySnapshot) (string, error) {
	if !snap.HasReading {
		return "", ErrNoReading
	}
	text := strconv.FormatUint(snap.Reading.Weight, 10)
	if err := writeClipboard(text); err != nil {
		return "", fmt.Errorf("clipboard: %w", err)
	}
	return text, nil
}

// Typer pastes stable weights into the focused window, once per weight change.
type Typer struct {
	threshold uint64

	mu    sync.Mutex
	typed bool
	last  uint64
}

func NewTyper(threshold uint64) *Typer {
	return &Typer{threshold: threshold}
}

// Offer types the snapshot's weight when it is stable, non-zero and differs from
// the last typed weight by at least the threshold. It reports whether it typed.
func (t *Typer) Offer(snap types.DisplaySnapshot) (bool, error) {
	if !snap.HasReading || snap.Stability != types.StabilityStable || snap.Reading.Weight == 0 {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w := snap.Reading.Weight
	if t.typed && absDiff(w, t.last) < t.threshold {
		return false, nil
	}

	if _, err := CopyWeight(snap); err != nil {
		return false, err
	}
	if err := pasteAndSubmit(); err != nil {
		return false, err
	}
	t.typed = true
	t.last = w
	return true, nil
}

// Run offers the display snapshot after every applied reading until ctx ends
// or events is closed.
func (t *Typer) Run(ctx context.Context, events <-chan types.Event, current func() types.DisplaySnapshot, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != types.EventReading {
				continue
			}
			snap := current()
			typed, err := t.Offer(snap)
			if err != nil {
				log.Error().Err(err).Msgf("❌ auto-type failed: %v", err)
				continue
			}
			if typed {
				log.Info().Uint64("weight", snap.Reading.Weight).Msgf("⌨ typed %d kg", snap.Reading.Weight)
			}
		}
	}
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// simulateKeyPress pastes the clipboard and presses Enter.
func simulateKeyPress() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}

	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)

	time.Sleep(200 * time.Millisecond)
	if err := kb.Launching(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}

	kbEnter, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	kbEnter.SetKeys(keybd_event.VK_ENTER)
	if err := kbEnter.Launching(); err != nil {
		return fmt.Errorf("enter: %w", err)
	}
	return nil
}
