package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"weight-monitor/types"
)

// Buffer keeps the most recent operator log entries.
type Buffer struct {
	mu      sync.RWMutex
	max     int
	entries []types.LogMessage
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 1
	}
	return &Buffer{max: max, entries: make([]types.LogMessage, 0, 64)}
}

func (b *Buffer) Append(msg types.LogMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, msg)
	if over := len(b.entries) - b.max; over > 0 {
		b.entries = append(b.entries[:0:0], b.entries[over:]...)
	}
}

func (b *Buffer) Entries() []types.LogMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.LogMessage, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
}

// Dump renders the buffer as "[HH:MM:SS] message" lines.
func (b *Buffer) Dump() string {
	var sb strings.Builder
	for _, e := range b.Entries() {
		fmt.Fprintf(&sb, "[%s] %s\n", e.Time, e.Message)
	}
	return sb.String()
}

func LogFileName(at time.Time) string {
	return "weight_log_" + at.Format("20060102_150405") + ".txt"
}

func (b *Buffer) Save(dir string, at time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	path := filepath.Join(dir, LogFileName(at))
	if err := os.WriteFile(path, []byte(b.Dump()), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
