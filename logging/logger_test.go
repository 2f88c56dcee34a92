package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"weight-monitor/types"
)

func TestBufferKeepsMostRecent(t *testing.T) {
	b := NewBuffer(2)
	b.Append(types.LogMessage{Time: "10:00:00", Message: "one"})
	b.Append(types.LogMessage{Time: "10:00:01", Message: "two"})
	b.Append(types.LogMessage{Time: "10:00:02", Message: "three"})

	got := b.Entries()
	if len(got) != 2 {
		t.Fatalf("len mismatch: got=%d want=2", len(got))
	}
	if got[0].Message != "two" || got[1].Message != "three" {
		t.Fatalf("entries mismatch: got=%+v", got)
	}
}

func TestBufferSaveWritesFlatDump(t *testing.T) {
	b := NewBuffer(10)
	b.Append(types.LogMessage{Time: "09:15:00", Message: "📊 data: ST,GS,+00123kg"})
	b.Append(types.LogMessage{Time: "09:15:01", Message: "═══ DISCONNECTED ═══"})

	dir := t.TempDir()
	at := time.Date(2026, 10, 19, 9, 15, 2, 0, time.Local)
	path, err := b.Save(dir, at)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "weight_log_20261019_091502.txt" {
		t.Fatalf("file name mismatch: got=%q", filepath.Base(path))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "[09:15:00] 📊 data: ST,GS,+00123kg\n[09:15:01] ═══ DISCONNECTED ═══\n"
	if string(raw) != want {
		t.Fatalf("dump mismatch:\ngot=%q\nwant=%q", string(raw), want)
	}
}

func TestBroadcastLogReachesClientsAndBuffer(t *testing.T) {
	client := make(chan types.LogMessage, 4)
	AddLogClient(client)
	defer RemoveLogClient(client)

	BroadcastLog("hello scale", TypeScale)

	select {
	case msg := <-client:
		if msg.Message != "hello scale" || msg.Type != TypeScale {
			t.Fatalf("message mismatch: got=%+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("client did not receive broadcast")
	}

	entries := Entries()
	if len(entries) == 0 || entries[len(entries)-1].Message != "hello scale" {
		t.Fatalf("buffer missing broadcast entry")
	}
}

func TestLoggerHookRecordsInfoOnly(t *testing.T) {
	Init(false, true)
	lg := For(TypeScale)

	lg.Debug().Msg("debug-only-entry")
	lg.Info().Str("port", "COM5").Msg("info-entry")

	var sawInfo, sawDebug bool
	for _, e := range Entries() {
		if strings.Contains(e.Message, "info-entry") {
			sawInfo = true
		}
		if strings.Contains(e.Message, "debug-only-entry") {
			sawDebug = true
		}
	}
	if !sawInfo {
		t.Fatalf("info entry missing from operator log")
	}
	if sawDebug {
		t.Fatalf("debug entry should not reach operator log")
	}
}

func TestClearEmptiesBuffer(t *testing.T) {
	BroadcastLog("to be cleared", TypeSystem)
	Clear()

	entries := Entries()
	if len(entries) != 1 || !strings.Contains(entries[0].Message, "log cleared") {
		t.Fatalf("unexpected entries after clear: %+v", entries)
	}
}
