package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"weight-monitor/config"
	"weight-monitor/types"
)

const (
	TypeScale  = "scale"
	TypeSystem = "system"
	TypeWeb    = "web"
)

var (
	logClients = make(map[chan types.LogMessage]bool)
	logMutex   = sync.RWMutex{}

	buffer = NewBuffer(config.LOG_BUFFER_SIZE)

	outMu   sync.RWMutex
	console io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	level             = zerolog.InfoLevel
)

// Init configures console output. With quiet set, console output is discarded
// and entries only reach the log buffer (the terminal UI owns the screen).
func Init(debug, quiet bool) {
	outMu.Lock()
	if debug {
		level = zerolog.DebugLevel
	} else {
		level = zerolog.InfoLevel
	}
	if quiet {
		console = io.Discard
	}
	outMu.Unlock()

	BroadcastLog("logging initialized", TypeSystem)
}

// For returns a logger whose Info and higher messages are also recorded in the
// operator log under logType.
func For(logType string) zerolog.Logger {
	outMu.RLock()
	defer outMu.RUnlock()
	return zerolog.New(console).
		Level(level).
		With().
		Timestamp().
		Str("src", logType).
		Logger().
		Hook(sinkHook{logType: logType})
}

type sinkHook struct {
	logType string
}

func (h sinkHook) Run(_ *zerolog.Event, lvl zerolog.Level, msg string) {
	if lvl < zerolog.InfoLevel || msg == "" {
		return
	}
	BroadcastLog(msg, h.logType)
}

func AddLogClient(client chan types.LogMessage) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logClients[client] = true
}

func RemoveLogClient(client chan types.LogMessage) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if _, ok := logClients[client]; !ok {
		return
	}
	delete(logClients, client)
	close(client)
}

// BroadcastLog records a timestamped entry and fans it out to every client.
func BroadcastLog(message, logType string) {
	logMsg := types.LogMessage{
		Time:    time.Now().Format("15:04:05"),
		Message: message,
		Type:    logType,
	}
	buffer.Append(logMsg)

	logMutex.RLock()
	defer logMutex.RUnlock()

	for client := range logClients {
		select {
		case client <- logMsg:
		default:
			// slow client, drop
		}
	}
}

func Entries() []types.LogMessage {
	return buffer.Entries()
}

func Clear() {
	buffer.Clear()
	BroadcastLog("🗑 log cleared", TypeSystem)
}

// Save dumps the operator log into dir and records where it went.
func Save(dir string) (string, error) {
	path, err := buffer.Save(dir, time.Now())
	if err != nil {
		BroadcastLog("❌ save failed: "+err.Error(), TypeSystem)
		return "", err
	}
	BroadcastLog("💾 log saved to "+path, TypeSystem)
	return path, nil
}
