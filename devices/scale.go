package devices

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"weight-monitor/config"
	"weight-monitor/logging"
	"weight-monitor/types"
	"weight-monitor/utils"
)

// ReadingSink receives every accepted reading of the active connection.
type ReadingSink interface {
	Update(types.Reading)
}

type Timeouts struct {
	Read       time.Duration
	Write      time.Duration
	Stop       time.Duration
	CloseRetry time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Read:       config.READ_TIMEOUT,
		Write:      config.WRITE_TIMEOUT,
		Stop:       config.STOP_TIMEOUT,
		CloseRetry: config.CLOSE_RETRY_DELAY,
	}
}

type connection struct {
	id     string
	cfg    types.ConnectionConfig
	port   Port
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the scale's serial handle and its background read loop.
type Manager struct {
	driver   Driver
	sink     ReadingSink
	timeouts Timeouts
	log      zerolog.Logger

	// serializes Connect and Disconnect
	opMu sync.Mutex

	mu     sync.Mutex
	state  types.ConnectionState
	active *connection
	last   types.ConnectionConfig

	listenMu  sync.RWMutex
	listeners map[chan types.Event]bool
}

func NewManager(driver Driver, sink ReadingSink, timeouts Timeouts) *Manager {
	return &Manager{
		driver:    driver,
		sink:      sink,
		timeouts:  timeouts,
		log:       logging.For(logging.TypeScale),
		listeners: make(map[chan types.Event]bool),
	}
}

// ListPorts always asks the system; nothing is cached between calls.
func (m *Manager) ListPorts() ([]string, error) {
	ports, err := m.driver.ListPorts()
	if err != nil {
		m.log.Error().Err(err).Msgf("❌ port enumeration failed: %v", err)
		return nil, wrapError(err, CodePortUnavailable, "", "list ports")
	}
	m.log.Info().Int("count", len(ports)).Msg("available ports: " + utils.JoinPorts(ports))
	return ports, nil
}

func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Status() types.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.ConnectionStatus{
		State:     m.state,
		Connected: m.state == types.StateConnected,
		Port:      m.last.Port,
		Baud:      m.last.BaudRate,
		Driver:    m.driver.Name(),
	}
	if m.active != nil {
		st.Session = m.active.id
	}
	return st
}

// Connect opens cfg.Port and starts the read loop. An existing connection is
// torn down first. Failures leave the manager DISCONNECTED with no open handle.
func (m *Manager) Connect(cfg types.ConnectionConfig) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.connectLocked(cfg)
}

func (m *Manager) connectLocked(cfg types.ConnectionConfig) error {
	cfg.Port = strings.TrimSpace(cfg.Port)
	if err := validateConfig(cfg); err != nil {
		m.reportError(cfg.Port, err)
		return err
	}

	if m.State() == types.StateConnected {
		m.log.Info().Str("port", cfg.Port).Msg("🔄 replacing active connection")
		m.disconnectLocked()
	}

	m.log.Info().Msgf("🔌 preparing connection to %s...", cfg.Port)
	ports, err := m.driver.ListPorts()
	if err != nil {
		derr := wrapError(err, CodePortUnavailable, cfg.Port, "list ports")
		m.reportError(cfg.Port, derr)
		return derr
	}
	if !contains(ports, cfg.Port) {
		derr := newError(CodePortUnavailable, cfg.Port, "port not in available port list")
		m.reportError(cfg.Port, derr)
		return derr
	}

	m.log.Info().Msgf("📡 opening %s @ %d baud...", cfg.Port, cfg.BaudRate)
	port, err := m.driver.Open(cfg.Port, Mode{
		BaudRate:     cfg.BaudRate,
		ReadTimeout:  m.timeouts.Read,
		WriteTimeout: m.timeouts.Write,
	})
	if err != nil {
		if port != nil {
			_ = port.Close()
		}
		derr := wrapError(err, CodePortUnavailable, cfg.Port, "%s", openFailureReason(err))
		m.reportError(cfg.Port, derr)
		return derr
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		id:     uuid.NewString(),
		cfg:    cfg,
		port:   port,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.active = c
	m.state = types.StateConnected
	m.last = cfg
	m.mu.Unlock()

	go m.readLoop(ctx, c)

	m.log.Info().Str("session", c.id).Msgf("✅ connected to %s @ %d baud", cfg.Port, cfg.BaudRate)
	m.publish(types.Event{Kind: types.EventState, Session: c.id, State: types.StateConnected, Port: cfg.Port})
	return nil
}

// Disconnect stops the read loop and closes the port. Calling it while
// disconnected is a no-op.
func (m *Manager) Disconnect() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.disconnectLocked()
	return nil
}

// Toggle connects with cfg when disconnected, otherwise disconnects.
func (m *Manager) Toggle(cfg types.ConnectionConfig) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.State() == types.StateConnected {
		m.disconnectLocked()
		return nil
	}
	return m.connectLocked(cfg)
}

func (m *Manager) disconnectLocked() {
	m.mu.Lock()
	c := m.active
	m.active = nil
	m.mu.Unlock()
	if c == nil {
		return
	}

	c.cancel()
	t := time.NewTimer(m.timeouts.Stop)
	select {
	case <-c.done:
	case <-t.C:
		m.log.Warn().Str("session", c.id).Msg("⚠ read loop did not stop in time, closing port anyway")
	}
	t.Stop()

	if err := m.closePort(c); err != nil {
		m.log.Error().Err(err).Msgf("❌ error closing %s: %v", c.cfg.Port, err)
	}

	m.mu.Lock()
	if m.active == nil {
		m.state = types.StateDisconnected
	}
	m.mu.Unlock()

	m.log.Info().Str("session", c.id).Msg("═══ DISCONNECTED ═══")
	m.publish(types.Event{Kind: types.EventState, Session: c.id, State: types.StateDisconnected, Port: c.cfg.Port})
}

func (m *Manager) closePort(c *connection) error {
	var err error
	for attempt := 1; attempt <= config.CLOSE_ATTEMPTS; attempt++ {
		if err = c.port.Close(); err == nil {
			m.log.Debug().Int("attempt", attempt).Str("port", c.cfg.Port).Msg("port closed")
			return nil
		}
		if attempt < config.CLOSE_ATTEMPTS {
			m.log.Warn().Msgf("⚠ close attempt %d failed, retrying...", attempt)
			time.Sleep(m.timeouts.CloseRetry)
		}
	}
	return err
}

func (m *Manager) readLoop(ctx context.Context, c *connection) {
	defer close(c.done)

	buf := make([]byte, 256)
	framer := newLineFramer(config.MAX_PENDING_BYTES)
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := c.port.Read(buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.fail(c, err)
			return
		}
		if n == 0 {
			continue
		}

		m.log.Debug().Str("session", c.id).Msg("chunk " + utils.FormatDataForLog(buf[:n]))
		frames, dropped := framer.push(buf[:n])
		for i := 0; i < dropped; i++ {
			m.dropLine(c)
		}
		for _, frame := range frames {
			m.handleLine(c, frame)
		}
	}
}

func (m *Manager) handleLine(c *connection, raw []byte) {
	if !utf8.Valid(raw) {
		derr := newError(CodeDecode, c.cfg.Port, "ill-formed bytes dropped from "+utils.FormatDataForLog(raw))
		m.log.Debug().Str("session", c.id).Msg(derr.Error())
	}
	line := DecodeLine(raw)
	if line == "" {
		return
	}
	m.log.Info().Str("session", c.id).Msg("📊 data: " + utils.Truncate(line, maxLoggedLine))

	reading, err := ParseLine(line)
	if err != nil {
		m.log.Debug().Str("session", c.id).Msg("malformed " + utils.FormatDataForLog(raw))
		m.publish(types.Event{Kind: types.EventMalformed, Session: c.id, State: types.StateConnected, Port: c.cfg.Port, Line: line})
		return
	}

	if !m.apply(c, reading) {
		return
	}
	m.publish(types.Event{Kind: types.EventReading, Session: c.id, State: types.StateConnected, Port: c.cfg.Port, Line: line, Reading: &reading})
}

const maxLoggedLine = 200

// dropLine reports a line that outgrew the pending buffer before its terminator.
func (m *Manager) dropLine(c *connection) {
	derr := newError(CodeMalformedLine, c.cfg.Port, fmt.Sprintf("line longer than %d bytes dropped", config.MAX_PENDING_BYTES))
	m.log.Warn().Str("session", c.id).Msg("⚠ " + derr.Message)
	m.publish(types.Event{Kind: types.EventMalformed, Session: c.id, State: types.StateConnected, Port: c.cfg.Port, Error: derr.Error()})
}

// apply hands the reading to the sink only while c is the active connection.
func (m *Manager) apply(c *connection, r types.Reading) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != c || m.state != types.StateConnected {
		return false
	}
	m.sink.Update(r)
	return true
}

// fail tears down c after a transport error; the operator must reconnect.
func (m *Manager) fail(c *connection, err error) {
	derr := wrapError(err, CodeTransportRead, c.cfg.Port, "read error")

	m.mu.Lock()
	if m.active != c {
		m.mu.Unlock()
		return
	}
	m.active = nil
	m.mu.Unlock()

	c.cancel()
	closeErr := m.closePort(c)

	m.mu.Lock()
	if m.active == nil {
		m.state = types.StateDisconnected
	}
	m.mu.Unlock()

	m.log.Error().Err(err).Str("session", c.id).Msgf("❌ read error: %v", err)
	if closeErr != nil {
		m.log.Error().Err(closeErr).Msgf("❌ error closing %s: %v", c.cfg.Port, closeErr)
	}
	m.log.Info().Str("session", c.id).Msg("═══ DISCONNECTED ═══")
	m.publish(types.Event{Kind: types.EventError, Session: c.id, State: types.StateDisconnected, Port: c.cfg.Port, Error: derr.Error()})
	m.publish(types.Event{Kind: types.EventState, Session: c.id, State: types.StateDisconnected, Port: c.cfg.Port})
}

func (m *Manager) reportError(port string, err error) {
	m.log.Error().Err(err).Str("port", port).Msgf("❌ connection error: %v", err)
	m.publish(types.Event{Kind: types.EventError, State: m.State(), Port: port, Error: err.Error()})
}

// AddListener registers ch for events. Slow listeners miss events rather
// than stall the read loop.
func (m *Manager) AddListener(ch chan types.Event) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listeners[ch] = true
}

func (m *Manager) RemoveListener(ch chan types.Event) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	if _, ok := m.listeners[ch]; !ok {
		return
	}
	delete(m.listeners, ch)
	close(ch)
}

func (m *Manager) publish(ev types.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.listenMu.RLock()
	defer m.listenMu.RUnlock()
	for ch := range m.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func validateConfig(cfg types.ConnectionConfig) error {
	if cfg.Port == "" {
		return newError(CodeInvalidConfig, "", "no port selected")
	}
	if !config.ValidBaud(cfg.BaudRate) {
		return newError(CodeInvalidConfig, cfg.Port, fmt.Sprintf("unsupported baud rate %d", cfg.BaudRate))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
