package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"weight-monitor/config"
	"weight-monitor/logging"
	"weight-monitor/types"
	"weight-monitor/utils"
)

// Controller is the part of the connection manager the terminal UI drives.
type Controller interface {
	ListPorts() ([]string, error)
	Status() types.ConnectionStatus
	Toggle(cfg types.ConnectionConfig) error
}

type Display interface {
	Current() types.DisplaySnapshot
}

type Options struct {
	Port   string
	Baud   int
	LogDir string
}

const (
	maxLogLines = 200
	maxHistory  = 240
)

type eventMsg struct {
	event types.Event
}

type logMsg struct {
	entry types.LogMessage
}

type portsMsg struct {
	ports []string
	err   error
}

type actionMsg struct {
	text string
	err  error
}

type quitMsg struct{}

type clockMsg time.Time

type model struct {
	ctx    context.Context
	ctl    Controller
	disp   Display
	events <-chan types.Event
	logs   <-chan types.LogMessage
	logDir string

	ports   []string
	portIdx int
	baudIdx int
	busy    bool

	status  types.ConnectionStatus
	snap    types.DisplaySnapshot
	history []float64
	lines   []string
	message string

	width  int
	height int
	now    time.Time
}

// Run blocks until the operator quits or ctx is cancelled.
func Run(ctx context.Context, ctl Controller, disp Display, events <-chan types.Event, opts Options) error {
	logs := make(chan types.LogMessage, 100)
	logging.AddLogClient(logs)
	defer logging.RemoveLogClient(logs)

	m := newModel(ctx, ctl, disp, events, logs, opts)
	for _, e := range logging.Entries() {
		m.appendLog(e)
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, ctl Controller, disp Display, events <-chan types.Event, logs <-chan types.LogMessage, opts Options) model {
	m := model{
		ctx:     ctx,
		ctl:     ctl,
		disp:    disp,
		events:  events,
		logs:    logs,
		logDir:  opts.LogDir,
		status:  ctl.Status(),
		snap:    disp.Current(),
		message: "ready",
		now:     time.Now(),
		history: make([]float64, 0, maxHistory),
	}
	for i, b := range config.BAUD_RATES {
		if b == opts.Baud {
			m.baudIdx = i
		}
	}
	if opts.Port != "" {
		m.ports = []string{opts.Port}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		waitForEventCmd(m.ctx, m.events),
		waitForLogCmd(m.ctx, m.logs),
		refreshPortsCmd(m.ctl),
		clockTickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(strings.ToLower(strings.TrimSpace(msg.String())))
	case eventMsg:
		m.status = m.ctl.Status()
		m.snap = m.disp.Current()
		switch msg.event.Kind {
		case types.EventReading:
			m.history = append(m.history, float64(m.snap.Reading.Weight))
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		case types.EventError:
			m.message = msg.event.Error
		case types.EventState:
			m.message = strings.ToLower(msg.event.State.String())
		}
		return m, waitForEventCmd(m.ctx, m.events)
	case logMsg:
		m.appendLog(msg.entry)
		return m, waitForLogCmd(m.ctx, m.logs)
	case portsMsg:
		if msg.err != nil {
			m.message = msg.err.Error()
			return m, nil
		}
		m.setPorts(msg.ports)
		return m, nil
	case actionMsg:
		m.busy = false
		m.status = m.ctl.Status()
		if msg.err != nil {
			m.message = msg.err.Error()
		} else if msg.text != "" {
			m.message = msg.text
		}
		return m, nil
	case quitMsg:
		return m, tea.Quit
	case clockMsg:
		m.now = time.Time(msg)
		return m, clockTickCmd()
	default:
		return m, nil
	}
}

func (m model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c", "enter":
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, toggleCmd(m.ctl, m.selected())
	case "r":
		return m, refreshPortsCmd(m.ctl)
	case "tab", "right", "down":
		if !m.status.Connected && len(m.ports) > 0 {
			m.portIdx = (m.portIdx + 1) % len(m.ports)
		}
		return m, nil
	case "shift+tab", "left", "up":
		if !m.status.Connected && len(m.ports) > 0 {
			m.portIdx = (m.portIdx - 1 + len(m.ports)) % len(m.ports)
		}
		return m, nil
	case "b":
		if !m.status.Connected {
			m.baudIdx = (m.baudIdx + 1) % len(config.BAUD_RATES)
		}
		return m, nil
	case "s":
		return m, saveLogCmd(m.logDir)
	case "x":
		m.lines = nil
		return m, clearLogCmd()
	default:
		return m, nil
	}
}

func (m model) selected() types.ConnectionConfig {
	cfg := types.ConnectionConfig{BaudRate: config.BAUD_RATES[m.baudIdx]}
	if m.portIdx < len(m.ports) {
		cfg.Port = m.ports[m.portIdx]
	}
	return cfg
}

// setPorts keeps the current selection when it is still listed.
func (m *model) setPorts(ports []string) {
	current := ""
	if m.portIdx < len(m.ports) {
		current = m.ports[m.portIdx]
	}
	m.ports = ports
	m.portIdx = 0
	for i, p := range ports {
		if p == current {
			m.portIdx = i
		}
	}
}

func (m *model) appendLog(e types.LogMessage) {
	m.lines = append(m.lines, "["+e.Time+"] "+e.Message)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m model) View() string {
	viewWidth, viewHeight := viewSize(m.width, m.height)
	leftW, rightW := splitWidths(viewWidth)

	titleLine := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Render("WEIGHT MONITOR")
	helpLine := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("C: connect/disconnect  Tab: port  B: baud  R: refresh  S: save log  X: clear log  Q: quit")
	header := renderPanel("Dashboard", []string{titleLine, helpLine}, viewWidth, "63", 2)

	weight := "---- kg"
	stability := "-"
	label := "-"
	updated := "-"
	if m.snap.HasReading {
		weight = fmt.Sprintf("%d kg", m.snap.Reading.Weight)
		stability = string(m.snap.Stability)
		label = m.snap.TypeLabel
		updated = m.snap.UpdatedAt.Format("15:04:05.000")
	}
	weightColor := "86"
	if m.snap.HasReading && m.snap.Stability != types.StabilityStable {
		weightColor = "214"
	}
	trend := sparkline(m.history, 28)
	if trend == "" {
		trend = "-"
	}
	readingPanel := renderPanel("Live Reading", []string{
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(weightColor)).Render(weight),
		"Stability: " + stability,
		"Type: " + label,
		lipgloss.NewStyle().Foreground(lipgloss.Color("112")).Render("Trend: " + trend),
		"Updated: " + updated,
	}, leftW, "45", 3)

	port := "-"
	if len(m.ports) > 0 && m.portIdx < len(m.ports) {
		port = m.ports[m.portIdx]
	}
	if m.status.Connected {
		port = m.status.Port
	}
	baud := config.BAUD_RATES[m.baudIdx]
	if m.status.Connected {
		baud = m.status.Baud
	}
	state := m.status.State.String()
	if m.busy {
		state = "WORKING"
	}
	connPanel := renderPanel("Connection", []string{
		"State: " + renderBadge(state),
		"Port: " + elideMiddle(port, rightW-12),
		fmt.Sprintf("Baud: %d", baud),
		"Ports: " + elideMiddle(utils.JoinPorts(m.ports), rightW-13),
		"Driver: " + m.status.Driver,
	}, rightW, "69", 2)

	top := lipgloss.JoinHorizontal(lipgloss.Top, readingPanel, " ", connPanel)

	statusPanel := renderPanel("System", []string{
		"Detail: " + elideMiddle(m.message, viewWidth-18),
	}, viewWidth, "99", 2)

	lines := m.lines
	limit := logLineLimit(viewHeight, header, top, statusPanel)
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	if len(lines) == 0 {
		lines = []string{"(empty)"}
	}
	logPanel := renderPanel("Log", lines, viewWidth, "240", 1)

	layout := strings.Join([]string{header, "", top, "", statusPanel, "", logPanel}, "\n")
	return lipgloss.NewStyle().Padding(0, 1).Render(layout)
}

func waitForEventCmd(ctx context.Context, events <-chan types.Event) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return quitMsg{}
		case ev, ok := <-events:
			if !ok {
				return quitMsg{}
			}
			return eventMsg{event: ev}
		}
	}
}

func waitForLogCmd(ctx context.Context, logs <-chan types.LogMessage) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return quitMsg{}
		case e, ok := <-logs:
			if !ok {
				return quitMsg{}
			}
			return logMsg{entry: e}
		}
	}
}

func refreshPortsCmd(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		ports, err := ctl.ListPorts()
		return portsMsg{ports: ports, err: err}
	}
}

func toggleCmd(ctl Controller, cfg types.ConnectionConfig) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{err: ctl.Toggle(cfg)}
	}
}

func saveLogCmd(dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := logging.Save(dir)
		return actionMsg{text: "saved " + path, err: err}
	}
}

func clearLogCmd() tea.Cmd {
	return func() tea.Msg {
		logging.Clear()
		return actionMsg{text: "log cleared"}
	}
}

func clockTickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func viewSize(w, h int) (int, int) {
	if w <= 0 {
		w = 100
	}
	if h <= 0 {
		h = 32
	}

	width := w - 4
	if width > 118 {
		width = 118
	}
	if width < 72 {
		width = 72
	}

	height := h - 2
	if height < 20 {
		height = 20
	}
	return width, height
}

func splitWidths(total int) (int, int) {
	left := int(math.Round(float64(total) * 0.56))
	if left < 38 {
		left = 38
	}
	right := total - left - 1
	if right < 28 {
		right = 28
		left = total - right - 1
	}
	return left, right
}

func renderPanel(title string, lines []string, width int, borderColor string, titleColor int) string {
	if width < 24 {
		width = 24
	}
	inner := width - 4

	normalized := make([]string, 0, len(lines))
	for _, line := range lines {
		normalized = append(normalized, truncateText(line, inner))
	}
	if len(normalized) == 0 {
		normalized = []string{""}
	}

	titleStyled := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(fmt.Sprintf("%d", titleColor))).Render(title)
	content := titleStyled + "\n" + strings.Join(normalized, "\n")

	style := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(borderColor))
	return style.Render(content)
}

func renderBadge(state string) string {
	s := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch state {
	case "CONNECTED":
		return s.Foreground(lipgloss.Color("46")).Background(lipgloss.Color("22")).Render(state)
	case "WORKING":
		return s.Foreground(lipgloss.Color("228")).Background(lipgloss.Color("94")).Render(state)
	default:
		return s.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Render(state)
	}
}

func logLineLimit(totalHeight int, header, top, status string) int {
	used := lineCount(header) + lineCount(top) + lineCount(status) + 6
	free := totalHeight - used
	if free < 3 {
		return 3
	}
	return free
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	blocks := []rune("▁▂▃▄▅▆▇█")
	if len(values) > width {
		values = values[len(values)-width:]
	}
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	if maxV-minV < 1e-9 {
		return strings.Repeat(string(blocks[0]), len(values))
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(math.Round((v - minV) / (maxV - minV) * float64(len(blocks)-1)))
		b.WriteRune(blocks[idx])
	}
	return b.String()
}

// truncateText cuts by rune count; styled lines are left alone since their
// escape codes inflate the count.
func truncateText(text string, max int) string {
	if strings.Contains(text, "\x1b[") {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func elideMiddle(text string, max int) string {
	runes := []rune(strings.TrimSpace(text))
	if max <= 0 {
		return ""
	}
	if len(runes) <= max {
		return string(runes)
	}
	if max <= 5 {
		return truncateText(string(runes), max)
	}
	keep := (max - 3) / 2
	return string(runes[:keep]) + "..." + string(runes[len(runes)-keep:])
}
