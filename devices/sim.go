package devices

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"weight-monitor/config"
	"weight-monitor/types"
)

var errSimClosed = errors.New("simulated port closed")

// simSequence is a load being placed on the platform: settling, stable, removed.
var simSequence = []types.Reading{
	{StatusCode: "US", TypeCode: types.TypeCodeGross, Weight: 0},
	{StatusCode: "US", TypeCode: types.TypeCodeGross, Weight: 412},
	{StatusCode: "US", TypeCode: types.TypeCodeGross, Weight: 1187},
	{StatusCode: "US", TypeCode: types.TypeCodeGross, Weight: 1253},
	{StatusCode: "ST", TypeCode: types.TypeCodeGross, Weight: 1250},
	{StatusCode: "ST", TypeCode: types.TypeCodeGross, Weight: 1250},
	{StatusCode: "ST", TypeCode: "NT", Weight: 1180},
	{StatusCode: "US", TypeCode: types.TypeCodeGross, Weight: 35},
	{StatusCode: "ST", TypeCode: types.TypeCodeGross, Weight: 0},
}

// SimDriver serves a single in-process port emitting wire lines, for demos
// without a scale attached.
type SimDriver struct {
	interval time.Duration

	mu   sync.Mutex
	open bool
}

func NewSimDriver(interval time.Duration) *SimDriver {
	if interval <= 0 {
		interval = config.SIM_INTERVAL
	}
	return &SimDriver{interval: interval}
}

func (d *SimDriver) Name() string { return string(config.DriverSim) }

func (d *SimDriver) ListPorts() ([]string, error) {
	ports := []string{config.SIM_PORT}
	// real ports are listed too, but only SIM0 can be opened
	if system, err := getSerialPorts(); err == nil {
		ports = append(ports, system...)
	}
	return ports, nil
}

func (d *SimDriver) Open(name string, m Mode) (Port, error) {
	if name != config.SIM_PORT {
		return nil, fmt.Errorf("%s: sim driver only serves %s", name, config.SIM_PORT)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, fmt.Errorf("%s: port busy", name)
	}
	d.open = true
	return &simPort{
		driver:      d,
		interval:    d.interval,
		readTimeout: m.ReadTimeout,
		next:        time.Now().Add(d.interval),
		closed:      make(chan struct{}),
	}, nil
}

type simPort struct {
	driver      *SimDriver
	interval    time.Duration
	readTimeout time.Duration

	next    time.Time
	step    int
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (p *simPort) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, errSimClosed
	default:
	}
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}

	wait := time.Until(p.next)
	timedOut := false
	if p.readTimeout > 0 && wait > p.readTimeout {
		wait = p.readTimeout
		timedOut = true
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-p.closed:
			return 0, errSimClosed
		case <-t.C:
		}
	}
	if timedOut {
		return 0, nil
	}

	r := simSequence[p.step%len(simSequence)]
	p.step++
	p.next = time.Now().Add(p.interval)
	p.pending = []byte(FormatLine(r) + "\r\n")

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *simPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, errSimClosed
	default:
		return len(b), nil
	}
}

func (p *simPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.driver.mu.Lock()
		p.driver.open = false
		p.driver.mu.Unlock()
	})
	return nil
}
