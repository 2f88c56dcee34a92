package devices

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
	tserial "github.com/tarm/serial"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"weight-monitor/config"
)

// Port is an open serial handle. Read returns (0, nil) when the read timeout
// elapses without data.
type Port interface {
	io.ReadWriteCloser
}

// Mode is the per-connection line setup. Framing is always 8N1.
type Mode struct {
	BaudRate     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Driver opens ports and enumerates them. A driver returning an error from
// Open must not leave a handle open.
type Driver interface {
	Name() string
	ListPorts() ([]string, error)
	Open(name string, mode Mode) (Port, error)
}

var ErrWriteTimeout = errors.New("serial write timeout")

func NewDriver(kind config.Driver) (Driver, error) {
	switch kind {
	case config.DriverBugst, "":
		return bugstDriver{}, nil
	case config.DriverJacobsa:
		return jacobsaDriver{}, nil
	case config.DriverTarm:
		return tarmDriver{}, nil
	case config.DriverSim:
		return NewSimDriver(config.SIM_INTERVAL), nil
	default:
		return nil, fmt.Errorf("unknown serial driver %q", kind)
	}
}

// getSerialPorts queries the live system port registry.
func getSerialPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("enumerate ports: %w", err)
		}
		sort.Strings(names)
		return names, nil
	}

	portNames := make([]string, 0, len(ports))
	for _, port := range ports {
		portNames = append(portNames, port.Name)
	}
	sort.Strings(portNames)
	return portNames, nil
}

type systemPorts struct{}

func (systemPorts) ListPorts() ([]string, error) { return getSerialPorts() }

type bugstDriver struct{ systemPorts }

func (bugstDriver) Name() string { return string(config.DriverBugst) }

func (bugstDriver) Open(name string, m Mode) (Port, error) {
	mode := &serial.Mode{
		BaudRate: m.BaudRate,
		DataBits: config.DATA_BITS,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	conn, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadTimeout(m.ReadTimeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return withWriteTimeout(conn, m.WriteTimeout), nil
}

type jacobsaDriver struct{ systemPorts }

func (jacobsaDriver) Name() string { return string(config.DriverJacobsa) }

func (jacobsaDriver) Open(name string, m Mode) (Port, error) {
	// VTIME granularity is 100ms.
	timeoutMs := uint(m.ReadTimeout / time.Millisecond)
	if timeoutMs < 100 {
		timeoutMs = 100
	}
	conn, err := jserial.Open(jserial.OpenOptions{
		PortName:              name,
		BaudRate:              uint(m.BaudRate),
		DataBits:              config.DATA_BITS,
		StopBits:              1,
		ParityMode:            jserial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: timeoutMs,
	})
	if err != nil {
		return nil, err
	}
	return withWriteTimeout(eofAsTimeout{conn}, m.WriteTimeout), nil
}

type tarmDriver struct{ systemPorts }

func (tarmDriver) Name() string { return string(config.DriverTarm) }

func (tarmDriver) Open(name string, m Mode) (Port, error) {
	conn, err := tserial.OpenPort(&tserial.Config{
		Name:        name,
		Baud:        m.BaudRate,
		Size:        config.DATA_BITS,
		Parity:      tserial.ParityNone,
		StopBits:    tserial.Stop1,
		ReadTimeout: m.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return withWriteTimeout(eofAsTimeout{conn}, m.WriteTimeout), nil
}

// eofAsTimeout maps the io.EOF that file-backed ports report for an empty
// timed read onto the (0, nil) timeout contract of Port.
type eofAsTimeout struct {
	io.ReadWriteCloser
}

func (p eofAsTimeout) Read(b []byte) (int, error) {
	n, err := p.ReadWriteCloser.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

// timedPort bounds writes; none of the backends expose a write deadline.
type timedPort struct {
	Port
	timeout time.Duration
}

func withWriteTimeout(p Port, timeout time.Duration) Port {
	if timeout <= 0 {
		return p
	}
	return &timedPort{Port: p, timeout: timeout}
}

func (p *timedPort) Write(b []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.Port.Write(b)
		done <- result{n, err}
	}()

	t := time.NewTimer(p.timeout)
	defer t.Stop()
	select {
	case r := <-done:
		return r.n, r.err
	case <-t.C:
		return 0, ErrWriteTimeout
	}
}
