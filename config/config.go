package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SERVER_ADDR  = ":8080"
	DEFAULT_BAUD = 1200

	// Serial line settings are fixed at 8N1.
	DATA_BITS = 8

	READ_TIMEOUT      = 1 * time.Second
	WRITE_TIMEOUT     = 1 * time.Second
	STOP_TIMEOUT      = 2 * time.Second
	CLOSE_ATTEMPTS    = 3
	CLOSE_RETRY_DELAY = 200 * time.Millisecond

	// Upper bound for bytes buffered while waiting for a line ending.
	MAX_PENDING_BYTES = 1024

	LOG_BUFFER_SIZE  = 2000
	WEIGHT_THRESHOLD = 1
	SIM_INTERVAL     = 500 * time.Millisecond
	SIM_PORT         = "SIM0"
)

var BAUD_RATES = []int{1200, 9600, 19200, 38400, 115200}

// Driver selects the serial backend once at startup.
type Driver string

const (
	DriverBugst   Driver = "bugst"
	DriverJacobsa Driver = "jacobsa"
	DriverTarm    Driver = "tarm"
	DriverSim     Driver = "sim"
)

var drivers = []Driver{DriverBugst, DriverJacobsa, DriverTarm, DriverSim}

type Config struct {
	Addr            string
	Port            string
	Baud            int
	Driver          Driver
	AutoConnect     bool
	TUI             bool
	LogDir          string
	AutoType        bool
	WeightThreshold uint64
	Debug           bool
}

// Load reads flags from args; every flag default can be overridden with a WM_* environment variable.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	driver := getEnv("WM_DRIVER", string(DriverBugst))
	threshold := getEnvInt("WM_WEIGHT_THRESHOLD", WEIGHT_THRESHOLD)

	fs := flag.NewFlagSet("weight-monitor", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", getEnv("WM_ADDR", SERVER_ADDR), "http listen address")
	fs.StringVar(&cfg.Port, "port", getEnv("WM_PORT", ""), "serial port, example COM5 or /dev/ttyUSB0")
	fs.IntVar(&cfg.Baud, "baud", getEnvInt("WM_BAUD", DEFAULT_BAUD), "baud rate (1200, 9600, 19200, 38400, 115200)")
	fs.StringVar(&driver, "driver", driver, "serial backend: bugst, jacobsa, tarm or sim")
	fs.BoolVar(&cfg.AutoConnect, "connect", getEnvBool("WM_CONNECT", false), "connect to -port on startup")
	fs.BoolVar(&cfg.TUI, "tui", getEnvBool("WM_TUI", false), "run the terminal dashboard")
	fs.StringVar(&cfg.LogDir, "log-dir", getEnv("WM_LOG_DIR", "."), "directory for saved weight logs")
	fs.BoolVar(&cfg.AutoType, "autotype", getEnvBool("WM_AUTOTYPE", false), "paste stable weights into the focused window")
	fs.IntVar(&threshold, "threshold", threshold, "minimum weight change in kg before auto-typing again")
	fs.BoolVar(&cfg.Debug, "debug", getEnvBool("WM_DEBUG", false), "verbose console logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Driver = Driver(strings.ToLower(strings.TrimSpace(driver)))
	cfg.Port = strings.TrimSpace(cfg.Port)
	if threshold < 0 {
		return nil, fmt.Errorf("invalid threshold %d", threshold)
	}
	cfg.WeightThreshold = uint64(threshold)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !ValidBaud(c.Baud) {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if !ValidDriver(c.Driver) {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("empty http address")
	}
	if c.AutoConnect && c.Port == "" {
		return errors.New("-connect requires -port")
	}
	return nil
}

func ValidBaud(baud int) bool {
	for _, b := range BAUD_RATES {
		if b == baud {
			return true
		}
	}
	return false
}

func ValidDriver(d Driver) bool {
	for _, known := range drivers {
		if known == d {
			return true
		}
	}
	return false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}
