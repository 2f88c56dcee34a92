package types

import (
	"fmt"
	"time"
)

const (
	StatusCodeStable = "ST"
	TypeCodeGross    = "GS"
	TypeLabelGross   = "GROSS"
)

type Sign int

const (
	SignPositive Sign = iota
	SignNegative
)

func (s Sign) Symbol() string {
	if s == SignNegative {
		return "-"
	}
	return "+"
}

func (s Sign) MarshalText() ([]byte, error) {
	return []byte(s.Symbol()), nil
}

func (s *Sign) UnmarshalText(b []byte) error {
	switch string(b) {
	case "+":
		*s = SignPositive
	case "-":
		*s = SignNegative
	default:
		return fmt.Errorf("invalid sign %q", string(b))
	}
	return nil
}

type Stability string

const (
	StabilityStable   Stability = "STABLE"
	StabilityUnstable Stability = "UNSTABLE"
)

// Reading is one accepted scale line. Weight is the magnitude in kg; the sign
// character is recorded but never applied to it.
type Reading struct {
	StatusCode string `json:"status_code"`
	TypeCode   string `json:"type_code"`
	Sign       Sign   `json:"sign"`
	Weight     uint64 `json:"weight"`
}

type ConnectionConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud"`
}

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnected
)

func (s ConnectionState) String() string {
	if s == StateConnected {
		return "CONNECTED"
	}
	return "DISCONNECTED"
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ConnectionStatus struct {
	State     ConnectionState `json:"state"`
	Connected bool            `json:"connected"`
	Port      string          `json:"port"`
	Baud      int             `json:"baud"`
	Driver    string          `json:"driver"`
	Session   string          `json:"session,omitempty"`
}

type DisplaySnapshot struct {
	HasReading bool      `json:"has_reading"`
	Reading    Reading   `json:"reading"`
	Stability  Stability `json:"stability"`
	TypeLabel  string    `json:"type_label"`
	UpdatedAt  time.Time `json:"updated_at"`
	Seq        uint64    `json:"seq"`
}

type ScaleStatus struct {
	Connection ConnectionStatus `json:"connection"`
	Display    DisplaySnapshot  `json:"display"`
}

type LogMessage struct {
	Time    string `json:"time"`
	Message string `json:"message"`
	Type    string `json:"type"` // "scale", "system", "web"
}

type EventKind string

const (
	EventReading   EventKind = "reading"
	EventMalformed EventKind = "malformed"
	EventState     EventKind = "state"
	EventError     EventKind = "error"
)

// Event is published by the connection manager to presentation layers.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Session string          `json:"session,omitempty"`
	State   ConnectionState `json:"state"`
	Port    string          `json:"port,omitempty"`
	Line    string          `json:"line,omitempty"`
	Reading *Reading        `json:"reading,omitempty"`
	Error   string          `json:"error,omitempty"`
	At      time.Time       `json:"at"`
}
