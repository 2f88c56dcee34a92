package utils

import (
	"fmt"
	"strings"
)

// JoinPorts renders a port list for the operator log.
func JoinPorts(ports []string) string {
	if len(ports) == 0 {
		return "none"
	}
	return strings.Join(ports, ", ")
}

// FormatDataForLog renders raw serial bytes with control and non-ASCII bytes escaped.
func FormatDataForLog(data []byte) string {
	if len(data) == 0 {
		return "no data"
	}

	var sb strings.Builder
	for _, b := range data {
		switch {
		case b >= 32 && b <= 126:
			sb.WriteByte(b)
		case b == '\n':
			sb.WriteString("\\n")
		case b == '\r':
			sb.WriteString("\\r")
		case b == '\t':
			sb.WriteString("\\t")
		default:
			fmt.Fprintf(&sb, "\\x%02X", b)
		}
	}

	return fmt.Sprintf("%q (%d bytes)", sb.String(), len(data))
}

// Truncate keeps the tail of s within max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[len(r)-max:])
}
