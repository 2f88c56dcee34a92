package devices

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"weight-monitor/types"
)

// <STATUS>,<TYPE>,<SIGN>[spaces]<DIGITS>kg, nothing before or after.
var lineRegex = regexp.MustCompile(`^([A-Z]{2}),([A-Z]{2}),([+-])\s*([0-9]+)kg$`)

// ParseLine converts one decoded, trimmed scale line into a Reading.
func ParseLine(line string) (types.Reading, error) {
	m := lineRegex.FindStringSubmatch(line)
	if m == nil {
		return types.Reading{}, newError(CodeMalformedLine, "", fmt.Sprintf("malformed line %q", line))
	}

	weight, err := strconv.ParseUint(m[4], 10, 64)
	if err != nil {
		return types.Reading{}, wrapError(err, CodeMalformedLine, "", "weight out of range in %q", line)
	}

	sign := types.SignPositive
	if m[3] == "-" {
		sign = types.SignNegative
	}

	return types.Reading{
		StatusCode: m[1],
		TypeCode:   m[2],
		Sign:       sign,
		Weight:     weight,
	}, nil
}

// FormatLine renders a Reading in wire format without the line ending.
func FormatLine(r types.Reading) string {
	return fmt.Sprintf("%s,%s,%s%dkg", r.StatusCode, r.TypeCode, r.Sign.Symbol(), r.Weight)
}

// DecodeLine turns raw bytes into text, dropping ill-formed UTF-8 instead of failing.
func DecodeLine(raw []byte) string {
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		out = []byte(strings.ToValidUTF8(string(raw), ""))
	}
	return strings.TrimSpace(string(out))
}

// popFrame splits the first CR/LF terminated frame off buf.
func popFrame(buf []byte) (frame, rest []byte, ok bool) {
	idx := bytes.IndexAny(buf, "\r\n")
	if idx < 0 {
		return nil, buf, false
	}

	frame = buf[:idx]
	j := idx
	for j < len(buf) {
		if buf[j] != '\r' && buf[j] != '\n' {
			break
		}
		j++
	}
	return frame, buf[j:], true
}

// lineFramer splits a byte stream into CR/LF terminated frames. A line that
// grows past max bytes without a terminator is dropped whole, up to and
// including its terminator.
type lineFramer struct {
	max      int
	pending  []byte
	overflow bool
}

func newLineFramer(max int) *lineFramer {
	return &lineFramer{max: max}
}

// push appends chunk and returns the completed frames in wire order along
// with the number of overlong lines discarded.
func (f *lineFramer) push(chunk []byte) (frames [][]byte, dropped int) {
	f.pending = append(f.pending, chunk...)
	for {
		if f.overflow {
			_, rest, ok := popFrame(f.pending)
			if !ok {
				f.pending = f.pending[:0]
				return frames, dropped
			}
			f.pending = rest
			f.overflow = false
			dropped++
			continue
		}

		frame, rest, ok := popFrame(f.pending)
		if !ok {
			if len(f.pending) > f.max {
				f.pending = f.pending[:0]
				f.overflow = true
			}
			return frames, dropped
		}
		f.pending = rest
		if len(frame) > f.max {
			dropped++
			continue
		}
		frames = append(frames, frame)
	}
}
