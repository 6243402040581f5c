// Package parse turns raw capture lines into normalized frame records. Two
// encodings are supported: the live candump output format and the candump -L
// timestamped log format.
package parse

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tuna-f1sh/cantools/internal/domain"
)

// Mode selects the input line encoding.
type Mode string

const (
	// ModeLive matches live candump output, e.g.
	// "vcan0  1F0   [8]  00 00 00 00 00 00 1B C1". No embedded timestamp.
	ModeLive Mode = "live"
	// ModeLog matches candump -L log files, e.g.
	// "(1575305161.758357) can0 201#0000000062".
	ModeLog Mode = "log"
)

// MismatchPolicy is what the coordinator does with a line that is not a frame.
type MismatchPolicy int

const (
	// StopOnMismatch ends the stream. Live captures rarely contain trailing
	// junk, so a non-frame line historically signals EOF or noise.
	StopOnMismatch MismatchPolicy = iota
	// SkipOnMismatch drops the line and continues. Log files commonly carry
	// comments and trailing garbage.
	SkipOnMismatch
)

func (m Mode) Valid() bool {
	return m == ModeLive || m == ModeLog
}

// MismatchPolicy returns the per-mode non-frame policy. The asymmetry between
// the modes is deliberate and load-bearing; see the decode command docs.
func (m Mode) MismatchPolicy() MismatchPolicy {
	if m == ModeLog {
		return SkipOnMismatch
	}
	return StopOnMismatch
}

var (
	reLive = regexp.MustCompile(`^\s*(\S+)\s+([0-9A-F]{1,8})\s+\[(\d+)\]\s*([0-9A-F ]*?)\s*$`)
	reLog  = regexp.MustCompile(`^\((\d+)\.(\d+)\) ([A-Za-z]{3,4}[0-9]{1,2}) ([0-9A-Fa-f]{3,8})#([0-9A-Fa-f]{2,16})$`)
)

// Parser converts one line of text into a FrameRecord.
type Parser struct {
	mode Mode
	now  func() time.Time
}

func New(mode Mode) *Parser {
	return &Parser{mode: mode, now: time.Now}
}

// Parse returns the normalized record, or ok=false when the line does not
// match the active grammar. A false return never means the stream is broken;
// the caller applies the mode's MismatchPolicy.
func (p *Parser) Parse(line string) (domain.FrameRecord, bool) {
	switch p.mode {
	case ModeLog:
		return p.parseLog(line)
	default:
		return p.parseLive(line)
	}
}

func (p *Parser) parseLive(line string) (domain.FrameRecord, bool) {
	m := reLive.FindStringSubmatch(line)
	if m == nil {
		return domain.FrameRecord{}, false
	}

	id, ok := parseFrameID(m[2])
	if !ok {
		return domain.FrameRecord{}, false
	}
	count, err := strconv.Atoi(m[3])
	if err != nil || count > 8 {
		return domain.FrameRecord{}, false
	}
	payload, ok := parsePayload(strings.ReplaceAll(m[4], " ", ""))
	if !ok || len(payload) != count {
		return domain.FrameRecord{}, false
	}

	return domain.FrameRecord{
		Timestamp: p.now().UnixNano(),
		Link:      m[1],
		FrameID:   id,
		Payload:   payload,
	}, true
}

func (p *Parser) parseLog(line string) (domain.FrameRecord, bool) {
	m := reLog.FindStringSubmatch(line)
	if m == nil {
		return domain.FrameRecord{}, false
	}

	ts, ok := timestampNanos(m[1], m[2])
	if !ok {
		return domain.FrameRecord{}, false
	}
	id, ok := parseFrameID(m[4])
	if !ok {
		return domain.FrameRecord{}, false
	}
	// Log payload hex is always padded out to the full 8 bytes, matching the
	// encoding's own convention. Existing captures depend on this.
	payload, ok := parsePayload(padRight(m[5], 16))
	if !ok {
		return domain.FrameRecord{}, false
	}

	return domain.FrameRecord{
		Timestamp: ts,
		Link:      m[3],
		FrameID:   id,
		Payload:   payload,
	}, true
}

// parseFrameID reads an up-to-8-digit hex id as a big-endian 32-bit integer.
// Left-zero-padding to 8 digits is implicit in the numeric parse.
func parseFrameID(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// parsePayload decodes hex into at most 8 bytes, right-zero-padding an odd
// digit to a full byte.
func parsePayload(s string) ([]byte, bool) {
	if len(s)%2 != 0 {
		s += "0"
	}
	if len(s) > 16 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// timestampNanos converts a seconds.fraction capture timestamp to integer
// nanoseconds. The digits are combined textually, so the result is exact for
// any fraction up to nanosecond precision; extra digits are truncated.
func timestampNanos(secs, frac string) (int64, bool) {
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return 0, false
	}
	frac = padRight(frac, 9)[:9]
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, false
	}
	return s*1_000_000_000 + f, true
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat("0", width-len(s))
}

// FormatLive renders a (link, id, payload) triple back into a live-mode line.
// Round-tripping through Parse recovers the same frame.
func FormatLive(link string, frameID uint32, payload []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %X   [%d] ", link, frameID, len(payload))
	for _, p := range payload {
		fmt.Fprintf(&b, " %02X", p)
	}
	return b.String()
}
