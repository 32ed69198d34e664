package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DataPrefix marks a candidate record line. Lines without it are ignored.
const DataPrefix = "data: "

// DefaultMaxLineSize bounds a single buffered line.
const DefaultMaxLineSize = 10 * 1024 * 1024 // 10MB

// ErrMissingPrefix is returned by [ParseLine] for lines that are not records.
var ErrMissingPrefix = errors.New("line is not a data record")

// Parser decodes a chunked progress stream into [Event] values.
//
// A Parser is not safe for concurrent use. It keeps the trailing fragment of
// the last chunk until the next chunk completes it. Create one per run with
// [NewParser].
type Parser struct {
	// MaxLineSize is the largest fragment kept between chunks. A fragment that
	// grows past it is dropped along with the rest of its line.
	// Defaults to [DefaultMaxLineSize] if <= 0.
	MaxLineSize int

	// Logger receives warnings for dropped lines. Defaults to slog.Default().
	Logger *slog.Logger

	buffer   []byte
	overflow bool
}

// NewParser creates a [Parser] with default settings.
func NewParser() *Parser {
	return &Parser{
		MaxLineSize: DefaultMaxLineSize,
	}
}

// Feed appends chunk to the buffer and returns the events decoded from every
// line it completes.
//
// Malformed records are logged and skipped; Feed never fails.
func (p *Parser) Feed(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}
	p.buffer = append(p.buffer, chunk...)

	var out []Event
	for {
		idx := bytes.IndexByte(p.buffer, '\n')
		if idx < 0 {
			break
		}
		line := p.buffer[:idx]
		p.buffer = p.buffer[idx+1:]

		if p.overflow {
			// Tail of a line that was already dropped.
			p.overflow = false
			continue
		}
		if ev, ok := p.consumeLine(line); ok {
			out = append(out, ev)
		}
	}

	if len(p.buffer) > p.maxLineSize() {
		p.logger().Warn("Dropping oversized stream line.", "buffered", len(p.buffer))
		p.buffer = nil
		p.overflow = true
	}
	if len(p.buffer) == 0 {
		// Release the backing array once it is fully consumed.
		p.buffer = nil
	}

	return out
}

// Flush ends the stream. A buffered partial line is never a valid record, so
// it is discarded rather than parsed. Flush always returns nil.
func (p *Parser) Flush() []Event {
	if len(p.buffer) > 0 {
		p.logger().Debug("Discarding incomplete trailing stream line.", "bytes", len(p.buffer))
	}
	p.buffer = nil
	p.overflow = false
	return nil
}

// Buffered returns the number of bytes held for the next chunk.
func (p *Parser) Buffered() int {
	return len(p.buffer)
}

func (p *Parser) consumeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return Event{}, false
	}

	var raw StreamEvent
	if err := json.Unmarshal(line[len(DataPrefix):], &raw); err != nil {
		p.logger().Warn("Skipping malformed stream record.", "error", err, "line", truncate(string(line), 120))
		return Event{}, false
	}
	return NewEventFromStream(&raw), true
}

func (p *Parser) maxLineSize() int {
	if p.MaxLineSize <= 0 {
		return DefaultMaxLineSize
	}
	return p.MaxLineSize
}

func (p *Parser) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// ParseLine parses a single "data: " line into an [Event].
//
// Unlike [Parser.Feed], ParseLine does not skip bad input: it returns
// [ErrMissingPrefix] for non-record lines and the JSON error for malformed ones.
//
// Example:
//
//	ev, err := ParseLine(`data: {"type":"matter-start","displayNumber":"M-1"}`)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(ev.DisplayNumber) // "M-1"
func ParseLine(line string) (Event, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, DataPrefix) {
		return Event{}, ErrMissingPrefix
	}
	var raw StreamEvent
	if err := json.Unmarshal([]byte(line[len(DataPrefix):]), &raw); err != nil {
		return Event{}, fmt.Errorf("failed to parse stream record: %w", err)
	}
	return NewEventFromStream(&raw), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
