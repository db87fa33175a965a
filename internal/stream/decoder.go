// Package stream implements the query streaming pipeline: a line-oriented
// event decoder and the HTTP client that feeds it. Answers arrive as up to
// five named sections, each updated independently until a terminal
// "complete" marker.
package stream

import (
	"bytes"
	"encoding/json"

	"dyschat/internal/logging"
)

// MinSection and MaxSection bound the content section indices; anything
// outside is a control event, not content.
const (
	MinSection = 1
	MaxSection = 5
)

const dataPrefix = "data: "

// EventKind discriminates decoded stream events.
type EventKind int

const (
	// EventSection carries a content update for one section slot.
	EventSection EventKind = iota
	// EventComplete is the terminal marker: no further sections follow.
	EventComplete
	// EventError carries a server-reported error; the stream is finished.
	EventError
)

// Event is one decoded stream event.
type Event struct {
	Kind    EventKind
	Section int // valid for EventSection only
	Title   string
	Content string
	Err     string // valid for EventError only
}

// wireEvent is the raw JSON payload of a data: line. Section is either a
// number (content) or the string "complete" (control).
type wireEvent struct {
	Section json.RawMessage `json:"section"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Error   string          `json:"error"`
}

// Decoder incrementally decodes a byte stream of `data: {...}` lines.
// Chunk boundaries do not align with line boundaries in general, so a
// partial trailing line is carried over to the next Feed call instead of
// being dropped or parsed prematurely.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes the next chunk and returns the events completed by it.
// Malformed lines are logged and skipped; they never abort the stream.
func (d *Decoder) Feed(p []byte) []Event {
	d.buf = append(d.buf, p...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		if ev, ok := parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush drains a trailing unterminated line at end of stream.
func (d *Decoder) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil

	if ev, ok := parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

func parseLine(line []byte) (Event, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return Event{}, false
	}

	var we wireEvent
	if err := json.Unmarshal(payload, &we); err != nil {
		logging.StreamWarn("Skipping malformed event line: %v", err)
		return Event{}, false
	}

	if we.Error != "" {
		return Event{Kind: EventError, Err: we.Error}, true
	}

	// Section is a number for content events, "complete" as the terminal
	// control marker.
	var idx int
	if err := json.Unmarshal(we.Section, &idx); err == nil {
		if idx < MinSection || idx > MaxSection {
			logging.StreamDebug("Ignoring out-of-range section %d", idx)
			return Event{}, false
		}
		return Event{Kind: EventSection, Section: idx, Title: we.Title, Content: we.Content}, true
	}

	var marker string
	if err := json.Unmarshal(we.Section, &marker); err == nil && marker == "complete" {
		return Event{Kind: EventComplete}, true
	}

	logging.StreamWarn("Skipping event with unrecognized section field: %s", string(payload))
	return Event{}, false
}
