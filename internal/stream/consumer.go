// Package stream decodes relayed generation event streams incrementally,
// driving progress state from each frame as it arrives.
package stream

import (
	"encoding/json"
	"strings"
)

// State tracks one consumer's position in the generation lifecycle.
type State string

// Lifecycle states. Completed is reached on transport close; a done frame
// alone is terminal for content, not for the stream, because the saved frame
// may still arrive after persistence finishes.
const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

const (
	eventPrefix = "event: "
	dataPrefix  = "data: "
)

// Consumer is an incremental frame decoder plus a small state machine.
// Unlike the relay's end-of-stream scan it must react to every frame as it
// arrives, so it keeps the undelivered tail of the last chunk and the pending
// event kind across Feed calls. It is not safe for concurrent use; one
// consumer serves exactly one stream.
type Consumer struct {
	state State

	// Decoder state carried across chunk boundaries.
	partial  string
	kind     string
	data     string
	haveData bool

	progress int
	message  string
	docs     json.RawMessage
	slug     string
	failure  string

	// OnProgress, if set, fires after each progress frame.
	OnProgress func(percent int, message string)
	// OnSaved, if set, fires once the persisted slug becomes known.
	OnSaved func(slug string)
}

// NewConsumer returns an idle consumer.
func NewConsumer() *Consumer {
	return &Consumer{state: StateIdle}
}

// Begin marks the request as in flight.
func (c *Consumer) Begin() {
	if c.state == StateIdle {
		c.state = StateRequesting
	}
}

// StreamStarted records that the server answered with an event stream.
func (c *Consumer) StreamStarted() {
	if c.state == StateIdle || c.state == StateRequesting {
		c.state = StateStreaming
	}
}

// FailRequest records a non-stream failure (non-2xx or non-event-stream
// response handled by the JSON fallback path).
func (c *Consumer) FailRequest(msg string) {
	c.failure = msg
	c.state = StateFailed
}

// Feed consumes the next chunk of stream bytes. Chunks may split lines and
// frames at arbitrary byte boundaries; the dispatched frame sequence is
// identical to single-chunk delivery.
func (c *Consumer) Feed(p []byte) {
	c.partial += string(p)
	for {
		idx := strings.IndexByte(c.partial, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(c.partial[:idx], "\r")
		c.partial = c.partial[idx+1:]
		c.processLine(line)
	}
}

// Close marks the transport closed. A stream that ended without a done frame
// completes with a nil Result ("no result"), which is not a failure.
func (c *Consumer) Close() {
	if c.state == StateStreaming || c.state == StateRequesting {
		c.state = StateCompleted
	}
}

// CurrentState returns the lifecycle state.
func (c *Consumer) CurrentState() State { return c.state }

// Progress returns the latest reported percentage and message.
func (c *Consumer) Progress() (int, string) { return c.progress, c.message }

// Result returns the generated docs, or nil while not (or never) ready.
func (c *Consumer) Result() json.RawMessage { return c.docs }

// Slug returns the persisted slug, or empty if no saved frame arrived.
func (c *Consumer) Slug() string { return c.slug }

// Persisted reports whether a saved frame was observed.
func (c *Consumer) Persisted() bool { return c.slug != "" }

// FailureMessage returns the recorded failure, empty if none.
func (c *Consumer) FailureMessage() string { return c.failure }

func (c *Consumer) processLine(line string) {
	switch {
	case strings.HasPrefix(line, eventPrefix):
		c.kind = strings.TrimSpace(line[len(eventPrefix):])
	case strings.HasPrefix(line, dataPrefix):
		c.data = strings.TrimSpace(line[len(dataPrefix):])
		c.haveData = true
	case strings.TrimSpace(line) == "":
		if c.haveData && c.kind != "" {
			c.dispatch(c.kind, c.data)
		}
		// Every frame resets the pending kind, done included.
		c.kind = ""
		c.data = ""
		c.haveData = false
	}
}

// dispatch applies one complete frame. Malformed payloads are transient
// noise: the frame is dropped and decoding continues.
func (c *Consumer) dispatch(kind, data string) {
	switch kind {
	case "progress":
		var p struct {
			Progress int    `json:"progress"`
			Message  string `json:"message"`
		}
		if json.Unmarshal([]byte(data), &p) != nil {
			return
		}
		c.progress = p.Progress
		c.message = p.Message
		if c.OnProgress != nil {
			c.OnProgress(p.Progress, p.Message)
		}
	case "done":
		var d struct {
			Docs json.RawMessage `json:"docs"`
		}
		if json.Unmarshal([]byte(data), &d) != nil {
			return
		}
		if len(d.Docs) == 0 || string(d.Docs) == "null" {
			return
		}
		c.docs = d.Docs
		c.progress = 100
	case "error":
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal([]byte(data), &e) != nil {
			return
		}
		c.failure = e.Error
		c.state = StateFailed
	case "saved":
		var s struct {
			Slug string `json:"slug"`
		}
		if json.Unmarshal([]byte(data), &s) != nil {
			return
		}
		if s.Slug != "" {
			c.slug = s.Slug
			if c.OnSaved != nil {
				c.OnSaved(s.Slug)
			}
		}
	}
}
