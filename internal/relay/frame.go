// Package relay forwards generation event streams from the agent to waiting
// clients and, for authenticated owners, persists the terminal result.
package relay

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the event type carried by a Frame.
type Kind string

// Event kinds on the relay wire. KindSaved is never produced by the agent; it
// is synthesized by the relay after a successful persist.
const (
	KindProgress Kind = "progress"
	KindDone     Kind = "done"
	KindError    Kind = "error"
	KindSaved    Kind = "saved"
)

// Frame is one discrete event unit: a kind plus an opaque JSON payload.
type Frame struct {
	Kind    Kind
	Payload json.RawMessage
}

// Encode renders the frame in the line-oriented wire format used by the
// agent: an event line, a data line, and a blank-line terminator.
func (f Frame) Encode() []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", f.Kind, f.Payload)
}

// DonePayload carries the generated documentation object. Docs is opaque to
// the relay; it is inspected only for presence.
type DonePayload struct {
	Docs json.RawMessage `json:"docs"`
}

// SavedPayload announces that the relay persisted the generated docs.
type SavedPayload struct {
	Slug     string `json:"slug"`
	RepoName string `json:"repoName"`
}

// Session binds one relay lifetime to its caller. A non-empty Owner is the
// sole gate for the persistence path; anonymous runs are pure passthrough.
type Session struct {
	Owner    string
	RepoURL  string
	RepoName string
}
