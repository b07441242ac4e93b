package relay

import "strings"

const (
	eventPrefix = "event: "
	dataPrefix  = "data: "
)

// findDoneResult scans the fully accumulated stream text for the first frame
// whose kind is done and returns its raw data payload. This is a one-shot,
// end-of-stream scan, not a continuous decoder: the relay never reacts to
// progress frames, so only the first terminal frame matters.
//
// A blank line resets the tracked kind unless the tracked kind is done, which
// keeps recognition alive across a boundary that immediately precedes the
// qualifying data line. The agent never frames done that way today, so the
// special case is inert; leave it until upstream framing guarantees are
// confirmed.
func findDoneResult(text string) (string, bool) {
	var kind string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, eventPrefix):
			kind = strings.TrimSpace(line[len(eventPrefix):])
		case strings.HasPrefix(line, dataPrefix):
			if kind == string(KindDone) {
				return strings.TrimSpace(line[len(dataPrefix):]), true
			}
		case strings.TrimSpace(line) == "":
			if kind != string(KindDone) {
				kind = ""
			}
		}
	}
	return "", false
}
