package augment

import "strings"

// EventScanner accumulates SSE stream chunks and extracts complete events.
// An event is terminated by a blank line; between calls the scanner holds at
// most one incomplete event's worth of trailing data. Line endings are
// normalized to \n, including \r\n sequences split across chunks.
type EventScanner struct {
	buf string
}

// Feed appends a chunk and returns all events completed by it, in order,
// with their terminating blank lines removed.
func (s *EventScanner) Feed(chunk string) []string {
	// A trailing \r in the buffer may pair with a leading \n in this chunk,
	// so normalize after concatenation.
	s.buf = strings.ReplaceAll(s.buf+chunk, "\r\n", "\n")

	var events []string
	for {
		idx := strings.Index(s.buf, "\n\n")
		if idx < 0 {
			return events
		}
		events = append(events, s.buf[:idx])
		s.buf = s.buf[idx+2:]
	}
}

// Flush returns any buffered partial event and resets the scanner. The
// second return reports whether there was anything buffered.
func (s *EventScanner) Flush() (string, bool) {
	if s.buf == "" {
		return "", false
	}
	partial := s.buf
	s.buf = ""
	return partial, true
}
