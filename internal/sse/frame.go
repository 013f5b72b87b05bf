package sse

import "strings"

// Frame is one self-delimited unit of the event-stream wire format.
type Frame []byte

// Data renders a named data frame:
//
//	event: <name>
//	data: <payload>
//
// A payload spanning several lines is split into one data field per line, which
// clients join back with "\n". Single-line payloads encode as a single data field.
func Data(name, payload string) Frame {
	var b strings.Builder
	b.Grow(len(name) + len(payload) + 16)
	b.WriteString("event: ")
	b.WriteString(sanitizeField(name))
	b.WriteByte('\n')
	for _, line := range splitLines(payload) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return Frame(b.String())
}

// Comment renders a comment frame (": <text>\n\n"). Clients ignore comments, which
// makes them suitable for connection notices and heartbeats.
func Comment(text string) Frame {
	var b strings.Builder
	b.Grow(len(text) + 4)
	for _, line := range splitLines(text) {
		b.WriteString(": ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return Frame(b.String())
}

// splitLines splits on CRLF, LF and lone CR, the three line terminators of the format.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// event names are single-line fields
func sanitizeField(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
