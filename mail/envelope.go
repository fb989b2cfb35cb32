package mail

import (
	"strings"
)

// Envelope is everything a Transport needs to deliver one message.
type Envelope struct {
	// To is the comma separated list of formatted To recipients.
	To string

	// Subject is the encoded subject.
	Subject string

	// Body is the wrapped message, or the multipart body when the message
	// has attachments.
	Body string

	// Headers are the additional header lines joined with CRLF.
	Headers string

	// Parameters are the transport parameters, e.g. "-fbounce@example.com".
	Parameters string
}

// HeaderLines splits Headers into individual lines.
func (e *Envelope) HeaderLines() []string {
	if e.Headers == "" {
		return nil
	}
	return strings.Split(e.Headers, crlf)
}

// Header returns the value of the first header line named name.
func (e *Envelope) Header(name string) string {
	for _, line := range e.HeaderLines() {
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Recipients returns the bare addresses of every To, Cc and Bcc recipient.
func (e *Envelope) Recipients() []string {
	rcpts := addressesOf(e.To)
	for _, line := range e.HeaderLines() {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "cc", "bcc":
			rcpts = append(rcpts, addressesOf(v)...)
		}
	}
	return rcpts
}

// Bcc returns the bare addresses of the blind recipients.
func (e *Envelope) Bcc() []string {
	var bcc []string
	for _, line := range e.HeaderLines() {
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "bcc") {
			bcc = append(bcc, addressesOf(v)...)
		}
	}
	return bcc
}

// Sender returns the envelope sender: the address of a "-f" parameter when
// present, otherwise the address in the From header.
func (e *Envelope) Sender() string {
	fields := strings.Fields(e.Parameters)
	for i, f := range fields {
		if !strings.HasPrefix(f, "-f") {
			continue
		}
		if addr := strings.TrimPrefix(f, "-f"); addr != "" {
			return FilterEmail(addr)
		}
		if i+1 < len(fields) {
			return FilterEmail(fields[i+1])
		}
	}

	if from := addressesOf(e.Header("From")); len(from) > 0 {
		return from[0]
	}
	return ""
}

// Bytes renders the complete message with CRLF line endings. The Bcc header
// is left out so blind recipients stay hidden.
func (e *Envelope) Bytes() []byte {
	var b strings.Builder

	b.WriteString(foldHeader("To: "+e.To) + crlf)
	if e.Subject != "" {
		b.WriteString(foldHeader("Subject: "+e.Subject) + crlf)
	}
	for _, line := range e.HeaderLines() {
		if k, _, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "bcc") {
			continue
		}
		b.WriteString(foldHeader(line) + crlf)
	}
	b.WriteString(crlf)
	b.WriteString(toCRLF(e.Body))

	return []byte(b.String())
}

// maxHeaderLine is the line length header fields are folded to.
const maxHeaderLine = 78

// foldHeader breaks a long header line with CRLF and a space. Folds are placed
// before whitespace or between two adjacent encoded words, never inside a
// quoted string, so a line without such a point stays long.
func foldHeader(line string) string {
	if len(line) <= maxHeaderLine {
		return line
	}

	var segments []string
	start, quoted := 0, false
	for i := 0; i < len(line); i++ {
		if i > start && !quoted && isFoldPoint(line, i) {
			segments = append(segments, line[start:i])
			start = i
		}
		if line[i] == '"' {
			quoted = !quoted
		}
	}
	segments = append(segments, line[start:])

	var b strings.Builder
	col := 0
	for _, seg := range segments {
		if col > 0 && col+len(seg) > maxHeaderLine {
			b.WriteString(crlf)
			col = 0
			if seg[0] != ' ' && seg[0] != '\t' {
				b.WriteByte(' ')
				col = 1
			}
		}
		b.WriteString(seg)
		col += len(seg)
	}
	return b.String()
}

func isFoldPoint(line string, i int) bool {
	if line[i] == ' ' || line[i] == '\t' {
		return true
	}
	return i >= 2 && line[i-2:i] == "?=" && strings.HasPrefix(line[i:], "=?")
}

// addressesOf extracts bare addresses from a comma separated list of
// addresses produced by FormatAddress.
func addressesOf(list string) []string {
	var addrs []string
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if i := strings.LastIndex(entry, "<"); i >= 0 {
			entry = strings.TrimSuffix(entry[i+1:], ">")
		}
		if entry != "" {
			addrs = append(addrs, entry)
		}
	}
	return addrs
}

func toCRLF(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, crlf, "\n"), "\n", crlf)
}
