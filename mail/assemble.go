package mail

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zostay/go-email/v2/message/transfer"
)

const crlf = "\r\n"

const preamble = "This is a multi-part message in MIME format."

// Multipart is an assembled multipart/mixed message.
type Multipart struct {
	// Boundary separates the parts of Body.
	Boundary string

	// Headers are the MIME-Version and Content-Type lines that announce Body.
	Headers []string

	// Body holds the body part followed by one part per attachment.
	Body string
}

// newBoundary is a variable so tests can pin the boundary.
var newBoundary = func() string {
	seed := strconv.FormatInt(time.Now().UnixNano(), 10) + uuid.NewString()
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Assemble builds the multipart/mixed representation of m: the body part
// first, then the attachments in the order they were added.
func (m *Message) Assemble() (*Multipart, error) {
	boundary := newBoundary()

	var b strings.Builder
	b.WriteString(preamble + crlf)
	b.WriteString("--" + boundary + crlf)

	if err := m.writeBodyPart(&b); err != nil {
		return nil, err
	}

	for _, a := range m.attachments {
		b.WriteString("--" + boundary + crlf)
		b.WriteString(attachmentPart(a))
	}

	b.WriteString("--" + boundary + "--" + crlf)

	return &Multipart{
		Boundary: boundary,
		Headers: []string{
			"MIME-Version: 1.0",
			fmt.Sprintf(`Content-Type: multipart/mixed; boundary="%s"`, boundary),
		},
		Body: b.String(),
	}, nil
}

// writeBodyPart writes the message body as a quoted-printable part.
func (m *Message) writeBodyPart(w io.Writer) error {
	fmt.Fprintf(w, "Content-Type: %s; charset=\"utf-8\"%s", m.contentType(), crlf)
	fmt.Fprintf(w, "Content-Transfer-Encoding: %s%s%s", transfer.QuotedPrintable, crlf, crlf)

	qp := transfer.NewQuotedPrintableEncoder(w)
	if _, err := io.WriteString(qp, m.message); err != nil {
		return fmt.Errorf("mail: encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("mail: encode body: %w", err)
	}

	_, err := io.WriteString(w, crlf)
	return err
}

func (m *Message) contentType() string {
	if m.html {
		return "text/html"
	}
	return "text/plain"
}

// attachmentPart renders the headers and payload of a single attachment.
func attachmentPart(a Attachment) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Content-Type: application/octet-stream; name="%s"`+crlf, a.Filename)
	b.WriteString("Content-Transfer-Encoding: base64" + crlf)
	fmt.Fprintf(&b, `Content-Disposition: attachment; filename="%s"`+crlf, a.Filename)
	b.WriteString(crlf)
	b.WriteString(a.Data)

	return b.String()
}
