package mail

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// base64LineLength is the RFC 2045 line limit for base64 bodies.
const base64LineLength = 76

// Attachment is a file added to a Message. Data holds the base64 payload,
// already broken into CRLF terminated lines.
type Attachment struct {
	Path     string
	Filename string
	Size     int
	Data     string
}

// AddAttachment reads the file at path and attaches it. An empty filename
// defaults to the base name of path.
func (m *Message) AddAttachment(path, filename string) *Message {
	if filename == "" {
		filename = filepath.Base(path)
	}

	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return m.fail(fmt.Errorf("mail: read attachment %q: %w", path, err))
	}

	return m.addAttachment(path, filename, data)
}

// AddAttachmentData attaches data under filename.
func (m *Message) AddAttachmentData(data []byte, filename string) *Message {
	if strings.TrimSpace(filename) == "" {
		return m.fail(&ValidationError{Field: "attachment", Reason: "empty filename"})
	}
	return m.addAttachment("", filename, data)
}

func (m *Message) addAttachment(path, filename string, data []byte) *Message {
	m.attachments = append(m.attachments, Attachment{
		Path:     path,
		Filename: encodeFilename(filename),
		Size:     len(data),
		Data:     encodeBase64WithLineBreaks(data),
	})
	return m
}

// Attachments returns the attachments in the order they were added.
func (m *Message) Attachments() []Attachment {
	return slices.Clone(m.attachments)
}

// HasAttachments reports whether any attachment was added.
func (m *Message) HasAttachments() bool {
	return len(m.attachments) > 0
}

// encodeBase64WithLineBreaks encodes data to base64 with every 76 character
// line terminated by CRLF.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)

	var b strings.Builder
	for i := 0; i < len(encoded); i += base64LineLength {
		end := min(i+base64LineLength, len(encoded))
		b.WriteString(encoded[i:end])
		b.WriteString("\r\n")
	}
	return b.String()
}
