package mail

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// DefaultWrap is the column at which plain message bodies are wrapped.
const DefaultWrap = 78

// Option configures a Message created by New.
type Option func(*Message)

// WithFilesystem sets the filesystem attachments are read from.
func WithFilesystem(fs afero.Fs) Option {
	return func(m *Message) {
		m.fs = fs
	}
}

// WithLogger sets the logger used by Send.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Message) {
		m.logger = logger
	}
}

// Message is a chainable builder for a single email. It is not safe for
// concurrent use.
type Message struct {
	transport Transport
	fs        afero.Fs
	logger    *slog.Logger

	to          []string
	subject     string
	message     string
	html        bool
	headers     []string
	params      string
	wrap        int
	attachments []Attachment

	err error
}

// New returns an empty Message that delivers through t.
func New(t Transport, opts ...Option) *Message {
	m := &Message{
		transport: t,
		fs:        afero.NewOsFs(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m.Reset()
}

// Reset clears recipients, headers, content, attachments and any recorded
// error. The transport and options are kept.
func (m *Message) Reset() *Message {
	m.to = nil
	m.headers = nil
	m.subject = ""
	m.message = ""
	m.html = false
	m.wrap = DefaultWrap
	m.params = ""
	m.attachments = nil
	m.err = nil
	return m
}

// Err returns the first validation or attachment error recorded on m.
func (m *Message) Err() error {
	return m.err
}

// SetTo adds a To recipient.
func (m *Message) SetTo(email, name string) *Message {
	if FilterEmail(email) == "" {
		return m.fail(&ValidationError{Field: "to", Reason: "empty email address"})
	}
	m.to = append(m.to, FormatAddress(email, name))
	return m
}

// To returns the formatted To recipients.
func (m *Message) To() []string {
	return slices.Clone(m.to)
}

// SetSubject sets the subject. Control characters are stripped and the result
// is stored as RFC 2047 encoded words.
func (m *Message) SetSubject(subject string) *Message {
	m.subject = EncodeUTF8(FilterOther(subject))
	return m
}

// Subject returns the encoded subject.
func (m *Message) Subject() string {
	return m.subject
}

// SetMessage sets the message body.
func (m *Message) SetMessage(message string) *Message {
	m.message = message
	return m
}

// Message returns the message body as set.
func (m *Message) Message() string {
	return m.message
}

// SetHTML marks the body as text/html.
func (m *Message) SetHTML() *Message {
	m.html = true
	return m
}

// IsHTML reports whether the body is sent as text/html.
func (m *Message) IsHTML() bool {
	return m.html
}

// SetFrom sets the From header.
func (m *Message) SetFrom(email, name string) *Message {
	return m.AddMailHeader("From", email, name)
}

// SetReplyTo sets the Reply-To header.
func (m *Message) SetReplyTo(email, name string) *Message {
	return m.AddMailHeader("Reply-To", email, name)
}

// SetCc adds a Cc header listing addrs.
func (m *Message) SetCc(addrs ...Address) *Message {
	return m.AddMailHeaders("Cc", addrs...)
}

// SetBcc adds a Bcc header listing addrs.
func (m *Message) SetBcc(addrs ...Address) *Message {
	return m.AddMailHeaders("Bcc", addrs...)
}

// AddMailHeader adds an address header such as Cc or Reply-To.
func (m *Message) AddMailHeader(header, email, name string) *Message {
	header = FilterOther(header)
	if header == "" {
		return m.fail(&ValidationError{Field: "header", Reason: "empty header name"})
	}
	if FilterEmail(email) == "" {
		return m.fail(&ValidationError{Field: header, Reason: "empty email address"})
	}

	m.headers = append(m.headers, fmt.Sprintf("%s: %s", header, FormatAddress(email, name)))
	return m
}

// AddMailHeaders adds one header listing several addresses separated by
// ", ".
func (m *Message) AddMailHeaders(header string, addrs ...Address) *Message {
	header = FilterOther(header)
	if header == "" {
		return m.fail(&ValidationError{Field: "header", Reason: "empty header name"})
	}
	if len(addrs) == 0 {
		return m.fail(&ValidationError{Field: header, Reason: "no addresses given"})
	}

	formatted := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if FilterEmail(a.Email) == "" {
			return m.fail(&ValidationError{Field: header, Reason: "empty email address"})
		}
		formatted = append(formatted, a.String())
	}

	m.headers = append(m.headers, fmt.Sprintf("%s: %s", header, strings.Join(formatted, ", ")))
	return m
}

// AddGenericHeader adds a "header: value" line.
func (m *Message) AddGenericHeader(header, value string) *Message {
	header = FilterOther(header)
	if header == "" {
		return m.fail(&ValidationError{Field: "header", Reason: "empty header name"})
	}

	m.headers = append(m.headers, fmt.Sprintf("%s: %s", header, FilterOther(value)))
	return m
}

// Headers returns the header lines added so far.
func (m *Message) Headers() []string {
	return slices.Clone(m.headers)
}

// SetParameters sets transport parameters, e.g. "-fbounce@example.com".
func (m *Message) SetParameters(params string) *Message {
	m.params = FilterOther(params)
	return m
}

// Parameters returns the transport parameters.
func (m *Message) Parameters() string {
	return m.params
}

// SetWrap sets the wrap column for plain bodies. Values below 1 restore
// DefaultWrap.
func (m *Message) SetWrap(wrap int) *Message {
	if wrap < 1 {
		wrap = DefaultWrap
	}
	m.wrap = wrap
	return m
}

// Wrap returns the wrap column.
func (m *Message) Wrap() int {
	return m.wrap
}

// String dumps the builder state for debugging.
func (m *Message) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "To: %s\n", strings.Join(m.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", m.subject)
	for _, h := range m.headers {
		fmt.Fprintf(&b, "%s\n", h)
	}
	fmt.Fprintf(&b, "Parameters: %s\n", m.params)
	fmt.Fprintf(&b, "Wrap: %d\n", m.wrap)
	fmt.Fprintf(&b, "HTML: %t\n", m.html)
	for _, a := range m.attachments {
		fmt.Fprintf(&b, "Attachment: %s (%d bytes)\n", a.Filename, a.Size)
	}
	if m.err != nil {
		fmt.Fprintf(&b, "Error: %v\n", m.err)
	}
	fmt.Fprintf(&b, "\n%s\n", m.message)

	return b.String()
}
