package mail

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/go-wordwrap"
)

// Transport delivers an Envelope. Implementations live in the provider
// packages and are selected by the transport package.
type Transport interface {
	// Send delivers env. A nil error means the message was accepted.
	Send(ctx context.Context, env *Envelope) error

	// Name returns the human-readable name of this transport.
	Name() string
}

// Envelope builds the Envelope that Send would hand to the transport.
func (m *Message) Envelope() (*Envelope, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.to) == 0 {
		return nil, ErrNoRecipient
	}

	headers := slices.Clone(m.headers)

	var body string
	if m.HasAttachments() {
		mp, err := m.Assemble()
		if err != nil {
			return nil, err
		}
		headers = append(headers, mp.Headers...)
		body = mp.Body
	} else {
		body = wordwrap.WrapString(m.message, uint(m.wrap))
		if m.html || !isASCII(body) {
			headers = append(headers,
				"MIME-Version: 1.0",
				fmt.Sprintf(`Content-Type: %s; charset="utf-8"`, m.contentType()),
				"Content-Transfer-Encoding: 8bit",
			)
		}
	}

	return &Envelope{
		To:         strings.Join(m.to, ", "),
		Subject:    m.subject,
		Body:       body,
		Headers:    strings.Join(headers, crlf),
		Parameters: m.params,
	}, nil
}

// Send validates the message and delegates it to the transport once. The
// boolean reports whether the transport accepted the message; transport
// failures are logged and reported as false rather than as an error. The
// error is reserved for problems found before delivery, such as
// ErrNoRecipient.
func (m *Message) Send(ctx context.Context) (bool, error) {
	env, err := m.Envelope()
	if err != nil {
		return false, err
	}
	if m.transport == nil {
		return false, ErrNoTransport
	}

	m.logger.Debug("sending message",
		"transport", m.transport.Name(),
		"recipients", len(m.to),
		"attachments", len(m.attachments),
	)

	if err := m.transport.Send(ctx, env); err != nil {
		m.logger.Warn("transport failed to deliver message",
			"transport", m.transport.Name(),
			"error", err,
		)
		return false, nil
	}

	return true, nil
}
