package mail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records every envelope it is asked to send.
type fakeTransport struct {
	err   error
	calls []*Envelope
}

func (f *fakeTransport) Send(_ context.Context, env *Envelope) error {
	f.calls = append(f.calls, env)
	return f.err
}

func (f *fakeTransport) Name() string { return "fake" }

func TestSendWithoutRecipient(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	ok, err := New(ft).SetSubject("s").SetMessage("m").Send(context.Background())

	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoRecipient)
	assert.Empty(t, ft.calls)
}

func TestSendWithoutTransport(t *testing.T) {
	t.Parallel()

	ok, err := New(nil).SetTo("a@example.com", "").Send(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestSendReturnsStickyError(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	ok, err := New(ft).
		SetTo("a@example.com", "").
		AddMailHeaders("Cc").
		Send(context.Background())

	assert.False(t, ok)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, ft.calls)
}

func TestSendDelegatesOnce(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	ok, err := New(ft).
		SetTo("a@example.com", "A").
		SetTo("b@example.com", "").
		SetSubject("Hi").
		SetMessage("Body").
		SetParameters("-fbounce@example.com").
		Send(context.Background())

	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, ft.calls, 1)

	env := ft.calls[0]
	assert.Equal(t, FormatAddress("a@example.com", "A")+", b@example.com", env.To)
	assert.Equal(t, EncodeUTF8("Hi"), env.Subject)
	assert.Equal(t, "Body", env.Body)
	assert.Equal(t, "-fbounce@example.com", env.Parameters)
}

func TestSendTransportFailure(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ft := &fakeTransport{err: errors.New("connection refused")}
	ok, err := New(ft, WithLogger(logger)).
		SetTo("a@example.com", "").
		SetMessage("m").
		Send(context.Background())

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, ft.calls, 1)
	assert.Contains(t, logs.String(), "connection refused")
	assert.Contains(t, logs.String(), `"transport":"fake"`)
}

func TestSendHTMLWithoutAttachments(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	_, err := New(ft).
		SetTo("a@example.com", "").
		SetMessage("<p>Hi</p>").
		SetHTML().
		Send(context.Background())
	require.NoError(t, err)

	env := ft.calls[0]
	assert.Equal(t, "1.0", env.Header("MIME-Version"))
	assert.Equal(t, `text/html; charset="utf-8"`, env.Header("Content-Type"))
	assert.Equal(t, "8bit", env.Header("Content-Transfer-Encoding"))
	assert.Equal(t, "<p>Hi</p>", env.Body)
}

func TestSendBodyMIMEHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
	}{
		{name: "ascii plain text", body: "plain old text", contentType: ""},
		{name: "utf-8 plain text", body: "Grüße aus Köln", contentType: `text/plain; charset="utf-8"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, err := New(nil).SetTo("a@example.com", "").SetMessage(tt.body).Envelope()
			require.NoError(t, err)

			assert.Equal(t, tt.contentType, env.Header("Content-Type"))
			if tt.contentType == "" {
				assert.Empty(t, env.Header("MIME-Version"))
				assert.Empty(t, env.Header("Content-Transfer-Encoding"))
			} else {
				assert.Equal(t, "1.0", env.Header("MIME-Version"))
				assert.Equal(t, "8bit", env.Header("Content-Transfer-Encoding"))
			}
			assert.Equal(t, tt.body, env.Body)
		})
	}
}

func TestSendWithAttachmentsUsesMultipart(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	_, err := New(ft).
		SetTo("a@example.com", "").
		SetMessage("see attached").
		SetHTML().
		AddAttachmentData([]byte("data"), "d.bin").
		Send(context.Background())
	require.NoError(t, err)

	env := ft.calls[0]
	assert.True(t, strings.HasPrefix(env.Header("Content-Type"), "multipart/mixed; boundary="))
	assert.Equal(t, 1, strings.Count(env.Headers, "MIME-Version"))
	assert.Equal(t, 1, strings.Count(env.Headers, "Content-Type"))
	assert.Contains(t, env.Body, `Content-Type: text/html; charset="utf-8"`)
}

func TestSendWrapsPlainBody(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	body := strings.Repeat("word ", 40)
	_, err := New(ft).
		SetTo("a@example.com", "").
		SetMessage(body).
		SetWrap(20).
		Send(context.Background())
	require.NoError(t, err)

	for _, line := range strings.Split(ft.calls[0].Body, "\n") {
		assert.LessOrEqual(t, len(line), 20)
	}
}

func TestEnvelopeDoesNotMutateHeaders(t *testing.T) {
	t.Parallel()

	m := New(nil).
		SetTo("a@example.com", "").
		AddGenericHeader("X-A", "b").
		SetHTML()

	_, err := m.Envelope()
	require.NoError(t, err)
	_, err = m.Envelope()
	require.NoError(t, err)

	assert.Equal(t, []string{"X-A: b"}, m.Headers())
}
