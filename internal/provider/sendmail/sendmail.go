// Package sendmail implements a transport that pipes messages into a local
// sendmail compatible binary.
package sendmail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/shineum/simple-mail/mail"
)

// DefaultPath is the conventional location of the sendmail binary.
const DefaultPath = "/usr/sbin/sendmail"

// ErrUnsupportedParameter is returned for message parameters other than a
// "-f" or "-r" envelope sender.
var ErrUnsupportedParameter = errors.New("sendmail: unsupported parameter")

// Provider runs sendmail once per message.
type Provider struct {
	path string
}

// New creates a Provider that runs the binary at path, or DefaultPath when
// path is empty.
func New(path string) *Provider {
	if path == "" {
		path = DefaultPath
	}
	return &Provider{path: path}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "sendmail"
}

// Send runs "sendmail -i <parameters> -- <recipients>" with the rendered
// message on stdin. Only "-f" and "-r" sender parameters are passed on;
// any other parameter fails the delivery with ErrUnsupportedParameter.
func (p *Provider) Send(ctx context.Context, env *mail.Envelope) error {
	params, err := senderArgs(env.Parameters)
	if err != nil {
		return err
	}

	args := append([]string{"-i"}, params...)
	args = append(args, "--")
	args = append(args, env.Recipients()...)

	cmd := exec.CommandContext(ctx, p.path, args...)
	cmd.Stdin = bytes.NewReader(env.Bytes())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("sendmail: %w: %s", err, msg)
		}
		return fmt.Errorf("sendmail: %w", err)
	}

	slog.Debug("sendmail accepted message", "path", p.path, "args", len(args))
	return nil
}

// senderArgs turns parameters such as "-fbounce@example.com" or
// "-r bounce@example.com" into sendmail arguments. The address must survive
// mail.FilterEmail unchanged so it cannot smuggle in another flag.
func senderArgs(params string) ([]string, error) {
	fields := strings.Fields(params)

	var args []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if len(f) < 2 || (f[:2] != "-f" && f[:2] != "-r") {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedParameter, f)
		}

		flag, addr := f[:2], f[2:]
		if addr == "" && i+1 < len(fields) {
			i++
			addr = fields[i]
		}
		if addr == "" || strings.HasPrefix(addr, "-") || mail.FilterEmail(addr) != addr {
			return nil, fmt.Errorf("%w: invalid sender %q for %s", ErrUnsupportedParameter, addr, flag)
		}
		args = append(args, flag+addr)
	}
	return args, nil
}
