// Package smtp implements a transport that relays messages to an SMTP server.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/simple-mail/mail"
)

// ErrNoSender is returned when neither the configuration nor the message
// names a sender.
var ErrNoSender = errors.New("smtp: no sender address")

// ErrStartTLSUnavailable is returned when TLS is configured but the server
// does not offer STARTTLS.
var ErrStartTLSUnavailable = errors.New("smtp: server does not offer STARTTLS")

// ErrInsecureAuth is returned when credentials would be sent over an
// unencrypted connection to a remote relay.
var ErrInsecureAuth = errors.New("smtp: refusing AUTH over an unencrypted connection")

// defaultTimeout bounds a whole delivery when the context has no deadline.
const defaultTimeout = 30 * time.Second

// SMTPProviderConfig holds the configuration for creating a Provider.
type SMTPProviderConfig struct {
	// Address is the host:port of the relay.
	Address string

	Username string
	Password string

	// Sender is the envelope sender. When empty the message's "-f"
	// parameter or From header is used.
	Sender string

	// HeloName is sent in EHLO. Defaults to "localhost".
	HeloName string

	// TLS makes STARTTLS mandatory. Nil keeps the connection in plain
	// text, which only allows AUTH against a loopback relay.
	TLS *tls.Config

	// ImplicitTLS dials with TLS from the first byte, as on port 465.
	ImplicitTLS bool

	Timeout time.Duration
}

// Provider delivers messages over SMTP, one connection per message.
type Provider struct {
	cfg    SMTPProviderConfig
	dialer net.Dialer
}

// New creates a new SMTP Provider.
func New(cfg SMTPProviderConfig) *Provider {
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{cfg: cfg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send opens a connection, delivers env to every recipient and quits. The
// delivery is attempted once.
func (p *Provider) Send(ctx context.Context, env *mail.Envelope) error {
	from := p.cfg.Sender
	if from == "" {
		from = env.Sender()
	}
	if from == "" {
		return ErrNoSender
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	c, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := p.handshake(c); err != nil {
		return err
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("smtp: MAIL FROM: %w", err)
	}
	rcpts := env.Recipients()
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp: DATA: %w", err)
	}
	if _, err := w.Write(withFrom(env, from)); err != nil {
		return fmt.Errorf("smtp: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: message rejected: %w", err)
	}

	if err := c.Quit(); err != nil {
		slog.Debug("SMTP QUIT failed", "error", err)
	}

	slog.Debug("SMTP relay accepted message",
		"address", p.cfg.Address,
		"recipients", len(rcpts),
	)
	return nil
}

// dial connects to the relay and applies the context deadline to the
// connection.
func (p *Provider) dial(ctx context.Context) (*gosmtp.Client, error) {
	host, _, err := net.SplitHostPort(p.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("smtp: invalid address %q: %w", p.cfg.Address, err)
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", p.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", p.cfg.Address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if p.cfg.ImplicitTLS {
		conn = tls.Client(conn, p.tlsConfig(host))
	}

	c, err := gosmtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}
	return c, nil
}

// handshake sends EHLO, upgrades to TLS when configured and authenticates.
// A server that does not offer STARTTLS is refused when TLS is configured,
// and credentials are only sent in plain text to a loopback relay.
func (p *Provider) handshake(c *gosmtp.Client) error {
	host, _, _ := net.SplitHostPort(p.cfg.Address)

	if err := c.Hello(p.cfg.HeloName); err != nil {
		return fmt.Errorf("smtp: EHLO: %w", err)
	}

	secure := p.cfg.ImplicitTLS
	if p.cfg.TLS != nil && !p.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return ErrStartTLSUnavailable
		}
		if err := c.StartTLS(p.tlsConfig(host)); err != nil {
			return fmt.Errorf("smtp: STARTTLS: %w", err)
		}
		secure = true
	}

	if p.cfg.Username == "" {
		return nil
	}
	if !secure && !isLoopback(host) {
		return ErrInsecureAuth
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return errors.New("smtp: server does not support AUTH")
	}
	if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
		return fmt.Errorf("smtp: AUTH: %w", err)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// tlsConfig returns the configured TLS settings with ServerName defaulting
// to host.
func (p *Provider) tlsConfig(host string) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if p.cfg.TLS != nil {
		cfg = p.cfg.TLS.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// withFrom renders env, adding a From header when the message has none.
func withFrom(env *mail.Envelope, from string) []byte {
	raw := env.Bytes()
	if env.Header("From") != "" {
		return raw
	}
	return append([]byte("From: "+from+"\r\n"), raw...)
}
