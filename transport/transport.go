// Package transport selects and constructs the mail.Transport described by a
// config.Config.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/docker/go-units"

	"github.com/shineum/simple-mail/config"
	"github.com/shineum/simple-mail/internal/provider/graph"
	"github.com/shineum/simple-mail/internal/provider/sendmail"
	"github.com/shineum/simple-mail/internal/provider/ses"
	"github.com/shineum/simple-mail/internal/provider/smtp"
	"github.com/shineum/simple-mail/internal/provider/stdout"
	mailtls "github.com/shineum/simple-mail/internal/tls"
	"github.com/shineum/simple-mail/mail"
)

// ErrMessageTooLarge is returned when a rendered message exceeds the
// configured MaxMessageSize.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// New returns the transport named by cfg.Transport. When no name is given the
// first configured backend wins, in the order Graph, SES, SMTP, falling back
// to stdout. The result enforces cfg.MaxMessageSize.
func New(ctx context.Context, cfg *config.Config) (mail.Transport, error) {
	limit, err := cfg.MessageSizeLimit()
	if err != nil {
		return nil, err
	}

	t, err := selectTransport(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if limit > 0 {
		t = &limited{Transport: t, max: limit}
	}
	return t, nil
}

func selectTransport(ctx context.Context, cfg *config.Config) (mail.Transport, error) {
	switch cfg.Transport {
	case "smtp":
		if !cfg.SMTPConfigured() {
			return nil, errors.New("smtp transport selected but SMTP_ADDRESS is required")
		}
		return newSMTP(cfg, "")

	case "ses":
		if !cfg.SESConfigured() {
			return nil, errors.New("ses transport selected but SES_REGION and SES_SENDER are required")
		}
		return newSES(ctx, cfg, "")

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, errors.New("graph transport selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET, and GRAPH_SENDER are required")
		}
		return newGraph(cfg, ""), nil

	case "sendmail":
		p := sendmail.New(cfg.Sendmail.Path)
		slog.Info("using sendmail transport", "path", cfg.Sendmail.Path)
		return p, nil

	case "stdout":
		slog.Info("using stdout transport")
		return stdout.New(), nil

	case "":
		if cfg.GraphConfigured() {
			return newGraph(cfg, " (auto-detected)"), nil
		}
		if cfg.SESConfigured() {
			return newSES(ctx, cfg, " (auto-detected)")
		}
		if cfg.SMTPConfigured() {
			return newSMTP(cfg, " (auto-detected)")
		}
		slog.Info("no transport configured, using stdout transport")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func newGraph(cfg *config.Config, suffix string) mail.Transport {
	slog.Info("using Microsoft Graph transport"+suffix,
		"sender", cfg.Graph.Sender,
	)
	return graph.New(graph.GraphProviderConfig{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		Sender:       cfg.Graph.Sender,
	})
}

func newSES(ctx context.Context, cfg *config.Config, suffix string) (mail.Transport, error) {
	slog.Info("using AWS SES transport"+suffix,
		"region", cfg.SES.Region,
		"sender", cfg.SES.Sender,
	)
	p, err := ses.New(ctx, ses.SESProviderConfig{
		Region:          cfg.SES.Region,
		AccessKeyID:     cfg.SES.AccessKeyID,
		SecretAccessKey: cfg.SES.SecretAccessKey,
		Sender:          cfg.SES.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SES transport: %w", err)
	}
	return p, nil
}

func newSMTP(cfg *config.Config, suffix string) (mail.Transport, error) {
	smtpCfg := smtp.SMTPProviderConfig{
		Address:     cfg.SMTP.Address,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		Sender:      cfg.SMTP.Sender,
		HeloName:    cfg.SMTP.HeloName,
		ImplicitTLS: cfg.SMTP.ImplicitTLS,
		Timeout:     cfg.SMTP.Timeout,
	}

	if cfg.SMTP.TLS.StartTLS || cfg.SMTP.ImplicitTLS {
		host, _, err := net.SplitHostPort(cfg.SMTP.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_ADDRESS %q: %w", cfg.SMTP.Address, err)
		}
		tlsCfg, err := mailtls.ClientConfig(mailtls.ClientOptions{
			ServerName:         host,
			CertFile:           cfg.SMTP.TLS.CertFile,
			KeyFile:            cfg.SMTP.TLS.KeyFile,
			CAFile:             cfg.SMTP.TLS.CAFile,
			InsecureSkipVerify: cfg.SMTP.TLS.InsecureSkipVerify,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure SMTP TLS: %w", err)
		}
		smtpCfg.TLS = tlsCfg
	}

	slog.Info("using SMTP transport"+suffix,
		"address", cfg.SMTP.Address,
		"auth_enabled", cfg.AuthEnabled(),
		"implicit_tls", cfg.SMTP.ImplicitTLS,
		"starttls", smtpCfg.TLS != nil && !cfg.SMTP.ImplicitTLS,
	)
	return smtp.New(smtpCfg), nil
}

// limited rejects messages larger than max before handing them on.
type limited struct {
	mail.Transport
	max int64
}

func (l *limited) Send(ctx context.Context, env *mail.Envelope) error {
	if n := int64(len(env.Bytes())); n > l.max {
		return fmt.Errorf("%w: %s > %s", ErrMessageTooLarge,
			units.BytesSize(float64(n)), units.BytesSize(float64(l.max)))
	}
	return l.Transport.Send(ctx, env)
}
