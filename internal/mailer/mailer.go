// Package mailer runs one send: it resolves the connection, resolves the
// message inputs concurrently, assembles the request and dispatches it.
package mailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shineum/smtp-send-lite/internal/attachment"
	"github.com/shineum/smtp-send-lite/internal/body"
	"github.com/shineum/smtp-send-lite/internal/compose"
	"github.com/shineum/smtp-send-lite/internal/config"
	"github.com/shineum/smtp-send-lite/internal/connection"
	"github.com/shineum/smtp-send-lite/internal/email"
	"github.com/shineum/smtp-send-lite/internal/identity"
	"github.com/shineum/smtp-send-lite/internal/provider"
	"github.com/shineum/smtp-send-lite/internal/request"
)

// MissingCredentialsWarning is reported when the SMTP connection has no
// complete username and password pair.
const MissingCredentialsWarning = "Username or password not specified. Sending without authentication."

// Reporter receives user-facing warnings and step outputs. The GitHub
// Actions toolkit satisfies it.
type Reporter interface {
	Warningf(msg string, args ...any)
	SetOutput(k, v string)
}

// DispatchError wraps a failure reported by the delivery provider. Its
// message is the provider's message, unchanged.
type DispatchError struct {
	Provider string
	Err      error
}

func (e *DispatchError) Error() string {
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Options customize a Run.
type Options struct {
	// Reporter, if set, receives warnings and the message_id output.
	Reporter Reporter

	// Provider overrides the provider selected by the configuration.
	Provider provider.Provider

	// Stdout is where the stdout provider prints. Defaults to os.Stdout.
	Stdout io.Writer
}

// resolved holds the outputs of the concurrent resolution stage.
type resolved struct {
	from        string
	text        *email.Body
	html        *email.Body
	attachments []email.Attachment
}

// Run sends one email described by cfg and returns the delivery receipt.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*email.Receipt, error) {
	in := cfg.Inputs
	discrete := connection.Discrete{
		Host:     in.ServerAddress,
		Port:     in.ServerPort,
		Secure:   in.Secure,
		Username: in.Username,
		Password: in.Password,
	}

	conn, account, err := resolveConnection(cfg.Provider, discrete, in.ConnectionURL)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.ProviderSMTP && !conn.Authenticated() {
		slog.Warn("sending without authentication", "host", conn.Host, "port", conn.Port)
		if opts.Reporter != nil {
			opts.Reporter.Warningf(MissingCredentialsWarning)
		}
	}

	res, err := resolveInputs(ctx, in, account)
	if err != nil {
		return nil, err
	}

	msg, err := request.Assemble(request.Fields{
		Subject:     in.Subject,
		From:        res.from,
		To:          in.To,
		Cc:          in.Cc,
		Bcc:         in.Bcc,
		ReplyTo:     in.ReplyTo,
		InReplyTo:   in.InReplyTo,
		Priority:    in.Priority,
		TextBody:    res.text,
		HTMLBody:    res.html,
		Attachments: res.attachments,
	})
	if err != nil {
		return nil, err
	}

	prov := opts.Provider
	if prov == nil {
		signer, err := loadSigner(cfg)
		if err != nil {
			return nil, err
		}
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		if prov, err = NewProvider(ctx, cfg, conn, signer, out); err != nil {
			return nil, err
		}
	}

	slog.Debug("dispatching email",
		"provider", prov.Name(),
		"recipients", len(msg.Recipients()),
		"attachments", len(msg.Attachments),
	)

	receipt, err := prov.Send(ctx, msg)
	if err != nil {
		return nil, &DispatchError{Provider: prov.Name(), Err: err}
	}

	slog.Info("email sent",
		"provider", receipt.Provider,
		"message_id", receipt.MessageID,
		"envelope", receipt.Envelope,
		"accepted", receipt.Accepted,
		"rejected", receipt.Rejected,
		"response", receipt.Response,
	)
	if opts.Reporter != nil {
		if len(receipt.Rejected) > 0 {
			opts.Reporter.Warningf("Some recipients were rejected: %v", receipt.Rejected)
		}
		opts.Reporter.SetOutput("message_id", receipt.MessageID)
	}

	return receipt, nil
}

// resolveConnection resolves the SMTP connection and returns the account
// identifier used for the From header. Providers that do not speak SMTP only
// need the account.
func resolveConnection(providerName string, d connection.Discrete, connectionURL string) (connection.Config, string, error) {
	if providerName != config.ProviderSMTP {
		account, err := connection.Account(d, connectionURL)
		return connection.Config{}, account, err
	}

	conn, err := connection.Resolve(d, connectionURL)
	if err != nil {
		return connection.Config{}, "", err
	}
	account, err := connection.Account(d, connectionURL)
	if err != nil {
		return connection.Config{}, "", err
	}
	return conn, account, nil
}

// resolveInputs runs the identity, body and attachment resolvers
// concurrently. The first failure cancels the rest.
func resolveInputs(ctx context.Context, in config.Inputs, account string) (*resolved, error) {
	var res resolved
	g, gctx := errgroup.WithContext(ctx)

	if strings.TrimSpace(in.From) != "" {
		g.Go(func() error {
			res.from = identity.Normalize(in.From, account)
			return nil
		})
	}

	if in.Body != "" {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := body.ResolveContent(body.KindText, in.Body)
			if err != nil {
				return fmt.Errorf("body: %w", err)
			}
			res.text = text
			return nil
		})
	}

	if in.HTMLBody != "" {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			html, err := body.ResolveContent(body.KindHTML, in.HTMLBody)
			if err != nil {
				return fmt.Errorf("html_body: %w", err)
			}
			res.html = html
			return nil
		})
	}

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		atts, err := attachment.Resolve(in.Attachments)
		if err != nil {
			return fmt.Errorf("attachments: %w", err)
		}
		res.attachments = atts
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}

func loadSigner(cfg *config.Config) (*compose.Signer, error) {
	if !cfg.DKIMEnabled() {
		return nil, nil
	}
	signer, err := compose.LoadSigner(cfg.DKIM.Domain, cfg.DKIM.Selector, cfg.DKIM.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return signer, nil
}
