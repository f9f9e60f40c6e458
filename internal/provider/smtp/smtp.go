// Package smtp implements a Provider that submits emails to an SMTP server.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/smtp-send-lite/internal/compose"
	"github.com/shineum/smtp-send-lite/internal/connection"
	"github.com/shineum/smtp-send-lite/internal/email"
	smtptls "github.com/shineum/smtp-send-lite/internal/tls"
)

// dialTimeout bounds the TCP connect and, for implicit TLS, the handshake.
const dialTimeout = 30 * time.Second

// localName is the name sent in EHLO, matching go-smtp's own default.
const localName = "localhost"

// ErrAuthUnsupported is returned when credentials are configured but the
// server does not advertise AUTH.
var ErrAuthUnsupported = errors.New("server does not support authentication")

// Config holds the configuration for creating a Provider.
type Config struct {
	Connection connection.Config

	// IgnoreCert disables server certificate verification.
	IgnoreCert bool

	// Signer, if set, DKIM-signs the message before submission.
	Signer *compose.Signer
}

// Provider submits messages over SMTP. Secure connections use implicit TLS;
// otherwise STARTTLS is negotiated whenever the server offers it.
type Provider struct {
	cfg Config
}

// New creates a new SMTP Provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "smtp"
}

// Send renders msg and submits it in a single SMTP transaction. Recipients
// refused by the server are reported in the receipt; the send fails only
// when every recipient is refused. Server errors are returned unchanged.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (*email.Receipt, error) {
	sender, err := msg.SenderAddress()
	if err != nil {
		return nil, err
	}
	rcpts, err := email.Addresses(msg.Recipients())
	if err != nil {
		return nil, err
	}

	raw, msgID, err := compose.Build(msg, compose.Options{Signer: p.cfg.Signer})
	if err != nil {
		return nil, err
	}

	c, err := p.dial(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	defer c.Close()

	// Unblock any in-flight command when the context ends.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	receipt, err := p.submit(c, sender, rcpts, raw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	receipt.MessageID = msgID
	return receipt, nil
}

func (p *Provider) dial(ctx context.Context) (*gosmtp.Client, error) {
	conn := p.cfg.Connection
	tlsConfig := smtptls.ClientConfig(conn.Host, p.cfg.IgnoreCert)

	slog.Debug("connecting to SMTP server",
		"addr", conn.Addr(),
		"secure", conn.Secure,
	)

	if conn.Secure {
		netConn, err := p.dialNet(ctx, tlsConfig)
		if err != nil {
			return nil, err
		}
		return greet(gosmtp.NewClient(netConn))
	}

	netConn, err := p.dialNet(ctx, nil)
	if err != nil {
		return nil, err
	}
	c, err := greet(gosmtp.NewClient(netConn))
	if err != nil {
		return nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return c, nil
	}

	// STARTTLS can only be negotiated by a fresh client, so the
	// connection that discovered it is replaced.
	c.Close()
	slog.Debug("upgrading connection with STARTTLS", "addr", conn.Addr())

	netConn, err = p.dialNet(ctx, nil)
	if err != nil {
		return nil, err
	}
	c, err = gosmtp.NewClientStartTLS(netConn, tlsConfig)
	if err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}

// dialNet opens the TCP connection, wrapped in TLS when tlsConfig is set.
func (p *Provider) dialNet(ctx context.Context, tlsConfig *tls.Config) (net.Conn, error) {
	addr := p.cfg.Connection.Addr()
	nd := &net.Dialer{Timeout: dialTimeout}

	var (
		netConn net.Conn
		err     error
	)
	if tlsConfig != nil {
		d := &tls.Dialer{NetDialer: nd, Config: tlsConfig}
		netConn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		netConn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return netConn, nil
}

// greet reads the server greeting and sends EHLO.
func greet(c *gosmtp.Client) (*gosmtp.Client, error) {
	if err := c.Hello(localName); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (p *Provider) submit(c *gosmtp.Client, sender string, rcpts []string, raw []byte) (*email.Receipt, error) {
	if creds := p.cfg.Connection.Credentials; creds != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return nil, ErrAuthUnsupported
		}
		if err := c.Auth(sasl.NewPlainClient("", creds.Username, creds.Password)); err != nil {
			return nil, err
		}
	}

	if err := c.Mail(sender, nil); err != nil {
		return nil, err
	}

	receipt := &email.Receipt{
		Provider: p.Name(),
		Envelope: email.Envelope{From: sender, To: rcpts},
	}

	var lastRejection error
	for _, rcpt := range rcpts {
		err := c.Rcpt(rcpt, nil)
		if err == nil {
			receipt.Accepted = append(receipt.Accepted, rcpt)
			continue
		}
		var smtpErr *gosmtp.SMTPError
		if !errors.As(err, &smtpErr) {
			return nil, err
		}
		slog.Warn("recipient rejected",
			"recipient", rcpt,
			"code", smtpErr.Code,
			"error", smtpErr.Message,
		)
		receipt.Rejected = append(receipt.Rejected, rcpt)
		lastRejection = err
	}
	if len(receipt.Accepted) == 0 {
		return nil, fmt.Errorf("all recipients were rejected: %w", lastRejection)
	}

	w, err := c.Data()
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if err := c.Quit(); err != nil {
		slog.Debug("QUIT failed after successful submission", "error", err)
	}

	receipt.Response = fmt.Sprintf("250 accepted for %s", strings.Join(receipt.Accepted, ", "))
	return receipt, nil
}
