// Package smtptest provides an in-process SMTP server that records the
// messages it receives, for exercising SMTP clients in tests.
package smtptest

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	smtptls "github.com/shineum/smtp-send-lite/internal/tls"
)

// TLSMode selects how the server offers TLS.
type TLSMode int

const (
	// TLSNone serves plain SMTP without STARTTLS.
	TLSNone TLSMode = iota

	// TLSStartTLS serves plain SMTP and advertises STARTTLS.
	TLSStartTLS

	// TLSImplicit wraps the listener in TLS from the first byte.
	TLSImplicit
)

// ServerConfig holds the configuration for a test server.
type ServerConfig struct {
	// Hostname is the server hostname used in greetings. Defaults to localhost.
	Hostname string

	// TLS selects the TLS mode. A self-signed certificate is generated.
	TLS TLSMode

	// AuthUsername and AuthPassword enable SMTP AUTH PLAIN when both are set.
	AuthUsername string
	AuthPassword string

	// RejectRecipients lists addresses refused at RCPT TO with a 550.
	RejectRecipients []string

	// RejectSender, if set, is refused at MAIL FROM with a 553.
	RejectSender string
}

// Message is one accepted mail transaction.
type Message struct {
	From          string
	To            []string
	Data          []byte
	Authenticated string
	TLS           bool
}

// Server is an SMTP server listening on a loopback port.
type Server struct {
	config   ServerConfig
	auth     *Authenticator
	smtp     *gosmtp.Server
	listener net.Listener
	done     chan struct{}

	mu       sync.Mutex
	messages []Message
}

// Start listens on 127.0.0.1 and serves in the background until Close.
func Start(cfg ServerConfig) (*Server, error) {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}

	s := &Server{
		config: cfg,
		auth:   NewAuthenticator(cfg.AuthUsername, cfg.AuthPassword),
		done:   make(chan struct{}),
	}

	srv := gosmtp.NewServer(&backend{server: s})
	srv.Domain = cfg.Hostname
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.AllowInsecureAuth = true

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	if cfg.TLS != TLSNone {
		cert, err := smtptls.GenerateSelfSignedCert()
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("failed to generate self-signed cert: %w", err)
		}
		tlsConfig := smtptls.ServerConfig(cert)
		if cfg.TLS == TLSImplicit {
			ln = tls.NewListener(ln, tlsConfig)
		} else {
			srv.TLSConfig = tlsConfig
		}
	}

	s.smtp = srv
	s.listener = ln

	slog.Debug("test SMTP server listening",
		"addr", ln.Addr().String(),
		"auth_enabled", s.auth.Enabled(),
		"tls_mode", cfg.TLS,
	)

	go func() {
		defer close(s.done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			slog.Debug("test SMTP server stopped", "error", err)
		}
	}()

	return s, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listener IP.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listener port.
func (s *Server) Port() string {
	_, port, _ := net.SplitHostPort(s.Addr())
	return port
}

// Messages returns a copy of the accepted messages, in arrival order.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Close stops the server and waits for the serve loop to exit.
func (s *Server) Close() error {
	err := s.smtp.Close()
	<-s.done
	return err
}

func (s *Server) record(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

func (s *Server) rejects(rcpt string) bool {
	for _, r := range s.config.RejectRecipients {
		if r == rcpt {
			return true
		}
	}
	return false
}

type backend struct {
	server *Server
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	_, isTLS := c.TLSConnectionState()
	return &session{server: b.server, tls: isTLS, conn: c}, nil
}

// session implements gosmtp.Session and gosmtp.AuthSession.
type session struct {
	server *Server
	conn   *gosmtp.Conn
	tls    bool
	user   string
	from   string
	to     []string
}

func (s *session) AuthMechanisms() []string {
	if !s.server.auth.Enabled() {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnknownMechanism
	}
	return s.server.auth.PlainServer(func(username string) { s.user = username }), nil
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.server.auth.Enabled() && s.user == "" {
		return gosmtp.ErrAuthRequired
	}
	if rs := s.server.config.RejectSender; rs != "" && from == rs {
		return &gosmtp.SMTPError{
			Code:         553,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "Sender address rejected",
		}
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.server.rejects(to) {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "Mailbox unavailable",
		}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, isTLS := s.conn.TLSConnectionState()
	s.server.record(Message{
		From:          s.from,
		To:            append([]string(nil), s.to...),
		Data:          data,
		Authenticated: s.user,
		TLS:           s.tls || isTLS,
	})
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
