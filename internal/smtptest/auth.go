package smtptest

import (
	"errors"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// errAuthFailed is returned to clients presenting wrong credentials.
var errAuthFailed = &gosmtp.SMTPError{
	Code:         535,
	EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
	Message:      "Authentication credentials invalid",
}

// Authenticator verifies SMTP AUTH credentials against a single account.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If both username and password are empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify checks a username and password pair.
func (a *Authenticator) Verify(username, password string) error {
	if !a.Enabled() {
		return errors.New("authentication is disabled")
	}
	if username != a.username || password != a.password {
		return errAuthFailed
	}
	return nil
}

// PlainServer returns a SASL PLAIN server bound to a's account. onSuccess is
// called after a successful exchange.
func (a *Authenticator) PlainServer(onSuccess func(username string)) sasl.Server {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if identity != "" && identity != username {
			return errors.New("identities not supported")
		}
		if err := a.Verify(username, password); err != nil {
			return err
		}
		onSuccess(username)
		return nil
	})
}
