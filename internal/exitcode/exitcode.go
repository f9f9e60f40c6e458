// Package exitcode maps failures to process exit statuses. Values follow
// the BSD sysexits convention.
package exitcode

import (
	"errors"

	"github.com/shineum/smtp-send-lite/internal/attachment"
	"github.com/shineum/smtp-send-lite/internal/body"
	"github.com/shineum/smtp-send-lite/internal/config"
	"github.com/shineum/smtp-send-lite/internal/connection"
	"github.com/shineum/smtp-send-lite/internal/mailer"
	"github.com/shineum/smtp-send-lite/internal/request"
)

const (
	Success     = 0
	Failure     = 1
	UsageError  = 64
	DataError   = 65
	NoInput     = 66
	Unavailable = 69
	ConfigError = 78
)

// For returns the exit status for err. A nil error is Success.
func For(err error) int {
	if err == nil {
		return Success
	}

	var dispatchErr *mailer.DispatchError
	switch {
	case errors.Is(err, request.ErrMissingRequiredField):
		return UsageError
	case errors.Is(err, request.ErrInvalidPriority),
		errors.Is(err, request.ErrInvalidAddress):
		return DataError
	case errors.Is(err, body.ErrFileUnreadable),
		errors.Is(err, attachment.ErrGlob):
		return NoInput
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, connection.ErrInvalidConnectionURL),
		errors.Is(err, connection.ErrMissingHost),
		errors.Is(err, connection.ErrInvalidPort):
		return ConfigError
	case errors.As(err, &dispatchErr):
		return Unavailable
	}
	return Failure
}
