// Package request assembles resolved inputs into an outbound email.Message.
package request

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/shineum/smtp-send-lite/internal/email"
)

var (
	// ErrMissingRequiredField is returned when subject, from or to is empty.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidPriority is returned for a priority other than high, normal or low.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidAddress is returned when an address list cannot be parsed.
	ErrInvalidAddress = errors.New("invalid address")
)

// Fields are the message inputs. From is the normalized identity; bodies and
// attachments have already been resolved. Empty strings and nil values mean
// "not supplied".
type Fields struct {
	Subject     string
	From        string
	To          string
	Cc          string
	Bcc         string
	ReplyTo     string
	InReplyTo   string
	Priority    string
	TextBody    *email.Body
	HTMLBody    *email.Body
	Attachments []email.Attachment
}

// Assemble validates f and builds the message. Subject, From and To are
// mandatory; every other field is omitted when not supplied. When InReplyTo
// is given it is used for both In-Reply-To and References.
func Assemble(f Fields) (*email.Message, error) {
	if err := checkRequired(f); err != nil {
		return nil, err
	}

	msg := &email.Message{
		Subject:  f.Subject,
		From:     f.From,
		TextBody: f.TextBody,
		HTMLBody: f.HTMLBody,
	}

	var err error
	if msg.To, err = addressList("to", f.To); err != nil {
		return nil, err
	}
	if msg.Cc, err = addressList("cc", f.Cc); err != nil {
		return nil, err
	}
	if msg.Bcc, err = addressList("bcc", f.Bcc); err != nil {
		return nil, err
	}
	if msg.ReplyTo, err = addressList("reply_to", f.ReplyTo); err != nil {
		return nil, err
	}

	if f.InReplyTo != "" {
		msg.InReplyTo = f.InReplyTo
		msg.References = f.InReplyTo
	}

	if f.Priority != "" {
		p, ok := email.ParsePriority(f.Priority)
		if !ok {
			return nil, fmt.Errorf("%w %q: must be one of high, normal, low", ErrInvalidPriority, f.Priority)
		}
		msg.Priority = p
	}

	if len(f.Attachments) > 0 {
		msg.Attachments = append([]email.Attachment(nil), f.Attachments...)
	}

	return msg, nil
}

func checkRequired(f Fields) error {
	var missing []string
	if strings.TrimSpace(f.Subject) == "" {
		missing = append(missing, "subject")
	}
	if strings.TrimSpace(f.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(f.To) == "" {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequiredField, strings.Join(missing, ", "))
	}
	return nil
}

// addressList parses a comma-separated RFC 5322 address list and returns
// each entry in canonical header form. An empty input yields nil.
func addressList(field, raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, fmt.Errorf("%w in %s %q: %w", ErrInvalidAddress, field, raw, err)
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out, nil
}
