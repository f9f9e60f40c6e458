// Package email defines the outbound message model handed to delivery providers.
package email

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
)

// Priority is the sender-requested importance of a message.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a literal priority value to a Priority.
// It reports false for anything other than high, normal or low.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return p, true
	default:
		return "", false
	}
}

// Message is a fully assembled outbound email. Optional fields are left at
// their zero value when the corresponding input was not supplied.
type Message struct {
	Subject     string
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     []string
	InReplyTo   string
	References  string
	TextBody    *Body
	HTMLBody    *Body
	Priority    Priority
	Attachments []Attachment
}

// Body is resolved literal body content of one MIME kind.
type Body struct {
	Kind string
	Text string
}

// Attachment references a file on disk to be attached to a message.
// Filename and ContentID are both the final path segment of Path, so HTML
// bodies can reference the attachment as cid:<Filename>.
type Attachment struct {
	Filename  string
	Path      string
	ContentID string
}

// Recipients returns the envelope recipients: To, then Cc, then Bcc.
func (m *Message) Recipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	rcpts = append(rcpts, m.To...)
	rcpts = append(rcpts, m.Cc...)
	rcpts = append(rcpts, m.Bcc...)
	return rcpts
}

// SenderAddress returns the envelope sender of the From header. It is empty
// for a null sender.
func (m *Message) SenderAddress() (string, error) {
	addr, err := ParseSender(m.From)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}

// Addresses parses formatted address entries ("Name" <a@b> or a@b) into
// bare mailbox addresses, preserving order.
func Addresses(list []string) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, entry := range list {
		addr, err := mail.ParseAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", entry, err)
		}
		out = append(out, addr.Address)
	}
	return out, nil
}

// Envelope is the SMTP-level sender and recipient list of a delivery.
type Envelope struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

// Receipt is the structured record of a successful delivery.
type Receipt struct {
	Provider  string   `json:"provider"`
	MessageID string   `json:"messageId,omitempty"`
	Envelope  Envelope `json:"envelope"`
	Accepted  []string `json:"accepted,omitempty"`
	Rejected  []string `json:"rejected,omitempty"`
	Response  string   `json:"response,omitempty"`
}

// String renders the receipt as a single log-friendly line.
func (r *Receipt) String() string {
	return fmt.Sprintf("%s accepted=[%s] rejected=[%s] id=%s",
		r.Provider,
		strings.Join(r.Accepted, ", "),
		strings.Join(r.Rejected, ", "),
		r.MessageID,
	)
}
