// Package stdout implements a dry-run Provider that prints emails instead of
// sending them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/smtp-send-lite/internal/compose"
	"github.com/shineum/smtp-send-lite/internal/email"
)

// Provider prints email messages in a human-readable format.
type Provider struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Provider that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the message and returns a receipt in which every recipient is
// accepted. Nothing leaves the machine.
func (p *Provider) Send(_ context.Context, msg *email.Message) (*email.Receipt, error) {
	sender, err := msg.SenderAddress()
	if err != nil {
		return nil, err
	}
	rcpts, err := email.Addresses(msg.Recipients())
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	writeList(&b, "Cc", msg.Cc)
	writeList(&b, "Bcc", msg.Bcc)
	writeList(&b, "Reply-To", msg.ReplyTo)
	if msg.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\n", msg.InReplyTo)
	}
	if msg.Priority != "" {
		fmt.Fprintf(&b, "Priority: %s\n", msg.Priority)
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	if msg.TextBody != nil {
		b.WriteString("Body:\n" + msg.TextBody.Text + "\n")
	}
	if msg.HTMLBody != nil {
		b.WriteString("HTML Body:\n" + msg.HTMLBody.Text + "\n")
	}

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, describeFile(att.Path)))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}

	b.WriteString("========================================\n")

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	return &email.Receipt{
		Provider:  p.Name(),
		MessageID: "<" + compose.NewMessageID(sender) + ">",
		Envelope:  email.Envelope{From: sender, To: rcpts},
		Accepted:  rcpts,
		Response:  "dry run",
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

func writeList(b *strings.Builder, header string, list []string) {
	if len(list) > 0 {
		fmt.Fprintf(b, "%s: %s\n", header, strings.Join(list, ", "))
	}
}

// describeFile returns the human-readable size of the file at path.
func describeFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unreadable"
	}
	return formatSize(info.Size())
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
