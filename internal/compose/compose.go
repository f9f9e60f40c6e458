// Package compose renders an email.Message as an RFC 5322 MIME message.
package compose

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/shineum/smtp-send-lite/internal/email"
)

// Options control message rendering.
type Options struct {
	// MessageID overrides the generated Message-Id (without angle brackets).
	MessageID string

	// Date overrides the Date header; the zero value means now.
	Date time.Time

	// Signer, if set, DKIM-signs the rendered message.
	Signer *Signer
}

// priorityHeaders are the de-facto priority headers understood by common
// mail clients. Normal priority is expressed by omitting them.
var priorityHeaders = map[email.Priority][3]string{
	email.PriorityHigh: {"1 (Highest)", "High", "High"},
	email.PriorityLow:  {"5 (Lowest)", "Low", "Low"},
}

// Build renders msg and returns the raw message together with its Message-Id
// (in angle brackets). Attachment files are read from disk here.
func Build(msg *email.Message, opts Options) ([]byte, string, error) {
	from, err := email.ParseSender(msg.From)
	if err != nil {
		return nil, "", err
	}

	msgID := opts.MessageID
	if msgID == "" {
		msgID = NewMessageID(from.Address)
	}
	msgID = "<" + strings.Trim(msgID, "<>") + ">"

	date := opts.Date
	if date.IsZero() {
		date = time.Now()
	}

	var h mail.Header
	h.SetDate(date)
	h.Set("From", email.FormatSender(from))
	if err := setAddressList(&h, "To", msg.To); err != nil {
		return nil, "", err
	}
	if err := setAddressList(&h, "Cc", msg.Cc); err != nil {
		return nil, "", err
	}
	if err := setAddressList(&h, "Reply-To", msg.ReplyTo); err != nil {
		return nil, "", err
	}
	h.SetSubject(msg.Subject)
	h.Set("Message-Id", msgID)
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", msg.InReplyTo)
	}
	if msg.References != "" {
		h.Set("References", msg.References)
	}
	if ph, ok := priorityHeaders[msg.Priority]; ok {
		h.Set("X-Priority", ph[0])
		h.Set("X-MSMail-Priority", ph[1])
		h.Set("Importance", ph[2])
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}

	if err := writeBodies(mw, msg); err != nil {
		return nil, "", err
	}

	for _, att := range msg.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}

	raw := buf.Bytes()
	if opts.Signer != nil {
		if raw, err = opts.Signer.Sign(raw); err != nil {
			return nil, "", err
		}
	}

	return raw, msgID, nil
}

// NewMessageID returns a unique Message-Id local part and domain, without
// angle brackets, using the domain of the sender address.
func NewMessageID(sender string) string {
	domain := "localhost"
	if i := strings.LastIndex(sender, "@"); i >= 0 && i < len(sender)-1 {
		domain = sender[i+1:]
	}
	return uuid.NewString() + "@" + domain
}

// ContentType returns the MIME type for a file name, falling back to
// application/octet-stream.
func ContentType(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func setAddressList(h *mail.Header, key string, list []string) error {
	if len(list) == 0 {
		return nil
	}
	addrs := make([]*mail.Address, 0, len(list))
	for _, entry := range list {
		a, err := mail.ParseAddress(entry)
		if err != nil {
			return fmt.Errorf("invalid %s address %q: %w", key, entry, err)
		}
		addrs = append(addrs, a)
	}
	h.SetAddressList(key, addrs)
	return nil
}

// writeBodies writes a multipart/alternative part holding the text body
// followed by the HTML body. A message with neither gets an empty text part.
func writeBodies(mw *mail.Writer, msg *email.Message) error {
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}

	bodies := make([]*email.Body, 0, 2)
	if msg.TextBody != nil {
		bodies = append(bodies, msg.TextBody)
	}
	if msg.HTMLBody != nil {
		bodies = append(bodies, msg.HTMLBody)
	}
	if len(bodies) == 0 {
		bodies = append(bodies, &email.Body{Kind: "text/plain"})
	}

	for _, b := range bodies {
		var ih mail.InlineHeader
		ih.SetContentType(b.Kind, map[string]string{"charset": "utf-8"})
		ih.Set("Content-Transfer-Encoding", "quoted-printable")

		w, err := iw.CreatePart(ih)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", b.Kind, err)
		}
		if _, err := io.WriteString(w, b.Text); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s part: %w", b.Kind, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to close %s part: %w", b.Kind, err)
		}
	}

	return iw.Close()
}

func writeAttachment(mw *mail.Writer, att email.Attachment) error {
	f, err := os.Open(att.Path)
	if err != nil {
		return fmt.Errorf("failed to open attachment %s: %w", att.Path, err)
	}
	defer f.Close()

	var ah mail.AttachmentHeader
	ah.SetContentType(ContentType(att.Filename), map[string]string{"name": att.Filename})
	ah.SetFilename(att.Filename)
	if att.ContentID != "" {
		ah.Set("Content-Id", "<"+att.ContentID+">")
	}

	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("failed to create attachment part %s: %w", att.Filename, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
	}
	return w.Close()
}
