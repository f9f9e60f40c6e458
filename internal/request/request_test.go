package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/shineum/smtp-send-lite/internal/email"
)

func validFields() Fields {
	return Fields{
		Subject: "Build finished",
		From:    `"CI" <ci@example.com>`,
		To:      "dev@example.com",
	}
}

func TestAssemble_Minimal(t *testing.T) {
	t.Parallel()

	msg, err := Assemble(validFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Subject != "Build finished" {
		t.Errorf("Subject: got %q, want %q", msg.Subject, "Build finished")
	}
	if msg.From != `"CI" <ci@example.com>` {
		t.Errorf("From: got %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "<dev@example.com>" {
		t.Errorf("To: got %v, want [<dev@example.com>]", msg.To)
	}
	if msg.Cc != nil || msg.Bcc != nil || msg.ReplyTo != nil {
		t.Errorf("optional lists should be nil: cc=%v bcc=%v reply_to=%v", msg.Cc, msg.Bcc, msg.ReplyTo)
	}
	if msg.InReplyTo != "" || msg.References != "" {
		t.Errorf("threading headers should be empty: %q %q", msg.InReplyTo, msg.References)
	}
	if msg.TextBody != nil || msg.HTMLBody != nil {
		t.Error("bodies should be omitted when not supplied")
	}
	if msg.Priority != "" {
		t.Errorf("Priority: got %q, want empty", msg.Priority)
	}
	if msg.Attachments != nil {
		t.Errorf("Attachments: got %v, want nil", msg.Attachments)
	}
}

func TestAssemble_AllFields(t *testing.T) {
	t.Parallel()

	f := validFields()
	f.To = "Alice <alice@example.com>, bob@example.com"
	f.Cc = "carol@example.com"
	f.Bcc = "audit@example.com"
	f.ReplyTo = "Support <support@example.com>"
	f.InReplyTo = "<1234@mail.example.com>"
	f.Priority = "high"
	f.TextBody = &email.Body{Kind: "text/plain", Text: "done"}
	f.HTMLBody = &email.Body{Kind: "text/html", Text: "<b>done</b>"}
	f.Attachments = []email.Attachment{{Filename: "a.txt", Path: "/tmp/a.txt", ContentID: "a.txt"}}

	msg, err := Assemble(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(msg.To) != 2 {
		t.Fatalf("To: got %d entries, want 2", len(msg.To))
	}
	if msg.To[0] != `"Alice" <alice@example.com>` {
		t.Errorf("To[0]: got %q", msg.To[0])
	}
	if len(msg.Cc) != 1 || len(msg.Bcc) != 1 || len(msg.ReplyTo) != 1 {
		t.Errorf("lists: cc=%v bcc=%v reply_to=%v", msg.Cc, msg.Bcc, msg.ReplyTo)
	}
	if msg.InReplyTo != "<1234@mail.example.com>" {
		t.Errorf("InReplyTo: got %q", msg.InReplyTo)
	}
	if msg.References != msg.InReplyTo {
		t.Errorf("References: got %q, want same as InReplyTo", msg.References)
	}
	if msg.Priority != email.PriorityHigh {
		t.Errorf("Priority: got %q, want %q", msg.Priority, email.PriorityHigh)
	}
	if msg.TextBody.Text != "done" || msg.HTMLBody.Text != "<b>done</b>" {
		t.Errorf("bodies: got %+v / %+v", msg.TextBody, msg.HTMLBody)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].ContentID != "a.txt" {
		t.Errorf("Attachments: got %+v", msg.Attachments)
	}

	rcpts := msg.Recipients()
	if len(rcpts) != 4 {
		t.Errorf("Recipients: got %d, want 4", len(rcpts))
	}
}

func TestAssemble_MissingRequiredFields(t *testing.T) {
	t.Parallel()

	t.Run("all empty", func(t *testing.T) {
		t.Parallel()

		_, err := Assemble(Fields{})
		if !errors.Is(err, ErrMissingRequiredField) {
			t.Fatalf("got %v, want ErrMissingRequiredField", err)
		}
		for _, name := range []string{"subject", "from", "to"} {
			if !strings.Contains(err.Error(), name) {
				t.Errorf("error %q should name %q", err, name)
			}
		}
	})

	for _, tc := range []struct {
		name  string
		clear func(*Fields)
	}{
		{name: "subject", clear: func(f *Fields) { f.Subject = "" }},
		{name: "from", clear: func(f *Fields) { f.From = "" }},
		{name: "to", clear: func(f *Fields) { f.To = "  " }},
	} {
		t.Run("missing "+tc.name, func(t *testing.T) {
			t.Parallel()

			f := validFields()
			tc.clear(&f)
			_, err := Assemble(f)
			if !errors.Is(err, ErrMissingRequiredField) {
				t.Fatalf("got %v, want ErrMissingRequiredField", err)
			}
			if !strings.HasSuffix(err.Error(), tc.name) {
				t.Errorf("error %q should end with %q", err, tc.name)
			}
		})
	}
}

func TestAssemble_Priority(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"high", "normal", "low"} {
		f := validFields()
		f.Priority = p
		msg, err := Assemble(f)
		if err != nil {
			t.Errorf("priority %q: unexpected error: %v", p, err)
			continue
		}
		if string(msg.Priority) != p {
			t.Errorf("priority: got %q, want %q", msg.Priority, p)
		}
	}

	for _, p := range []string{"urgent", "HIGH", "1"} {
		f := validFields()
		f.Priority = p
		if _, err := Assemble(f); !errors.Is(err, ErrInvalidPriority) {
			t.Errorf("priority %q: got %v, want ErrInvalidPriority", p, err)
		}
	}
}

func TestAssemble_InvalidAddress(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		set  func(*Fields)
	}{
		{name: "to", set: func(f *Fields) { f.To = "not an address" }},
		{name: "cc", set: func(f *Fields) { f.Cc = "carol@" }},
		{name: "bcc", set: func(f *Fields) { f.Bcc = "<<>>" }},
		{name: "reply_to", set: func(f *Fields) { f.ReplyTo = "a@b.com, ???" }},
	} {
		f := validFields()
		tc.set(&f)
		_, err := Assemble(f)
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("%s: got %v, want ErrInvalidAddress", tc.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.name) {
			t.Errorf("%s: error %q should name the field", tc.name, err)
		}
	}
}

func TestAssemble_DoesNotAliasAttachments(t *testing.T) {
	t.Parallel()

	f := validFields()
	f.Attachments = []email.Attachment{{Filename: "a.txt", Path: "a.txt", ContentID: "a.txt"}}

	msg, err := Assemble(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Attachments[0].Filename = "changed"
	if msg.Attachments[0].Filename != "a.txt" {
		t.Errorf("message attachments alias the caller's slice")
	}
}
