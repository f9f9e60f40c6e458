package email

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
)

// senderForm matches `name <addr>` with an optional quoted name and an
// address that may be empty or lack a domain.
var senderForm = regexp.MustCompile(`^\s*(?:"((?:[^"\\]|\\.)*)"|([^"<]*?))\s*<([^<>]*)>\s*$`)

var unquote = strings.NewReplacer(`\"`, `"`, `\\`, `\`)

// ParseSender parses a From header value. Besides RFC 5322 mailboxes it
// accepts the forms built for accounts that are not email addresses:
// `"Name" <>` yields an empty sender, and `"Name" <account>` keeps the
// account as the sender. When the brackets are empty and the name is
// itself an address, that address is the sender.
func ParseSender(from string) (*mail.Address, error) {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr, nil
	}

	m := senderForm.FindStringSubmatch(from)
	if m == nil {
		return nil, fmt.Errorf("invalid from address %q", from)
	}

	name := strings.TrimSpace(m[2])
	if m[1] != "" {
		name = unquote.Replace(m[1])
	}
	account := strings.TrimSpace(m[3])

	switch {
	case account == "":
		if addr, err := mail.ParseAddress(name); err == nil {
			return &mail.Address{Address: addr.Address}, nil
		}
		return &mail.Address{Name: name}, nil
	case !strings.Contains(account, "@") && !strings.ContainsAny(account, " \t\",;"):
		return &mail.Address{Name: name, Address: account}, nil
	}
	return nil, fmt.Errorf("invalid from address %q", from)
}

// FormatSender renders a sender for the From header. Addresses without a
// domain are written as-is inside the brackets.
func FormatSender(a *mail.Address) string {
	if strings.Contains(a.Address, "@") {
		return a.String()
	}
	if a.Name == "" {
		return "<" + a.Address + ">"
	}
	return formatName(a.Name) + " <" + a.Address + ">"
}

func formatName(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] >= utf8.RuneSelf {
			return mime.QEncoding.Encode("utf-8", name)
		}
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
}
