// Package identity formats the From header of outgoing mail.
package identity

import (
	"fmt"
	"regexp"
)

// bracketed matches values that already carry a display name and an
// angle-bracketed address, e.g. `Build Bot <bot@example.com>`.
var bracketed = regexp.MustCompile(`.+ <.+@.+>`)

// Normalize returns from unchanged when it is already a display name followed
// by a bracketed address. Otherwise from is used as the display name and
// accountID as the address.
func Normalize(from, accountID string) string {
	if bracketed.MatchString(from) {
		return from
	}
	return fmt.Sprintf("\"%s\" <%s>", from, accountID)
}
