package identity

import "testing"

func TestNormalize_PassesThroughBracketedAddress(t *testing.T) {
	t.Parallel()

	for _, from := range []string{
		"Build Bot <bot@example.com>",
		`"Release Team" <release@example.org>`,
		"a <b@c>",
		"Ops (paging) <ops+alerts@corp.example>",
	} {
		if got := Normalize(from, "account@example.com"); got != from {
			t.Errorf("Normalize(%q): got %q, want unchanged", from, got)
		}
	}
}

func TestNormalize_WrapsWithAccount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    string
		account string
		want    string
	}{
		{from: "Build Bot", account: "bot@example.com", want: `"Build Bot" <bot@example.com>`},
		{from: "ci", account: "ci-user", want: `"ci" <ci-user>`},
		{from: "bot@example.com", account: "smtp-user", want: `"bot@example.com" <smtp-user>`},
		{from: "No Space<x@y>", account: "acct", want: `"No Space<x@y>" <acct>`},
		{from: "Missing At <nobody>", account: "acct", want: `"Missing At <nobody>" <acct>`},
	}

	for _, tt := range tests {
		if got := Normalize(tt.from, tt.account); got != tt.want {
			t.Errorf("Normalize(%q, %q): got %q, want %q", tt.from, tt.account, got, tt.want)
		}
	}
}
