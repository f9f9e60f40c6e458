package smtptest

import (
	"testing"
)

func TestAuthenticator_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{name: "both set", username: "user", password: "pass", want: true},
		{name: "empty username", username: "", password: "pass", want: false},
		{name: "empty password", username: "user", password: "", want: false},
		{name: "both empty", username: "", password: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth := NewAuthenticator(tt.username, tt.password)
			if got := auth.Enabled(); got != tt.want {
				t.Errorf("Enabled(): got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthenticator_Verify(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	if err := auth.Verify("testuser", "testpass"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := auth.Verify("testuser", "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}
	if err := auth.Verify("other", "testpass"); err == nil {
		t.Error("expected error for wrong username")
	}
	if err := NewAuthenticator("", "").Verify("", ""); err == nil {
		t.Error("expected error when authentication is disabled")
	}
}

func TestAuthenticator_PlainServer(t *testing.T) {
	t.Parallel()

	auth := NewAuthenticator("testuser", "testpass")

	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{name: "success", response: "\x00testuser\x00testpass"},
		{name: "matching authzid", response: "testuser\x00testuser\x00testpass"},
		{name: "foreign authzid", response: "admin\x00testuser\x00testpass", wantErr: true},
		{name: "wrong password", response: "\x00testuser\x00nope", wantErr: true},
		{name: "malformed", response: "testuser", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got string
			srv := auth.PlainServer(func(username string) { got = username })
			_, done, err := srv.Next([]byte(tt.response))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if got != "" {
					t.Errorf("onSuccess called with %q on failure", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !done {
				t.Error("exchange should be complete")
			}
			if got != "testuser" {
				t.Errorf("authenticated user: got %q, want %q", got, "testuser")
			}
		})
	}
}
