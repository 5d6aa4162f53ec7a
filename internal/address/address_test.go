package address

import (
	"errors"
	"testing"
)

func TestValidate_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "user@example.com"},
		{"user+tag@example.com", "user+tag@example.com"},
		{"first.last@sub.example.org", "first.last@sub.example.org"},
		{"  padded@example.com \n", "padded@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Validate(tt.in)
			if err != nil {
				t.Fatalf("expected %q to be valid, got %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"plaintext",
		"@no-local.com",
		"user@",
		"user@localhost",
		"user@.example.com",
		"user@example.com.",
		"Clerk <clerk@example.com>",
		"a@b.com, c@d.com",
	}

	for _, addr := range invalid {
		t.Run(addr, func(t *testing.T) {
			if _, err := Validate(addr); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate(%q): got err=%v, want ErrInvalid", addr, err)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"user@example.com", "example.com"},
		{"user@mail.example.com", "mail.example.com"},
		{"noemail", ""},
		{"", ""},
		{"user@", ""},
	}

	for _, tt := range tests {
		if got := Domain(tt.email); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}
