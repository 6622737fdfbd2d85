package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"  padded@test.com  ", "padded@test.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Email(tt.in); got != tt.want {
			t.Errorf("Email(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	// Names keep their case; only surrounding whitespace goes.
	if got := Name("  Ada Lovelace  "); got != "Ada Lovelace" {
		t.Errorf("Name() = %q, want %q", got, "Ada Lovelace")
	}
}

func TestRoleStatusAuthMethod(t *testing.T) {
	if got := Role(" Admin "); got != "admin" {
		t.Errorf("Role() = %q, want %q", got, "admin")
	}
	if got := Status("DISABLED"); got != "disabled" {
		t.Errorf("Status() = %q, want %q", got, "disabled")
	}
	if got := AuthMethod(" Google "); got != "google" {
		t.Errorf("AuthMethod() = %q, want %q", got, "google")
	}
}
