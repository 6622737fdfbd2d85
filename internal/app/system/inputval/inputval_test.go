package inputval

import (
	"strings"
	"testing"
)

type createInput struct {
	FullName   string `json:"full_name" validate:"required" label:"Full name"`
	Email      string `json:"email" validate:"required,email" label:"Email"`
	AuthMethod string `json:"auth_method" validate:"required,authmethod" label:"Auth method"`
	Role       string `json:"role" validate:"role" label:"Role"`
}

func TestValidate(t *testing.T) {
	t.Run("valid input has no errors", func(t *testing.T) {
		res := Validate(createInput{
			FullName:   "Ada Lovelace",
			Email:      "ada@test.com",
			AuthMethod: "password",
			Role:       "member",
		})
		if res.HasErrors() {
			t.Errorf("unexpected errors: %s", res.All())
		}
		if res.First() != "" {
			t.Errorf("First() = %q, want empty", res.First())
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		res := Validate(createInput{Email: "ada@test.com", AuthMethod: "password", Role: "member"})
		if !res.HasErrors() {
			t.Fatal("expected an error for the missing name")
		}
		if res.First() != "Full name is required." {
			t.Errorf("First() = %q", res.First())
		}
	})

	t.Run("bad email uses the friendly message", func(t *testing.T) {
		res := Validate(createInput{FullName: "Ada", Email: "not-an-email", AuthMethod: "password", Role: "member"})
		if !res.HasErrors() {
			t.Fatal("expected an error for the bad email")
		}
		if res.First() != "A valid email address is required." {
			t.Errorf("First() = %q", res.First())
		}
	})

	t.Run("custom authmethod rule", func(t *testing.T) {
		res := Validate(createInput{FullName: "Ada", Email: "ada@test.com", AuthMethod: "carrier-pigeon", Role: "member"})
		if !res.HasErrors() {
			t.Fatal("expected an error for the bad auth method")
		}
		if !strings.Contains(res.First(), "Auth method must be one of") {
			t.Errorf("First() = %q", res.First())
		}
	})

	t.Run("custom role rule", func(t *testing.T) {
		res := Validate(createInput{FullName: "Ada", Email: "ada@test.com", AuthMethod: "password", Role: "superuser"})
		if !res.HasErrors() {
			t.Fatal("expected an error for the bad role")
		}
		if !strings.Contains(res.First(), "Role must be one of") {
			t.Errorf("First() = %q", res.First())
		}
	})
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"user@example.com", "first.last@sub.domain.org", "x@y.io"}
	for _, e := range valid {
		if !IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = false, want true", e)
		}
	}

	invalid := []string{"", "plain", "@missing.local", "user@", "Name <user@example.com>", "a b@test.com"}
	for _, e := range invalid {
		if IsValidEmail(e) {
			t.Errorf("IsValidEmail(%q) = true, want false", e)
		}
	}
}

func TestIsValidAuthMethod(t *testing.T) {
	for _, m := range []string{"password", "google", "trust", " Password "} {
		if !IsValidAuthMethod(m) {
			t.Errorf("IsValidAuthMethod(%q) = false, want true", m)
		}
	}
	for _, m := range []string{"", "ldap", "oauth"} {
		if IsValidAuthMethod(m) {
			t.Errorf("IsValidAuthMethod(%q) = true, want false", m)
		}
	}
}

func TestIsValidObjectID(t *testing.T) {
	if !IsValidObjectID("507f1f77bcf86cd799439011") {
		t.Error("well-formed hex should be valid")
	}
	for _, s := range []string{"", "short", "507f1f77bcf86cd79943901z", " 507f1f77bcf86cd799439011 x"} {
		if IsValidObjectID(s) {
			t.Errorf("IsValidObjectID(%q) = true, want false", s)
		}
	}
}
