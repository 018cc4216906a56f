package domain

import (
	"strings"
	"testing"
)

func TestPermission_Valid(t *testing.T) {
	valid := []Permission{"user:read", "org.billing-admin", "A_1", "x"}
	for _, p := range valid {
		if !p.Valid() {
			t.Fatalf("expected %q to be valid", p)
		}
	}
	invalid := []Permission{
		"",
		"user read",
		"user:read;DROP TABLE users",
		"user:*",
		"' OR 1=1 --",
		"user:read\n",
		"usér:read",
		Permission(strings.Repeat("a", 129)),
	}
	for _, p := range invalid {
		if p.Valid() {
			t.Fatalf("expected %q to be invalid", p)
		}
	}
}

func TestGrant_Allowed(t *testing.T) {
	if (Grant{}).Allowed() {
		t.Fatalf("empty grant must not allow")
	}
	if !(Grant{Source: SourceFlag}).Allowed() {
		t.Fatalf("flag grant must allow")
	}
}
