package idgen

import (
	"strings"
	"testing"
)

func TestValidateModuleID(t *testing.T) {
	valid := []string{"a", "billing", "billing-v2", "mod-1", "a1"}
	for _, id := range valid {
		if err := ValidateModuleID(id); err != nil {
			t.Errorf("ValidateModuleID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "1mod", "-mod", "mod-", "Mod", "mod_1", "mod mod", strings.Repeat("a", 65)}
	for _, id := range invalid {
		if err := ValidateModuleID(id); err == nil {
			t.Errorf("ValidateModuleID(%q) = nil, want error", id)
		}
	}
}

func TestSessionIDDefault(t *testing.T) {
	if got := SessionID(""); got != DefaultSessionID {
		t.Fatalf("SessionID(\"\") = %q, want %q", got, DefaultSessionID)
	}
	if got := SessionID("abc"); got != "abc" {
		t.Fatalf("SessionID(\"abc\") = %q", got)
	}
}
