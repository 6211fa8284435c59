package ids

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := New(PrefixConsent)
		if !strings.HasPrefix(id, "cns_") {
			t.Fatalf("missing prefix: %s", id)
		}
		if !Valid(PrefixConsent, id) {
			t.Fatalf("expected valid id: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidRejectsForeignPrefix(t *testing.T) {
	id := New(PrefixVendor)
	if Valid(PrefixTemplate, id) {
		t.Fatalf("expected %s to be rejected for template prefix", id)
	}
	if Valid(PrefixVendor, "vnd_not-a-ulid") {
		t.Fatal("expected malformed ulid to be rejected")
	}
}
