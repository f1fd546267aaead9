package xid

import (
	"strings"
	"testing"
)

func TestNewPrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := New("cus")
		if !strings.HasPrefix(id, "cus-") || len(id) != len("cus-")+randomLen {
			t.Fatalf("unexpected id shape %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
