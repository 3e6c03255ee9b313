package headers

import (
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	in := []string{"User-Agent: Bot", "Referer: https://example.com", "BadHeader"}
	out := ParseHeaders(in)
	expected := map[string]string{"User-Agent": "Bot", "Referer": "https://example.com"}
	if !reflect.DeepEqual(out, expected) {
		t.Fatalf("unexpected parse result: %#v", out)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]string{"Accept: text/html", "X-Trace: 1"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	for _, bad := range []string{"NoColon", ": value-only"} {
		if err := Validate([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
