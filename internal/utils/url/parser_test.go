package urlutil

import (
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"http://example.com",
		"https://example.com/path",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Fatalf("expected valid, got error: %v", err)
		}
	}

	invalid := []string{"ftp://example.com", "//example.com", "http:///"}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Fatalf("expected invalid for %s", u)
		}
	}
}

func TestNormalizeSiteList(t *testing.T) {
	in := []string{
		"https://example.com",
		"# a comment",
		"",
		"   ",
		"example.org",
		"https://example.com",
		"HTTP://upper.example.com",
	}

	kept, dropped := NormalizeSiteList(in, false)
	wantKept := []string{"https://example.com", "HTTP://upper.example.com"}
	wantDropped := []string{"example.org"}
	if !reflect.DeepEqual(kept, wantKept) {
		t.Errorf("kept = %v, want %v", kept, wantKept)
	}
	if !reflect.DeepEqual(dropped, wantDropped) {
		t.Errorf("dropped = %v, want %v", dropped, wantDropped)
	}

	kept, dropped = NormalizeSiteList(in, true)
	wantKept = []string{"https://example.com", "http://example.org", "HTTP://upper.example.com"}
	if !reflect.DeepEqual(kept, wantKept) {
		t.Errorf("assume-http kept = %v, want %v", kept, wantKept)
	}
	if len(dropped) != 0 {
		t.Errorf("assume-http should drop nothing, got %v", dropped)
	}
}
