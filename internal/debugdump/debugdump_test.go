package debugdump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirSinkWritesDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dumps")
	sink := NewDirSink(dir)

	if !sink.Enabled() {
		t.Fatal("DirSink should report enabled")
	}

	sink.Dump("debug_f1eb3e3a_cc.js", []byte("CookieConsentDialog.cookieTableNecessary = [];"))

	data, err := os.ReadFile(filepath.Join(dir, "debug_f1eb3e3a_cc.js"))
	if err != nil {
		t.Fatalf("Dump file not written: %v", err)
	}
	if !strings.Contains(string(data), "cookieTableNecessary") {
		t.Errorf("Dump contents = %q", data)
	}
}

func TestDirSinkSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	sink := NewDirSink(dir)

	sink.Dump("../escape/attempt.js", []byte("x"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 file, got %d", len(entries))
	}
	name := entries[0].Name()
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		t.Errorf("Unsanitized dump name %q", name)
	}
}

func TestNopSink(t *testing.T) {
	var sink Sink = NopSink{}
	if sink.Enabled() {
		t.Error("NopSink should report disabled")
	}
	// Must not panic.
	sink.Dump("anything", []byte("payload"))
}
