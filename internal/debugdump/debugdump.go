// Package debugdump persists raw consent payloads when extraction fails,
// so malformed responses can be inspected after the run. Dumping is
// best-effort: a failed write is logged, never surfaced to the crawl.
package debugdump

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sink receives raw payloads tied to a failed extraction step.
type Sink interface {
	// Dump writes contents under the given file name.
	Dump(name string, contents []byte)
	// Enabled reports whether dumps are kept at all, so callers can skip
	// assembling payloads that would be thrown away.
	Enabled() bool
}

// DirSink writes dumps into a directory, created on first use.
type DirSink struct {
	dir string
}

// NewDirSink returns a sink writing into dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

func (s *DirSink) Enabled() bool { return true }

func (s *DirSink) Dump(name string, contents []byte) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", s.dir).Msg("Failed to create debug dump directory")
		return
	}

	path := filepath.Join(s.dir, sanitizeFilename(name))
	if err := os.WriteFile(path, contents, 0644); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to write debug dump")
		return
	}
	log.Debug().Str("file", path).Int("bytes", len(contents)).Msg("Debug dump written")
}

// NopSink drops every dump. Used when diagnostics are disabled.
type NopSink struct{}

func (NopSink) Enabled() bool       { return false }
func (NopSink) Dump(string, []byte) {}

// sanitizeFilename prevents path traversal attacks
func sanitizeFilename(input string) string {
	input = strings.ReplaceAll(input, "/", "_")
	input = strings.ReplaceAll(input, "\\", "_")
	input = strings.ReplaceAll(input, "..", "_")
	input = strings.ReplaceAll(input, ":", "_")
	input = strings.ReplaceAll(input, "*", "_")
	input = strings.ReplaceAll(input, "?", "_")
	input = strings.ReplaceAll(input, "\"", "_")
	input = strings.ReplaceAll(input, "<", "_")
	input = strings.ReplaceAll(input, ">", "_")
	input = strings.ReplaceAll(input, "|", "_")

	input = strings.TrimSpace(input)
	input = strings.Trim(input, ".")

	if input == "" {
		input = "dump"
	}
	if len(input) > 200 {
		input = input[:200]
	}
	return input
}
