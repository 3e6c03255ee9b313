// cmd/crawl/main.go
package main

import (
	"github.com/consent-audit/crawl/internal/cli"
)

// Interrupt handling lives in the commands: run and site cancel their
// crawl context on SIGINT so partial results still get flushed.
func main() {
	cli.Execute()
}
