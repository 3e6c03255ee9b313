// Package cli implements the crawl command tree.
package cli

import (
	"github.com/consent-audit/crawl/internal/app"
)

// globalApp is set by the root command's PersistentPreRunE and read by the
// subcommands. Cobra runs exactly one command per process, so a package
// global is enough.
var globalApp *app.Application

// SetApp stores the booted Application for the command handlers.
func SetApp(a *app.Application) {
	globalApp = a
}

// GetApp returns the Application booted for this invocation, or nil before
// the root command's PersistentPreRunE has run.
func GetApp() *app.Application {
	return globalApp
}
