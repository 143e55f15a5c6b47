package main

import (
	"os"
	"strings"

	"github.com/habedi/wanderlist/cmd"
	"github.com/rs/zerolog"
)

// main is the entry point of the application.
// It sets up logging based on the DEBUG_WANDERLIST environment variable and
// executes the root command, which handles interrupt signals itself.
func main() {
	configureLogLevelFromEnv()
	cmd.Execute()
}

// configureLogLevelFromEnv enables debug logging when DEBUG_WANDERLIST is set
// to anything other than "", "0" or "false", and disables logging otherwise.
func configureLogLevelFromEnv() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG_WANDERLIST"))) {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}
