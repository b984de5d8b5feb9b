// Package commands implements the trackcore CLI subcommands.
package commands

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog"

	"trackcore/internal/core"
	"trackcore/pkg/domain"
)

// Globals carries flags shared by all subcommands.
type Globals struct {
	Debug   bool
	Version string
}

func newLogger(globals *Globals) zerolog.Logger {
	level := zerolog.InfoLevel
	if globals.Debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func openStore() (core.PersistentStore, error) {
	registry := domain.DefaultRegistry()
	engine := core.NewDefaultRulesEngine(registry)
	return core.OpenPersistentStore(registry, engine)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
