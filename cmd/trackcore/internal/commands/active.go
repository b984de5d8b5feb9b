package commands

import (
	"context"

	"trackcore/internal/core"
)

// ActiveCmd lists open sessions with their elapsed minutes.
type ActiveCmd struct {
	Tenant string `help:"Tenant to report on; empty covers all tenants." default:""`
}

// Run executes the active subcommand.
func (c *ActiveCmd) Run(ctx context.Context, globals *Globals) error {
	logger := newLogger(globals)
	store, err := openStore()
	if err != nil {
		return err
	}
	projector := core.NewProjector(store)
	active, err := projector.ActiveEntries(ctx, c.Tenant)
	if err != nil {
		return err
	}
	logger.Debug().Int("entries", len(active)).Msg("active entries projected")
	return printJSON(active)
}
