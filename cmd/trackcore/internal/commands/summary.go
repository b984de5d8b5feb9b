package commands

import (
	"context"

	"trackcore/internal/core"
)

// SummaryCmd prints aggregated minutes per user, project, and day.
type SummaryCmd struct {
	Tenant string `help:"Tenant to report on; empty covers all tenants." default:""`
}

// Run executes the summary subcommand.
func (c *SummaryCmd) Run(ctx context.Context, globals *Globals) error {
	logger := newLogger(globals)
	store, err := openStore()
	if err != nil {
		return err
	}
	projector := core.NewProjector(store)
	rows, err := projector.Summary(ctx, c.Tenant)
	if err != nil {
		return err
	}
	logger.Debug().Int("rows", len(rows)).Msg("summary projected")
	return printJSON(rows)
}
