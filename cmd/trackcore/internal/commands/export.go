package commands

import (
	"context"

	"trackcore/internal/blob"
	"trackcore/internal/core"
	"trackcore/internal/report"
)

// ExportCmd writes the tenant summary to blob storage.
type ExportCmd struct {
	Tenant string `help:"Tenant to export; empty covers all tenants." default:""`
	Format string `help:"Export format." enum:"csv,json" default:"csv"`
}

// Run executes the export subcommand.
func (c *ExportCmd) Run(ctx context.Context, globals *Globals) error {
	logger := newLogger(globals)
	store, err := openStore()
	if err != nil {
		return err
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		return err
	}
	exporter := report.NewExporter(core.NewProjector(store), blobs)
	info, err := exporter.ExportSummary(ctx, c.Tenant, report.Format(c.Format))
	if err != nil {
		return err
	}
	logger.Info().Str("key", info.Key).Int64("bytes", info.Size).Msg("summary exported")
	return printJSON(info)
}
