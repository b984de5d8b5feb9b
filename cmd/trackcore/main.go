package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"trackcore/cmd/trackcore/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Summary commands.SummaryCmd `cmd:"" help:"Print the per-day time summary for a tenant"`
		Active  commands.ActiveCmd  `cmd:"" help:"List open time entries with elapsed minutes"`
		Export  commands.ExportCmd  `cmd:"" help:"Export the tenant summary to blob storage"`
		Debug   bool                `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	_ = godotenv.Load()
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
