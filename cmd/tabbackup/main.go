package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/tabbackup/cmd/tabbackup/commands"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{}

	parser := kong.Must(&cli,
		kong.Name("tabbackup"),
		kong.Description("Back up Tableau Server workbooks and data sources into a git repository."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global, &cli),
	)
	ctx, err := parser.Parse(commands.NormalizeArgs(os.Args[1:]))
	parser.FatalIfErrorf(err)

	err = ctx.Run()
	_ = global.Close()
	if err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
