package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

type CLI struct {
	Config   string   `short:"c" type:"path" env:"VFSINDEX_CONFIG" help:"Path to the JSON configuration file."`
	LogLevel string   `short:"l" help:"Overrides the configured log level."`
	Mount    []string `short:"m" placeholder:"ENGINE=ABSOLUTE" help:"Additional mount points."`

	Browse  BrowseCmd  `cmd:"" default:"1" help:"Browse the index in the terminal."`
	Index   IndexCmd   `cmd:"" help:"Index every mount once and print a summary."`
	Find    FindCmd    `cmd:"" help:"Index every mount once and list the matching files."`
	Serve   ServeCmd   `cmd:"" help:"Keep the index up to date and expose metrics."`
	Version VersionCmd `cmd:"" help:"Show the program version."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("vfsindex"),
		kong.Description("Indexes game asset directories and the archives inside them."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
