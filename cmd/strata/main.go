package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/logger"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	app := &cli.Command{
		Name:  "strata",
		Usage: "Schema-driven block file toolkit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "debug, info, warn or error",
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "pretty, text or json",
				Value:       "pretty",
				Destination: &logFormat,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			inspectCmd(),
			dumpCmd(),
			copyCmd(),
			pruneCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the logger selected by the global flags, with config
// file values filling in when the flags were left at their defaults.
func newLogger(cmd *cli.Command, cfg Config) logger.Logger {
	level := logLevel
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		level = cfg.LogLevel
	}
	format := logFormat
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		format = cfg.LogFormat
	}
	switch format {
	case "json":
		return logger.JSON(os.Stderr, logger.ParseLevel(level))
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logger.ParseLevel(level),
		}))
	default:
		return logger.Pretty(os.Stderr, logger.ParseLevel(level))
	}
}
