package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/pkg/blockfile"
	"github.com/samcharles93/strata/pkg/formats"
)

func dumpCmd() *cli.Command {
	var compact bool
	return &cli.Command{
		Name:      "dump",
		Usage:     "Dump a block file's full graph as JSON",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "compact",
				Usage:       "emit unindented JSON",
				Destination: &compact,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("dump needs exactly one file")
			}
			reg, err := formats.NewRegistry()
			if err != nil {
				return err
			}
			g, err := blockfile.Open(cmd.Args().First(), reg)
			if err != nil {
				return err
			}
			log := newLogger(cmd, loadConfig())
			for _, w := range g.Warnings {
				log.Warn(w.String())
			}

			enc := json.NewEncoder(os.Stdout)
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(g.Dump())
		},
	}
}
