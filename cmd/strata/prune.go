package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/pkg/blockfile"
	"github.com/samcharles93/strata/pkg/formats"
)

func pruneCmd() *cli.Command {
	var out string
	return &cli.Command{
		Name:      "prune",
		Usage:     "Drop blocks that are not strong-reachable from any root",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Usage:       "write to this path instead of in place",
				Destination: &out,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("prune needs exactly one file")
			}
			log := newLogger(cmd, loadConfig())

			reg, err := formats.NewRegistry()
			if err != nil {
				return err
			}
			path := cmd.Args().First()
			g, err := blockfile.Open(path, reg)
			if err != nil {
				return err
			}
			removed := g.Prune()
			target := path
			if out != "" {
				target = out
			}
			if err := blockfile.Save(g, target); err != nil {
				return err
			}
			log.Info("pruned", "removed", removed, "kept", len(g.Blocks()), "out", target)
			return nil
		},
	}
}
