package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/pkg/blockfile"
	"github.com/samcharles93/strata/pkg/formats"
)

func copyCmd() *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Load a block file and rewrite it (renumbers blocks, drops unreachable ones)",
		ArgsUsage: "<in> <out>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return fmt.Errorf("copy needs an input and an output path")
			}
			log := newLogger(cmd, loadConfig())

			reg, err := formats.NewRegistry()
			if err != nil {
				return err
			}
			g, err := blockfile.Open(cmd.Args().Get(0), reg)
			if err != nil {
				return err
			}
			for _, w := range g.Warnings {
				log.Warn(w.String())
			}
			if err := blockfile.Save(g, cmd.Args().Get(1)); err != nil {
				return err
			}
			log.Info("copied", "format", g.Format.Name, "blocks", len(g.Blocks()), "out", cmd.Args().Get(1))
			return nil
		},
	}
}
