package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/pkg/blockfile"
	"github.com/samcharles93/strata/pkg/formats"
)

func inspectCmd() *cli.Command {
	var showBlocks bool
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print a summary of a block file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "blocks",
				Usage:       "list every block",
				Destination: &showBlocks,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("inspect needs exactly one file")
			}
			cfg := loadConfig()
			log := newLogger(cmd, cfg)

			reg, err := formats.NewRegistry()
			if err != nil {
				return err
			}
			path := cmd.Args().First()
			g, err := blockfile.Open(path, reg)
			if err != nil {
				return err
			}
			log.Debug("loaded", "path", path, "load_id", g.LoadID.String())

			sum := g.Summarize()
			fmt.Printf("File:    %s\n", path)
			fmt.Printf("Format:  %s | version=%s | user_version=%d\n", sum.Format, sum.Version, sum.UserVersion)
			fmt.Printf("Blocks:  %d | roots=%v\n", sum.BlockCount, sum.Roots)

			names := make([]string, 0, len(sum.Counts))
			for name := range sum.Counts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-24s %d\n", name, sum.Counts[name])
			}
			for _, w := range sum.Warnings {
				log.Warn(w)
			}

			if showBlocks {
				fmt.Println()
				for i, b := range g.Blocks() {
					name := b.Name()
					if name != "" {
						name = " " + fmt.Sprintf("%q", name)
					}
					fmt.Printf("  %4d %s%s\n", i, b.TypeName(), name)
				}
			}
			return nil
		},
	}
}
