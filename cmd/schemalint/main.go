package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/samcharles93/strata/pkg/schema"
)

func main() {
	var (
		listBlocks = flag.Bool("blocks", false, "list block types with field counts")
		listConsts = flag.Bool("consts", false, "list expression constants")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: schemalint [--blocks] [--consts] <schema.xml>...")
		os.Exit(2)
	}

	failed := false
	for _, path := range flag.Args() {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			failed = true
			continue
		}
		s, err := schema.Load(f)
		_ = f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}

		fmt.Printf("%s: format %s | basics=%d enums=%d bitfields=%d compounds=%d blocks=%d\n",
			path, s.Format, len(s.Basics), len(s.Enums), len(s.Bitfields),
			len(s.Compounds), len(s.BlockOrder))

		if *listBlocks {
			for _, name := range s.BlockOrder {
				c, _ := s.Block(name)
				kind := ""
				if c.Abstract {
					kind = " (abstract)"
				}
				fmt.Printf("  %-28s %d fields%s\n", name, len(c.Fields), kind)
			}
		}
		if *listConsts {
			names := make([]string, 0, len(s.Versions))
			for name := range s.Versions {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("  %-28s %#x\n", name, s.Versions[name])
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}
