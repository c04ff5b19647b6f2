package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type kernelInfo struct {
	Library         string `json:"library"`
	Path            string `json:"path"`
	Function        string `json:"function"`
	ThreadGroupSize uint32 `json:"thread_group_size"`
}

func kernelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "kernels",
		Aliases: []string{"ls"},
		Usage:   "List the registered kernel libraries and their entry points",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, s, err := open(ctx, cmd, "")
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer s.Close()

			var infos []kernelInfo
			for _, name := range s.reg.Libraries() {
				lib, _ := s.reg.Library(name)
				for _, fn := range lib.Functions() {
					p, err := s.reg.Function(name, fn)
					if err != nil {
						return err
					}
					infos = append(infos, kernelInfo{
						Library:         name,
						Path:            lib.Path(),
						Function:        fn,
						ThreadGroupSize: p.ThreadGroupSize(),
					})
				}
			}

			if jsonOutput {
				return printJSON(infos)
			}
			fmt.Printf("Kernels on %s:\n\n", s.dev.Name())
			for _, k := range infos {
				fmt.Printf("  %-8s %-24s %4d threads  (%s)\n", k.Library, k.Function, k.ThreadGroupSize, k.Path)
			}
			return nil
		},
	}
}
