// Package main provides the gsort CLI: GPU radix sort and elementwise
// kernels on WebGPU or the software device.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "gsort",
		Usage: "GPU radix sort and elementwise kernels",
		Flags: globalFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			sumCmd(),
			sortCmd(),
			kernelsCmd(),
			versionCmd(),
		},
	}
}
