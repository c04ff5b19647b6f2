package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/elementwise"
	"github.com/born-ml/gsort/internal/metrics"
)

type sumReport struct {
	Device     string             `json:"device"`
	N          int                `json:"n"`
	MemoryMode string             `json:"memory_mode"`
	EncodeUS   []int64            `json:"encode_us"`
	RunUS      []int64            `json:"run_us"`
	Verified   bool               `json:"verified"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

func sumCmd() *cli.Command {
	var (
		n          int
		iterations int
		memoryMode string
	)
	return &cli.Command{
		Name:  "sum",
		Usage: "Add two arrays of ones on the device and time each iteration",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "n",
				Usage:       "number of elements",
				Value:       1 << 20,
				Destination: &n,
			},
			&cli.IntFlag{
				Name:        "iterations",
				Aliases:     []string{"i"},
				Usage:       "number of timed iterations",
				Value:       8,
				Destination: &iterations,
			},
			memoryModeFlag(&memoryMode),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, s, err := open(ctx, cmd, memoryMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer s.Close()

			report, err := runSum(ctx, s, n, iterations)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				report.Metrics = reportMetrics(s.log, metrics.Snapshot)
				return printJSON(report)
			}
			for _, us := range report.EncodeUS {
				fmt.Println(us)
			}
			return nil
		},
	}
}

func runSum(ctx context.Context, s *session, n, iterations int) (*sumReport, error) {
	kernel, err := elementwise.NewSum(s.reg)
	if err != nil {
		return nil, err
	}

	ones := make([]float32, n)
	for i := range ones {
		ones[i] = 1
	}
	a, err := array.FromData(s.dev, ones, s.mode)
	if err != nil {
		return nil, err
	}
	defer a.Release()
	b, err := array.FromData(s.dev, ones, s.mode)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	c, err := array.Empty[float32](s.dev, n, s.mode)
	if err != nil {
		return nil, err
	}
	defer c.Release()

	report := &sumReport{Device: s.dev.Name(), N: n, MemoryMode: s.mode.String()}
	for i := range iterations {
		stream := s.dev.NewStream()
		a.Sync(stream)
		b.Sync(stream)
		c.Sync(stream)

		start := time.Now()
		if err := kernel.Encode(stream, a, b, c); err != nil {
			return nil, err
		}
		encoded := time.Since(start)

		a.Sync(stream)
		b.Sync(stream)
		c.Sync(stream)
		if err := stream.Commit(); err != nil {
			return nil, err
		}
		if err := stream.Wait(ctx); err != nil {
			return nil, err
		}

		report.EncodeUS = append(report.EncodeUS, encoded.Microseconds())
		report.RunUS = append(report.RunUS, time.Since(start).Microseconds())
		s.log.Debug("sum iteration", "iteration", i, "encode", encoded, "stream", stream.ID())
	}

	for i, v := range c.View() {
		if v != 2 {
			return nil, fmt.Errorf("sum: element %d is %v, want 2", i, v)
		}
	}
	report.Verified = true
	return report, nil
}
