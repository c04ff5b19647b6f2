package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/gsort/internal/array"
	"github.com/born-ml/gsort/internal/metrics"
	"github.com/born-ml/gsort/internal/radix"
)

type sortReport struct {
	Device        string             `json:"device"`
	N             int                `json:"n"`
	Pairs         bool               `json:"pairs"`
	KeysPerThread int                `json:"keys_per_thread"`
	Groups        int                `json:"groups"`
	DurationsUS   []int64            `json:"durations_us"`
	KeysPerSecond float64            `json:"keys_per_second"`
	Verified      bool               `json:"verified"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

func sortCmd() *cli.Command {
	var (
		n             int
		iterations    int
		seed          uint64
		pairs         bool
		keysPerThread int
		memoryMode    string
	)
	return &cli.Command{
		Name:  "sort",
		Usage: "Radix sort random 32-bit keys on the device and verify the result",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "n",
				Usage:       "number of keys",
				Value:       1 << 20,
				Destination: &n,
			},
			&cli.IntFlag{
				Name:        "iterations",
				Aliases:     []string{"i"},
				Usage:       "number of timed sorts",
				Value:       1,
				Destination: &iterations,
			},
			&cli.Uint64Flag{
				Name:        "seed",
				Usage:       "random seed for the keys",
				Value:       1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "pairs",
				Usage:       "carry each key's input index as payload",
				Destination: &pairs,
			},
			&cli.IntFlag{
				Name:        "keys-per-thread",
				Usage:       "keys owned by one sort thread (default from config)",
				Destination: &keysPerThread,
			},
			memoryModeFlag(&memoryMode),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, s, err := open(ctx, cmd, memoryMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer s.Close()

			if keysPerThread == 0 {
				keysPerThread = s.cfg.KeysPerThread
			}
			report, err := runSort(ctx, s, sortParams{
				n:             n,
				iterations:    iterations,
				seed:          seed,
				pairs:         pairs,
				keysPerThread: keysPerThread,
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				report.Metrics = reportMetrics(s.log, metrics.Snapshot)
				return printJSON(report)
			}
			fmt.Printf("device:          %s\n", report.Device)
			fmt.Printf("keys:            %d (pairs: %v)\n", report.N, report.Pairs)
			fmt.Printf("groups:          %d x %d keys/thread\n", report.Groups, report.KeysPerThread)
			for i, us := range report.DurationsUS {
				fmt.Printf("run %-3d         %d us\n", i, us)
			}
			fmt.Printf("throughput:      %.1f Mkeys/s\n", report.KeysPerSecond/1e6)
			return nil
		},
	}
}

type sortParams struct {
	n             int
	iterations    int
	seed          uint64
	pairs         bool
	keysPerThread int
}

func runSort(ctx context.Context, s *session, p sortParams) (*sortReport, error) {
	engine, err := radix.NewEngine(s.dev, s.reg,
		radix.WithKeysPerThread(p.keysPerThread),
		radix.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	scratch, err := engine.Allocate(p.n)
	if err != nil {
		return nil, err
	}
	defer scratch.Release()

	r := rand.New(rand.NewPCG(p.seed, p.seed+1))
	data := make([]uint32, p.n)
	index := make([]uint32, p.n)
	for i := range data {
		data[i] = r.Uint32()
		index[i] = uint32(i)
	}

	keys, err := array.FromData(s.dev, data, s.mode)
	if err != nil {
		return nil, err
	}
	defer keys.Release()
	out, err := array.Empty[uint32](s.dev, p.n, s.mode)
	if err != nil {
		return nil, err
	}
	defer out.Release()

	var values, outValues *array.Array[uint32]
	if p.pairs {
		if values, err = array.FromData(s.dev, index, s.mode); err != nil {
			return nil, err
		}
		defer values.Release()
		if outValues, err = array.Empty[uint32](s.dev, p.n, s.mode); err != nil {
			return nil, err
		}
		defer outValues.Release()
	}

	report := &sortReport{
		Device:        s.dev.Name(),
		N:             p.n,
		Pairs:         p.pairs,
		KeysPerThread: engine.KeysPerThread(),
		Groups:        engine.Groups(p.n),
	}
	var total time.Duration
	for range p.iterations {
		start := time.Now()
		if p.pairs {
			err = engine.SortPairs(ctx, scratch, keys, values, out, outValues)
		} else {
			err = engine.Sort(ctx, scratch, keys, out)
		}
		if err != nil {
			return nil, err
		}
		elapsed := time.Since(start)
		total += elapsed
		report.DurationsUS = append(report.DurationsUS, elapsed.Microseconds())
	}
	if total > 0 {
		report.KeysPerSecond = float64(p.n*p.iterations) / total.Seconds()
	}

	if err := verifySort(data, out.View(), outValues); err != nil {
		return nil, err
	}
	report.Verified = true
	return report, nil
}

func verifySort(input, sorted []uint32, payload *array.Array[uint32]) error {
	want := slices.Clone(input)
	slices.Sort(want)
	if i := firstDiff(want, sorted); i >= 0 {
		return fmt.Errorf("sort: key %d is %d, want %d", i, sorted[i], want[i])
	}
	if payload == nil {
		return nil
	}
	idx := payload.View()
	for i, v := range idx {
		if input[v] != sorted[i] {
			return fmt.Errorf("sort: payload %d points at key %d, want %d", i, input[v], sorted[i])
		}
		if i > 0 && sorted[i] == sorted[i-1] && idx[i-1] > v {
			return fmt.Errorf("sort: equal keys at %d out of input order", i)
		}
	}
	return nil
}

func firstDiff(a, b []uint32) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}
