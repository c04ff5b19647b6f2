package cpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/metrics"
	"github.com/born-ml/gsort/internal/parallel"
)

type command interface {
	run(par parallel.Config) error
	String() string
}

type dispatchCmd struct {
	p      *pipeline
	groups uint32
	args   *Args
}

func (c *dispatchCmd) run(par parallel.Config) error {
	grid := Grid{Groups: c.groups, GroupSize: c.p.threads}
	return parallel.ForErr(int(c.groups), func(g int) error {
		return c.p.kernel(grid, uint32(g), c.args)
	}, par)
}

func (c *dispatchCmd) String() string {
	return fmt.Sprintf("dispatch %s x%d", c.p.name, c.groups)
}

type syncCmd struct {
	b *buffer
}

func (c *syncCmd) run(parallel.Config) error {
	if c.b.released.Load() {
		return fmt.Errorf("synchronize of released buffer")
	}
	c.b.synchronize()
	return nil
}

func (c *syncCmd) String() string { return "synchronize" }

// failedCmd defers a recording error that the recording call could not
// return, so Wait reports it.
type failedCmd struct {
	err error
}

func (c *failedCmd) run(parallel.Config) error { return c.err }
func (c *failedCmd) String() string            { return "invalid command" }

// stream records commands and runs them in order on a goroutine at Commit.
type stream struct {
	dev *Device
	id  string

	mu        sync.Mutex
	cmds      []command
	committed bool
	done      chan struct{}
	err       error
}

func (s *stream) ID() string { return s.id }

// Dispatch records a kernel launch.
func (s *stream) Dispatch(p device.Pipeline, groups uint32, bindings ...device.Binding) error {
	if p == nil {
		return fmt.Errorf("dispatch: nil pipeline")
	}
	pl, ok := p.(*pipeline)
	if !ok || pl.dev != s.dev {
		return fmt.Errorf("%w: pipeline %s", device.ErrForeignResource, p.Name())
	}
	for _, b := range bindings {
		if buf, ok := b.Buffer.(*buffer); ok && buf.dev != s.dev {
			return fmt.Errorf("%w: binding %d", device.ErrForeignResource, b.Slot)
		}
	}
	args, err := newArgs(bindings)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", pl.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("%w: dispatch after commit", device.ErrStreamState)
	}
	if groups == 0 {
		return nil
	}
	s.cmds = append(s.cmds, &dispatchCmd{p: pl, groups: groups, args: args})
	metrics.Dispatch(pl.name)
	return nil
}

// Synchronize records a host/device synchronisation of b.
func (s *stream) Synchronize(b device.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := b.(*buffer)
	switch {
	case s.committed:
		// Nothing can run after commit; the misuse surfaces nowhere else.
		s.dev.log.Warn("synchronize recorded after commit", "stream", s.id)
	case !ok || buf.dev != s.dev:
		s.cmds = append(s.cmds, &failedCmd{err: fmt.Errorf("%w: synchronize", device.ErrForeignResource)})
	case buf.mode == device.ExplicitSync:
		s.cmds = append(s.cmds, &syncCmd{b: buf})
	}
}

// Commit starts executing the recorded commands.
func (s *stream) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.committed {
		return fmt.Errorf("%w: stream %s committed twice", device.ErrStreamState, s.id)
	}
	s.committed = true
	s.done = make(chan struct{})

	cmds := s.cmds
	s.cmds = nil
	s.dev.log.Debug("stream committed", "stream", s.id, "commands", len(cmds))

	go func() {
		defer close(s.done)
		start := time.Now()
		for i, c := range cmds {
			if err := c.run(s.dev.par); err != nil {
				s.err = fmt.Errorf("%w: stream %s command %d (%s): %v", device.ErrExecution, s.id, i, c, err)
				s.dev.log.Error("stream failed", "stream", s.id, "command", i, "error", err)
				return
			}
		}
		s.dev.log.Debug("stream completed", "stream", s.id, "elapsed", time.Since(start))
	}()
	return nil
}

// Wait blocks until the stream completes or ctx is done.
func (s *stream) Wait(ctx context.Context) error {
	s.mu.Lock()
	committed, done := s.committed, s.done
	s.mu.Unlock()

	if !committed {
		return fmt.Errorf("%w: wait before commit", device.ErrStreamState)
	}
	select {
	case <-done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
