//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/metrics"
)

type op interface{ String() string }

type dispatchOp struct {
	p        *pipeline
	groups   uint32
	bindings []device.Binding
}

func (o *dispatchOp) String() string { return fmt.Sprintf("dispatch %s x%d", o.p.name, o.groups) }

type syncOp struct{ b *buffer }

func (o *syncOp) String() string { return "synchronize" }

type failedOp struct{ err error }

func (o *failedOp) String() string { return "invalid command" }

// stream records commands and encodes them into as few queue submissions as
// the synchronisation points allow.
type stream struct {
	dev *Device
	id  string

	mu        sync.Mutex
	ops       []op
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
	seen := make(map[uint32]bool, len(bindings))
	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("dispatch %s: %w", pl.name, err)
		}
		if buf, ok := b.Buffer.(*buffer); !ok || buf.dev != s.dev {
			return fmt.Errorf("%w: binding %d", device.ErrForeignResource, b.Slot)
		}
		if b.Offset%4 != 0 {
			return fmt.Errorf("dispatch %s: binding %d: offset %d is not 4-byte aligned", pl.name, b.Slot, b.Offset)
		}
		if seen[b.Slot] {
			return fmt.Errorf("dispatch %s: binding %d bound twice", pl.name, b.Slot)
		}
		seen[b.Slot] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed {
		return fmt.Errorf("%w: dispatch after commit", device.ErrStreamState)
	}
	if groups == 0 {
		return nil
	}
	s.ops = append(s.ops, &dispatchOp{p: pl, groups: groups, bindings: append([]device.Binding(nil), bindings...)})
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
		s.dev.log.Warn("synchronize recorded after commit", "stream", s.id)
	case !ok || buf.dev != s.dev:
		s.ops = append(s.ops, &failedOp{err: fmt.Errorf("%w: synchronize", device.ErrForeignResource)})
	case buf.mode == device.ExplicitSync:
		s.ops = append(s.ops, &syncOp{b: buf})
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

	ops := s.ops
	s.ops = nil
	s.dev.log.Debug("stream committed", "stream", s.id, "commands", len(ops))

	go func() {
		defer close(s.done)
		start := time.Now()
		if err := s.execute(ops); err != nil {
			s.err = fmt.Errorf("%w: stream %s: %v", device.ErrExecution, s.id, err)
			s.dev.log.Error("stream failed", "stream", s.id, "error", err)
			return
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

// execute encodes ops in order. Dispatches and uploads accumulate in one
// command encoder; a download submits what has accumulated and reads back.
// HostCoherent buffers bound by any dispatch are uploaded first and
// downloaded last.
func (s *stream) execute(ops []op) (err error) {
	d := s.dev
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wgpu: %v", r)
		}
	}()

	var coherent []*buffer
	seen := make(map[*buffer]bool)
	for _, o := range ops {
		if dop, ok := o.(*dispatchOp); ok {
			for _, b := range dop.bindings {
				buf := b.Buffer.(*buffer)
				if buf.mode == device.HostCoherent && !seen[buf] {
					seen[buf] = true
					coherent = append(coherent, buf)
				}
			}
		}
	}

	var transient []*wgpu.Buffer
	var groups []*wgpu.BindGroup
	enc := d.device.CreateCommandEncoder(nil)
	pending := false
	flush := func() {
		if pending {
			d.queue.Submit(enc.Finish(nil))
			enc = d.device.CreateCommandEncoder(nil)
			pending = false
		}
	}
	defer func() {
		for _, g := range groups {
			g.Release()
		}
		for _, t := range transient {
			t.Release()
		}
	}()

	for _, b := range coherent {
		transient = append(transient, b.upload(enc))
		pending = true
	}

	for i, o := range ops {
		switch o := o.(type) {
		case *failedOp:
			return fmt.Errorf("command %d: %w", i, o.err)

		case *dispatchOp:
			entries := make([]wgpu.BindGroupEntry, 0, len(o.bindings))
			for _, b := range o.bindings {
				entries = append(entries, wgpu.BufferBindingEntry(b.Slot, b.Buffer.(*buffer).gpu, b.Offset, b.Len()))
			}
			bg := d.device.CreateBindGroupSimple(o.p.layout, entries)
			groups = append(groups, bg)

			pass := enc.BeginComputePass(nil)
			pass.SetPipeline(o.p.compute)
			pass.SetBindGroup(0, bg, nil)
			pass.DispatchWorkgroups(o.groups, 1, 1)
			pass.End()
			pending = true

		case *syncOp:
			if o.b.released.Load() {
				return fmt.Errorf("command %d: synchronize of released buffer", i)
			}
			if o.b.hostDirty.Load() {
				transient = append(transient, o.b.upload(enc))
				pending = true
				continue
			}
			flush()
			if err := o.b.download(); err != nil {
				return fmt.Errorf("command %d: %w", i, err)
			}
		}
	}
	flush()

	for _, b := range coherent {
		if err := b.download(); err != nil {
			return err
		}
	}
	return nil
}
