// Package registry compiles kernel libraries on a device and resolves their
// entry points by (library, function) name.
//
// A registry is populated once, at start-up, and read concurrently after
// that. Registration is not safe to run concurrently with lookups.
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/gsort/internal/config"
	"github.com/born-ml/gsort/internal/device"
	"github.com/born-ml/gsort/internal/logger"
	"github.com/born-ml/gsort/kernels"
)

// DefaultLibraries are the libraries Default and Embedded register, each
// loaded from <name>.wgsl.
var DefaultLibraries = []string{"sum", "sort"}

// Library is one compiled kernel source file.
type Library struct {
	name      string
	path      string
	pipelines map[string]device.Pipeline
	order     []string
}

// Name returns the library name.
func (l *Library) Name() string { return l.name }

// Path returns the source the library was compiled from.
func (l *Library) Path() string { return l.path }

// Functions returns the library's entry points in declaration order.
func (l *Library) Functions() []string {
	return append([]string(nil), l.order...)
}

// Registry maps library and function names to compiled pipelines.
type Registry struct {
	dev  device.Device
	log  logger.Logger
	libs map[string]*Library
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// New creates an empty registry compiling on dev.
func New(dev device.Device, opts ...Option) *Registry {
	r := &Registry{
		dev:  dev,
		log:  logger.Discard(),
		libs: make(map[string]*Library),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default creates a registry holding DefaultLibraries, read from root.
// An empty root falls back to $REGISTRY_PATH, then the working directory.
func Default(dev device.Device, root string, opts ...Option) (*Registry, error) {
	root = config.ResolveSearchRoot(root)
	r := New(dev, opts...)
	for _, name := range DefaultLibraries {
		if err := r.RegisterLibrary(name, filepath.Join(root, name+".wgsl"), device.CompileOptions{}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Embedded creates a registry holding DefaultLibraries from the kernel
// sources compiled into the binary.
func Embedded(dev device.Device, opts ...Option) (*Registry, error) {
	r := New(dev, opts...)
	for _, name := range DefaultLibraries {
		if err := r.RegisterLibraryFS(kernels.FS, name, name+".wgsl", device.CompileOptions{}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Device returns the device the registry compiles on.
func (r *Registry) Device() device.Device { return r.dev }

// RegisterLibrary reads the kernel source at path, compiles it and records
// every entry point under name. Re-registering a name replaces it.
func (r *Registry) RegisterLibrary(name, path string, opts device.CompileOptions) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return &CompileError{Library: name, Path: path, Diagnostic: err.Error(), Err: err}
	}
	return r.register(name, path, string(src), opts)
}

// RegisterLibraryFS is RegisterLibrary reading from fsys.
func (r *Registry) RegisterLibraryFS(fsys fs.FS, name, path string, opts device.CompileOptions) error {
	src, err := fs.ReadFile(fsys, path)
	if err != nil {
		return &CompileError{Library: name, Path: path, Diagnostic: err.Error(), Err: err}
	}
	return r.register(name, path, string(src), opts)
}

func (r *Registry) register(name, path, src string, opts device.CompileOptions) error {
	if opts.Label == "" {
		opts.Label = path
	}
	pipelines, err := r.dev.CompileLibrary(src, opts)
	if err != nil {
		return &CompileError{Library: name, Path: path, Diagnostic: err.Error(), Err: err}
	}

	lib := &Library{
		name:      name,
		path:      path,
		pipelines: make(map[string]device.Pipeline, len(pipelines)),
		order:     make([]string, 0, len(pipelines)),
	}
	for _, p := range pipelines {
		lib.pipelines[p.Name()] = p
		lib.order = append(lib.order, p.Name())
	}
	r.libs[name] = lib
	r.log.Info("kernel library registered", "library", name, "path", path, "functions", len(lib.order))
	return nil
}

// Function returns the pipeline for function in library.
func (r *Registry) Function(library, function string) (device.Pipeline, error) {
	lib, ok := r.libs[library]
	if !ok {
		return nil, fmt.Errorf("%w: library %q", ErrNotFound, library)
	}
	p, ok := lib.pipelines[function]
	if !ok {
		return nil, fmt.Errorf("%w: function %q in library %q", ErrNotFound, function, library)
	}
	return p, nil
}

// Lookup is Function reporting a miss as false instead of an error.
func (r *Registry) Lookup(library, function string) (device.Pipeline, bool) {
	p, err := r.Function(library, function)
	return p, err == nil
}

// Library returns the named library.
func (r *Registry) Library(name string) (*Library, bool) {
	lib, ok := r.libs[name]
	return lib, ok
}

// Libraries returns the registered library names, sorted.
func (r *Registry) Libraries() []string {
	names := make([]string, 0, len(r.libs))
	for name := range r.libs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
