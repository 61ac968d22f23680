// Package engine assembles a ready-to-use phon interpreter: a runtime with
// the compiler installed, settings taken from phon.toml, logging, and
// support for precompiled chunks.
package engine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/phon/compiler"
	"github.com/chazu/phon/manifest"
	"github.com/chazu/phon/vm"
	"github.com/chazu/phon/vm/dist"
)

// ChunkExt is the file extension of precompiled chunks.
const ChunkExt = ".phc"

// Engine owns one runtime. It is not safe for concurrent use.
type Engine struct {
	rt       *vm.Runtime
	manifest *manifest.Manifest
	policy   *dist.Policy
	debug    bool
	log      commonlog.Logger
}

type config struct {
	manifest    *manifest.Manifest
	output      io.Writer
	args        []string
	importPaths []string
	debug       bool
	policy      *dist.Policy
	vmOpts      []vm.Option
}

// Option configures an Engine.
type Option func(*config)

// WithManifest applies the settings of a phon.toml.
func WithManifest(m *manifest.Manifest) Option {
	return func(c *config) { c.manifest = m }
}

// WithOutput sets where print writes. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.output = w }
}

// WithArgs sets the script arguments.
func WithArgs(args []string) Option {
	return func(c *config) { c.args = args }
}

// WithImportPaths adds directories searched by import().
func WithImportPaths(paths ...string) Option {
	return func(c *config) { c.importPaths = append(c.importPaths, paths...) }
}

// WithDebug compiles debug statements regardless of the manifest.
func WithDebug(debug bool) Option {
	return func(c *config) { c.debug = debug }
}

// WithPolicy restricts the capabilities of loaded chunks.
func WithPolicy(p *dist.Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithRuntimeOptions passes options through to vm.New. They are applied
// after the ones derived from the manifest.
func WithRuntimeOptions(opts ...vm.Option) Option {
	return func(c *config) { c.vmOpts = append(c.vmOpts, opts...) }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	c := &config{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	m := c.manifest
	if m == nil {
		m = manifest.Default()
	}

	policy := c.policy
	if policy == nil {
		policy = dist.NewPermissivePolicy()
		if len(m.Chunks.Allow) > 0 {
			policy = dist.NewRestrictedPolicy(m.Chunks.Allow)
		}
		policy.Deny(m.Chunks.Deny...)
	}

	debug := c.debug || m.Engine.Debug
	vmOpts := []vm.Option{
		vm.WithOutput(c.output),
		vm.WithCompiler(compiler.CompileSource),
		vm.WithGCThreshold(m.GC.Threshold),
		vm.WithMaxDepth(m.Engine.StackSize),
		vm.WithImportPaths(append(c.importPaths, m.ImportPaths()...)...),
		vm.WithDebug(debug),
		vm.WithArgs(c.args),
	}
	vmOpts = append(vmOpts, c.vmOpts...)

	e := &Engine{
		rt:       vm.New(vmOpts...),
		manifest: m,
		policy:   policy,
		debug:    debug,
		log:      commonlog.GetLogger("phon.engine"),
	}
	e.log.Debugf("engine ready (gc threshold %d, stack size %d)", m.GC.Threshold, m.Engine.StackSize)
	return e
}

// ConfigureLogging sets the global commonlog verbosity and destination.
// A nil path logs to stderr.
func ConfigureLogging(verbosity int, path *string) {
	commonlog.Configure(verbosity, path)
}

// Runtime returns the engine's runtime.
func (e *Engine) Runtime() *vm.Runtime { return e.rt }

// Manifest returns the configuration in effect.
func (e *Engine) Manifest() *manifest.Manifest { return e.manifest }

// DoString compiles and runs source.
func (e *Engine) DoString(source string) (vm.Value, error) {
	return e.rt.DoString(source)
}

// DoFile runs a script file or, for a .phc path, a precompiled chunk.
func (e *Engine) DoFile(path string) (vm.Value, error) {
	if filepath.Ext(path) == ChunkExt {
		return e.RunChunk(path)
	}
	e.log.Infof("running %s", path)
	return e.rt.DoFile(path)
}

// Eval runs source like DoString but returns the value of a final
// expression statement.
func (e *Engine) Eval(source string) (vm.Value, error) {
	r, err := compiler.CompileString(source, compiler.Options{Name: "<repl>", Debug: e.debug, ReturnLast: true})
	if err != nil {
		return vm.Null, err
	}
	return e.rt.Interpret(r)
}

// Disassemble compiles source and returns its bytecode listing.
func (e *Engine) Disassemble(source, name string) (string, error) {
	return e.rt.Disassemble(source, name)
}

// Compile compiles the script at path into a chunk. Compile and CompileTo
// do not touch the runtime and may be called from several goroutines.
func (e *Engine) Compile(path string) (*dist.Chunk, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read script")
	}
	r, err := compiler.CompileString(string(src), compiler.Options{Name: path, Debug: e.debug})
	if err != nil {
		return nil, err
	}
	return dist.FromRoutine(r, path, string(src)), nil
}

// CompileTo compiles the script at path and writes the chunk to out. An
// empty out replaces the script's extension with .phc.
func (e *Engine) CompileTo(path, out string) (string, error) {
	c, err := e.Compile(path)
	if err != nil {
		return "", err
	}
	if out == "" {
		out = ChunkPath(path)
	}
	if err := dist.WriteFile(out, c); err != nil {
		return "", err
	}
	e.log.Infof("compiled %s to %s", path, out)
	return out, nil
}

// ChunkPath returns the default chunk path of a script.
func ChunkPath(script string) string {
	return script[:len(script)-len(filepath.Ext(script))] + ChunkExt
}

// RunChunk loads and runs a precompiled chunk. When the script the chunk
// was built from is still present and has changed, the script is
// recompiled and run instead. Either way the code is checked against the
// capability policy first.
func (e *Engine) RunChunk(path string) (vm.Value, error) {
	c, err := dist.ReadFile(path)
	if err != nil {
		return vm.Null, err
	}
	if src, err := os.ReadFile(c.Name); err == nil {
		if err := dist.VerifyChunk(c, string(src)); err != nil {
			e.log.Warningf("%s, running %s instead", err, c.Name)
			if c, err = e.Compile(c.Name); err != nil {
				return vm.Null, err
			}
		}
	}
	if err := e.policy.CheckChunk(c); err != nil {
		return vm.Null, errors.Wrap(err, path)
	}
	e.log.Infof("running chunk %s", path)
	return e.rt.InterpretFile(c.Routine, c.Name)
}

// CollectGarbage forces a collection cycle and logs its statistics.
func (e *Engine) CollectGarbage() vm.GCStats {
	stats := e.rt.CollectGarbage()
	e.log.Info(stats.String())
	return stats
}
