// Command phon runs phon scripts, compiles them to chunks, and hosts the
// REPL and the language server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/phon/engine"
	"github.com/chazu/phon/manifest"
	"github.com/chazu/phon/server"
)

var version = "v0.1.0"

func main() {
	if err := newCommand(os.Stdin, os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:                   "phon",
		Usage:                  "An embeddable scripting language",
		UseShortOptionHandling: true,
		Reader:                 stdin,
		Writer:                 stdout,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Compile debug statements",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log engine activity to stderr",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Read settings from this file instead of the nearest phon.toml",
			},
		},
		// Allow `phon script.phon args...` as shorthand for `phon run`.
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() > 0 {
				return runFile(cmd, stdout, cmd.Args().First(), cmd.Args().Tail())
			}
			if isTerminal(stdin) {
				return replAction(ctx, cmd)
			}
			return runStdin(cmd, stdin, stdout)
		},
		Commands: []*cli.Command{
			{
				Name:            "run",
				Usage:           "Run a script or a compiled .phc chunk",
				ArgsUsage:       "<file> [args...]",
				SkipFlagParsing: true,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.NArg() < 1 {
						return fmt.Errorf("usage: phon run <file> [args...]")
					}
					return runFile(cmd, stdout, cmd.Args().First(), cmd.Args().Tail())
				},
			},
			{
				Name:      "compile",
				Usage:     "Compile scripts to .phc chunks",
				ArgsUsage: "<file>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (single input only)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return compileAction(ctx, cmd, stdout)
				},
			},
			{
				Name:      "disasm",
				Usage:     "Print the bytecode of a script",
				ArgsUsage: "<file>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return disasmAction(cmd, stdout)
				},
			},
			{
				Name:   "repl",
				Usage:  "Start the interactive prompt",
				Action: replAction,
			},
			{
				Name:  "lsp",
				Usage: "Start the language server on stdio",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					// stdout carries the protocol, so print goes to stderr.
					e, err := newEngine(cmd, engine.WithOutput(os.Stderr))
					if err != nil {
						return err
					}
					return server.NewLSP(e.Runtime()).Run()
				},
			},
		},
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// loadManifest reads --config, or the nearest phon.toml, or the defaults.
func loadManifest(cmd *cli.Command) (*manifest.Manifest, error) {
	if path := cmd.String("config"); path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func newEngine(cmd *cli.Command, opts ...engine.Option) (*engine.Engine, error) {
	m, err := loadManifest(cmd)
	if err != nil {
		return nil, err
	}
	verbosity := m.Log.Verbosity
	if cmd.Bool("verbose") {
		verbosity = max(verbosity, 1)
	}
	engine.ConfigureLogging(verbosity, m.LogPath())

	opts = append([]engine.Option{engine.WithManifest(m), engine.WithDebug(cmd.Bool("debug"))}, opts...)
	return engine.New(opts...), nil
}

func runFile(cmd *cli.Command, stdout io.Writer, path string, args []string) error {
	e, err := newEngine(cmd, engine.WithOutput(stdout), engine.WithArgs(args))
	if err != nil {
		return err
	}
	_, err = e.DoFile(path)
	return err
}

func runStdin(cmd *cli.Command, stdin io.Reader, stdout io.Writer) error {
	src, err := io.ReadAll(stdin)
	if err != nil {
		return err
	}
	e, err := newEngine(cmd, engine.WithOutput(stdout))
	if err != nil {
		return err
	}
	_, err = e.DoString(string(src))
	return err
}

func compileAction(ctx context.Context, cmd *cli.Command, stdout io.Writer) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("usage: phon compile [-o output] <file>...")
	}
	output := cmd.String("output")
	if output != "" && len(files) > 1 {
		return fmt.Errorf("-o can only be used with a single input file")
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}

	written := make([]string, len(files))
	g, _ := errgroup.WithContext(ctx)
	for i, file := range files {
		g.Go(func() error {
			out, err := e.CompileTo(file, output)
			if err != nil {
				return err
			}
			written[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, out := range written {
		fmt.Fprintf(stdout, "%s -> %s\n", files[i], out)
	}
	return nil
}

func disasmAction(cmd *cli.Command, stdout io.Writer) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: phon disasm <file>")
	}
	path := cmd.Args().First()
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	listing, err := e.Disassemble(string(src), filepath.Base(path))
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, strings.TrimRight(listing, "\n")+"\n")
	return nil
}
