package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/chazu/phon/engine"
	"github.com/chazu/phon/vm"
)

const (
	prompt         = ">> "
	continuePrompt = ".. "
)

// repl evaluates lines fed to it. Input that ends inside an open block is
// held until the block is closed.
type repl struct {
	eng     *engine.Engine
	out     io.Writer
	pending strings.Builder
}

func (r *repl) prompt() string {
	if r.pending.Len() > 0 {
		return continuePrompt
	}
	return prompt
}

// feed handles one line of input and reports whether the session is over.
func (r *repl) feed(line string) (quit bool) {
	trimmed := strings.TrimSpace(line)
	if r.pending.Len() == 0 {
		switch {
		case trimmed == "":
			return false
		case trimmed == "exit" || trimmed == "quit":
			return true
		case strings.HasPrefix(trimmed, ":"):
			r.command(trimmed)
			return false
		}
	}

	if r.pending.Len() > 0 {
		r.pending.WriteByte('\n')
	}
	r.pending.WriteString(line)

	v, err := r.eng.Eval(r.pending.String())
	if incomplete(err) {
		return false
	}
	r.pending.Reset()
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return false
	}
	if !v.IsNull() {
		fmt.Fprintln(r.out, vm.Display(v, true))
	}
	return false
}

// incomplete reports whether err says the input stopped before a block or
// expression was closed.
func incomplete(err error) bool {
	e, ok := vm.AsError(err)
	return ok && e.Kind == vm.SyntaxError && strings.Contains(e.Message, "end of text")
}

func (r *repl) command(cmd string) {
	name, arg, _ := strings.Cut(cmd, " ")
	switch name {
	case ":help", ":h", ":?":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  :help          Show this help")
		fmt.Fprintln(r.out, "  :gc            Run the garbage collector")
		fmt.Fprintln(r.out, "  :globals       List global variables")
		fmt.Fprintln(r.out, "  :dis <code>    Show the bytecode of code")
		fmt.Fprintln(r.out, "  exit, quit     Leave the prompt")
	case ":gc":
		fmt.Fprintln(r.out, r.eng.CollectGarbage())
	case ":globals":
		globals := r.eng.Runtime().Globals()
		for _, name := range globals.Names() {
			v, _ := globals.Get(name)
			fmt.Fprintf(r.out, "%s = %s\n", name, vm.Display(v, true))
		}
	case ":dis":
		listing, err := r.eng.Disassemble(arg, "<repl>")
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
			return
		}
		fmt.Fprint(r.out, listing)
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", name)
	}
}

func replAction(ctx context.Context, cmd *cli.Command) error {
	in, out := cmd.Root().Reader, cmd.Root().Writer
	if !isTerminal(in) {
		return runScanner(cmd, in, out)
	}
	fd := int(in.(*os.File).Fd())

	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, state)

	screen := struct {
		io.Reader
		io.Writer
	}{in, out}
	t := term.NewTerminal(screen, prompt)

	eng, err := newEngine(cmd, engine.WithOutput(t))
	if err != nil {
		return err
	}
	r := &repl{eng: eng, out: t}
	fmt.Fprintf(t, "phon %s (type 'exit' to quit, ':help' for commands)\n", version)
	for {
		t.SetPrompt(r.prompt())
		line, err := t.ReadLine()
		if err == io.EOF {
			fmt.Fprintln(t)
			return nil
		}
		if err != nil {
			return err
		}
		if r.feed(line) {
			return nil
		}
	}
}

// runScanner drives the prompt from a non-terminal reader.
func runScanner(cmd *cli.Command, in io.Reader, out io.Writer) error {
	eng, err := newEngine(cmd, engine.WithOutput(out))
	if err != nil {
		return err
	}
	r := &repl{eng: eng, out: out}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, r.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if r.feed(scanner.Text()) {
			return nil
		}
	}
}
