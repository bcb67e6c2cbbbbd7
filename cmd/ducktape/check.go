package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chazu/ducktape/aspect"
	"github.com/chazu/ducktape/config"
	"github.com/mattn/go-isatty"
)

// handleCheckCommand processes the `ducktape check` subcommand.
// Usage:
//
//	ducktape check                  # nearest ducktape.toml / ducktape.yaml
//	ducktape check path/to/ducktape.yaml
func handleCheckCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var c *config.Config
	var err error
	if fs.NArg() > 0 {
		c, err = config.Load(fs.Arg(0))
	} else {
		c, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	c.ConfigureLogging()

	color := !*noColor && out == os.Stdout &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	return report(out, c, color)
}

func report(out io.Writer, c *config.Config, color bool) error {
	heading := func(s string) string {
		if color {
			return "\033[1;36m" + s + "\033[0m"
		}
		return s
	}

	source := c.Path
	if source == "" {
		source = "(defaults, no configuration file found)"
	}
	fmt.Fprintf(out, "%s %s\n", heading("config:"), source)
	fmt.Fprintf(out, "%s verbosity=%d file=%q\n", heading("log:"), c.Log.Verbosity, c.Log.File)
	fmt.Fprintf(out, "%s polymorphic_limit=%d max_arity=%d\n", heading("cache:"),
		c.Cache.PolymorphicLimit, c.Cache.MaxArity)

	o, err := c.Ordering()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, heading("aspect ordering:"))
	for i, cat := range o.Sorted() {
		fmt.Fprintf(out, "  %2d. %s\n", i+1, cat)
	}
	fmt.Fprintf(out, "  unlisted categories run last (priority %d)\n", aspect.UnknownPriority)
	return nil
}
