// ducktape CLI - generates proxy adapters and checks runtime configuration
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ducktape <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  gen    generate proxy adapters for the interfaces of a package\n")
		fmt.Fprintf(os.Stderr, "  check  validate ducktape.toml / ducktape.yaml and print the effective settings\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ducktape gen ./shapes                  # writes ./shapes/ducktape_adapters.go\n")
		fmt.Fprintf(os.Stderr, "  ducktape gen -include Greeter,Named .  # only some interfaces\n")
		fmt.Fprintf(os.Stderr, "  ducktape check                         # nearest config from the working directory\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	args := flag.Args()
	var err error
	switch args[0] {
	case "gen":
		err = handleGenCommand(args[1:])
	case "check":
		err = handleCheckCommand(args[1:], os.Stdout)
	case "help", "-h", "--help":
		flag.Usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
