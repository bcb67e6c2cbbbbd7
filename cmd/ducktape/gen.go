package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/ducktape/proxygen"
)

// handleGenCommand processes the `ducktape gen` subcommand.
// Usage:
//
//	ducktape gen ./shapes                      # adapters next to the interfaces
//	ducktape gen -o ./adapters -pkg adapters -import example.com/app/adapters ./shapes
func handleGenCommand(args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	output := fs.String("o", "", "Output file or directory (default: the package directory)")
	include := fs.String("include", "", "Comma separated interface names to generate (default: all)")
	pkgName := fs.String("pkg", "", "Package name of the generated file (default: the source package)")
	importPath := fs.String("import", "", "Import path of the generated file's package (default: the source package)")
	funcName := fs.String("func", "Adapters", "Name of the generated preload function")
	verbose := fs.Bool("v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pattern := "."
	if fs.NArg() > 0 {
		pattern = fs.Arg(0)
	}

	var filter map[string]bool
	if *include != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(*include, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter[name] = true
			}
		}
	}

	if *verbose {
		fmt.Printf("Introspecting %s...\n", pattern)
	}
	model, err := proxygen.Load(pattern, filter)
	if err != nil {
		return fmt.Errorf("introspecting: %w", err)
	}
	if *verbose {
		fmt.Printf("  Found %d interfaces, skipped %d\n", len(model.Interfaces), len(model.Skipped))
		for _, s := range model.Skipped {
			fmt.Printf("  skipped %s: %s\n", s.Name, s.Reason)
		}
	}
	if len(model.Interfaces) == 0 {
		return fmt.Errorf("no interfaces to generate in %s", pattern)
	}

	code, err := proxygen.Generate(model, proxygen.Options{
		ImportPath: *importPath,
		Package:    *pkgName,
		Func:       *funcName,
	})
	if err != nil {
		return fmt.Errorf("generating: %w", err)
	}

	path, err := outputPath(*output, pattern)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(path, code, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if *verbose {
		fmt.Printf("  Wrote %s\n", path)
	}
	return nil
}

// outputPath resolves -o: a .go file is used as is, anything else is a
// directory. Without -o the file goes next to a directory pattern.
func outputPath(output, pattern string) (string, error) {
	if strings.HasSuffix(output, ".go") {
		return output, nil
	}
	if output != "" {
		return filepath.Join(output, proxygen.DefaultFileName), nil
	}
	dir := strings.TrimSuffix(pattern, "/...")
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("-o is required when %s is not a directory", pattern)
	}
	return filepath.Join(dir, proxygen.DefaultFileName), nil
}
