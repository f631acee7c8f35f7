package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	sqlgw "github.com/sqlsafetygw/gopgsafe"
	"github.com/sqlsafetygw/gopgsafe/internal/meta"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	manifestPath := fs.String("manifest", "manifest.json", "Path to manifest file")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *manifestPath)
}

func doctor(w io.Writer, useColor bool, manifestPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "sqlgwctl %s\n\n", meta.Version)

	manifest, ok := doctorValidateManifest(w, useColor, manifestPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'sqlgwctl doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printWiringSnippet(w, useColor, manifest)
	return nil
}

// doctorValidateManifest loads and validates the manifest file, printing
// check results. Returns the parsed manifest and true if all checks passed.
func doctorValidateManifest(w io.Writer, useColor bool, manifestPath string) (*sqlgw.Manifest, bool) {
	allPassed := true

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Manifest file readable (%s)", manifestPath))
		return nil, false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Manifest file readable (%s)", manifestPath))

	var m sqlgw.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Manifest file is valid JSON: %v", err))
		return nil, false
	}
	printCheck(w, useColor, true, "Manifest file is valid JSON")

	if err := m.Validate(); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Manifest passes structural validation: %v", err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, "Manifest passes structural validation")
	}

	if m.Dialect != "postgresql" {
		printCheck(w, useColor, false, fmt.Sprintf("dialect is supported (got %q, want %q)", m.Dialect, "postgresql"))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("dialect is supported (%s)", m.Dialect))
	}

	if len(m.Policy) == 0 {
		printCheck(w, useColor, false, "at least one table policy defined")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("%d table polic(ies) defined", len(m.Policy)))
	}

	return &m, allPassed
}

// printCheck prints a colored check or cross line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}

// printWiringSnippet prints the manifest's scope summary and a Go snippet
// showing how to wire it into an embedding MCP server. The gateway does no
// I/O of its own, so unlike a standalone server there's no port or URL to
// hand an agent — only a construction path.
func printWiringSnippet(w io.Writer, useColor bool, manifest *sqlgw.Manifest) {
	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	heading("Data scope")
	fmt.Fprint(w, manifest.ScopeSummary())
	fmt.Fprintln(w)

	heading("Embedding wiring")
	fmt.Fprintf(w, `  manifest, _ := sqlgw.LoadManifest(%q)
  gw := sqlgw.New(manifest, logger)
  mcptool.RegisterTools(mcpServer, gw, logger)
`, "manifest.json")
}
