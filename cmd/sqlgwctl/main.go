package main

import (
	"fmt"
	"os"

	"github.com/sqlsafetygw/gopgsafe/internal/meta"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		if err := runValidate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "lint-manifest":
		if err := runLintManifest(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--version", "-v", "version":
		fmt.Printf("sqlgwctl %s\n", meta.Version)
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("sqlgwctl %s — SQL safety gateway manifest tooling\n", meta.Version)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sqlgwctl validate       Validate a SQL statement against a manifest")
	fmt.Println("  sqlgwctl lint-manifest  Run the interactive manifest wizard")
	fmt.Println("  sqlgwctl doctor         Validate a manifest and show wiring snippets")
	fmt.Println("  sqlgwctl --version      Show version")
	fmt.Println("  sqlgwctl --help         Show this help message")
}
