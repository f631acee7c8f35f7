package main

import (
	"flag"
	"os"

	"github.com/sqlsafetygw/gopgsafe/internal/configure"
)

func runLintManifest() error {
	fs := flag.NewFlagSet("lint-manifest", flag.ExitOnError)
	manifestPath := fs.String("manifest", "manifest.json", "Path to manifest file")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	printBanner(os.Stderr, useColor)

	// Outside a terminal (CI), there's no one to prompt — just validate the
	// manifest that's already there instead of launching the wizard.
	if !isTTY(os.Stdin.Fd()) {
		return configure.Lint(*manifestPath)
	}
	return configure.Run(*manifestPath)
}
