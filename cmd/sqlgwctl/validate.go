package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	sqlgw "github.com/sqlsafetygw/gopgsafe"
	"github.com/rs/zerolog"
)

// runValidate is a one-shot CLI entry point: load a manifest, validate a
// single SQL statement against it, and print either the rewritten query or
// the rejection reason. The gateway itself never opens a database
// connection, so unlike the teacher's serve command this has nothing to
// prompt a password for and nothing to listen on.
func runValidate() error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	manifestPath := fs.String("manifest", "manifest.json", "Path to manifest file")
	sqlFlag := fs.String("sql", "", "SQL statement to validate (reads stdin if empty)")
	userID := fs.Int("user-id", 0, "Current user id, injected into user-scoped filters")
	customLimit := fs.Int("custom-limit", 0, "Override the default row limit of 50 (0 = use default)")
	skipUserFilter := fs.Bool("skip-user-filter", false, "Skip user-row scoping entirely")
	fs.Parse(os.Args[2:])

	sqlText := *sqlFlag
	if sqlText == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read sql from stdin: %w", err)
		}
		sqlText = string(data)
	}

	ok, err := validateAndPrint(os.Stdout, os.Stderr, *manifestPath, sqlText, *userID, *customLimit, *skipUserFilter)
	if err != nil {
		return err
	}
	if !ok {
		os.Exit(1)
	}
	return nil
}

// validateAndPrint loads the manifest at manifestPath, runs sqlText through
// a gateway built from it, and writes the outcome to stdout/stderr. It
// returns ok=false (not an error) when the query was rejected, so callers
// can distinguish "rejected" from "couldn't even load the manifest".
func validateAndPrint(stdout, stderr io.Writer, manifestPath, sqlText string, userID, customLimit int, skipUserFilter bool) (bool, error) {
	manifest, err := sqlgw.LoadManifest(manifestPath)
	if err != nil {
		return false, fmt.Errorf("failed to load manifest: %w", err)
	}

	logger := zerolog.New(stderr).With().Timestamp().Logger()
	gw := sqlgw.New(manifest, logger)

	req := sqlgw.Request{
		SQL:            sqlText,
		CurrentUserID:  userID,
		SkipUserFilter: skipUserFilter,
	}
	if customLimit > 0 {
		req.CustomLimit = &customLimit
	}

	out, err := gw.ValidateQuery(req)
	if err != nil {
		var gwErr *sqlgw.Error
		msg := err.Error()
		if errors.As(err, &gwErr) && gwErr.Guidance != "" {
			msg = msg + "\n" + gwErr.Guidance
		}
		fmt.Fprintf(stderr, "rejected: %s\n", msg)
		return false, nil
	}

	fmt.Fprintln(stdout, out)
	return true, nil
}
