package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sqlgw "github.com/sqlsafetygw/gopgsafe"
)

func TestDoctorValidManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeManifestFile(t, dir, testManifest())

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if strings.Contains(output, "✗") {
		t.Fatalf("expected all checks to pass, but found failures in output:\n%s", output)
	}
	if !strings.Contains(output, "✓") {
		t.Fatalf("expected pass marks (✓) in output:\n%s", output)
	}
	if !strings.Contains(output, "Manifest file readable") {
		t.Fatalf("expected 'Manifest file readable' check in output:\n%s", output)
	}
	if !strings.Contains(output, "Manifest file is valid JSON") {
		t.Fatalf("expected 'Manifest file is valid JSON' check in output:\n%s", output)
	}
	if !strings.Contains(output, "dialect is supported") {
		t.Fatalf("expected 'dialect is supported' check in output:\n%s", output)
	}
	if !strings.Contains(output, "table polic") {
		t.Fatalf("expected table policy count check in output:\n%s", output)
	}
	if !strings.Contains(output, "Data scope") {
		t.Fatalf("expected scope summary heading in output:\n%s", output)
	}
	if !strings.Contains(output, "employee [user-scoped via id]") {
		t.Fatalf("expected employee scope summary line in output:\n%s", output)
	}
	if !strings.Contains(output, "Embedding wiring") {
		t.Fatalf("expected embedding wiring snippet in output:\n%s", output)
	}
	if !strings.Contains(output, "mcptool.RegisterTools") {
		t.Fatalf("expected mcptool.RegisterTools wiring snippet in output:\n%s", output)
	}
}

func TestDoctorMissingManifest(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := doctor(&buf, false, "/nonexistent/path/manifest.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for missing manifest:\n%s", output)
	}
	if !strings.Contains(output, "Manifest file readable") {
		t.Fatalf("expected 'Manifest file readable' check in output:\n%s", output)
	}
	if strings.Contains(output, "Data scope") {
		t.Fatalf("expected no scope summary when manifest is missing:\n%s", output)
	}
}

func TestDoctorInvalidJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte("{invalid json}"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for invalid JSON:\n%s", output)
	}
	if !strings.Contains(output, "Manifest file is valid JSON") {
		t.Fatalf("expected 'Manifest file is valid JSON' check in output:\n%s", output)
	}
	if strings.Contains(output, "Data scope") {
		t.Fatalf("expected no scope summary when JSON is invalid:\n%s", output)
	}
}

func TestDoctorNoTablePolicies(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := sqlgw.Manifest{Database: "hr", Dialect: "postgresql", Policy: map[string]sqlgw.TablePolicy{}}
	data, _ := json.Marshal(m)
	path := filepath.Join(dir, "manifest.json")
	os.WriteFile(path, data, 0644)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for empty policy:\n%s", output)
	}
	if !strings.Contains(output, "at least one table policy defined") {
		t.Fatalf("expected 'at least one table policy defined' check in output:\n%s", output)
	}
	if !strings.Contains(output, "Fix the issues above") {
		t.Fatalf("expected 'Fix the issues above' message in output:\n%s", output)
	}
}

func TestDoctorUnsupportedDialect(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := testManifest()
	m.Dialect = "mysql"
	path := writeManifestFile(t, dir, m)

	var buf bytes.Buffer
	err := doctor(&buf, false, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗") {
		t.Fatalf("expected failure mark (✗) for unsupported dialect:\n%s", output)
	}
	if !strings.Contains(output, "dialect is supported") {
		t.Fatalf("expected 'dialect is supported' check in output:\n%s", output)
	}
}
