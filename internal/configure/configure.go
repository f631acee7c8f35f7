package configure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	sqlgw "github.com/sqlsafetygw/gopgsafe"
)

// Run runs the interactive manifest-building wizard.
// Reads an existing manifest (if any), prompts for each table policy,
// writes the updated manifest to the given path.
func Run(manifestPath string) error {
	return run(manifestPath, os.Stdin, os.Stderr)
}

// Lint validates an existing manifest file without prompting, for CI
// contexts where stdin is not a terminal. It reports the same structural
// errors the wizard would catch before writing, but never creates or
// modifies the file.
func Lint(manifestPath string) error {
	m, isNew := loadExisting(manifestPath)
	if isNew {
		return fmt.Errorf("manifest file %s does not exist", manifestPath)
	}
	return m.Validate()
}

func run(manifestPath string, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	m, isNew := loadExisting(manifestPath)
	if isNew {
		applyDefaults(m)
	}

	p := &prompter{
		scanner: scanner,
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "sqlgwctl manifest wizard\n")
	fmt.Fprintf(output, "Manifest file: %s\n\n", manifestPath)

	fmt.Fprintf(output, "=== Database ===\n")
	m.Database = p.promptStringWithHint("database", m.Database, "required")
	m.Dialect = p.promptEnum("dialect", m.Dialect, dialects)
	m.DefaultSchema = p.promptString("default_schema", m.DefaultSchema)

	fmt.Fprintf(output, "\n=== Table Policies ===\n")
	m.Policy = p.promptTablePolicies(m.Policy)

	fmt.Fprintf(output, "\n=== Blocked Functions ===\n")
	m.BlockedFunctions = p.promptStringList("blocked function", m.BlockedFunctions)

	if err := m.Validate(); err != nil {
		return fmt.Errorf("manifest failed validation: %w", err)
	}

	if err := writeManifest(manifestPath, m); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Fprintf(output, "\nManifest saved to %s\n", manifestPath)
	return nil
}

func loadExisting(manifestPath string) (*sqlgw.Manifest, bool) {
	m := &sqlgw.Manifest{}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return m, true
	}
	// Ignore unmarshal errors — start with whatever was parseable.
	_ = json.Unmarshal(data, m)
	return m, false
}

// applyDefaults sets sensible default values for a new manifest.
func applyDefaults(m *sqlgw.Manifest) {
	m.Dialect = "postgresql"
	m.DefaultSchema = "public"
	m.Policy = map[string]sqlgw.TablePolicy{}
	m.BlockedFunctions = []string{"pg_sleep", "dblink", "set_config", "pg_read_file"}
}

var (
	dialects = []string{"postgresql"}
	scopes   = []string{"global", "user"}
)

func writeManifest(manifestPath string, m *sqlgw.Manifest) error {
	dir := filepath.Dir(manifestPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	// Append trailing newline.
	data = append(data, '\n')

	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", manifestPath, err)
	}

	return nil
}

// prompter handles reading user input and displaying prompts.
type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
}

func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

func (p *prompter) promptString(field string, current string) string {
	fmt.Fprintf(p.output, "%s (%s: %q): ", field, p.valueLabel(), current)
	input := p.readLine()
	if input == "" {
		return current
	}
	return input
}

func (p *prompter) promptStringWithHint(field string, current string, hint string) string {
	fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
	input := p.readLine()
	if input == "" {
		return current
	}
	return input
}

func (p *prompter) promptEnum(field string, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

// promptTablePolicies runs the add/remove loop over the manifest's per-table
// policy map.
func (p *prompter) promptTablePolicies(current map[string]sqlgw.TablePolicy) map[string]sqlgw.TablePolicy {
	policy := current
	if policy == nil {
		policy = map[string]sqlgw.TablePolicy{}
	}
	for {
		p.displayTablePolicies(policy)
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		choice := strings.ToLower(p.readLine())
		switch choice {
		case "a":
			name, tp := p.promptNewTablePolicy()
			if name != "" {
				policy[name] = tp
			}
		case "r":
			name := p.promptNewField("table name to remove")
			if _, ok := policy[name]; ok {
				delete(policy, name)
			} else {
				fmt.Fprintf(p.output, "  No such table %q.\n", name)
			}
		case "c", "":
			return policy
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) displayTablePolicies(policy map[string]sqlgw.TablePolicy) {
	if len(policy) == 0 {
		fmt.Fprintf(p.output, "  (no entries)\n")
		return
	}
	names := make([]string, 0, len(policy))
	for name := range policy {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tp := policy[name]
		if tp.Scope == sqlgw.ScopeUser {
			fmt.Fprintf(p.output, "  %s [user-scoped via %s]: %s\n", name, tp.UserKey, strings.Join(tp.AllowedColumns, ", "))
		} else {
			fmt.Fprintf(p.output, "  %s [global]: %s\n", name, strings.Join(tp.AllowedColumns, ", "))
		}
	}
}

func (p *prompter) promptNewTablePolicy() (string, sqlgw.TablePolicy) {
	name := p.promptNewField("table name")
	if name == "" {
		fmt.Fprintf(p.output, "  Table name is required, aborting add.\n")
		return "", sqlgw.TablePolicy{}
	}
	scope := p.promptEnum("  scope", "user", scopes)
	columns := p.promptStringList("allowed column", nil)
	var userKey string
	if scope == string(sqlgw.ScopeUser) {
		userKey = p.promptNewField("  user_key (must be in allowed_columns)")
	}
	return name, sqlgw.TablePolicy{
		Scope:          sqlgw.Scope(scope),
		AllowedColumns: columns,
		UserKey:        userKey,
	}
}

// promptStringList runs the add/remove loop over a flat string slice, used
// for both allowed_columns and blocked_functions.
func (p *prompter) promptStringList(label string, current []string) []string {
	items := current
	for {
		p.displayStringList(label, items)
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		choice := strings.ToLower(p.readLine())
		switch choice {
		case "a":
			value := p.promptNewField(label)
			if value != "" {
				items = append(items, value)
			}
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) displayStringList(label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  (no %s entries)\n", label)
		return
	}
	for i, v := range items {
		fmt.Fprintf(p.output, "  [%d] %s\n", i, v)
	}
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

// removeByIndex is a generic helper for removing an element by index from a slice.
// It uses type parameters to work with any slice type.
func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	input := p.readLine()
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
