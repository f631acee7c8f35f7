package sqlgw

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Scope is the visibility class of a table: every row readable by any
// caller (Global), or rows scoped to a user id column (User).
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeUser   Scope = "user"
)

// MaxLimit is the default LIMIT cap applied when a request does not supply
// a CustomLimit (§4.10).
const MaxLimit = 50

// TablePolicy describes what a caller may read from one real table.
type TablePolicy struct {
	Scope          Scope    `json:"scope"`
	AllowedColumns []string `json:"allowed_columns"`
	UserKey        string   `json:"user_key,omitempty"`

	allowedSet map[string]struct{}
}

func (p *TablePolicy) allows(column string) bool {
	_, ok := p.allowedSet[column]
	return ok
}

// Manifest is the gateway's policy model, loaded once at process
// start and held for the process lifetime. Concurrent reads from any number
// of goroutines are safe. Validate, which New also calls, rebuilds the
// manifest's lookup sets in place; ValidateQuery only reads the manifest.
type Manifest struct {
	Database          string                 `json:"database"`
	Dialect           string                 `json:"dialect"`
	DefaultSchema     string                 `json:"default_schema,omitempty"`
	Policy            map[string]TablePolicy `json:"policy"`
	BlockedFunctions  []string               `json:"blocked_functions"`
	ConnectionParams  map[string]any         `json:"connection_params,omitempty"`

	blockedSet map[string]struct{}
}

// LoadManifest reads and validates a manifest JSON file from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sqlgw: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("sqlgw: parse manifest: %w", err)
	}
	if err := m.finalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

// finalize lowercases blocked function names, builds lookup sets, and
// validates the §6 constraint that a user-scoped policy's user_key must
// itself be an allowed column.
func (m *Manifest) finalize() error {
	if m.Policy == nil {
		return fmt.Errorf("sqlgw: manifest has no policy entries")
	}
	for name, p := range m.Policy {
		if len(p.AllowedColumns) == 0 {
			return fmt.Errorf("sqlgw: table %q has empty allowed_columns", name)
		}
		if p.Scope == ScopeUser && p.UserKey == "" {
			return fmt.Errorf("sqlgw: table %q is user-scoped but declares no user_key", name)
		}
		if p.Scope != ScopeUser && p.Scope != ScopeGlobal {
			return fmt.Errorf("sqlgw: table %q has unknown scope %q", name, p.Scope)
		}
		set := make(map[string]struct{}, len(p.AllowedColumns))
		for _, c := range p.AllowedColumns {
			set[c] = struct{}{}
		}
		if p.Scope == ScopeUser {
			if _, ok := set[p.UserKey]; !ok {
				return fmt.Errorf("sqlgw: table %q user_key %q is not in allowed_columns", name, p.UserKey)
			}
		}
		p.allowedSet = set
		m.Policy[name] = p
	}

	m.blockedSet = make(map[string]struct{}, len(m.BlockedFunctions))
	for i, f := range m.BlockedFunctions {
		lower := strings.ToLower(f)
		m.BlockedFunctions[i] = lower
		m.blockedSet[lower] = struct{}{}
	}
	return nil
}

// Validate re-runs the structural checks finalize already performed; it is
// exposed so callers that build a Manifest by hand (e.g. the lint-manifest
// wizard) can validate before handing it to New.
func (m *Manifest) Validate() error {
	return m.finalize()
}

func (m *Manifest) isBlockedFunction(name string) bool {
	_, ok := m.blockedSet[strings.ToLower(name)]
	return ok
}

// ScopeSummary renders a one-line-per-table human-readable description of
// the manifest's data scope, for use in `doctor`/`lint-manifest` output.
func (m *Manifest) ScopeSummary() string {
	names := make([]string, 0, len(m.Policy))
	for name := range m.Policy {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		p := m.Policy[name]
		cols := append([]string(nil), p.AllowedColumns...)
		sort.Strings(cols)
		if p.Scope == ScopeUser {
			fmt.Fprintf(&b, "%s [user-scoped via %s]: %s\n", name, p.UserKey, strings.Join(cols, ", "))
		} else {
			fmt.Fprintf(&b, "%s [global]: %s\n", name, strings.Join(cols, ", "))
		}
	}
	return b.String()
}
