// Package hooks runs caller-supplied, pattern-gated middleware around a
// validation call. Unlike the teacher's hook runner — which shelled out to
// an external command and exchanged JSON over stdio/stdout — the gateway
// never spawns a subprocess: it has no I/O boundary to cross, so a hook here
// is a plain Go function, matched against the query text the same way the
// teacher matches a hook's Pattern before invoking it.
package hooks

import (
	"errors"
	"fmt"
	"regexp"
)

// Result is what a hook returns: whether to accept, an optional rewritten
// SQL string, and an optional rejection message.
type Result struct {
	Accept       bool
	ModifiedSQL  string
	ErrorMessage string
}

// BeforeValidateHook runs against the raw SQL text before it reaches the
// parser.
type BeforeValidateHook func(sql string) Result

// AfterValidateHook runs against the fully rewritten, provably-safe SQL text
// just before ValidateQuery returns it.
type AfterValidateHook func(sql string) Result

// BeforeEntry pairs a BeforeValidateHook with the pattern that gates it.
type BeforeEntry struct {
	Pattern string
	Hook    BeforeValidateHook
}

// AfterEntry pairs an AfterValidateHook with the pattern that gates it.
type AfterEntry struct {
	Pattern string
	Hook    AfterValidateHook
}

type compiledBefore struct {
	pattern *regexp.Regexp
	hook    BeforeValidateHook
}

type compiledAfter struct {
	pattern *regexp.Regexp
	hook    AfterValidateHook
}

// Runner chains BeforeValidate/AfterValidate hooks, each gated by a regex
// matched against the current SQL text.
type Runner struct {
	before []compiledBefore
	after  []compiledAfter
}

// NewRunner compiles every entry's pattern. Returns an error on invalid regex.
func NewRunner(before []BeforeEntry, after []AfterEntry) (*Runner, error) {
	compiledBefores := make([]compiledBefore, len(before))
	for i, e := range before {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("hooks: invalid regex pattern %q: %v", e.Pattern, err)
		}
		compiledBefores[i] = compiledBefore{pattern: re, hook: e.Hook}
	}
	compiledAfters := make([]compiledAfter, len(after))
	for i, e := range after {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("hooks: invalid regex pattern %q: %v", e.Pattern, err)
		}
		compiledAfters[i] = compiledAfter{pattern: re, hook: e.Hook}
	}
	return &Runner{before: compiledBefores, after: compiledAfters}, nil
}

// HasAfterHooks reports whether any AfterValidate hooks are configured.
func (r *Runner) HasAfterHooks() bool {
	return len(r.after) > 0
}

// RunBefore runs every matching BeforeValidate hook, in order, threading the
// (possibly rewritten) SQL text through the chain.
func (r *Runner) RunBefore(sql string) (string, error) {
	current := sql
	for _, entry := range r.before {
		if !entry.pattern.MatchString(current) {
			continue
		}
		result := entry.hook(current)
		if !result.Accept {
			if result.ErrorMessage != "" {
				return "", errors.New(result.ErrorMessage)
			}
			return "", errors.New("query rejected by hook")
		}
		if result.ModifiedSQL != "" {
			current = result.ModifiedSQL
		}
	}
	return current, nil
}

// RunAfter runs every matching AfterValidate hook, in order, threading the
// rewritten SQL text through the chain.
func (r *Runner) RunAfter(sql string) (string, error) {
	current := sql
	for _, entry := range r.after {
		if !entry.pattern.MatchString(current) {
			continue
		}
		result := entry.hook(current)
		if !result.Accept {
			if result.ErrorMessage != "" {
				return "", errors.New(result.ErrorMessage)
			}
			return "", errors.New("result rejected by hook")
		}
		if result.ModifiedSQL != "" {
			current = result.ModifiedSQL
		}
	}
	return current, nil
}
