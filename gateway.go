package sqlgw

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sqlsafetygw/gopgsafe/internal/errprompt"
	"github.com/sqlsafetygw/gopgsafe/internal/hooks"
	"github.com/sqlsafetygw/gopgsafe/internal/sanitize"
)

// Request is one validate_query call (§3 "Validation request", §6 Public
// operation). The zero value validates with no skip flags and the
// package's MaxLimit.
type Request struct {
	SQL                             string
	CurrentUserID                   int
	SkipUserFilter                  bool
	SkipUserFilterTables            []string
	EnforceUserFilterOnGlobalTables bool
	OverrideUserID                  *int
	CustomLimit                     *int
}

func (r Request) skipTableSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.SkipUserFilterTables))
	for _, t := range r.SkipUserFilterTables {
		set[t] = struct{}{}
	}
	return set
}

func (r Request) effectiveUserID() int {
	if r.OverrideUserID != nil {
		return *r.OverrideUserID
	}
	return r.CurrentUserID
}

func (r Request) effectiveLimit() int {
	if r.CustomLimit != nil && *r.CustomLimit > 0 {
		return *r.CustomLimit
	}
	return MaxLimit
}

// OnValidated is invoked, fire-and-forget, after a successful ValidateQuery
// call with the original and rewritten SQL. It runs in its own goroutine;
// a panic inside it is recovered and logged, never propagated to the caller
// (§9 Design Notes, "Async fire-and-forget cache write").
type OnValidated func(original, rewritten string)

// Option is a functional option for New.
type Option func(*options)

type options struct {
	onValidated   OnValidated
	sanitizer     *sanitize.Sanitizer
	hooks         *hooks.Runner
	errorGuidance *errprompt.Matcher
}

// WithOnValidated registers a fire-and-forget hook run after every
// successful validation.
func WithOnValidated(fn OnValidated) Option {
	return func(o *options) { o.onValidated = fn }
}

// WithSanitizer redacts SQL text before it reaches a log line (the SQL sent
// to a driver is never touched — only what ValidateQuery writes to its
// logger). Use when the manifest's tables carry PII-shaped literals
// (phone numbers, national IDs) that shouldn't land in log storage verbatim.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(o *options) { o.sanitizer = s }
}

// WithHooks runs a caller-supplied middleware chain around the pipeline:
// BeforeValidate hooks see the raw SQL text before parsing (and may rewrite
// or reject it before the gateway ever sees it); AfterValidate hooks see the
// final rewritten SQL just before it's returned.
func WithHooks(r *hooks.Runner) Option {
	return func(o *options) { o.hooks = r }
}

// WithErrorGuidance attaches agent-facing guidance text to rejections whose
// message matches one of the matcher's patterns — e.g. pointing a caller
// at the manifest's allowed_columns list when it hits ColumnNotAllowed. The
// rejection's Kind and the rest of the Error fields are unchanged; Guidance
// is additive.
func WithErrorGuidance(m *errprompt.Matcher) Option {
	return func(o *options) { o.errorGuidance = m }
}

// Gateway is the SQL Safety Gateway (§1). It holds an immutable Manifest and
// is safe for concurrent use from any number of goroutines — ValidateQuery
// does no I/O, shares no mutable state across calls, and never blocks
// (§5 Concurrency & Resource Model).
type Gateway struct {
	manifest      *Manifest
	logger        zerolog.Logger
	onValidated   OnValidated
	sanitizer     *sanitize.Sanitizer
	hooks         *hooks.Runner
	errorGuidance *errprompt.Matcher
}

// logSQL redacts sql for a log line if a sanitizer is configured, else
// returns it unchanged.
func (g *Gateway) logSQL(sql string) string {
	if g.sanitizer == nil || !g.sanitizer.HasRules() {
		return sql
	}
	return g.sanitizer.SanitizeSQL(sql)
}

// New constructs a Gateway from a validated manifest. Panics if manifest is
// nil or fails Validate — construction-time misconfiguration is a
// programmer error, not a runtime condition a caller should need to handle.
func New(manifest *Manifest, logger zerolog.Logger, opts ...Option) *Gateway {
	if manifest == nil {
		panic("sqlgw: manifest must be non-nil")
	}
	if err := manifest.Validate(); err != nil {
		panic(fmt.Sprintf("sqlgw: invalid manifest: %v", err))
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	return &Gateway{
		manifest:      manifest,
		logger:        logger,
		onValidated:   o.onValidated,
		sanitizer:     o.sanitizer,
		hooks:         o.hooks,
		errorGuidance: o.errorGuidance,
	}
}

// ValidateQuery runs the fixed-order pipeline of §4.12 and returns a
// rewritten, provably-safe SQL string, or the first taxonomy error
// encountered. It is deterministic (I6/P8): identical inputs produce
// byte-identical output.
func (g *Gateway) ValidateQuery(req Request) (string, error) {
	out, err := g.validateQuery(req)
	if err != nil {
		return "", g.attachGuidance(err)
	}
	return out, nil
}

// attachGuidance sets Guidance on a *Error if an errorGuidance matcher is
// configured and one of its patterns matches the error text. Errors that
// aren't a *Error (the plain errors returned for hook rejections) pass
// through unchanged.
func (g *Gateway) attachGuidance(err error) error {
	if g.errorGuidance == nil {
		return err
	}
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return err
	}
	gwErr.Guidance = g.errorGuidance.Match(gwErr.Error())
	return gwErr
}

func (g *Gateway) validateQuery(req Request) (string, error) {
	log := g.logger.With().Str("component", "sqlgw").Logger()

	sql := req.SQL
	if g.hooks != nil {
		rewritten, err := g.hooks.RunBefore(sql)
		if err != nil {
			log.Warn().Err(err).Str("sql", g.logSQL(sql)).Msg("rejected: before-validate hook")
			return "", err
		}
		sql = rewritten
	}

	root, err := parseSingleStatement(sql)
	if err != nil {
		log.Warn().Err(err).Str("sql", g.logSQL(sql)).Msg("rejected: invalid sql")
		return "", err
	}

	if err := enforceReadOnly(root); err != nil {
		log.Warn().Str("kind", err.(*Error).Kind.String()).Msg("rejected: not read-only")
		return "", err
	}

	if err := enforceSafeFunctions(root, g.manifest); err != nil {
		gwErr := err.(*Error)
		log.Warn().Str("function", gwErr.Function).Msg("rejected: blocked function")
		return "", err
	}

	if err := enforceTableAccess(root, g.manifest); err != nil {
		gwErr := err.(*Error)
		log.Warn().Str("table", gwErr.Table).Msg("rejected: table not allowed")
		return "", err
	}

	expandSelectStar(root, g.manifest)

	if err := enforceColumnAccess(root, g.manifest); err != nil {
		log.Warn().Err(err).Msg("rejected: column access")
		return "", err
	}

	if !req.SkipUserFilter {
		userID := req.effectiveUserID()
		injectUserFilters(root, g.manifest, req, userID)
		if err := auditUserFilters(root, g.manifest, req, userID); err != nil {
			gwErr := err.(*Error)
			rewrittenSoFar, _ := deparse(root)
			log.Error().
				Str("table", gwErr.Table).
				Str("sql", g.logSQL(rewrittenSoFar)).
				Msg("rejected: missing user filter after injection")
			return "", err
		}
	}

	enforceLimit(root, req.effectiveLimit())
	qualifyTablesWithSchema(root, g.manifest)

	out, err := deparse(root)
	if err != nil {
		log.Error().Err(err).Msg("rejected: deparse failed")
		return "", err
	}

	if g.hooks != nil {
		rewritten, err := g.hooks.RunAfter(out)
		if err != nil {
			log.Warn().Err(err).Str("sql", g.logSQL(out)).Msg("rejected: after-validate hook")
			return "", err
		}
		out = rewritten
	}

	log.Debug().Int("user_id", req.CurrentUserID).Msg("validated")
	if g.onValidated != nil {
		go g.runOnValidated(req.SQL, out)
	}
	return out, nil
}

func (g *Gateway) runOnValidated(original, rewritten string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("OnValidated hook panicked")
		}
	}()
	g.onValidated(original, rewritten)
}
