package sqlgw

import "fmt"

// Kind identifies which stage of the pipeline rejected a query. Callers
// should switch on Kind rather than parse error strings.
type Kind int

const (
	// InvalidSQL covers parse failures, multi-statement input, and empty input.
	InvalidSQL Kind = iota
	// NotReadOnly covers any write, DDL, DCL, or administrative statement.
	NotReadOnly
	// BlockedFunction covers a call to a manifest-blocklisted function.
	BlockedFunction
	// TableNotAllowed covers a real table absent from the manifest's table policies.
	TableNotAllowed
	// ColumnNotAllowed covers a column absent from its resolved table's allowed_columns.
	ColumnNotAllowed
	// AmbiguousUnqualifiedColumn covers a bare predicate column that shadows a
	// user-scoped table's key or allowed column elsewhere in the statement.
	AmbiguousUnqualifiedColumn
	// MissingUserFilter covers a post-injection audit failure — an internal
	// invariant violation, not a caller mistake.
	MissingUserFilter
)

func (k Kind) String() string {
	switch k {
	case InvalidSQL:
		return "InvalidSQL"
	case NotReadOnly:
		return "NotReadOnly"
	case BlockedFunction:
		return "BlockedFunction"
	case TableNotAllowed:
		return "TableNotAllowed"
	case ColumnNotAllowed:
		return "ColumnNotAllowed"
	case AmbiguousUnqualifiedColumn:
		return "AmbiguousUnqualifiedColumn"
	case MissingUserFilter:
		return "MissingUserFilter"
	default:
		return "Unknown"
	}
}

// Error is the single error type returned by every failing path in the
// gateway. Table/Column/Function/Candidates are populated only by the kinds
// that name an offending identifier.
type Error struct {
	Kind       Kind
	Table      string
	Column     string
	Function   string
	Candidates []string
	Err        error  // underlying parser error, if any
	Guidance   string // set by WithErrorGuidance, empty otherwise
}

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidSQL:
		if e.Err != nil {
			return fmt.Sprintf("invalid sql: %v", e.Err)
		}
		return "invalid sql"
	case NotReadOnly:
		return "query is not read-only"
	case BlockedFunction:
		return fmt.Sprintf("blocked function: %s", e.Function)
	case TableNotAllowed:
		return fmt.Sprintf("table not allowed: %s", e.Table)
	case ColumnNotAllowed:
		return fmt.Sprintf("column not allowed: %s.%s", e.Table, e.Column)
	case AmbiguousUnqualifiedColumn:
		return fmt.Sprintf("ambiguous unqualified column %q, candidates: %v", e.Column, e.Candidates)
	case MissingUserFilter:
		return fmt.Sprintf("missing user filter for table: %s", e.Table)
	default:
		return "sql gateway error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func errInvalidSQL(err error) *Error { return &Error{Kind: InvalidSQL, Err: err} }

func errNotReadOnly() *Error { return &Error{Kind: NotReadOnly} }

func errBlockedFunction(name string) *Error { return &Error{Kind: BlockedFunction, Function: name} }

func errTableNotAllowed(name string) *Error { return &Error{Kind: TableNotAllowed, Table: name} }

func errColumnNotAllowed(column, table string) *Error {
	return &Error{Kind: ColumnNotAllowed, Column: column, Table: table}
}

func errAmbiguousColumn(column string, candidates []string) *Error {
	return &Error{Kind: AmbiguousUnqualifiedColumn, Column: column, Candidates: candidates}
}

func errMissingUserFilter(table string) *Error {
	return &Error{Kind: MissingUserFilter, Table: table}
}
