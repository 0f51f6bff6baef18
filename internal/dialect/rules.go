// Package dialect holds the static per-database rule table and rewrites
// candidate SQL from the canonical (PostgreSQL-flavoured) form produced by
// generation agents into the target engine's syntax.
package dialect

import (
	"fmt"
	"sort"
	"strings"
)

// Dialect identifies a target database engine
type Dialect string

const (
	PostgreSQL Dialect = "postgresql"
	MySQL      Dialect = "mysql"
	MariaDB    Dialect = "mariadb"
	SQLite     Dialect = "sqlite"
	SQLServer  Dialect = "sqlserver"
	Oracle     Dialect = "oracle"
)

// Canonical is the dialect generation prompts ask for.
const Canonical = PostgreSQL

// QuoteStyle is how a dialect delimits identifiers
type QuoteStyle int

const (
	QuoteDouble QuoteStyle = iota
	QuoteBacktick
	QuoteBracket
)

// ConcatStyle is how a dialect concatenates strings
type ConcatStyle int

const (
	ConcatPipes ConcatStyle = iota
	ConcatPlus
	ConcatFunc
)

// ProbeStyle is how a dialect checks a statement without running it
type ProbeStyle int

const (
	ProbeExplain ProbeStyle = iota
	ProbeExplainQueryPlan
	ProbeShowplan
	ProbeExplainPlanFor
	ProbeLiteral
)

// pageForm is a syntactic shape of a row-limiting clause
type pageForm int

const (
	formNone pageForm = iota
	formLimitOffset
	formOffsetLimit
	formLimitComma
	formOffsetOnly
	formTop
	formOffsetFetch
	formFetchFirst
)

// Rules describes one dialect
type Rules struct {
	Dialect Dialect
	Quote   QuoteStyle
	Concat  ConcatStyle
	Probe   ProbeStyle

	// HasBoolean is false where TRUE/FALSE must be written as 1/0.
	HasBoolean bool
	// CastOperator is true where expr::type is valid.
	CastOperator bool
	// OffsetRequiresOrderBy rejects OFFSET without a top-level ORDER BY.
	OffsetRequiresOrderBy bool
	// SubstringFromFor is true where SUBSTRING(x FROM a FOR b) is valid.
	SubstringFromFor bool

	// native lists the pagination shapes accepted verbatim.
	native map[pageForm]bool
	// render is the shape used when a clause has to be rewritten.
	renderLimit  pageForm
	renderOffset pageForm

	// functions maps a canonical function concept to this dialect's spelling.
	functions map[string]string
}

var table = map[Dialect]*Rules{
	PostgreSQL: {
		Dialect:          PostgreSQL,
		Quote:            QuoteDouble,
		Concat:           ConcatPipes,
		Probe:            ProbeExplain,
		HasBoolean:       true,
		CastOperator:     true,
		SubstringFromFor: true,
		native:           forms(formLimitOffset, formOffsetLimit, formOffsetOnly, formOffsetFetch, formFetchFirst),
		renderLimit:      formLimitOffset,
		renderOffset:     formLimitOffset,
		functions: map[string]string{
			fnLength: "LENGTH", fnNow: "NOW()", fnSubstring: "SUBSTRING", fnIfNull: "COALESCE",
		},
	},
	MySQL: {
		Dialect:          MySQL,
		Quote:            QuoteBacktick,
		Concat:           ConcatFunc,
		Probe:            ProbeExplain,
		HasBoolean:       true,
		SubstringFromFor: true,
		native:           forms(formLimitOffset, formLimitComma),
		renderLimit:      formLimitOffset,
		renderOffset:     formLimitOffset,
		functions: map[string]string{
			fnLength: "LENGTH", fnNow: "NOW()", fnSubstring: "SUBSTRING", fnIfNull: "IFNULL",
		},
	},
	SQLite: {
		Dialect:      SQLite,
		Quote:        QuoteDouble,
		Concat:       ConcatPipes,
		Probe:        ProbeExplainQueryPlan,
		HasBoolean:   true,
		native:       forms(formLimitOffset, formLimitComma),
		renderLimit:  formLimitOffset,
		renderOffset: formLimitOffset,
		functions: map[string]string{
			fnLength: "LENGTH", fnNow: "DATETIME('now')", fnSubstring: "SUBSTR", fnIfNull: "IFNULL",
		},
	},
	SQLServer: {
		Dialect:               SQLServer,
		Quote:                 QuoteBracket,
		Concat:                ConcatPlus,
		Probe:                 ProbeShowplan,
		OffsetRequiresOrderBy: true,
		native:                forms(formTop, formOffsetFetch),
		renderLimit:           formTop,
		renderOffset:          formOffsetFetch,
		functions: map[string]string{
			fnLength: "LEN", fnNow: "GETDATE()", fnSubstring: "SUBSTRING", fnIfNull: "ISNULL",
		},
	},
	Oracle: {
		Dialect:               Oracle,
		Quote:                 QuoteDouble,
		Concat:                ConcatPipes,
		Probe:                 ProbeExplainPlanFor,
		OffsetRequiresOrderBy: true,
		native:                forms(formFetchFirst, formOffsetFetch),
		renderLimit:           formFetchFirst,
		renderOffset:          formOffsetFetch,
		functions: map[string]string{
			fnLength: "LENGTH", fnNow: "SYSDATE", fnSubstring: "SUBSTR", fnIfNull: "NVL",
		},
	},
}

func init() {
	maria := *table[MySQL]
	maria.Dialect = MariaDB
	table[MariaDB] = &maria
}

func forms(fs ...pageForm) map[pageForm]bool {
	m := make(map[pageForm]bool, len(fs))
	for _, f := range fs {
		m[f] = true
	}
	return m
}

var aliases = map[string]Dialect{
	"postgresql": PostgreSQL, "postgres": PostgreSQL, "pg": PostgreSQL, "pgsql": PostgreSQL,
	"mysql": MySQL, "mariadb": MariaDB,
	"sqlite": SQLite, "sqlite3": SQLite,
	"sqlserver": SQLServer, "mssql": SQLServer, "tsql": SQLServer, "sql server": SQLServer,
	"oracle": Oracle, "oracledb": Oracle,
}

// Parse resolves a database type name to a Dialect
func Parse(name string) (Dialect, error) {
	d, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown database type %q (valid: %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names lists the supported dialects
func Names() []string {
	names := make([]string, 0, len(table))
	for d := range table {
		names = append(names, string(d))
	}
	sort.Strings(names)
	return names
}

// RulesFor returns the rule table entry for d
func RulesFor(d Dialect) (*Rules, error) {
	r, ok := table[d]
	if !ok {
		return nil, fmt.Errorf("no rules for dialect %q", d)
	}
	return r, nil
}

// QuoteIdent renders name in the dialect's identifier quoting.
func (r *Rules) QuoteIdent(name string) string {
	switch r.Quote {
	case QuoteBacktick:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	case QuoteBracket:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// ProbeStatements returns the statements that check sql without executing it.
// The probe statement is the one whose error matters; the others set up and
// tear down the session state.
func (r *Rules) ProbeStatements(sql string) []string {
	switch r.Probe {
	case ProbeExplain:
		return []string{"EXPLAIN " + sql}
	case ProbeExplainQueryPlan:
		return []string{"EXPLAIN QUERY PLAN " + sql}
	case ProbeShowplan:
		return []string{"SET SHOWPLAN_ALL ON", sql, "SET SHOWPLAN_ALL OFF"}
	case ProbeExplainPlanFor:
		return []string{"EXPLAIN PLAN FOR " + sql}
	default:
		return []string{sql}
	}
}
