package dialect

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReadOnly is returned for anything other than a single SELECT/WITH query.
	ErrNotReadOnly = errors.New("statement is not a read-only query")
	// ErrIrreconcilable is returned when a construct has no equivalent in the target dialect.
	ErrIrreconcilable = errors.New("construct cannot be expressed in target dialect")
)

var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true, "RENAME": true,
	"GRANT": true, "REVOKE": true, "EXEC": true, "EXECUTE": true, "CALL": true,
	"COPY": true, "VACUUM": true, "ATTACH": true, "DETACH": true, "PRAGMA": true,
	"LOCK": true, "INTO": true, "COMMIT": true, "ROLLBACK": true, "SET": true,
}

// reserved words never start or end an expression operand
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true,
	"ON": true, "AS": true, "IN": true, "BY": true, "WHEN": true, "THEN": true, "ELSE": true,
	"CASE": true, "JOIN": true, "LEFT": true, "RIGHT": true, "INNER": true, "OUTER": true,
	"FULL": true, "CROSS": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "UNION": true, "INTERSECT": true, "EXCEPT": true, "DISTINCT": true,
	"IS": true, "LIKE": true, "BETWEEN": true, "WITH": true, "USING": true, "FETCH": true,
	"EXISTS": true, "ALL": true, "ANY": true, "SOME": true, "TOP": true, "OVER": true,
}

// Sanitize rewrites sql for dialect d.
func Sanitize(sql string, d Dialect) (string, error) {
	r, err := RulesFor(d)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIrreconcilable, err)
	}
	return r.Sanitize(sql)
}

// Sanitize checks that sql is a single read-only query and translates
// identifier quoting, casts, string concatenation, boolean literals,
// function names and row-limiting clauses into this dialect. Applying it
// to its own output returns the output unchanged.
func (r *Rules) Sanitize(sql string) (string, error) {
	toks := trimStatement(stripComments(lex(sql)))
	if err := checkReadOnly(toks); err != nil {
		return "", err
	}

	toks = r.quoteIdents(toks)

	stages := []func([]token) ([]token, error){
		r.rewriteCasts,
		r.rewriteConcat,
		r.rewriteBooleans,
		r.rewriteFunctions,
		r.rewritePagination,
	}
	for _, stage := range stages {
		var err error
		if toks, err = stage(toks); err != nil {
			return "", err
		}
	}
	return render(toks), nil
}

func stripComments(toks []token) []token {
	out := make([]token, 0, len(toks))
	for i, t := range toks {
		if t.kind != tokComment {
			out = append(out, t)
			continue
		}
		prevSpace := len(out) == 0 || out[len(out)-1].kind == tokSpace
		nextSpace := i+1 >= len(toks) || toks[i+1].kind == tokSpace
		if !prevSpace && !nextSpace {
			out = append(out, space())
		}
	}
	return out
}

// trimStatement drops surrounding whitespace and trailing semicolons.
func trimStatement(toks []token) []token {
	for len(toks) > 0 && toks[0].kind == tokSpace {
		toks = toks[1:]
	}
	for len(toks) > 0 {
		last := toks[len(toks)-1]
		if last.kind == tokSpace || last.isPunct(";") {
			toks = toks[:len(toks)-1]
			continue
		}
		break
	}
	return toks
}

func checkReadOnly(toks []token) error {
	first := -1
	for i, t := range toks {
		if t.significant() && !t.isPunct("(") {
			first = i
			break
		}
	}
	if first < 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}
	if !toks[first].is("SELECT") && !toks[first].is("WITH") {
		return fmt.Errorf("%w: statement starts with %s", ErrNotReadOnly, strings.ToUpper(toks[first].text))
	}
	for _, t := range toks {
		if t.isPunct(";") {
			return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
		}
		if t.kind == tokWord && writeKeywords[strings.ToUpper(t.text)] {
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, strings.ToUpper(t.text))
		}
	}
	return nil
}

func (r *Rules) quoteIdents(toks []token) []token {
	for i, t := range toks {
		if t.kind == tokQuoted {
			toks[i].text = r.QuoteIdent(t.name)
		}
	}
	return toks
}

func (r *Rules) rewriteBooleans(toks []token) ([]token, error) {
	if r.HasBoolean {
		return toks, nil
	}
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !t.is("TRUE") && !t.is("FALSE") {
			out = append(out, t)
			continue
		}
		lit := "1"
		if t.is("FALSE") {
			lit = "0"
		}
		// rewrite "x IS [NOT] TRUE" into a comparison
		p := prevSig(out, len(out))
		negated := false
		if p >= 0 && out[p].is("NOT") {
			if q := prevSig(out, p); q >= 0 && out[q].is("IS") {
				negated = true
				p = q
			}
		}
		if p >= 0 && out[p].is("IS") {
			op := "="
			if negated {
				op = "<>"
			}
			out = append(out[:p], punct(op), space(), number(lit))
			continue
		}
		out = append(out, number(lit))
	}
	return out, nil
}

func (r *Rules) rewriteConcat(toks []token) ([]token, error) {
	switch r.Concat {
	case ConcatPipes:
		return toks, nil
	case ConcatPlus:
		for i, t := range toks {
			if t.isPunct("||") {
				toks[i] = punct("+")
			}
		}
		return toks, nil
	}

	for {
		op := -1
		for i, t := range toks {
			if t.isPunct("||") {
				op = i
				break
			}
		}
		if op < 0 {
			return toks, nil
		}
		start := operandStart(toks, op)
		if start < 0 {
			return nil, fmt.Errorf("%w: cannot find left operand of || for %s", ErrIrreconcilable, r.Dialect)
		}
		parts := []string{strings.TrimSpace(render(toks[start:op]))}
		end := op
		for {
			e := operandEnd(toks, end)
			if e < 0 {
				return nil, fmt.Errorf("%w: cannot find right operand of || for %s", ErrIrreconcilable, r.Dialect)
			}
			parts = append(parts, strings.TrimSpace(render(toks[end+1:e+1])))
			end = e
			if n := nextSig(toks, end); n >= 0 && toks[n].isPunct("||") {
				end = n
				continue
			}
			break
		}
		replacement := lex("CONCAT(" + strings.Join(parts, ", ") + ")")
		toks = splice(toks, start, end, replacement)
	}
}

var castTypes = map[Dialect]map[string]string{
	MySQL:     {"TEXT": "CHAR", "VARCHAR": "CHAR", "INT": "SIGNED", "INTEGER": "SIGNED", "BIGINT": "SIGNED", "NUMERIC": "DECIMAL", "FLOAT": "DECIMAL", "REAL": "DECIMAL"},
	MariaDB:   {"TEXT": "CHAR", "VARCHAR": "CHAR", "INT": "SIGNED", "INTEGER": "SIGNED", "BIGINT": "SIGNED", "NUMERIC": "DECIMAL", "FLOAT": "DECIMAL", "REAL": "DECIMAL"},
	SQLServer: {"TEXT": "NVARCHAR(MAX)", "BOOLEAN": "BIT", "BOOL": "BIT", "TIMESTAMP": "DATETIME2"},
	Oracle:    {"TEXT": "VARCHAR2(4000)", "VARCHAR": "VARCHAR2", "INT": "NUMBER", "INTEGER": "NUMBER", "BIGINT": "NUMBER", "BOOLEAN": "NUMBER(1)"},
	SQLite:    {"VARCHAR": "TEXT", "BOOLEAN": "INTEGER", "BIGINT": "INTEGER", "TIMESTAMP": "TEXT"},
}

// rewriteCasts turns expr::type into CAST(expr AS type) where :: is not valid.
func (r *Rules) rewriteCasts(toks []token) ([]token, error) {
	if r.CastOperator {
		return toks, nil
	}
	for {
		op := -1
		for i, t := range toks {
			if t.isPunct("::") {
				op = i
				break
			}
		}
		if op < 0 {
			return toks, nil
		}
		start := castOperandStart(toks, op)
		if start < 0 {
			return nil, fmt.Errorf("%w: cannot find operand of :: cast for %s", ErrIrreconcilable, r.Dialect)
		}
		tEnd := typeEnd(toks, op)
		if tEnd < 0 {
			return nil, fmt.Errorf("%w: cannot find type of :: cast for %s", ErrIrreconcilable, r.Dialect)
		}
		typeName := strings.TrimSpace(render(toks[op+1 : tEnd+1]))
		if mapped, ok := castTypes[r.Dialect][strings.ToUpper(typeName)]; ok {
			typeName = mapped
		}
		expr := strings.TrimSpace(render(toks[start:op]))
		toks = splice(toks, start, tEnd, lex("CAST("+expr+" AS "+typeName+")"))
	}
}

// castOperandStart is operandStart without crossing an earlier cast, so
// chained casts unwrap from the inside out.
func castOperandStart(toks []token, op int) int {
	j := prevSig(toks, op)
	if j < 0 {
		return -1
	}
	for {
		j = primaryStart(toks, j)
		if j < 0 {
			return -1
		}
		p := prevSig(toks, j)
		if p < 0 || !toks[p].isPunct(".") {
			return j
		}
		if j = prevSig(toks, p); j < 0 {
			return -1
		}
	}
}

func typeEnd(toks []token, op int) int {
	j := nextSig(toks, op)
	if j < 0 || toks[j].kind != tokWord {
		return -1
	}
	if n := nextSig(toks, j); n >= 0 && toks[n].isPunct("(") {
		if m := matchParen(toks, n); m >= 0 {
			return m
		}
		return -1
	}
	return j
}

// operandStart returns the first token of the expression operand ending
// right before the operator at op, or -1.
func operandStart(toks []token, op int) int {
	j := prevSig(toks, op)
	if j < 0 {
		return -1
	}
	for {
		j = primaryStart(toks, j)
		if j < 0 {
			return -1
		}
		p := prevSig(toks, j)
		if p >= 0 && (toks[p].isPunct(".") || toks[p].isPunct("::")) {
			if q := prevSig(toks, p); q >= 0 {
				j = q
				continue
			}
		}
		return j
	}
}

// primaryStart returns the start of the primary expression ending at j.
func primaryStart(toks []token, j int) int {
	t := toks[j]
	switch {
	case t.isPunct(")"):
		k := matchParenBack(toks, j)
		if k < 0 {
			return -1
		}
		if p := prevSig(toks, k); p >= 0 && toks[p].kind == tokWord && !reserved[strings.ToUpper(toks[p].text)] {
			return p
		}
		return k
	case t.is("END"):
		depth := 0
		for k := j; k >= 0; k-- {
			switch {
			case toks[k].is("END"):
				depth++
			case toks[k].is("CASE"):
				depth--
				if depth == 0 {
					return k
				}
			}
		}
		return -1
	case t.kind == tokWord && !reserved[strings.ToUpper(t.text)],
		t.kind == tokQuoted, t.kind == tokNumber, t.kind == tokString:
		return j
	}
	return -1
}

// operandEnd returns the last token of the expression operand starting
// right after the operator at op, or -1.
func operandEnd(toks []token, op int) int {
	j := nextSig(toks, op)
	if j < 0 {
		return -1
	}
	t := toks[j]
	switch {
	case t.is("CASE"):
		depth := 0
		end := -1
		for k := j; k < len(toks); k++ {
			if toks[k].is("CASE") {
				depth++
			} else if toks[k].is("END") {
				depth--
				if depth == 0 {
					end = k
					break
				}
			}
		}
		j = end
	case t.isPunct("("):
		j = matchParen(toks, j)
	case t.kind == tokWord && !reserved[strings.ToUpper(t.text)]:
		if n := nextSig(toks, j); n >= 0 && toks[n].isPunct("(") {
			j = matchParen(toks, n)
		}
	case t.kind == tokQuoted, t.kind == tokNumber, t.kind == tokString:
	default:
		return -1
	}
	if j < 0 {
		return -1
	}
	for {
		n := nextSig(toks, j)
		if n < 0 {
			return j
		}
		switch {
		case toks[n].isPunct("."):
			m := nextSig(toks, n)
			if m < 0 {
				return -1
			}
			j = m
		case toks[n].isPunct("::"):
			e := typeEnd(toks, n)
			if e < 0 {
				return -1
			}
			j = e
		default:
			return j
		}
	}
}

// splice replaces toks[start:end+1] with repl.
func splice(toks []token, start, end int, repl []token) []token {
	out := make([]token, 0, len(toks)-(end-start+1)+len(repl))
	out = append(out, toks[:start]...)
	out = append(out, repl...)
	out = append(out, toks[end+1:]...)
	return out
}
