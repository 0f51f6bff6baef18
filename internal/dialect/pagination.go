package dialect

import (
	"fmt"
	"strings"
)

type clauseKind int

const (
	clauseTop clauseKind = iota
	clauseLimit
	clauseOffset
	clauseFetch
)

// clause is one top-level row-limiting clause, spanning toks[start:end+1].
type clause struct {
	kind   clauseKind
	start  int
	end    int
	limit  string
	offset string
	comma  bool
	rows   bool
}

// mysqlNoLimit is the documented way to express "all rows" before OFFSET in MySQL.
const mysqlNoLimit = "18446744073709551615"

// rewritePagination translates the LIMIT/OFFSET/TOP/FETCH clauses of the
// statement and of every parenthesised subquery or CTE body into the
// dialect's native form.
func (r *Rules) rewritePagination(toks []token) ([]token, error) {
	toks, err := r.rewriteNestedPagination(toks)
	if err != nil {
		return nil, err
	}
	return r.rewriteScopePagination(toks)
}

// rewriteNestedPagination rewrites each (SELECT ...) or (WITH ...) scope on
// its own. Whitespace just inside the parentheses is kept.
func (r *Rules) rewriteNestedPagination(toks []token) ([]token, error) {
	for i := 0; i < len(toks); i++ {
		if !toks[i].isPunct("(") {
			continue
		}
		first := nextSig(toks, i)
		if first < 0 || !(toks[first].is("SELECT") || toks[first].is("WITH")) {
			continue
		}
		closeIdx := matchParen(toks, i)
		if closeIdx < 0 {
			continue
		}
		start, end := i+1, closeIdx-1
		for start <= end && toks[start].kind == tokSpace {
			start++
		}
		for end >= start && toks[end].kind == tokSpace {
			end--
		}
		inner, err := r.rewritePagination(append([]token(nil), toks[start:end+1]...))
		if err != nil {
			return nil, err
		}
		toks = splice(toks, start, end, inner)
		i = start + len(inner) - 1
	}
	return toks, nil
}

// rewriteScopePagination handles the clauses at parenthesis depth 0.
func (r *Rules) rewriteScopePagination(toks []token) ([]token, error) {
	clauses, err := findClauses(toks)
	if err != nil {
		return nil, err
	}
	form, err := pageFormOf(clauses)
	if err != nil {
		return nil, err
	}
	if form == formNone {
		return toks, nil
	}

	limit, offset := "", ""
	for _, c := range clauses {
		if c.limit != "" {
			limit = c.limit
		}
		if c.offset != "" {
			offset = c.offset
		}
	}

	if r.native[form] {
		if form == formOffsetFetch && r.OffsetRequiresOrderBy && !hasOrderBy(toks) {
			return nil, fmt.Errorf("%w: OFFSET requires ORDER BY in %s", ErrIrreconcilable, r.Dialect)
		}
		return toks, nil
	}

	for _, v := range []string{limit, offset} {
		if v != "" && !isInteger(v) {
			return nil, fmt.Errorf("%w: non-literal row limit %q for %s", ErrIrreconcilable, v, r.Dialect)
		}
	}
	if limit == "-1" || limit == mysqlNoLimit {
		limit = ""
	}
	if offset == "0" {
		offset = ""
	}

	toks = removeClauses(toks, clauses)
	if limit == "" && offset == "" {
		return toks, nil
	}

	target := r.renderLimit
	if offset != "" {
		target = r.renderOffset
	}
	if target == formTop && hasSetOperator(toks) {
		// TOP binds to the first branch only
		target = formOffsetFetch
	}
	if target == formOffsetFetch && r.OffsetRequiresOrderBy && !hasOrderBy(toks) {
		return nil, fmt.Errorf("%w: OFFSET requires ORDER BY in %s", ErrIrreconcilable, r.Dialect)
	}

	switch target {
	case formTop:
		return insertTop(toks, limit)
	case formOffsetFetch:
		if offset == "" {
			offset = "0"
		}
		text := " OFFSET " + offset + " ROWS"
		if limit != "" {
			text += " FETCH NEXT " + limit + " ROWS ONLY"
		}
		return append(toks, lex(text)...), nil
	case formFetchFirst:
		return append(toks, lex(" FETCH FIRST "+limit+" ROWS ONLY")...), nil
	default:
		var text string
		switch {
		case limit != "":
			text = " LIMIT " + limit
		case r.Dialect == MySQL || r.Dialect == MariaDB:
			text = " LIMIT " + mysqlNoLimit
		case r.Dialect == SQLite:
			text = " LIMIT -1"
		}
		if offset != "" {
			text += " OFFSET " + offset
		}
		return append(toks, lex(text)...), nil
	}
}

// findClauses collects the row-limiting clauses at parenthesis depth 0.
func findClauses(toks []token) ([]clause, error) {
	depth := depths(toks)
	var out []clause
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if depth[i] != 0 || t.kind != tokWord {
			continue
		}
		switch {
		case t.is("TOP"):
			p := prevSig(toks, i)
			if p >= 0 && (toks[p].is("DISTINCT") || toks[p].is("ALL")) {
				p = prevSig(toks, p)
			}
			if p < 0 || !toks[p].is("SELECT") {
				continue
			}
			c := clause{kind: clauseTop, start: i}
			j := nextSig(toks, i)
			if j >= 0 && toks[j].isPunct("(") {
				v, end := valueAt(toks, nextSig(toks, j))
				closeIdx := nextSig(toks, end)
				if v == "" || closeIdx < 0 || !toks[closeIdx].isPunct(")") {
					return nil, fmt.Errorf("%w: unsupported TOP expression", ErrIrreconcilable)
				}
				c.limit, c.end = v, closeIdx
			} else {
				v, end := valueAt(toks, j)
				if v == "" {
					return nil, fmt.Errorf("%w: unsupported TOP expression", ErrIrreconcilable)
				}
				c.limit, c.end = v, end
			}
			if n := nextSig(toks, c.end); n >= 0 && (toks[n].is("PERCENT") || toks[n].is("WITH")) {
				return nil, fmt.Errorf("%w: TOP %s", ErrIrreconcilable, strings.ToUpper(toks[n].text))
			}
			out = append(out, c)
			i = c.end
		case t.is("LIMIT"):
			c := clause{kind: clauseLimit, start: i}
			j := nextSig(toks, i)
			if j >= 0 && toks[j].is("ALL") {
				c.end = j
				out = append(out, c)
				i = j
				continue
			}
			v, end := valueAt(toks, j)
			if v == "" {
				return nil, fmt.Errorf("%w: unsupported LIMIT expression", ErrIrreconcilable)
			}
			c.limit, c.end = v, end
			if n := nextSig(toks, end); n >= 0 && toks[n].isPunct(",") {
				v2, end2 := valueAt(toks, nextSig(toks, n))
				if v2 == "" {
					return nil, fmt.Errorf("%w: unsupported LIMIT expression", ErrIrreconcilable)
				}
				c.offset, c.limit, c.end, c.comma = v, v2, end2, true
			}
			out = append(out, c)
			i = c.end
		case t.is("OFFSET"):
			c := clause{kind: clauseOffset, start: i}
			v, end := valueAt(toks, nextSig(toks, i))
			if v == "" {
				return nil, fmt.Errorf("%w: unsupported OFFSET expression", ErrIrreconcilable)
			}
			c.offset, c.end = v, end
			if n := nextSig(toks, end); n >= 0 && (toks[n].is("ROW") || toks[n].is("ROWS")) {
				c.end, c.rows = n, true
			}
			out = append(out, c)
			i = c.end
		case t.is("FETCH"):
			c := clause{kind: clauseFetch, start: i, limit: "1"}
			j := nextSig(toks, i)
			if j < 0 || !(toks[j].is("FIRST") || toks[j].is("NEXT")) {
				return nil, fmt.Errorf("%w: malformed FETCH clause", ErrIrreconcilable)
			}
			j = nextSig(toks, j)
			if v, end := valueAt(toks, j); v != "" {
				c.limit = v
				j = nextSig(toks, end)
			}
			if j < 0 || !(toks[j].is("ROW") || toks[j].is("ROWS")) {
				return nil, fmt.Errorf("%w: malformed FETCH clause", ErrIrreconcilable)
			}
			j = nextSig(toks, j)
			if j < 0 || !toks[j].is("ONLY") {
				return nil, fmt.Errorf("%w: FETCH without ONLY", ErrIrreconcilable)
			}
			c.end = j
			out = append(out, c)
			i = j
		}
	}
	return out, nil
}

// valueAt reads a row count starting at j: a number, a negated number or a
// single bind parameter/word. It returns "" when nothing usable is there.
func valueAt(toks []token, j int) (string, int) {
	if j < 0 {
		return "", j
	}
	t := toks[j]
	switch {
	case t.kind == tokNumber:
		return t.text, j
	case t.isPunct("-"):
		if n := nextSig(toks, j); n >= 0 && toks[n].kind == tokNumber {
			return "-" + toks[n].text, n
		}
	case t.isPunct("?") || t.isPunct(":") || t.isPunct("@") || t.isPunct("$"):
		if n := nextSig(toks, j); n >= 0 && (toks[n].kind == tokWord || toks[n].kind == tokNumber) && n == j+1 {
			return t.text + toks[n].text, n
		}
		return t.text, j
	case t.kind == tokWord && !reserved[strings.ToUpper(t.text)]:
		return t.text, j
	}
	return "", j
}

func pageFormOf(clauses []clause) (pageForm, error) {
	var kinds []clauseKind
	for _, c := range clauses {
		kinds = append(kinds, c.kind)
	}
	switch len(clauses) {
	case 0:
		return formNone, nil
	case 1:
		c := clauses[0]
		switch c.kind {
		case clauseTop:
			return formTop, nil
		case clauseLimit:
			if c.comma {
				return formLimitComma, nil
			}
			return formLimitOffset, nil
		case clauseOffset:
			if c.rows {
				return formOffsetFetch, nil
			}
			return formOffsetOnly, nil
		case clauseFetch:
			return formFetchFirst, nil
		}
	case 2:
		a, b := clauses[0], clauses[1]
		switch {
		case a.kind == clauseLimit && !a.comma && b.kind == clauseOffset && !b.rows:
			return formLimitOffset, nil
		case a.kind == clauseOffset && !a.rows && b.kind == clauseLimit && !b.comma:
			return formOffsetLimit, nil
		case a.kind == clauseOffset && b.kind == clauseFetch:
			return formOffsetFetch, nil
		}
	}
	return formNone, fmt.Errorf("%w: conflicting row-limiting clauses %v", ErrIrreconcilable, kinds)
}

func (k clauseKind) String() string {
	switch k {
	case clauseTop:
		return "TOP"
	case clauseLimit:
		return "LIMIT"
	case clauseOffset:
		return "OFFSET"
	default:
		return "FETCH"
	}
}

func isInteger(v string) bool {
	v = strings.TrimPrefix(v, "-")
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// removeClauses deletes the clauses and the whitespace before each of them.
func removeClauses(toks []token, clauses []clause) []token {
	for k := len(clauses) - 1; k >= 0; k-- {
		c := clauses[k]
		start := c.start
		if start > 0 && toks[start-1].kind == tokSpace {
			start--
		}
		toks = splice(toks, start, c.end, nil)
	}
	return trimStatement(toks)
}

func hasOrderBy(toks []token) bool {
	depth := depths(toks)
	for i, t := range toks {
		if depth[i] == 0 && t.is("ORDER") {
			if n := nextSig(toks, i); n >= 0 && toks[n].is("BY") {
				return true
			}
		}
	}
	return false
}

func hasSetOperator(toks []token) bool {
	depth := depths(toks)
	for i, t := range toks {
		if depth[i] == 0 && (t.is("UNION") || t.is("INTERSECT") || t.is("EXCEPT")) {
			return true
		}
	}
	return false
}

// insertTop places TOP n after the first top-level SELECT [DISTINCT|ALL].
func insertTop(toks []token, limit string) ([]token, error) {
	depth := depths(toks)
	for i, t := range toks {
		if depth[i] != 0 || !t.is("SELECT") {
			continue
		}
		at := i
		if n := nextSig(toks, i); n >= 0 && (toks[n].is("DISTINCT") || toks[n].is("ALL")) {
			at = n
		}
		return splice(toks, at+1, at, []token{space(), word("TOP"), space(), number(limit)}), nil
	}
	return nil, fmt.Errorf("%w: no top-level SELECT to attach TOP to", ErrIrreconcilable)
}
