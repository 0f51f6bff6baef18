package relevance

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"
)

// Entities are the table and column names a SQL statement references,
// lower-cased and deduplicated.
type Entities struct {
	Tables  []string `json:"tables"`
	Columns []string `json:"columns"`
}

// Empty reports whether no entity was found.
func (e Entities) Empty() bool {
	return len(e.Tables) == 0 && len(e.Columns) == 0
}

var (
	tableRe  = regexp.MustCompile(`(?i)\b(?:from|join)\s+((?:[\w$]+|"[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\])(?:\s*\.\s*(?:[\w$]+|"[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\]))*)`)
	columnRe = regexp.MustCompile(`(?i)\b([a-z_][\w$]*)\s*\.\s*([a-z_][\w$]*)\b`)
	schemaRe = regexp.MustCompile(`(?i)\bcreate\s+table\s+(?:if\s+not\s+exists\s+)?((?:[\w$]+|"[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\])(?:\.(?:[\w$]+|"[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\]))?)`)
)

// Extractor pulls entities out of SQL with tree-sitter, falling back to
// regular expressions for whatever the grammar does not recover.
type Extractor struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewExtractor creates an extractor with a SQL tree-sitter parser
func NewExtractor() *Extractor {
	parser := sitter.NewParser()
	parser.SetLanguage(sql.GetLanguage())
	return &Extractor{parser: parser}
}

// Extract returns the union of parser-found and regex-found entities.
func (x *Extractor) Extract(ctx context.Context, query string) Entities {
	tables := map[string]bool{}
	columns := map[string]bool{}

	x.parse(ctx, query, tables, columns)

	for _, m := range tableRe.FindAllStringSubmatch(query, -1) {
		tables[lastPart(m[1])] = true
	}
	for _, m := range columnRe.FindAllStringSubmatch(query, -1) {
		columns[strings.ToLower(m[2])] = true
	}
	// a qualified table name looks like table.column to the column pattern
	for _, m := range tableRe.FindAllStringSubmatch(query, -1) {
		if parts := splitQualified(m[1]); len(parts) > 1 {
			delete(columns, parts[len(parts)-1])
		}
	}
	return Entities{Tables: sortedKeys(tables), Columns: sortedKeys(columns)}
}

func (x *Extractor) parse(ctx context.Context, query string, tables, columns map[string]bool) {
	src := []byte(query)
	x.mu.Lock()
	tree, err := x.parser.ParseCtx(ctx, nil, src)
	x.mu.Unlock()
	if err != nil || tree == nil {
		return
	}
	defer tree.Close()

	text := func(n *sitter.Node) string {
		return string(src[n.StartByte():n.EndByte()])
	}
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "relation":
			if ref := firstNamed(n, "object_reference", "table_reference", "identifier"); ref != nil {
				tables[lastPart(text(ref))] = true
			}
		case "field", "column_reference":
			if name := n.ChildByFieldName("name"); name != nil {
				columns[lastPart(text(name))] = true
			} else if n.NamedChildCount() > 0 {
				columns[lastPart(text(n.NamedChild(int(n.NamedChildCount())-1)))] = true
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
}

func firstNamed(n *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// TablesFromSchema lists the table names declared by CREATE TABLE
// statements in schema text.
func TablesFromSchema(schema string) []string {
	seen := map[string]bool{}
	for _, m := range schemaRe.FindAllStringSubmatch(schema, -1) {
		seen[lastPart(m[1])] = true
	}
	return sortedKeys(seen)
}

// splitQualified splits schema.table into its unquoted, lower-cased parts.
func splitQualified(name string) []string {
	var parts []string
	for _, p := range strings.Split(name, ".") {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "\"`[]")
		if p != "" {
			parts = append(parts, strings.ToLower(p))
		}
	}
	return parts
}

func lastPart(name string) string {
	parts := splitQualified(name)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
