package retry

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// MaxHints is the number of hints rendered into one instruction.
const MaxHints = 3

const header = `Attempt {{.Retry}} was rejected ({{.Category}}).
Previous SQL ({{.Dialect}}):
{{.SQL}}
`

const footer = `{{if .Hints}}Hints:
{{range .Hints}}- {{.}}
{{end}}{{end}}{{if .History}}Earlier failures:
{{range .History}}- #{{.Attempt}} {{.Category}}: {{.Message}}
{{end}}{{end}}Return a single corrected read-only SELECT statement.`

var bodies = map[Category]string{
	CategorySyntax: `The statement did not parse. The database said: {{.Message}}
Fix the syntax for {{.Dialect}} without changing what the query computes.
`,
	CategorySchemaError: `The statement references tables or columns that do not exist, or uses a construct {{.Dialect}} cannot express: {{.Message}}
Use only names from the schema, qualified where ambiguous.
`,
	CategoryExecutionError: `The statement parsed but failed while running: {{.Message}}
Check types, joins and aggregate usage.
`,
	CategoryEmptyResult: `The statement ran but returned no rows, which this workspace treats as wrong: {{.Message}}
Reconsider filters, join conditions and literal values.
`,
	CategoryEvidenceMismatch: `The statement contradicts evidence about the data: {{.Message}}
{{if .FailedTests}}Evidence the query must satisfy:
{{range .FailedTests}}* {{.}}
{{end}}{{end}}`,
	CategoryValidationFailed: `The statement failed validation: {{.Message}}
{{if .FailedTests}}Failed checks:
{{range .FailedTests}}* {{.}}
{{end}}{{end}}`,
}

// Formatter renders retry instructions. Each category has its own wording.
type Formatter struct {
	templates map[Category]*template.Template
}

// NewFormatter parses the per-category templates
func NewFormatter() (*Formatter, error) {
	f := &Formatter{templates: make(map[Category]*template.Template, len(bodies))}
	for cat, body := range bodies {
		t, err := template.New(string(cat)).Parse(header + body + footer)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s retry template: %w", cat, err)
		}
		f.templates[cat] = t
	}
	return f, nil
}

// MustFormatter is NewFormatter for package-level initialisation.
func MustFormatter() *Formatter {
	f, err := NewFormatter()
	if err != nil {
		panic(err)
	}
	return f
}

type view struct {
	Retry       int
	Category    Category
	Dialect     string
	SQL         string
	Message     string
	Hints       []string
	FailedTests []string
	History     []HistoryEntry
}

// Format records the rejection on rc and returns the instruction for the
// next generation attempt.
func (f *Formatter) Format(rc *Context, sql string, re *Error) (string, error) {
	prior := append([]HistoryEntry(nil), rc.History...)
	rc.Fail(sql, re)

	t, ok := f.templates[re.Category]
	if !ok {
		t = f.templates[CategoryValidationFailed]
	}
	hints, failed := capHints(re.Hints), []string(nil)
	if re.Category == CategoryEvidenceMismatch || re.Category == CategoryValidationFailed {
		// the hints are the failed checks
		hints, failed = nil, capHints(rc.FailedTests)
	}
	var buf bytes.Buffer
	err := t.Execute(&buf, view{
		Retry:       rc.RetryCount,
		Category:    re.Category,
		Dialect:     rc.Dialect,
		SQL:         strings.TrimSpace(sql),
		Message:     re.Message,
		Hints:       hints,
		FailedTests: failed,
		History:     prior,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render retry instruction: %w", err)
	}
	return buf.String(), nil
}

func capHints(h []string) []string {
	if len(h) > MaxHints {
		return h[:MaxHints]
	}
	return h
}
