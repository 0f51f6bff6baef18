// Package prompts renders the instructions sent to generation and auxiliary
// agents and parses their replies.
package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var funcs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
	"pct":  func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
}

const sqlTemplate = `You are an expert SQL analyst writing a single read-only query.

Target database: {{.Dialect}}. Write PostgreSQL-style SQL (double-quoted identifiers, LIMIT/OFFSET, || for concatenation); it is translated to the target automatically.
{{- if .Schema}}

## Schema
{{.Schema}}
{{- end}}
{{- if .Evidence}}

## Evidence
{{range .Evidence}}- {{.}}
{{end}}
{{- end}}
{{- if .Hints}}

## Hints
{{range .Hints}}- {{.}}
{{end}}
{{- end}}
{{- if .Escalation}}

## Earlier attempts
A weaker tier could not answer this question. What went wrong:
{{.Escalation}}
{{- end}}

## Question
{{.Question}}
{{- if .Retry}}

## Correction required
{{.Retry}}
{{- end}}

Reply with the query in a ` + "```sql" + ` block, then one short paragraph explaining it.`

const testTemplate = `You write test assertions that a correct SQL answer to a question must satisfy.

## Question
{{.Question}}
{{- if .Schema}}

## Schema
{{.Schema}}
{{- end}}
{{- if .Evidence}}

## Evidence
{{range .Evidence}}- {{.}}
{{end}}
{{- end}}

## Candidate query
` + "```sql" + `
{{.SQL}}
` + "```" + `

Write exactly {{.Count}} independent assertions about what the correct query must do (tables used, filters, grouping, ordering, row limits, output columns). Each assertion is one sentence and must be checkable by reading a query.
Reply with a JSON array of strings only.`

const evaluationTemplate = `You judge whether a SQL query satisfies each test assertion for a question.

## Question
{{.Question}}

## Query
` + "```sql" + `
{{.SQL}}
` + "```" + `

## Assertions
{{range $i, $t := .Tests}}{{inc $i}}. {{$t}}
{{end}}
Reply with JSON only: {"results": [{"id": <assertion number>, "pass": true|false, "reason": "<short>"}]} with one entry per assertion.`

const evidenceTemplate = `You check a SQL query against binding business rules.

## Question
{{.Question}}

## Query
` + "```sql" + `
{{.SQL}}
` + "```" + `

## Rules the query must respect
{{range $i, $t := .Assertions}}{{inc $i}}. {{$t}}
{{end}}
Reply with JSON only: {"results": [{"id": <rule number>, "pass": true|false, "reason": "<short>"}]} with one entry per rule.`

const selectorTemplate = `Several SQL queries answer the same question equally well against the tests. Pick the best on secondary criteria: clarity, fewer redundant joins, explicit column lists, deterministic ordering.

## Question
{{.Question}}
{{range $i, $c := .Candidates}}
### Candidate {{$i}} (pass rate {{pct $c.PassRate}})
` + "```sql" + `
{{$c.SQL}}
` + "```" + `
{{end}}
Reply with JSON only: {"choice": <candidate number>, "reason": "<short>"}.`

const supervisorTemplate = `You are the final reviewer of a SQL answer whose test pass rate fell just short of acceptance.

## Question
{{.Question}}

## Query
` + "```sql" + `
{{.SQL}}
` + "```" + `

Pass rate: {{pct .PassRate}}
{{- if .Failed}}

## Failed assertions
{{range .Failed}}- {{.}}
{{end}}
{{- end}}

Decide whether the query correctly answers the question despite the failures. Reply with JSON only: {"verdict": "GOLD"|"FAILED", "reason": "<short>"}.`

const reducerTemplate = `The following test assertions were generated independently and may repeat each other. Merge assertions that check the same thing; keep every distinct check.

{{range $i, $t := .Tests}}{{inc $i}}. {{$t}}
{{end}}
Reply with a JSON array of the remaining assertions only.`

var (
	sqlTmpl        = template.Must(template.New("sql").Funcs(funcs).Parse(sqlTemplate))
	testTmpl       = template.Must(template.New("tests").Funcs(funcs).Parse(testTemplate))
	evaluationTmpl = template.Must(template.New("evaluation").Funcs(funcs).Parse(evaluationTemplate))
	evidenceTmpl   = template.Must(template.New("evidence").Funcs(funcs).Parse(evidenceTemplate))
	selectorTmpl   = template.Must(template.New("selector").Funcs(funcs).Parse(selectorTemplate))
	supervisorTmpl = template.Must(template.New("supervisor").Funcs(funcs).Parse(supervisorTemplate))
	reducerTmpl    = template.Must(template.New("reducer").Funcs(funcs).Parse(reducerTemplate))
)

// SQLData feeds the SQL generation prompt
type SQLData struct {
	Question   string
	Dialect    string
	Schema     string
	Evidence   []string
	Hints      []string
	Escalation string
	Retry      string
}

// TestData feeds the test generation prompt
type TestData struct {
	Question string
	Schema   string
	Evidence []string
	SQL      string
	Count    int
}

// EvaluationData feeds the scoring prompt
type EvaluationData struct {
	Question string
	SQL      string
	Tests    []string
}

// EvidenceData feeds the evidence gate prompt
type EvidenceData struct {
	Question   string
	SQL        string
	Assertions []string
}

// Choice is one candidate shown to the selector
type Choice struct {
	SQL      string
	PassRate float64
}

// SelectorData feeds the selector prompt
type SelectorData struct {
	Question   string
	Candidates []Choice
}

// SupervisorData feeds the supervisor prompt
type SupervisorData struct {
	Question string
	SQL      string
	PassRate float64
	Failed   []string
}

// ReducerData feeds the test reduction prompt
type ReducerData struct {
	Tests []string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// SQL renders the generation prompt.
func SQL(d SQLData) (string, error) { return render(sqlTmpl, d) }

// Tests renders the test generation prompt.
func Tests(d TestData) (string, error) { return render(testTmpl, d) }

// Evaluation renders the scoring prompt.
func Evaluation(d EvaluationData) (string, error) { return render(evaluationTmpl, d) }

// Evidence renders the evidence gate prompt.
func Evidence(d EvidenceData) (string, error) { return render(evidenceTmpl, d) }

// Selector renders the tie-break prompt.
func Selector(d SelectorData) (string, error) { return render(selectorTmpl, d) }

// Supervisor renders the borderline review prompt.
func Supervisor(d SupervisorData) (string, error) { return render(supervisorTmpl, d) }

// Reducer renders the test reduction prompt.
func Reducer(d ReducerData) (string, error) { return render(reducerTmpl, d) }
