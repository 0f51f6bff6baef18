// Package speculation analyzes a natural-language question for the shapes of
// query it is likely to need. The traits become hints in generation prompts.
package speculation

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Engine analyzes questions
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a question analyzer
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger: logger,
	}
}

// Trait is one detected query shape
type Trait struct {
	Name       string  `json:"name"`
	Hint       string  `json:"hint"`
	Likelihood float64 `json:"likelihood"` // 0.0 to 1.0
}

var (
	topNRe      = regexp.MustCompile(`\b(?:top|first|best|worst|bottom)\s+(\d+)\b`)
	mostRe      = regexp.MustCompile(`\b(?:most|least|highest|lowest|largest|smallest|biggest)\b`)
	aggregateRe = regexp.MustCompile(`\b(?:how many|count|number of|total|sum|average|avg|mean|median|maximum|minimum)\b`)
	groupRe     = regexp.MustCompile(`\b(?:per|each|by|for every)\s+\w+`)
	timeRe      = regexp.MustCompile(`\b(?:last|past|previous|this|next)\s+(?:\d+\s+)?(?:day|week|month|quarter|year)s?\b|\b(?:in|since|before|after|during)\s+(?:19|20)\d{2}\b|\b(?:yesterday|today|ytd)\b`)
	compareRe   = regexp.MustCompile(`\b(?:compared? (?:to|with)|versus|vs\.?|more than|less than|greater than|fewer than|difference between)\b`)
	distinctRe  = regexp.MustCompile(`\b(?:distinct|unique|different)\b`)
)

// Analyze returns the traits detected in question, most likely first.
func (e *Engine) Analyze(ctx context.Context, question string) []Trait {
	q := strings.ToLower(question)
	var traits []Trait

	if m := topNRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		traits = append(traits, Trait{
			Name:       "top_n",
			Hint:       "Return exactly " + strconv.Itoa(n) + " rows using the dialect's row limit with a deterministic ORDER BY.",
			Likelihood: 0.95,
		})
	} else if mostRe.MatchString(q) {
		traits = append(traits, Trait{
			Name:       "extreme",
			Hint:       "Order by the measure and limit to the extreme row; consider ties.",
			Likelihood: 0.7,
		})
	}

	if aggregateRe.MatchString(q) {
		t := Trait{Name: "aggregation", Hint: "Use aggregate functions", Likelihood: 0.85}
		if groupRe.MatchString(q) {
			t.Hint += " grouped by the requested dimension"
		}
		t.Hint += "."
		traits = append(traits, t)
	}

	if timeRe.MatchString(q) {
		traits = append(traits, Trait{
			Name:       "time_window",
			Hint:       "Filter on a date range using the dialect's date functions.",
			Likelihood: 0.8,
		})
	}

	if compareRe.MatchString(q) {
		traits = append(traits, Trait{
			Name:       "comparison",
			Hint:       "Compute both sides of the comparison in one query.",
			Likelihood: 0.6,
		})
	}

	if distinctRe.MatchString(q) {
		traits = append(traits, Trait{
			Name:       "distinct",
			Hint:       "Deduplicate with DISTINCT or COUNT(DISTINCT ...).",
			Likelihood: 0.75,
		})
	}

	e.logger.Debug("analyzed question",
		zap.String("question_preview", question[:min(len(question), 40)]),
		zap.Int("traits_found", len(traits)),
	)
	return traits
}

// Hints returns the prompt hints of traits.
func Hints(traits []Trait) []string {
	out := make([]string, 0, len(traits))
	for _, t := range traits {
		out = append(out, t.Hint)
	}
	return out
}
