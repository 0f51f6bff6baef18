package speculation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func names(traits []Trait) []string {
	var out []string
	for _, t := range traits {
		out = append(out, t.Name)
	}
	return out
}

func TestAnalyze(t *testing.T) {
	e := NewEngine(zap.NewNop())
	tests := []struct {
		question string
		want     []string
	}{
		{"Top 5 customers by revenue", []string{"top_n"}},
		{"How many orders were shipped in the last 3 months?", []string{"aggregation", "time_window"}},
		{"Which product sold the most units?", []string{"extreme"}},
		{"Average order total per region compared to 2023", []string{"aggregation", "comparison"}},
		{"List unique cities since 2021", []string{"time_window", "distinct"}},
		{"Show all customers", nil},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, names(e.Analyze(context.Background(), tt.question)))
		})
	}
}

func TestHints(t *testing.T) {
	e := NewEngine(zap.NewNop())
	hints := Hints(e.Analyze(context.Background(), "total revenue per customer"))
	assert.Equal(t, []string{"Use aggregate functions grouped by the requested dimension."}, hints)

	top := Hints(e.Analyze(context.Background(), "first 10 orders"))
	assert.Contains(t, top[0], "exactly 10 rows")
}
