package relevance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const revenueSQL = `SELECT c.name, SUM(o.total) AS revenue
FROM customers c JOIN orders o ON o.customer_id = c.id
GROUP BY c.name ORDER BY revenue DESC LIMIT 5`

func TestZeroOverlapIsIrrelevant(t *testing.T) {
	weightings := []Config{DefaultConfig()}
	extreme := DefaultConfig()
	extreme.BM25Weight, extreme.StructWeight = 0, 1
	extreme.IrrelevantBelow, extreme.WeakAt, extreme.StrictAt = 0, 0, 0
	weightings = append(weightings, extreme)

	for _, cfg := range weightings {
		c := NewClassifier(cfg, zap.NewNop())
		res := c.Classify(context.Background(), Input{
			Question:   "top 5 customers by revenue",
			SQL:        revenueSQL,
			Assertions: []string{"the moon orbits the earth"},
		})
		assert.Equal(t, []string{"the moon orbits the earth"}, res.Irrelevant)
		assert.Empty(t, res.Strict)
		assert.Empty(t, res.Weak)
	}
}

func TestTableMentionWithHighBM25IsStrict(t *testing.T) {
	c := NewClassifier(DefaultConfig(), zap.NewNop())
	res := c.Classify(context.Background(), Input{
		Question: "top 5 customers by revenue",
		SQL:      revenueSQL,
		Assertions: []string{
			"customers revenue is the sum of orders total",
			"the moon orbits the earth",
		},
	})
	assert.Equal(t, []string{"customers revenue is the sum of orders total"}, res.Strict)
	assert.Equal(t, []string{"the moon orbits the earth"}, res.Irrelevant)
	require.Len(t, res.Details, 2)
	assert.Equal(t, 2, res.Details[0].TableHits)
	assert.InDelta(t, 1.0, res.Details[0].BM25, 1e-9)
}

func TestLabelThresholds(t *testing.T) {
	c := NewClassifier(DefaultConfig(), zap.NewNop())
	tests := []struct {
		name string
		d    Assertion
		want Label
	}{
		{"no signal", Assertion{}, Irrelevant},
		{"below floor", Assertion{BM25: 0.4, Score: 0.24}, Irrelevant},
		{"weak lexical", Assertion{BM25: 0.8, Score: 0.48}, Weak},
		{"high score needs anchor", Assertion{BM25: 1, Score: 0.8}, Weak},
		{"anchored strict", Assertion{BM25: 0.6, Score: 0.76, TableHits: 1}, Strict},
		{"column anchored strict", Assertion{BM25: 0.9, Score: 0.8, ColumnHits: 2}, Strict},
		{"table bm25 strict", Assertion{BM25: 0.75, Score: 0.69, TableHits: 1}, Strict},
		{"column only bm25 stays weak", Assertion{BM25: 1, Score: 0.68, ColumnHits: 1}, Weak},
		{"anchored weak", Assertion{BM25: 0.3, Score: 0.5, TableHits: 1}, Weak},
		{"between floor and weak", Assertion{BM25: 0.6, Score: 0.36}, Irrelevant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.label(tt.d))
		})
	}
}

func TestColumnOnlyAssertionIsWeak(t *testing.T) {
	c := NewClassifier(DefaultConfig(), zap.NewNop())
	res := c.Classify(context.Background(), Input{
		Question:   "refunds issued last month",
		SQL:        "SELECT COUNT(*) FROM payments p WHERE p.refunded = 1",
		Assertions: []string{"refunded means refunds were issued"},
	})
	require.Len(t, res.Details, 1)
	d := res.Details[0]
	assert.Zero(t, d.TableHits)
	assert.Equal(t, 1, d.ColumnHits)
	assert.Less(t, d.Score, DefaultConfig().StrictAt)
	assert.Equal(t, Weak, d.Label)
	assert.Empty(t, res.Strict)
}

func TestMorphologicallyRichWeights(t *testing.T) {
	c := NewClassifier(DefaultConfig(), zap.NewNop())
	res := c.Classify(context.Background(), Input{
		Question:       "Kuinka monta asiakasta on?",
		SQL:            "SELECT COUNT(*) FROM customers",
		Assertions:     []string{"customers taulussa on rivejä"},
		SchemaLanguage: "fi",
	})
	require.Len(t, res.Details, 1)
	assert.True(t, res.Details[0].MorphWeights)
	assert.Equal(t, "fi", res.Language)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage("How many orders were shipped in the last month?"))
	assert.Equal(t, "fi", DetectLanguage("Kuinka monta asiakasta on?"))
	assert.Equal(t, "ru", DetectLanguage("Сколько клиентов в Москве?"))
	assert.Equal(t, "uk", DetectLanguage("Скільки клієнтів у Києві?"))
	assert.Equal(t, "ko", DetectLanguage("고객 수"))
	assert.Equal(t, "ja", DetectLanguage("顧客の数は？"))
	assert.Equal(t, "", DetectLanguage("12345"))
}

func TestTokenize(t *testing.T) {
	got := Tokenize("The ＳＵＭ of Straße_Total", StopWords("en"))
	assert.Equal(t, []string{"sum", "strasse", "total"}, got)

	assert.Equal(t, []string{"顧", "客"}, Tokenize("顧客", nil))
}

func TestStopWordsFallback(t *testing.T) {
	stop := StopWords("xx", "")
	assert.True(t, stop["the"])
	assert.False(t, stop["revenue"])
}

func TestBM25NoOverlap(t *testing.T) {
	scores := minMax(bm25([]string{"revenue"}, [][]string{{"moon"}, {"earth", "sun"}}, 1.5, 0.75))
	assert.Equal(t, []float64{0, 0}, scores)
}

func TestBM25PrefersRelevantDocument(t *testing.T) {
	scores := bm25([]string{"revenue", "customers"},
		[][]string{{"revenue", "customers", "total"}, {"revenue", "moon"}, {"earth"}}, 1.5, 0.75)
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
	assert.Zero(t, scores[2])
}

func TestExtract(t *testing.T) {
	x := NewExtractor()
	ents := x.Extract(context.Background(),
		`SELECT o.total, c."Name" FROM sales.orders o JOIN "Customers" c ON o.customer_id = c.id`)
	assert.Contains(t, ents.Tables, "orders")
	assert.Contains(t, ents.Tables, "customers")
	assert.Contains(t, ents.Columns, "total")
	assert.Contains(t, ents.Columns, "customer_id")
	assert.NotContains(t, ents.Tables, "sales")
}

func TestTablesFromSchema(t *testing.T) {
	schema := `CREATE TABLE customers (id int);
create table if not exists public.orders (id int, total numeric);
CREATE TABLE "Line Items" (id int);`
	assert.Equal(t, []string{"customers", "line items", "orders"}, TablesFromSchema(schema))
}
