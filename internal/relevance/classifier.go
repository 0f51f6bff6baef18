// Package relevance labels evidence-derived assertions as Strict, Weak or
// Irrelevant for a question and a SQL candidate, combining BM25 lexical
// relevance with structural matches against the tables and columns the
// candidate references.
package relevance

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
)

// Label is the relevance class of an assertion
type Label string

const (
	Strict     Label = "strict"
	Weak       Label = "weak"
	Irrelevant Label = "irrelevant"
)

// Config holds the classifier's tunables
type Config struct {
	K1 float64 `mapstructure:"k1"`
	B  float64 `mapstructure:"b"`

	BM25Weight   float64 `mapstructure:"bm25_weight"`
	StructWeight float64 `mapstructure:"struct_weight"`
	// Weights used for morphologically rich languages when an anchor exists.
	MorphBM25Weight   float64 `mapstructure:"morph_bm25_weight"`
	MorphStructWeight float64 `mapstructure:"morph_struct_weight"`

	IrrelevantBelow float64 `mapstructure:"irrelevant_below"`
	WeakAt          float64 `mapstructure:"weak_at"`
	StrictAt        float64 `mapstructure:"strict_at"`
}

// DefaultConfig returns the standard weights and thresholds.
func DefaultConfig() Config {
	return Config{
		K1:                1.5,
		B:                 0.75,
		BM25Weight:        0.6,
		StructWeight:      0.4,
		MorphBM25Weight:   0.45,
		MorphStructWeight: 0.55,
		IrrelevantBelow:   0.30,
		WeakAt:            0.45,
		StrictAt:          0.75,
	}
}

// Input is one classification request
type Input struct {
	Question       string
	SQL            string
	Assertions     []string
	SchemaLanguage string
}

// Assertion is the per-assertion diagnostic record
type Assertion struct {
	Text         string  `json:"text"`
	Label        Label   `json:"label"`
	Score        float64 `json:"score"`
	BM25         float64 `json:"bm25"`
	Structural   float64 `json:"structural"`
	Tokens       int     `json:"tokens"`
	TableHits    int     `json:"table_hits"`
	ColumnHits   int     `json:"column_hits"`
	MorphWeights bool    `json:"morph_weights,omitempty"`
}

// Result buckets assertions by label, preserving input order
type Result struct {
	Strict     []string    `json:"strict"`
	Weak       []string    `json:"weak"`
	Irrelevant []string    `json:"irrelevant"`
	Language   string      `json:"language,omitempty"`
	Entities   Entities    `json:"entities"`
	Details    []Assertion `json:"details"`
}

// Classifier scores assertions against a question and SQL candidate
type Classifier struct {
	cfg       Config
	extractor *Extractor
	logger    *zap.Logger
}

// NewClassifier creates a classifier
func NewClassifier(cfg Config, logger *zap.Logger) *Classifier {
	return &Classifier{cfg: cfg, extractor: NewExtractor(), logger: logger}
}

// Classify labels every assertion in in.
func (c *Classifier) Classify(ctx context.Context, in Input) *Result {
	res := &Result{}
	if len(in.Assertions) == 0 {
		return res
	}

	lang := DetectLanguage(in.Question)
	res.Language = lang
	stop := StopWords(lang, in.SchemaLanguage)

	query := Tokenize(in.Question, stop)
	docs := make([][]string, len(in.Assertions))
	for i, a := range in.Assertions {
		docs[i] = Tokenize(a, stop)
	}
	lexical := minMax(bm25(query, docs, c.cfg.K1, c.cfg.B))

	ents := c.extractor.Extract(ctx, in.SQL)
	res.Entities = ents
	morph := MorphologicallyRich(lang) || MorphologicallyRich(in.SchemaLanguage)

	for i, text := range in.Assertions {
		d := Assertion{Text: text, BM25: lexical[i], Tokens: len(docs[i])}
		d.TableHits, d.ColumnHits = structuralHits(text, ents)
		if d.TableHits > 0 {
			d.Structural += 0.6
		}
		d.Structural += 0.4 * math.Min(1, float64(d.ColumnHits)/2)

		wBM25, wStruct := c.cfg.BM25Weight, c.cfg.StructWeight
		anchored := d.TableHits+d.ColumnHits > 0
		if anchored && morph {
			wBM25, wStruct = c.cfg.MorphBM25Weight, c.cfg.MorphStructWeight
			d.MorphWeights = true
		}
		d.Score = clamp(wBM25*d.BM25 + wStruct*d.Structural)
		d.Label = c.label(d)

		switch d.Label {
		case Strict:
			res.Strict = append(res.Strict, text)
		case Weak:
			res.Weak = append(res.Weak, text)
		default:
			res.Irrelevant = append(res.Irrelevant, text)
		}
		res.Details = append(res.Details, d)
	}

	c.logger.Debug("Classified assertions",
		zap.String("language", lang),
		zap.Int("strict", len(res.Strict)),
		zap.Int("weak", len(res.Weak)),
		zap.Int("irrelevant", len(res.Irrelevant)),
		zap.Strings("tables", ents.Tables),
	)
	return res
}

// label applies the thresholds. An anchored assertion is Strict when its
// combined score reaches the strict threshold. One that names a referenced
// table is also Strict on BM25 alone.
func (c *Classifier) label(d Assertion) Label {
	anchored := d.TableHits+d.ColumnHits > 0
	switch {
	case d.BM25 == 0 && !anchored:
		return Irrelevant
	case d.Score < c.cfg.IrrelevantBelow:
		return Irrelevant
	case anchored && d.Score >= c.cfg.StrictAt:
		return Strict
	case d.TableHits > 0 && d.BM25 >= c.cfg.StrictAt:
		return Strict
	case d.Score >= c.cfg.WeakAt:
		return Weak
	default:
		return Irrelevant
	}
}

// structuralHits counts the referenced tables and columns named in text.
func structuralHits(text string, ents Entities) (tables, columns int) {
	words := map[string]bool{}
	for _, w := range identWords(text) {
		words[w] = true
	}
	lower := Normalize(text)
	for _, t := range ents.Tables {
		if words[t] || (strings.ContainsAny(t, "_ ") && strings.Contains(lower, t)) {
			tables++
		}
	}
	for _, col := range ents.Columns {
		if words[col] || (strings.ContainsAny(col, "_ ") && strings.Contains(lower, col)) {
			columns++
		}
	}
	return tables, columns
}

// identWords splits text into identifier-like words, keeping underscores.
func identWords(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !(r == '_' || r == '$' || isWordRune(r))
	})
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127 && !isSpaceOrPunct(r)
}

func isSpaceOrPunct(r rune) bool {
	return strings.ContainsRune(" \t\n\r.,;:!?()[]{}\"'`«»“”‘’", r)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
