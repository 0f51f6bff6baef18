package relevance

import "math"

// bm25 scores each document against query using Okapi BM25 with the
// non-negative IDF variant ln(1 + (N - df + 0.5)/(df + 0.5)).
func bm25(query []string, docs [][]string, k1, b float64) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 || len(query) == 0 {
		return scores
	}

	df := make(map[string]int)
	totalLen := 0
	for _, d := range docs {
		totalLen += len(d)
		seen := make(map[string]bool, len(d))
		for _, w := range d {
			if !seen[w] {
				seen[w] = true
				df[w]++
			}
		}
	}
	avgLen := float64(totalLen) / float64(len(docs))
	if avgLen == 0 {
		return scores
	}

	n := float64(len(docs))
	terms := make(map[string]bool, len(query))
	for _, q := range query {
		terms[q] = true
	}
	for i, d := range docs {
		tf := make(map[string]int, len(d))
		for _, w := range d {
			tf[w]++
		}
		dl := float64(len(d))
		for q := range terms {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[q])+0.5)/(float64(df[q])+0.5))
			scores[i] += idf * f * (k1 + 1) / (f + k1*(1-b+b*dl/avgLen))
		}
	}
	return scores
}

// minMax rescales scores to [0,1]. When every score is equal, positive
// scores map to 1 and zero scores stay 0.
func minMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	for i, s := range scores {
		switch {
		case hi == lo:
			if s > 0 {
				out[i] = 1
			}
		default:
			out[i] = (s - lo) / (hi - lo)
		}
	}
	return out
}
