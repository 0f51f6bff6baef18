// Package evaluation scores validated SQL candidates against generated test
// assertions and decides the outcome of a tier.
package evaluation

import (
	"math"

	"github.com/axiom/sqlagent/internal/models"
)

const perfect = 1 - 1e-9

// Decision is the pure part of the case procedure, before any auxiliary
// agent is consulted.
type Decision struct {
	Case     models.Case
	Best     []int
	BestRate float64
	// Borderline is set when the best rate falls in the supervisor band.
	Borderline bool
}

// NeedsSelector reports whether several candidates share the best rate.
func (d Decision) NeedsSelector() bool {
	return len(d.Best) > 1
}

// Decide maps pass rates to a case. rates holds one entry per candidate;
// NaN marks a candidate that could not be scored. Borderline decisions
// carry CaseCFailed until a supervisor says otherwise.
func Decide(rates []float64, threshold, band float64) Decision {
	d := Decision{Case: models.CaseDFailed, BestRate: -1}
	for i, r := range rates {
		if math.IsNaN(r) {
			continue
		}
		switch {
		case r > d.BestRate+1e-9:
			d.BestRate = r
			d.Best = []int{i}
		case r >= d.BestRate-1e-9:
			d.Best = append(d.Best, i)
		}
	}
	if len(d.Best) == 0 {
		d.BestRate = 0
		return d
	}

	single := len(d.Best) == 1
	switch {
	case d.BestRate >= perfect:
		d.Case = pick(single, models.CaseAGold, models.CaseBGold)
	case d.BestRate >= threshold:
		d.Case = pick(single, models.CaseASilver, models.CaseBSilver)
	case d.BestRate >= threshold-band:
		d.Case = models.CaseCFailed
		d.Borderline = true
	default:
		d.Case = models.CaseCFailed
	}
	return d
}

func pick(single bool, a, b models.Case) models.Case {
	if single {
		return a
	}
	return b
}
