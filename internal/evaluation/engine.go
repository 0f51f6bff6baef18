package evaluation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/prompts"
	"github.com/axiom/sqlagent/internal/telemetry"
	"github.com/axiom/sqlagent/internal/verifier"
)

const (
	// SupervisorTemperature is the sampling temperature of borderline reviews.
	SupervisorTemperature = 0.1
	scoringTemperature    = 0.0
	maxFanOut             = 8
)

// Config holds the tier decision parameters
type Config struct {
	TestsPerCandidate   int
	AcceptanceThreshold float64
	BorderlineBand      float64
	ReduceTests         bool
	// ShortCircuit stops scoring at the first candidate that passes every
	// test, cancelling the calls still in flight.
	ShortCircuit bool
}

// Input is one tier's evaluation request
type Input struct {
	RunID      uuid.UUID
	Tier       models.Tier
	Question   string
	Schema     string
	Evidence   []string
	Candidates []*verifier.Candidate

	TestUnits  []verifier.Asker
	Evaluator  verifier.Asker
	Selector   verifier.Asker
	Supervisor verifier.Asker
	Reducer    verifier.Asker
}

// Outcome is the terminal artifact of one tier's evaluation
type Outcome struct {
	Case      models.Case
	Selected  *verifier.Candidate
	PassRates map[string]float64
	Tests     []string
	// Failures lists the failed assertions per candidate ID.
	Failures  map[string][]string
	Auxiliary []string
	Escalate  bool
	Reason    string
}

// Engine runs the per-tier evaluation procedure
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	progress telemetry.Progress
}

// NewEngine creates an evaluation engine
func NewEngine(cfg Config, progress telemetry.Progress, logger *zap.Logger) *Engine {
	if progress == nil {
		progress = telemetry.NopProgress{}
	}
	if cfg.TestsPerCandidate <= 0 {
		cfg.TestsPerCandidate = 5
	}
	return &Engine{cfg: cfg, logger: logger, progress: progress}
}

// Evaluate generates tests, scores the candidates and decides the case.
func (e *Engine) Evaluate(ctx context.Context, in Input) *Outcome {
	ctx, span := telemetry.Tracer().Start(ctx, "evaluation.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("tier", string(in.Tier)), attribute.Int("candidates", len(in.Candidates)))

	out := e.evaluate(ctx, in)
	out.Escalate = out.Case.Failed() && !in.Tier.Terminal()
	telemetry.Outcomes.WithLabelValues(string(in.Tier), string(out.Case)).Inc()
	span.SetAttributes(attribute.String("case", string(out.Case)))
	e.progress.Stage(in.RunID, "tier_decided",
		zap.String("tier", string(in.Tier)),
		zap.String("case", string(out.Case)),
		zap.String("reason", out.Reason),
	)
	return out
}

func (e *Engine) evaluate(ctx context.Context, in Input) *Outcome {
	out := &Outcome{PassRates: map[string]float64{}, Failures: map[string][]string{}}
	if len(in.Candidates) == 0 {
		out.Case = models.CaseDFailed
		out.Reason = "no candidate passed validation"
		return out
	}

	e.progress.Stage(in.RunID, "generating_tests", zap.String("tier", string(in.Tier)))
	tests := e.generateTests(ctx, in)
	if len(tests) > 1 && e.cfg.ReduceTests {
		tests = e.reduce(ctx, in, tests, out)
	}
	out.Tests = tests

	if len(in.TestUnits) == 0 || in.Evaluator == nil {
		return e.unscored(ctx, in, out)
	}
	if len(tests) == 0 {
		out.Case = models.CaseDFailed
		out.Reason = "no tests could be generated"
		return out
	}

	e.progress.Stage(in.RunID, "scoring", zap.String("tier", string(in.Tier)), zap.Int("tests", len(tests)))
	rates := e.score(ctx, in, tests, out)
	scored := 0
	for _, r := range rates {
		if !math.IsNaN(r) {
			scored++
		}
	}
	if scored == 0 {
		out.Case = models.CaseDFailed
		out.Reason = "no candidate could be scored"
		return out
	}

	d := Decide(rates, e.cfg.AcceptanceThreshold, e.cfg.BorderlineBand)
	out.Case = d.Case
	choice := d.Best[0]
	if d.NeedsSelector() {
		choice = e.selectBest(ctx, in, d, out)
	}
	out.Selected = in.Candidates[choice]

	switch {
	case !d.Case.Failed():
		out.Reason = fmt.Sprintf("best pass rate %.0f%% over %d tests", d.BestRate*100, len(tests))
	case d.Borderline:
		e.supervise(ctx, in, d, choice, out)
	default:
		out.Selected = nil
		out.Reason = fmt.Sprintf("best pass rate %.0f%% is below the review band (threshold %.0f%%)",
			d.BestRate*100, e.cfg.AcceptanceThreshold*100)
	}
	return out
}

// unscored accepts on validation alone when the tier has no test generator
// or no evaluator configured. The result is never better than SILVER.
func (e *Engine) unscored(ctx context.Context, in Input, out *Outcome) *Outcome {
	d := Decision{Best: make([]int, len(in.Candidates)), BestRate: 1}
	for i := range in.Candidates {
		d.Best[i] = i
	}
	choice := 0
	out.Case = models.CaseASilver
	if d.NeedsSelector() {
		out.Case = models.CaseBSilver
		choice = e.selectBest(ctx, in, d, out)
	}
	out.Selected = in.Candidates[choice]
	out.Reason = "accepted on validation alone: no test generator or evaluator configured"
	return out
}

// generateTests fans out one test generation call per candidate. Failed
// calls are logged and skipped.
func (e *Engine) generateTests(ctx context.Context, in Input) []string {
	if len(in.TestUnits) == 0 {
		return nil
	}
	var (
		mu    sync.Mutex
		tests []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)
	for i, c := range in.Candidates {
		unit := in.TestUnits[i%len(in.TestUnits)]
		g.Go(func() error {
			prompt, err := prompts.Tests(prompts.TestData{
				Question: in.Question,
				Schema:   in.Schema,
				Evidence: in.Evidence,
				SQL:      c.SQL(),
				Count:    e.cfg.TestsPerCandidate,
			})
			if err != nil {
				return err
			}
			resp, err := unit.Ask(gctx, prompt, -1)
			if err != nil {
				e.logger.Warn("Test generation failed", zap.String("candidate_id", c.ID.String()), zap.Error(err))
				return nil
			}
			items, err := prompts.ParseList(resp.Text)
			if err != nil {
				e.logger.Warn("Unparsable test list", zap.String("candidate_id", c.ID.String()), zap.Error(err))
				return nil
			}
			if len(items) > e.cfg.TestsPerCandidate {
				items = items[:e.cfg.TestsPerCandidate]
			}
			mu.Lock()
			tests = append(tests, items...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error("Test generation aborted", zap.Error(err))
	}
	return dedupe(tests)
}

// reduce collapses duplicate tests with the reducer agent, keeping the
// locally deduplicated list when the reducer is missing or misbehaves.
func (e *Engine) reduce(ctx context.Context, in Input, tests []string, out *Outcome) []string {
	if in.Reducer == nil {
		return tests
	}
	prompt, err := prompts.Reducer(prompts.ReducerData{Tests: tests})
	if err != nil {
		return tests
	}
	out.Auxiliary = append(out.Auxiliary, "reducer")
	resp, err := in.Reducer.Ask(ctx, prompt, -1)
	if err != nil {
		e.logger.Warn("Test reduction failed", zap.Error(err))
		return tests
	}
	reduced, err := prompts.ParseList(resp.Text)
	if err != nil || len(reduced) == 0 || len(reduced) > len(tests) {
		e.logger.Warn("Ignoring reducer output", zap.Int("tests", len(tests)), zap.Int("reduced", len(reduced)))
		return tests
	}
	return dedupe(reduced)
}

type scoreResult struct {
	index    int
	rate     float64
	failures []string
}

// score asks the evaluator to judge every candidate concurrently. With
// ShortCircuit the first candidate to pass every test ends scoring: calls
// still in flight are cancelled and their candidates stay unscored (NaN).
func (e *Engine) score(ctx context.Context, in Input, tests []string, out *Outcome) []float64 {
	rates := make([]float64, len(in.Candidates))
	for i := range rates {
		rates[i] = math.NaN()
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan scoreResult, len(in.Candidates))
	sem := make(chan struct{}, maxFanOut)
	var wg sync.WaitGroup
	for i, c := range in.Candidates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-sctx.Done():
				results <- scoreResult{index: i, rate: math.NaN()}
				return
			}
			results <- e.scoreOne(sctx, in, i, c, tests)
		}()
	}

	for range in.Candidates {
		r := <-results
		rates[r.index] = r.rate
		if !math.IsNaN(r.rate) {
			c := in.Candidates[r.index]
			out.PassRates[c.ID.String()] = r.rate
			if len(r.failures) > 0 {
				out.Failures[c.ID.String()] = r.failures
			}
		}
		if e.cfg.ShortCircuit && r.rate >= perfect {
			cancel()
		}
	}
	wg.Wait()
	return rates
}

func (e *Engine) scoreOne(ctx context.Context, in Input, i int, c *verifier.Candidate, tests []string) scoreResult {
	res := scoreResult{index: i, rate: math.NaN()}
	prompt, err := prompts.Evaluation(prompts.EvaluationData{Question: in.Question, SQL: c.SQL(), Tests: tests})
	if err != nil {
		return res
	}
	resp, err := in.Evaluator.Ask(ctx, prompt, scoringTemperature)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("Scoring failed", zap.String("candidate_id", c.ID.String()), zap.Error(err))
		}
		return res
	}
	verdicts, err := prompts.ParseVerdicts(resp.Text, len(tests))
	if err != nil {
		e.logger.Warn("Unparsable scoring reply", zap.String("candidate_id", c.ID.String()), zap.Error(err))
		return res
	}
	passed := 0
	for j, v := range verdicts {
		if v.Pass {
			passed++
		} else {
			res.failures = append(res.failures, tests[j])
		}
	}
	res.rate = float64(passed) / float64(len(tests))
	return res
}

// selectBest asks the selector to break a tie, falling back to the first
// tied candidate.
func (e *Engine) selectBest(ctx context.Context, in Input, d Decision, out *Outcome) int {
	if in.Selector == nil {
		return d.Best[0]
	}
	choices := make([]prompts.Choice, len(d.Best))
	for i, idx := range d.Best {
		choices[i] = prompts.Choice{SQL: in.Candidates[idx].SQL(), PassRate: d.BestRate}
	}
	prompt, err := prompts.Selector(prompts.SelectorData{Question: in.Question, Candidates: choices})
	if err != nil {
		return d.Best[0]
	}
	out.Auxiliary = append(out.Auxiliary, "selector")
	resp, err := in.Selector.Ask(ctx, prompt, -1)
	if err != nil {
		e.logger.Warn("Selector failed, keeping first tied candidate", zap.Error(err))
		return d.Best[0]
	}
	choice, reason, err := prompts.ParseChoice(resp.Text, len(d.Best))
	if err != nil {
		e.logger.Warn("Unparsable selector reply", zap.Error(err))
		return d.Best[0]
	}
	e.logger.Debug("Selector picked candidate", zap.Int("choice", choice), zap.String("reason", reason))
	return d.Best[choice]
}

// supervise asks the supervisor for a final judgment on a borderline
// candidate.
func (e *Engine) supervise(ctx context.Context, in Input, d Decision, choice int, out *Outcome) {
	c := in.Candidates[choice]
	if in.Supervisor == nil {
		out.Selected = nil
		out.Reason = fmt.Sprintf("best pass rate %.0f%% is borderline and no supervisor is configured", d.BestRate*100)
		return
	}
	prompt, err := prompts.Supervisor(prompts.SupervisorData{
		Question: in.Question,
		SQL:      c.SQL(),
		PassRate: d.BestRate,
		Failed:   out.Failures[c.ID.String()],
	})
	if err != nil {
		out.Selected = nil
		out.Reason = err.Error()
		return
	}
	out.Auxiliary = append(out.Auxiliary, "supervisor")
	resp, err := in.Supervisor.Ask(ctx, prompt, SupervisorTemperature)
	if err != nil {
		out.Selected = nil
		out.Reason = fmt.Sprintf("supervisor unavailable: %v", err)
		return
	}
	j, err := prompts.ParseJudgment(resp.Text)
	if err != nil || !j.Gold {
		out.Selected = nil
		out.Reason = fmt.Sprintf("supervisor rejected borderline candidate at %.0f%%", d.BestRate*100)
		if j.Reason != "" {
			out.Reason += ": " + j.Reason
		}
		return
	}
	out.Case = pick(!d.NeedsSelector(), models.CaseAGold, models.CaseBGold)
	out.Reason = "supervisor approved borderline candidate"
	if j.Reason != "" {
		out.Reason += ": " + j.Reason
	}
}

// dedupe drops tests that are equal after case and whitespace folding.
func dedupe(tests []string) []string {
	seen := make(map[string]bool, len(tests))
	out := make([]string, 0, len(tests))
	for _, t := range tests {
		key := strings.Join(strings.Fields(strings.ToLower(t)), " ")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
