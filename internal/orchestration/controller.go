// Package orchestration sequences the generation tiers of a run: it builds
// the agent pool, fans out candidate generation with per-candidate retry
// loops, hands validated candidates to the evaluation engine and escalates
// until a tier accepts a query or the tiers run out.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/axiom/sqlagent/internal/agents"
	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/evaluation"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/models"
	"github.com/axiom/sqlagent/internal/prompts"
	"github.com/axiom/sqlagent/internal/relevance"
	"github.com/axiom/sqlagent/internal/retry"
	"github.com/axiom/sqlagent/internal/speculation"
	"github.com/axiom/sqlagent/internal/telemetry"
	"github.com/axiom/sqlagent/internal/verification"
	"github.com/axiom/sqlagent/internal/verifier"
)

const (
	sinkTimeout       = 5 * time.Second
	maxEscalationNote = 6
)

// ExecutorSource hands out the read-only executor of a workspace's target
// database; *database.Executors implements it. release is called when the
// run is done.
type ExecutorSource interface {
	Executor(ctx context.Context, ws *config.Workspace) (exec verifier.Executor, release func(), err error)
}

// Cache keeps accepted results; *database.ResultCache implements it.
type Cache interface {
	Lookup(ctx context.Context, workspaceID, dialect, question string) (*models.Result, bool)
	Store(ctx context.Context, workspaceID, dialect, question string, res *models.Result)
}

// Deps are the collaborators of a Controller. Agents and Executors are
// required; the rest may be nil.
type Deps struct {
	Workspaces   config.WorkspaceSource
	Agents       agents.Builder
	Executors    ExecutorSource
	History      HistorySink
	Cache        Cache
	Certificates *verification.CertificateService
	Analyzer     *speculation.Engine
	Progress     telemetry.Progress
}

// Controller runs NL to SQL generation
type Controller struct {
	deps      Deps
	formatter *retry.Formatter
	logger    *zap.Logger

	// sinks in flight
	wg sync.WaitGroup
}

// NewController creates a controller
func NewController(deps Deps, logger *zap.Logger) (*Controller, error) {
	if deps.Agents == nil || deps.Executors == nil {
		return nil, errors.New("controller requires an agent builder and an executor source")
	}
	if deps.Progress == nil {
		deps.Progress = telemetry.NopProgress{}
	}
	formatter, err := retry.NewFormatter()
	if err != nil {
		return nil, err
	}
	return &Controller{deps: deps, formatter: formatter, logger: logger}, nil
}

// Run loads the workspace of in and generates SQL for its question.
func (c *Controller) Run(ctx context.Context, in models.GenerationInput) (*models.Result, error) {
	if c.deps.Workspaces == nil {
		return nil, errors.New("no workspace source configured")
	}
	ws, err := c.deps.Workspaces.Workspace(ctx, in.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}
	return c.GenerateSQL(ctx, in.Question, ws)
}

// run is the per-run state shared by the tiers. Only the controller's own
// goroutine writes it.
type run struct {
	id        uuid.UUID
	question  string
	ws        *config.Workspace
	pool      *agents.Pool
	validator *verifier.Validator
	engine    *evaluation.Engine
	hints     []string
	started   time.Time
	diag      models.Diagnostics
}

// GenerateSQL runs the tiers for question. It returns either a result or a
// *models.Failure, never a panic.
func (c *Controller) GenerateSQL(ctx context.Context, question string, ws *config.Workspace) (res *models.Result, err error) {
	r := &run{id: uuid.New(), question: question, ws: ws, started: time.Now()}
	ctx = telemetry.WithRunID(ctx, r.id)
	ctx, span := telemetry.Tracer().Start(ctx, "orchestration.GenerateSQL")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", r.id.String()), attribute.String("workspace_id", ws.ID))

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("Run panicked",
				zap.String("run_id", r.id.String()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res, err = nil, c.failure(r, models.FailureInternal, models.CaseDFailed, fmt.Sprintf("internal error: %v", p))
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		c.finish(ctx, r, res, err)
	}()

	c.deps.Progress.Stage(r.id, "started", zap.String("workspace_id", ws.ID))
	if strings.TrimSpace(question) == "" {
		return nil, c.failure(r, models.FailureInternal, models.CaseDFailed, "question is empty")
	}

	if c.deps.Cache != nil {
		if hit, ok := c.deps.Cache.Lookup(ctx, ws.ID, ws.Dialect, question); ok {
			c.deps.Progress.Stage(r.id, "cache_hit")
			hit.RunID = r.id
			hit.Cached = true
			return hit, nil
		}
	}

	opts, err := verifier.OptionsFromWorkspace(ws, question)
	if err != nil {
		return nil, c.failure(r, models.FailureInternal, models.CaseDFailed, err.Error())
	}

	r.pool = agents.Populate(ctx, ws, c.deps.Agents, c.logger)
	if !hasSQLAgents(r.pool) {
		return nil, c.failure(r, models.FailurePoolUnavailable, models.CaseDFailed,
			"no sql generation agent could be built for any tier")
	}

	exec, release, err := c.deps.Executors.Executor(ctx, ws)
	if err != nil {
		return nil, c.failure(r, models.FailureInternal, models.CaseDFailed, fmt.Sprintf("opening target database: %v", err))
	}
	defer release()

	classifier := relevance.NewClassifier(ws.Relevance, c.logger)
	r.validator, err = verifier.NewValidator(opts, exec, asker(r.pool.Auxiliary(agents.KindEvaluator)), classifier, c.logger)
	if err != nil {
		return nil, c.failure(r, models.FailureInternal, models.CaseDFailed, err.Error())
	}
	r.engine = evaluation.NewEngine(evaluation.Config{
		TestsPerCandidate:   ws.TestsPerCandidate,
		AcceptanceThreshold: ws.AcceptanceThreshold,
		BorderlineBand:      ws.BorderlineBand,
		ReduceTests:         ws.ReduceTests,
		ShortCircuit:        ws.ShortCircuitGold,
	}, c.deps.Progress, c.logger)
	if c.deps.Analyzer != nil {
		r.hints = speculation.Hints(c.deps.Analyzer.Analyze(ctx, question))
	}

	return c.runTiers(ctx, r)
}

func (c *Controller) runTiers(ctx context.Context, r *run) (*models.Result, error) {
	var (
		escalation string
		last       models.Case
		attempted  bool
	)
	for _, tier := range models.Tiers() {
		if err := ctx.Err(); err != nil {
			return nil, c.failure(r, models.FailureInternal, models.CaseDFailed, fmt.Sprintf("run cancelled: %v", err))
		}
		if r.pool.Size(models.RoleSQL, tier) == 0 {
			c.logger.Info("Tier has no sql agents, skipping",
				zap.String("run_id", r.id.String()),
				zap.String("tier", string(tier)),
			)
			r.diag.Tiers = append(r.diag.Tiers, models.TierDiagnostics{
				Tier: tier, Case: models.CaseDFailed, Reason: "no sql agents available",
			})
			last = models.CaseDFailed
			escalation = joinNote(escalation, fmt.Sprintf("The %s tier had no agents available.", tier))
			continue
		}
		attempted = true

		out, td, accepted := c.runTier(ctx, r, tier, escalation)
		r.diag.Tiers = append(r.diag.Tiers, td)
		last = out.Case
		if !out.Case.Failed() && out.Selected != nil {
			return c.accept(ctx, r, tier, out), nil
		}
		if !out.Escalate {
			break
		}
		escalation = joinNote(escalation, summarize(tier, out, accepted))
	}

	if !attempted {
		return nil, c.failure(r, models.FailurePoolUnavailable, models.CaseDFailed,
			"no tier had sql generation agents available")
	}
	return nil, c.failure(r, models.FailureAllTiersExhausted, last, lastReason(r.diag))
}

// runTier generates candidates for one tier and evaluates them.
func (c *Controller) runTier(ctx context.Context, r *run, tier models.Tier, escalation string) (*evaluation.Outcome, models.TierDiagnostics, []*verifier.Candidate) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestration.tier")
	defer span.End()
	span.SetAttributes(attribute.String("tier", string(tier)))
	telemetry.TierAttempts.WithLabelValues(string(tier)).Inc()
	start := time.Now()
	c.deps.Progress.Stage(r.id, "generating_candidates", zap.String("tier", string(tier)))

	k := r.ws.CandidatesPerTier
	if k < 1 {
		k = 1
	}
	type slot struct {
		cand    *verifier.Candidate
		history []models.RetryEntry
	}
	slots := make([]slot, k)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < k; i++ {
		unit, ok := r.pool.At(models.RoleSQL, tier, i)
		if !ok {
			unit, _ = r.pool.Random(models.RoleSQL, tier)
		}
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					c.logger.Error("Candidate loop panicked",
						zap.String("run_id", r.id.String()),
						zap.String("agent", unit.Name()),
						zap.Any("panic", p),
					)
				}
			}()
			cand, history := c.generateCandidate(gctx, r, unit, tier, escalation)
			slots[i] = slot{cand: cand, history: history}
			return nil
		})
	}
	_ = g.Wait()

	var accepted []*verifier.Candidate
	td := models.TierDiagnostics{Tier: tier}
	for _, s := range slots {
		r.diag.RetryHistory = append(r.diag.RetryHistory, s.history...)
		td.CandidatesRejected += len(s.history)
		if s.cand != nil {
			accepted = append(accepted, s.cand)
		}
	}
	td.CandidatesAccepted = len(accepted)

	in := evaluation.Input{
		RunID:      r.id,
		Tier:       tier,
		Question:   r.question,
		Schema:     r.ws.SchemaText,
		Evidence:   r.ws.Evidence,
		Candidates: accepted,
		Evaluator:  asker(r.pool.Auxiliary(agents.KindEvaluator)),
		Selector:   asker(r.pool.Auxiliary(agents.KindSelector)),
		Supervisor: asker(r.pool.Auxiliary(agents.KindSupervisor)),
		Reducer:    asker(r.pool.Auxiliary(agents.KindReducer)),
	}
	testUnits := r.pool.ByTier(models.RoleTest, tier)
	if len(testUnits) == 0 {
		testUnits = r.pool.ByTier(models.RoleSQL, tier)
	}
	for _, u := range testUnits {
		in.TestUnits = append(in.TestUnits, u)
	}

	out := r.engine.Evaluate(ctx, in)
	td.Case = out.Case
	td.Reason = out.Reason
	td.TestCount = len(out.Tests)
	td.PassRates = out.PassRates
	td.AuxiliaryInvoked = out.Auxiliary
	td.Duration = time.Since(start)
	span.SetAttributes(attribute.String("case", string(out.Case)))
	c.logger.Info("Tier evaluated",
		zap.String("run_id", r.id.String()),
		zap.String("tier", string(tier)),
		zap.String("case", string(out.Case)),
		zap.Int("accepted", td.CandidatesAccepted),
		zap.Int("rejected", td.CandidatesRejected),
		zap.Duration("duration", td.Duration),
	)
	return out, td, accepted
}

// generateCandidate runs one agent's retry loop: generate, validate, and on
// rejection regenerate with the formatted retry instruction until the
// agent's retry budget is spent. It returns the accepted candidate, if any,
// and the history of rejections.
func (c *Controller) generateCandidate(ctx context.Context, r *run, unit *llm.ModelUnit, tier models.Tier, escalation string) (*verifier.Candidate, []models.RetryEntry) {
	rc := retry.NewContext(r.question, string(r.validator.Dialect()))
	data := prompts.SQLData{
		Question:   r.question,
		Dialect:    string(r.validator.Dialect()),
		Schema:     r.ws.SchemaText,
		Evidence:   r.ws.Evidence,
		Hints:      r.hints,
		Escalation: escalation,
	}
	budget := unit.RetryBudget()
	var history []models.RetryEntry
	for attempt := 1; attempt <= budget+1; attempt++ {
		if ctx.Err() != nil {
			break
		}
		prompt, err := prompts.SQL(data)
		if err != nil {
			c.logger.Error("Failed to render sql prompt", zap.Error(err))
			break
		}
		resp, err := unit.Ask(ctx, prompt, -1)
		if err != nil {
			c.logger.Warn("Generation call failed",
				zap.String("run_id", r.id.String()),
				zap.String("agent", unit.Name()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if errors.Is(err, llm.ErrCircuitOpen) {
				break
			}
			continue
		}

		sql, explanation, perr := prompts.ExtractSQL(resp.Text)
		var re *retry.Error
		var cand *verifier.Candidate
		if perr != nil {
			sql = resp.Text
			re = retry.New(retry.CategoryValidationFailed, "the reply contained no SQL statement",
				"reply with exactly one SQL query in a ```sql block")
			rc.Record(sql, re)
		} else {
			cand = verifier.NewCandidate(sql, explanation, tier, unit.Name())
			cand.Attempt = attempt
			re = r.validator.Validate(ctx, cand, rc)
		}
		if re == nil {
			return cand, history
		}

		history = append(history, models.RetryEntry{Attempt: attempt, Category: string(re.Category), Message: re.Message})
		if attempt > budget {
			break
		}
		instruction, err := c.formatter.Format(rc, sql, re)
		if err != nil {
			c.logger.Error("Failed to format retry instruction", zap.Error(err))
			break
		}
		data.Retry = instruction
	}
	return nil, history
}

// accept builds the result of a successful tier.
func (c *Controller) accept(ctx context.Context, r *run, tier models.Tier, out *evaluation.Outcome) *models.Result {
	cand := out.Selected
	res := &models.Result{
		RunID:       r.id,
		SQL:         cand.SQL(),
		Explanation: cand.Explanation,
		Case:        out.Case,
		Tier:        tier,
		Agent:       cand.Agent,
		Diagnostics: r.diag,
	}
	res.Diagnostics.Duration = time.Since(r.started)
	if c.deps.Certificates != nil {
		cert, err := c.deps.Certificates.Issue(r.id, res.SQL, res.Case, tier, r.ws.Dialect)
		if err != nil {
			c.logger.Warn("Failed to issue certificate", zap.Error(err))
		} else {
			res.Certificate = cert
		}
	}
	if c.deps.Cache != nil {
		c.deps.Cache.Store(ctx, r.ws.ID, r.ws.Dialect, r.question, res)
	}
	return res
}

func (c *Controller) failure(r *run, kind models.FailureKind, cs models.Case, reason string) *models.Failure {
	d := r.diag
	d.Duration = time.Since(r.started)
	return &models.Failure{RunID: r.id, Kind: kind, Case: cs, Reason: reason, Diagnostics: d}
}

// finish reports the run to the metrics, the progress sink and the history
// sink. The sink runs detached from the caller.
func (c *Controller) finish(ctx context.Context, r *run, res *models.Result, err error) {
	rec := models.RunRecord{
		RunID:       r.id,
		WorkspaceID: r.ws.ID,
		Question:    r.question,
		Dialect:     r.ws.Dialect,
		StartedAt:   r.started,
		CompletedAt: time.Now(),
	}
	switch {
	case res != nil:
		rec.Status = models.RunStatusSucceeded
		rec.SQL, rec.Case, rec.Tier = res.SQL, res.Case, res.Tier
		rec.Diagnostics = res.Diagnostics
	default:
		rec.Status = models.RunStatusFailed
		rec.Case = models.CaseDFailed
		rec.Reason = err.Error()
		var f *models.Failure
		if errors.As(err, &f) {
			rec.Case, rec.Reason, rec.Diagnostics = f.Case, f.Reason, f.Diagnostics
		}
	}
	telemetry.Runs.WithLabelValues(string(rec.Status)).Inc()
	c.deps.Progress.Stage(r.id, "finished", zap.String("status", string(rec.Status)), zap.String("case", string(rec.Case)))

	if c.deps.History == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		defer cancel()
		c.deps.History.Record(sctx, rec)
	}()
}

// Close waits for in-flight history records.
func (c *Controller) Close() {
	c.wg.Wait()
}

func hasSQLAgents(p *agents.Pool) bool {
	for _, t := range models.Tiers() {
		if p.Size(models.RoleSQL, t) > 0 {
			return true
		}
	}
	return false
}

// asker converts a possibly nil unit, keeping a nil interface for nil.
func asker(u *llm.ModelUnit) verifier.Asker {
	if u == nil {
		return nil
	}
	return u
}

// summarize explains a failed tier to the next tier's agents.
func summarize(tier models.Tier, out *evaluation.Outcome, accepted []*verifier.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The %s tier failed (%s): %s.", tier, out.Case, out.Reason)
	n := 0
	for _, cand := range accepted {
		failed := out.Failures[cand.ID.String()]
		if len(failed) == 0 || n >= maxEscalationNote {
			continue
		}
		fmt.Fprintf(&b, "\nRejected query:\n%s\nFailed checks: %s", cand.SQL(), strings.Join(failed, "; "))
		n++
	}
	return b.String()
}

func joinNote(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "\n\n" + next
}

func lastReason(d models.Diagnostics) string {
	if len(d.Tiers) == 0 {
		return "no tier produced a result"
	}
	t := d.Tiers[len(d.Tiers)-1]
	return fmt.Sprintf("all tiers exhausted; %s tier ended %s: %s", t.Tier, t.Case, t.Reason)
}
