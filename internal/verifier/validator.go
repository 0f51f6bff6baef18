package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/axiom/sqlagent/internal/config"
	"github.com/axiom/sqlagent/internal/dialect"
	"github.com/axiom/sqlagent/internal/llm"
	"github.com/axiom/sqlagent/internal/prompts"
	"github.com/axiom/sqlagent/internal/relevance"
	"github.com/axiom/sqlagent/internal/retry"
	"github.com/axiom/sqlagent/internal/telemetry"
)

const (
	// DefaultEvidenceTimeout bounds the evidence gate call.
	DefaultEvidenceTimeout = 7 * time.Second
	// EvidenceTemperature is the sampling temperature of the evidence gate.
	EvidenceTemperature = 0.1
	maxTableHints       = 10
)

// Asker is a model unit queried with a prompt; *llm.ModelUnit implements it.
type Asker interface {
	Ask(ctx context.Context, prompt string, temperature float64) (*llm.Response, error)
}

// Options configures one run's validation
type Options struct {
	Dialect                dialect.Dialect
	Question               string
	Evidence               []string
	SchemaLanguage         string
	SchemaText             string
	StrictFailureThreshold int
	EvidenceTimeout        time.Duration
	TreatEmptyAsFailure    bool
}

// OptionsFromWorkspace derives validation options for a question.
func OptionsFromWorkspace(ws *config.Workspace, question string) (Options, error) {
	d, err := dialect.Parse(ws.Dialect)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Dialect:                d,
		Question:               question,
		Evidence:               ws.Evidence,
		SchemaLanguage:         ws.SchemaLanguage,
		SchemaText:             ws.SchemaText,
		StrictFailureThreshold: ws.StrictFailureThreshold,
		EvidenceTimeout:        ws.EvidenceTimeout,
		TreatEmptyAsFailure:    ws.TreatEmptyAsFailure,
	}, nil
}

// Validator drives candidates through the pipeline. It holds no per-candidate
// state and may validate different candidates concurrently.
type Validator struct {
	opts       Options
	rules      *dialect.Rules
	exec       Executor
	evaluator  Asker
	classifier *relevance.Classifier
	logger     *zap.Logger
}

// NewValidator creates a validator. evaluator may be nil, in which case the
// evidence gate is skipped.
func NewValidator(opts Options, exec Executor, evaluator Asker, classifier *relevance.Classifier, logger *zap.Logger) (*Validator, error) {
	rules, err := dialect.RulesFor(opts.Dialect)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("validator requires an executor")
	}
	if opts.StrictFailureThreshold < 1 {
		opts.StrictFailureThreshold = 1
	}
	if opts.EvidenceTimeout <= 0 {
		opts.EvidenceTimeout = DefaultEvidenceTimeout
	}
	return &Validator{
		opts:       opts,
		rules:      rules,
		exec:       exec,
		evaluator:  evaluator,
		classifier: classifier,
		logger:     logger,
	}, nil
}

// Dialect returns the target dialect.
func (v *Validator) Dialect() dialect.Dialect {
	return v.rules.Dialect
}

// Validate runs c through every stage. It returns nil when c is accepted,
// otherwise the rejection. Either way the attempt is recorded on rc.
func (v *Validator) Validate(ctx context.Context, c *Candidate, rc *retry.Context) *retry.Error {
	ctx, span := telemetry.Tracer().Start(ctx, "verifier.Validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("dialect", string(v.rules.Dialect)),
		attribute.String("tier", string(c.Tier)),
		attribute.String("agent", c.Agent),
	)

	re := v.run(ctx, c, rc)
	if re != nil {
		c.Stage = StageRejected
		c.LastError = re
		rc.Record(c.SQL(), re)
		telemetry.Rejections.WithLabelValues(string(re.Category)).Inc()
		span.SetStatus(codes.Error, string(re.Category))
		v.logger.Debug("Candidate rejected",
			zap.String("candidate_id", c.ID.String()),
			zap.String("agent", c.Agent),
			zap.String("category", string(re.Category)),
			zap.String("message", re.Message),
		)
		return re
	}
	c.Stage = StageAccepted
	c.LastError = nil
	rc.Record(c.Sanitized, nil)
	return nil
}

func (v *Validator) run(ctx context.Context, c *Candidate, rc *retry.Context) *retry.Error {
	sanitized, err := v.rules.Sanitize(c.Raw)
	switch {
	case errors.Is(err, dialect.ErrIrreconcilable):
		return retry.Wrap(retry.CategorySchemaError, err,
			fmt.Sprintf("Rewrite the query so it can be expressed in %s.", v.rules.Dialect))
	case errors.Is(err, dialect.ErrNotReadOnly):
		return retry.Wrap(retry.CategorySyntax, err, "Only a single SELECT or WITH query is allowed.")
	case err != nil:
		return retry.Wrap(retry.CategorySyntax, err)
	}
	c.Sanitized = sanitized
	c.Stage = StageSanitized

	if err := v.exec.ProbeSyntax(ctx, sanitized, v.rules.Dialect); err != nil {
		return v.probeFailure(ctx, err)
	}
	c.Stage = StageSyntaxChecked

	if re := v.gateEvidence(ctx, c, rc); re != nil {
		return re
	}
	c.Stage = StageEvidenceGated

	if v.opts.TreatEmptyAsFailure {
		rows, err := v.exec.Execute(ctx, sanitized)
		if err != nil {
			return v.executionFailure(ctx, err)
		}
		if rows.Len() == 0 {
			return retry.New(retry.CategoryEmptyResult, "the query returned no rows", v.tableHints()...)
		}
	}
	c.Stage = StageEmptyResultChecked
	return nil
}

// probeFailure maps a probe error. Unknown objects are schema errors,
// timeouts are execution errors and everything else is a syntax error.
func (v *Validator) probeFailure(ctx context.Context, err error) *retry.Error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return retry.Wrap(retry.CategoryExecutionError, fmt.Errorf("syntax probe timed out: %w", err))
	}
	if retry.Classify(err) == retry.CategorySchemaError {
		return retry.Wrap(retry.CategorySchemaError, err, v.tableHints()...)
	}
	return retry.Wrap(retry.CategorySyntax, err)
}

func (v *Validator) executionFailure(ctx context.Context, err error) *retry.Error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return retry.Wrap(retry.CategoryExecutionError, fmt.Errorf("query timed out: %w", err))
	}
	cat := retry.Classify(err)
	if cat == retry.CategorySchemaError {
		return retry.Wrap(cat, err, v.tableHints()...)
	}
	return retry.Wrap(cat, err)
}

// gateEvidence evaluates the Strict evidence assertions in one call.
func (v *Validator) gateEvidence(ctx context.Context, c *Candidate, rc *retry.Context) *retry.Error {
	if len(v.opts.Evidence) == 0 || v.classifier == nil {
		return nil
	}
	res := v.classifier.Classify(ctx, relevance.Input{
		Question:       v.opts.Question,
		SQL:            c.Sanitized,
		Assertions:     v.opts.Evidence,
		SchemaLanguage: v.opts.SchemaLanguage,
	})
	if len(res.Strict) == 0 {
		return nil
	}
	rc.EvidenceSummary = strings.Join(res.Strict, "; ")
	if v.evaluator == nil {
		v.logger.Warn("No evaluator configured, evidence gate skipped", zap.Int("strict", len(res.Strict)))
		return nil
	}

	prompt, err := prompts.Evidence(prompts.EvidenceData{
		Question:   v.opts.Question,
		SQL:        c.Sanitized,
		Assertions: res.Strict,
	})
	if err != nil {
		return retry.Wrap(retry.CategoryValidationFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, v.opts.EvidenceTimeout)
	defer cancel()
	resp, err := v.evaluator.Ask(callCtx, prompt, EvidenceTemperature)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Wrap(retry.CategoryExecutionError, ctx.Err())
		}
		if callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return retry.New(retry.CategoryEvidenceMismatch,
				fmt.Sprintf("evidence check timed out after %s", v.opts.EvidenceTimeout), res.Strict...)
		}
		v.logger.Warn("Evidence evaluator failed, gate skipped", zap.Error(err))
		return nil
	}

	verdicts, err := prompts.ParseVerdicts(resp.Text, len(res.Strict))
	if err != nil {
		v.logger.Warn("Evidence verdicts unparsable, gate skipped", zap.Error(err))
		return nil
	}
	var failing []string
	for i, verdict := range verdicts {
		if verdict.Pass {
			continue
		}
		msg := res.Strict[i]
		if verdict.Reason != "" {
			msg += " (" + verdict.Reason + ")"
		}
		failing = append(failing, msg)
	}
	if len(failing) >= v.opts.StrictFailureThreshold {
		return retry.New(retry.CategoryEvidenceMismatch,
			fmt.Sprintf("%d of %d binding evidence rules failed", len(failing), len(res.Strict)), failing...)
	}
	return nil
}

func (v *Validator) tableHints() []string {
	tables := relevance.TablesFromSchema(v.opts.SchemaText)
	if len(tables) == 0 {
		return nil
	}
	if len(tables) > maxTableHints {
		tables = tables[:maxTableHints]
	}
	return []string{"Known tables: " + strings.Join(tables, ", ")}
}
