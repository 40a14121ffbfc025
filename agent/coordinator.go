package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Inspector SchemaInspector
	Runner    QueryRunner
	Completer Completer
	// Searcher is optional; without it no references are retrieved.
	Searcher ReferenceSearcher
	Logger   *slog.Logger
	Clock    clockwork.Clock
}

// Options bound the pipeline.
type Options struct {
	MaxRetries        int // additional execution attempts after the first
	SampleRows        int
	MaxRows           int
	PreviewRows       int
	DefaultLimit      int
	ReferenceK        int
	ReferenceChars    int
	Temperature       float64
	StageTimeout      time.Duration // each completion call
	QueryTimeout      time.Duration // each execution
	SearchTimeout     time.Duration
	ScanTimeout       time.Duration
	NarrationLanguage string
}

// DefaultOptions returns the standard bounds: two retries (three attempts).
func DefaultOptions() Options {
	return Options{
		MaxRetries:        2,
		SampleRows:        3,
		MaxRows:           DefaultMaxRows,
		PreviewRows:       DefaultPreviewRows,
		DefaultLimit:      DefaultLimit,
		ReferenceK:        DefaultReferenceK,
		ReferenceChars:    DefaultReferenceChars,
		Temperature:       0.1,
		StageTimeout:      60 * time.Second,
		QueryTimeout:      30 * time.Second,
		SearchTimeout:     10 * time.Second,
		ScanTimeout:       30 * time.Second,
		NarrationLanguage: "English",
	}
}

// Coordinator runs the stage sequence for one question at a time. It holds
// no per-question state, so one value per concurrent question is enough.
type Coordinator struct {
	log   *slog.Logger
	clock clockwork.Clock
	opts  Options

	inspector SchemaInspector
	retriever *ReferenceRetriever
	rewriter  *QueryRewriter
	selector  *TableSelector
	composer  *QueryComposer
	executor  *Executor
	narrator  *ResultNarrator
}

// New wires the stages from deps.
func New(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Inspector == nil {
		return nil, errors.New("schema inspector is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("query runner is required")
	}
	if deps.Completer == nil {
		return nil, errors.New("completion service is required")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.SampleRows < 0 {
		opts.SampleRows = 0
	}

	c := &Coordinator{
		log:       log,
		clock:     clock,
		opts:      opts,
		inspector: deps.Inspector,
		retriever: NewReferenceRetriever(deps.Searcher, log, opts.ReferenceK, opts.ReferenceChars, opts.SearchTimeout),
		rewriter:  NewQueryRewriter(deps.Completer, log, opts.Temperature, opts.StageTimeout),
		selector:  NewTableSelector(deps.Completer, log, opts.Temperature, opts.StageTimeout, opts.DefaultLimit),
		composer:  NewQueryComposer(deps.Completer, log, opts.Temperature, opts.StageTimeout, opts.DefaultLimit),
		executor:  NewExecutor(deps.Runner, log, opts.QueryTimeout),
		narrator:  NewResultNarrator(deps.Completer, log, opts.Temperature, opts.StageTimeout, opts.NarrationLanguage, opts.PreviewRows),
	}
	return c, nil
}

// Ask answers question and always returns a complete report.
func (c *Coordinator) Ask(ctx context.Context, question string) *Report {
	return NewReport(c.Run(ctx, question))
}

// Run drives one question to the NARRATED state.
func (c *Coordinator) Run(ctx context.Context, question string) *PipelineContext {
	pc := &PipelineContext{
		ID:        uuid.NewString(),
		Question:  question,
		StartedAt: c.clock.Now(),
		States:    []State{StateInit},
	}
	log := c.log.With("run", pc.ID)
	log.Info("answering question", "question", question)

	pc.References, pc.ReferenceText = c.retriever.Retrieve(ctx, question)

	pc.Schema = c.scan(ctx, log)
	c.transition(pc, StateSchemaScanned, StageSchemaInspector, StageQueryRewriter, "schema_scan", map[string]any{
		"tables":     len(pc.Schema.Tables),
		"references": len(pc.References),
	})

	pc.Intent = c.rewriter.Rewrite(ctx, question, pc.Schema, pc.ReferenceText)
	c.transition(pc, StateRewritten, StageQueryRewriter, StageTableSelector, "query_rewritten", intentPayload(pc.Intent))

	c.plan(ctx, pc)
	c.transition(pc, StatePlanned, StageTableSelector, StageQueryComposer, "plan_decided", planPayload(pc.Plan, pc.Validation))

	if !pc.Validation.Valid {
		c.transition(pc, StatePlanInvalid, StageTableSelector, StageQueryRewriter, "plan_invalid", map[string]any{
			"tables": pc.Plan.TableNames(),
			"issues": pc.Validation.Issues,
		})
		pc.Intent = c.rewriter.Refine(ctx, pc, pc.Validation.Issues)
		pc.Refinements++
		Refinements.Inc()
		c.transition(pc, StateRewritten, StageQueryRewriter, StageTableSelector, "query_refined", intentPayload(pc.Intent))

		c.plan(ctx, pc)
		c.transition(pc, StatePlanned, StageTableSelector, StageQueryComposer, "plan_decided", planPayload(pc.Plan, pc.Validation))
		if !pc.Validation.Valid {
			log.Warn("plan still invalid after refinement, proceeding", "issues", pc.Validation.Issues)
		}
	}

	ok := c.execute(ctx, pc, log)

	pc.Narration = c.narrator.Narrate(ctx, pc)
	pc.Feedback = c.narrator.Feedback(pc)
	c.transition(pc, StateNarrated, StageResultNarrator, StageSystem, "analysis_complete", map[string]any{
		"quality":     pc.Feedback.Quality,
		"row_count":   pc.Feedback.RowCount,
		"suggestions": pc.Feedback.Suggestions,
	})

	pc.FinishedAt = c.clock.Now()
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	PipelineDuration.WithLabelValues(outcome).Observe(pc.FinishedAt.Sub(pc.StartedAt).Seconds())
	log.Info("question answered", "outcome", outcome, "rows", len(pc.Rows), "attempts", len(pc.Attempts), "messages", len(pc.Messages))
	return pc
}

// plan decides and validates against the current intent.
func (c *Coordinator) plan(ctx context.Context, pc *PipelineContext, notes ...string) {
	pc.Plan = c.selector.Decide(ctx, pc.Intent, pc.Schema, notes...)
	pc.Validation = c.selector.Validate(pc.Plan, pc.Schema)
}

// execute runs the bounded compose/execute loop and reports success.
func (c *Coordinator) execute(ctx context.Context, pc *PipelineContext, log *slog.Logger) bool {
	errorFeedback := ""
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		pc.Query = c.composer.Compose(ctx, pc.Plan, pc.Question, pc.Schema, errorFeedback)
		kind := "sql_composed"
		if attempt > 0 {
			kind = "sql_retry"
		}
		c.transition(pc, StateComposed, StageQueryComposer, StageExecutor, kind, map[string]any{
			"attempt": attempt,
			"sql":     pc.Query,
		})
		c.transition(pc, StateExecuting, StageCoordinator, StageExecutor, "execution_started", map[string]any{
			"attempt":  attempt,
			"max_rows": c.opts.MaxRows,
		})

		start := c.clock.Now()
		res := c.executor.Execute(ctx, pc.Query, c.opts.MaxRows)
		pc.Attempts = append(pc.Attempts, QueryAttempt{
			Index:    attempt,
			Query:    pc.Query,
			RowCount: len(res.Rows),
			Err:      res.Err,
			Duration: c.clock.Since(start),
		})

		if res.Err == nil {
			ExecutionAttempts.WithLabelValues("ok").Inc()
			pc.Rows, pc.Columns = res.Rows, res.Columns
			c.transition(pc, StateExecutedOK, StageExecutor, StageResultNarrator, "data_ready", map[string]any{
				"attempt":   attempt,
				"row_count": len(res.Rows),
				"columns":   res.Columns,
			})
			return true
		}

		ExecutionAttempts.WithLabelValues(res.Err.Kind.String()).Inc()
		log.Warn("execution failed", "attempt", attempt, "kind", res.Err.Kind, "error", res.Err.Message)
		failure := map[string]any{
			"attempt": attempt,
			"kind":    res.Err.Kind.String(),
			"error":   res.Err.Message,
		}

		if attempt == c.opts.MaxRetries {
			c.transition(pc, StateExecutionFailed, StageExecutor, StageCoordinator, "execution_error", failure)
			break
		}

		receiver := StageQueryComposer
		if res.Err.Kind == ErrorSchemaAbsence {
			receiver = StageTableSelector
		}
		c.transition(pc, StateExecutionFailed, StageExecutor, receiver, "execution_error_retry", failure)

		errorFeedback = res.Err.Message
		if res.Err.Kind == ErrorSchemaAbsence {
			c.plan(ctx, pc, "error: "+res.Err.Message)
			c.transition(pc, StatePlanned, StageTableSelector, StageQueryComposer, "replanned", planPayload(pc.Plan, pc.Validation))
		}
	}

	last := pc.LastError()
	pc.Rows, pc.Columns = nil, nil
	c.transition(pc, StateTerminalFailed, StageCoordinator, StageResultNarrator, "execution_failed", map[string]any{
		"error":        last.Message,
		"kind":         last.Kind.String(),
		"retries_used": len(pc.Attempts) - 1,
	})
	return false
}

// scan takes the schema snapshot. A failed scan yields an empty overview.
func (c *Coordinator) scan(ctx context.Context, log *slog.Logger) (schema *SchemaOverview) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("schema scan panicked", "panic", r)
			schema = &SchemaOverview{ScannedAt: c.clock.Now()}
		}
	}()
	if c.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ScanTimeout)
		defer cancel()
	}
	s, err := c.inspector.Scan(ctx, c.opts.SampleRows)
	if err != nil || s == nil {
		log.Warn("schema scan failed, continuing with empty schema", "error", err)
		return &SchemaOverview{ScannedAt: c.clock.Now()}
	}
	return s
}

// transition records one state change and its message.
func (c *Coordinator) transition(pc *PipelineContext, to State, from, recv Stage, kind string, payload map[string]any) {
	msg := Message{
		Seq:      len(pc.Messages) + 1,
		Sender:   from,
		Receiver: recv,
		Kind:     kind,
		Payload:  payload,
		At:       c.clock.Now(),
	}
	pc.Messages = append(pc.Messages, msg)
	pc.States = append(pc.States, to)
	c.log.Debug("transition", "run", pc.ID, "state", to, "from", from, "to", recv, "kind", kind)
}

func intentPayload(in Intent) map[string]any {
	return map[string]any{
		"goal":       in.Goal,
		"tables":     in.Tables,
		"confidence": in.Confidence,
		"degraded":   in.Degraded,
	}
}

func planPayload(p Plan, v ValidationResult) map[string]any {
	return map[string]any{
		"tables":     p.TableNames(),
		"confidence": p.Confidence,
		"valid":      v.Valid,
		"issues":     v.Issues,
		"summary":    fmt.Sprintf("%d tables, %d joins", len(p.Tables), len(p.Joins)),
	}
}
