package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"invoicer/internal/core"
	"invoicer/internal/sheets"

	"github.com/google/uuid"
)

// Run and pass statuses.
const (
	StatusOK               = "ok"
	StatusEmpty            = "empty"
	StatusFailed           = "failed"
	StatusAlreadyProcessed = "already_processed"
	StatusNoProgramRows    = "no_program_rows"
	StatusNoMatches        = "no_matches"
)

// Stage outcome statuses.
const (
	StageOK      = "ok"
	StageSkipped = "skipped"
	StageFailed  = "failed"
)

var ErrNoPeriod = errors.New("no accounting period given and none pending")

// StageOutcome records how an optional enrichment stage ended.
type StageOutcome struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of one ProcessMonth call.
type Result struct {
	RunID            string         `json:"run_id"`
	Period           string         `json:"period"`
	Status           string         `json:"status"`
	RowsWritten      int            `json:"rows_written"`
	InvoicesAssigned int            `json:"invoices_assigned"`
	Links            *LinkResult    `json:"links,omitempty"`
	Invoices         *AssignResult  `json:"invoices,omitempty"`
	Tables           []TableOutcome `json:"tables,omitempty"`
	Stages           []StageOutcome `json:"stages,omitempty"`
}

// RunHistory persists run outcomes and answers whether a period already
// completed.
type RunHistory interface {
	HasSuccessfulRun(ctx context.Context, period string) (bool, error)
	RecordRun(ctx context.Context, run core.RunRecord) error
}

// EventPublisher announces completed periods.
type EventPublisher interface {
	PublishPeriodProcessed(ctx context.Context, run core.RunRecord) error
}

// ProcessorConfig locates the four collections and fixes run behaviour.
type ProcessorConfig struct {
	Ledger             LedgerLocation
	ConfigTable        string
	EffortCollection   string
	ContactsCollection string
	Program            ProgramLocation
	Mode               MatchMode
	ForceOverwrite     bool
	AllowReprocess     bool
	ReadConcurrency    int
}

// RunOptions override per-run flags.
type RunOptions struct {
	ForceOverwrite bool
	AllowReprocess bool
}

// Processor sequences aggregation, ledger append, link population and
// invoice assignment for one accounting period.
type Processor struct {
	store      sheets.TabularStore
	classifier *core.Classifier
	cfg        ProcessorConfig
	history    RunHistory
	events     EventPublisher
	now        func() time.Time
}

// Option configures optional Processor collaborators.
type Option func(*Processor)

func WithHistory(h RunHistory) Option { return func(p *Processor) { p.history = h } }

func WithEvents(e EventPublisher) Option { return func(p *Processor) { p.events = e } }

func WithClock(now func() time.Time) Option { return func(p *Processor) { p.now = now } }

func NewProcessor(store sheets.TabularStore, classifier *core.Classifier, cfg ProcessorConfig, opts ...Option) *Processor {
	if classifier == nil {
		classifier = core.DefaultClassifier()
	}
	p := &Processor{store: store, classifier: classifier, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Config returns the processor configuration.
func (p *Processor) Config() ProcessorConfig {
	return p.cfg
}

// PendingPeriod reads the period waiting to be processed from the config
// table (cell A1). An empty string means nothing is pending.
func (p *Processor) PendingPeriod(ctx context.Context) (string, error) {
	rows, err := p.store.ReadRange(ctx, p.cfg.Ledger.CollectionID, sheets.Cell(p.cfg.ConfigTable, 0, 1))
	if err != nil {
		return "", fmt.Errorf("read pending period: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return strings.TrimSpace(core.Cell(rows[0], 0)), nil
}

// ProcessMonth runs the pipeline with the configured flags.
func (p *Processor) ProcessMonth(ctx context.Context, period string) (Result, error) {
	return p.ProcessMonthWith(ctx, period, RunOptions{
		ForceOverwrite: p.cfg.ForceOverwrite,
		AllowReprocess: p.cfg.AllowReprocess,
	})
}

// ProcessMonthWith runs the pipeline for period. Failures before or during
// the ledger append are returned; link and invoice stages fail softly and
// are reported in Result.Stages.
func (p *Processor) ProcessMonthWith(ctx context.Context, period string, opts RunOptions) (Result, error) {
	period = strings.TrimSpace(period)
	if period == "" {
		return Result{}, ErrNoPeriod
	}
	if _, err := ParseMatchMode(string(p.cfg.Mode)); err != nil {
		return Result{}, err
	}

	run := core.RunRecord{ID: uuid.NewString(), Period: period, StartedAt: p.now().UTC()}
	res := Result{RunID: run.ID, Period: period}

	if p.history != nil && !opts.AllowReprocess {
		done, err := p.history.HasSuccessfulRun(ctx, period)
		if err != nil {
			return res, fmt.Errorf("check run history: %w", err)
		}
		if done {
			slog.WarnContext(ctx, "Period already processed, refusing to append again", "period", period, "run_id", run.ID)
			res.Status = StatusAlreadyProcessed
			return res, nil
		}
	}

	slog.InfoContext(ctx, "Processing period", "period", period, "run_id", run.ID)

	agg, err := NewAggregator(p.store, p.classifier, p.cfg.ReadConcurrency).Aggregate(ctx, p.cfg.EffortCollection, period)
	if err != nil {
		return res, p.fail(ctx, run, fmt.Errorf("aggregate: %w", err))
	}
	res.Tables = agg.Tables

	rows := BuildLedgerRows(agg.Totals, period, p.now())
	if len(rows) == 0 {
		slog.InfoContext(ctx, "No effort rows for period, nothing appended", "period", period)
		res.Status = StatusEmpty
		run.Status = StatusEmpty
		p.record(ctx, run)
		return res, nil
	}

	written, err := NewLedgerAppender(p.store, p.cfg.Ledger).Append(ctx, rows)
	if err != nil {
		return res, p.fail(ctx, run, err)
	}
	res.RowsWritten = written
	run.RowsWritten = written

	linkStage := p.runStage(ctx, "links", func(ctx context.Context) error {
		lr, err := p.populateLinks(ctx)
		if err != nil {
			return err
		}
		res.Links = &lr
		run.LinksUpdated = lr.Updated
		run.EmailsWritten = lr.EmailsWritten
		return nil
	})
	res.Stages = append(res.Stages, linkStage)

	invoiceStage := p.runStage(ctx, "invoices", func(ctx context.Context) error {
		ar, err := NewInvoiceAssigner(p.store, p.cfg.Ledger, p.cfg.Program).Assign(ctx, AssignRequest{
			Period:         period,
			Mode:           p.cfg.Mode,
			ForceOverwrite: opts.ForceOverwrite,
		})
		if err != nil {
			return err
		}
		res.Invoices = &ar
		res.InvoicesAssigned = ar.Assigned
		run.InvoicesAssigned = ar.Assigned
		return nil
	})
	res.Stages = append(res.Stages, invoiceStage)

	markStage := p.runStage(ctx, "mark_processed", func(ctx context.Context) error {
		return p.markProcessed(ctx, period)
	})
	res.Stages = append(res.Stages, markStage)

	res.Status = StatusOK
	run.Status = StatusOK
	run.FinishedAt = p.now().UTC()
	p.record(ctx, run)
	if p.events != nil {
		if err := p.events.PublishPeriodProcessed(ctx, run); err != nil {
			slog.ErrorContext(ctx, "Failed to publish period processed event", "period", period, "error", err)
		}
	}

	slog.InfoContext(ctx, "Period processed",
		"period", period,
		"rows_written", res.RowsWritten,
		"invoices_assigned", res.InvoicesAssigned)
	return res, nil
}

// PopulateLinks runs only the link/email stage.
func (p *Processor) PopulateLinks(ctx context.Context) (LinkResult, error) {
	return p.populateLinks(ctx)
}

// AssignInvoices runs only the invoice stage. An empty req.Mode uses the
// configured mode.
func (p *Processor) AssignInvoices(ctx context.Context, req AssignRequest) (AssignResult, error) {
	if req.Mode == "" {
		req.Mode = p.cfg.Mode
	}
	return NewInvoiceAssigner(p.store, p.cfg.Ledger, p.cfg.Program).Assign(ctx, req)
}

func (p *Processor) populateLinks(ctx context.Context) (LinkResult, error) {
	dir, err := NewContactResolver(p.store, p.classifier, p.cfg.ReadConcurrency).Build(ctx, p.cfg.ContactsCollection)
	if err != nil {
		return LinkResult{}, err
	}
	return NewLinkPopulator(p.store, p.cfg.Ledger).Populate(ctx, dir)
}

func (p *Processor) markProcessed(ctx context.Context, period string) error {
	marker := fmt.Sprintf("Processed %s at %s", period, p.now().UTC().Format(time.RFC3339))
	return p.store.WriteRange(ctx, p.cfg.Ledger.CollectionID, sheets.Cell(p.cfg.ConfigTable, 1, 1), [][]string{{marker}}, sheets.InputRaw)
}

// runStage executes fn, converting errors and panics into a failed outcome.
func (p *Processor) runStage(ctx context.Context, name string, fn func(context.Context) error) (out StageOutcome) {
	out = StageOutcome{Name: name, Status: StageOK}
	defer func() {
		if r := recover(); r != nil {
			out.Status = StageFailed
			out.Error = fmt.Sprintf("panic: %v", r)
			slog.ErrorContext(ctx, "Stage panicked", "stage", name, "panic", r)
		}
	}()
	if err := fn(ctx); err != nil {
		out.Status = StageFailed
		out.Error = err.Error()
		slog.ErrorContext(ctx, "Stage failed, continuing", "stage", name, "error", err)
	}
	return out
}

func (p *Processor) fail(ctx context.Context, run core.RunRecord, err error) error {
	run.Status = StatusFailed
	run.Error = err.Error()
	p.record(ctx, run)
	return err
}

func (p *Processor) record(ctx context.Context, run core.RunRecord) {
	if p.history == nil {
		return
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = p.now().UTC()
	}
	if err := p.history.RecordRun(ctx, run); err != nil {
		slog.ErrorContext(ctx, "Failed to record run", "run_id", run.ID, "error", err)
	}
}
