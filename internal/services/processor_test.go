package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"invoicer/internal/core"
)

func newTestProcessor(t *testing.T, opts ...Option) (*Processor, func(table string) [][]string, func() int) {
	t.Helper()
	s := newFixtureStore(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	p := NewProcessor(s, core.DefaultClassifier(), fixtureConfig(), opts...)
	return p, func(table string) [][]string { return s.Table(masterID, table) }, s.WriteCalls
}

func TestProcessMonthEndToEnd(t *testing.T) {
	hist := &fakeHistory{}
	events := &fakeEvents{}
	p, table, _ := newTestProcessor(t, WithHistory(hist), WithEvents(events))

	res, err := p.ProcessMonth(context.Background(), "September 2025")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != StatusOK || res.RowsWritten != 3 || res.InvoicesAssigned != 3 {
		t.Fatalf("result: %+v", res)
	}
	for _, st := range res.Stages {
		if st.Status != StageOK {
			t.Fatalf("stage %s: %s %s", st.Name, st.Status, st.Error)
		}
	}
	if res.Links == nil || res.Links.Updated != 2 || res.Links.NotFound != 1 || res.Links.EmailsWritten != 3 {
		t.Fatalf("links: %+v", res.Links)
	}

	ledger := table("Master data")
	if len(ledger) != 4 {
		t.Fatalf("expected header plus 3 rows, got %q", ledger)
	}
	jane := ledger[1]
	want := map[int]string{
		core.ColMonth:           "September 2025",
		core.ColInstructor:      "Jane Doe",
		core.ColCategory:        "Data Science",
		core.ColTracker:         `=HYPERLINK("https://trk/jane-ds","Tracker Link")`,
		core.ColAmount:          "1500.00",
		core.ColPeriod:          "1 September - 30 September 2025",
		core.ColInvoiceLastDate: "01 10 2025",
		core.ColInvoiceNumber:   "Invoice # 8",
		core.ColInvoiceDated:    "30/09/2025",
		core.ColEmail:           "jane@example.com",
		core.ColInvoiceAudit:    "MatchedProgramRows:2,3; PrevInv:7; Assigned:8",
	}
	for col, v := range want {
		if core.Cell(jane, col) != v {
			t.Fatalf("col %d: got %q, want %q", col, core.Cell(jane, col), v)
		}
	}
	if ledger[2][core.ColInvoiceNumber] != "Invoice # 13" || ledger[3][core.ColInvoiceNumber] != "Invoice # 9" {
		t.Fatalf("invoice numbers: %q, %q", ledger[2][core.ColInvoiceNumber], ledger[3][core.ColInvoiceNumber])
	}

	marker := table("Config")[0][1]
	if marker != "Processed September 2025 at 2025-10-01T09:30:00Z" {
		t.Fatalf("marker: %q", marker)
	}

	if len(hist.runs) != 1 || hist.runs[0].Status != StatusOK || hist.runs[0].RowsWritten != 3 || hist.runs[0].ID != res.RunID {
		t.Fatalf("history: %+v", hist.runs)
	}
	if len(events.published) != 1 || events.published[0].InvoicesAssigned != 3 {
		t.Fatalf("events: %+v", events.published)
	}
}

func TestProcessMonthEmptyAggregation(t *testing.T) {
	hist := &fakeHistory{}
	events := &fakeEvents{}
	p, table, writes := newTestProcessor(t, WithHistory(hist), WithEvents(events))

	res, err := p.ProcessMonth(context.Background(), "January 2030")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	// Bob's row has a blank month and counts for any period.
	if res.Status != StatusOK || res.RowsWritten != 1 {
		t.Fatalf("result: %+v", res)
	}

	p, table, writes = newTestProcessor(t, WithHistory(hist), WithEvents(events))
	s := p.store.(interface {
		AddTable(string, string, [][]string)
	})
	s.AddTable(effortID, "Master DS", [][]string{{"Month", "SME", "Amount"}})
	res, err = p.ProcessMonth(context.Background(), "January 2030")
	if err != nil || res.Status != StatusEmpty {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if writes() != 0 {
		t.Fatalf("empty run wrote to the store")
	}
	if len(table("Config")[0]) != 1 {
		t.Fatalf("empty run marked the period processed")
	}
}

func TestProcessMonthRefusesProcessedPeriod(t *testing.T) {
	hist := &fakeHistory{done: map[string]bool{"September 2025": true}}
	p, _, writes := newTestProcessor(t, WithHistory(hist))

	res, err := p.ProcessMonth(context.Background(), "September 2025")
	if err != nil || res.Status != StatusAlreadyProcessed {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if writes() != 0 || len(hist.runs) != 0 {
		t.Fatalf("refused run must not write or record")
	}

	res, err = p.ProcessMonthWith(context.Background(), "September 2025", RunOptions{AllowReprocess: true})
	if err != nil || res.Status != StatusOK {
		t.Fatalf("reprocess: res=%+v err=%v", res, err)
	}

	hist.err = errors.New("db locked")
	if _, err := p.ProcessMonth(context.Background(), "October 2025"); err == nil {
		t.Fatal("expected history error")
	}
}

func TestProcessMonthStageFailureDoesNotBlockAppend(t *testing.T) {
	s := newFixtureStore(t)
	cfg := fixtureConfig()
	cfg.ContactsCollection = "missing"
	p := NewProcessor(s, nil, cfg, WithClock(func() time.Time { return fixedNow }))

	res, err := p.ProcessMonth(context.Background(), "September 2025")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Status != StatusOK || res.RowsWritten != 3 || res.InvoicesAssigned != 3 {
		t.Fatalf("result: %+v", res)
	}
	if res.Stages[0].Name != "links" || res.Stages[0].Status != StageFailed || res.Stages[0].Error == "" {
		t.Fatalf("links stage: %+v", res.Stages[0])
	}
	if res.Stages[1].Status != StageOK || res.Links != nil {
		t.Fatalf("stages: %+v links=%+v", res.Stages, res.Links)
	}
}

func TestProcessMonthFatalErrors(t *testing.T) {
	hist := &fakeHistory{}
	p, _, writes := newTestProcessor(t, WithHistory(hist))
	if _, err := p.ProcessMonth(context.Background(), "  "); !errors.Is(err, ErrNoPeriod) {
		t.Fatalf("expected ErrNoPeriod, got %v", err)
	}

	s := newFixtureStore(t)
	cfg := fixtureConfig()
	cfg.Mode = ""
	p = NewProcessor(s, nil, cfg)
	if _, err := p.ProcessMonth(context.Background(), "September 2025"); !errors.Is(err, ErrInvalidMatchMode) {
		t.Fatalf("expected ErrInvalidMatchMode, got %v", err)
	}
	if s.WriteCalls() != 0 || writes() != 0 {
		t.Fatalf("fatal errors must precede any mutation")
	}

	cfg = fixtureConfig()
	cfg.EffortCollection = "missing"
	p = NewProcessor(newFixtureStore(t), nil, cfg, WithHistory(hist))
	if _, err := p.ProcessMonth(context.Background(), "September 2025"); err == nil {
		t.Fatal("expected aggregation error")
	}
	if len(hist.runs) != 1 || hist.runs[0].Status != StatusFailed || !strings.Contains(hist.runs[0].Error, "aggregate") {
		t.Fatalf("failed run not recorded: %+v", hist.runs)
	}
}

func TestProcessMonthPublishFailureIsLogged(t *testing.T) {
	events := &fakeEvents{err: errors.New("broker down")}
	p, _, _ := newTestProcessor(t, WithEvents(events))
	res, err := p.ProcessMonth(context.Background(), "September 2025")
	if err != nil || res.Status != StatusOK {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestPendingPeriod(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	got, err := p.PendingPeriod(context.Background())
	if err != nil || got != "September 2025" {
		t.Fatalf("got %q err=%v", got, err)
	}

	s := newFixtureStore(t)
	s.AddTable(masterID, "Config", nil)
	p = NewProcessor(s, nil, fixtureConfig())
	if got, err := p.PendingPeriod(context.Background()); err != nil || got != "" {
		t.Fatalf("blank config: %q err=%v", got, err)
	}
}

func TestRunStageRecoversPanics(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	out := p.runStage(context.Background(), "boom", func(context.Context) error { panic("kaboom") })
	if out.Status != StageFailed || !strings.Contains(out.Error, "kaboom") {
		t.Fatalf("outcome: %+v", out)
	}
}

func TestStandaloneStages(t *testing.T) {
	p, table, _ := newTestProcessor(t)
	ctx := context.Background()
	if _, err := p.ProcessMonth(ctx, "September 2025"); err != nil {
		t.Fatalf("process: %v", err)
	}

	lr, err := p.PopulateLinks(ctx)
	if err != nil || lr.Updated != 2 || lr.EmailsWritten != 0 {
		t.Fatalf("links rerun: %+v err=%v", lr, err)
	}

	ar, err := p.AssignInvoices(ctx, AssignRequest{Period: "September 2025"})
	if err != nil || ar.Assigned != 0 || ar.Skipped != 3 {
		t.Fatalf("assign rerun: %+v err=%v", ar, err)
	}
	ar, err = p.AssignInvoices(ctx, AssignRequest{Period: "September 2025", ForceOverwrite: true})
	if err != nil || ar.Assigned != 3 {
		t.Fatalf("forced assign: %+v err=%v", ar, err)
	}
	if got := table("Master data")[1][core.ColInvoiceNumber]; got != "Invoice # 8" {
		t.Fatalf("forced run must restart above the program maximum: %q", got)
	}
}
