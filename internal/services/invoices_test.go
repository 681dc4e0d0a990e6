package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"invoicer/internal/core"
	"invoicer/internal/sheets/memory"
)

func TestExtractInvoiceNumber(t *testing.T) {
	cases := map[string]int{
		"INV-0007":     7,
		"Invoice # 12": 12,
		"2025/31":      2025,
		"none":         0,
		"":             0,
	}
	for in, want := range cases {
		got, err := ExtractInvoiceNumber(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %d, want %d", in, got, want)
		}
	}
	if _, err := ExtractInvoiceNumber("INV-99999999999999999999"); !errors.Is(err, ErrInvoiceNumberRange) {
		t.Fatalf("expected ErrInvoiceNumberRange, got %v", err)
	}
}

func TestParseMatchMode(t *testing.T) {
	for _, in := range []string{"exact", " Normalized "} {
		if _, err := ParseMatchMode(in); err != nil {
			t.Fatalf("%q: %v", in, err)
		}
	}
	for _, in := range []string{"", "fuzzy"} {
		if _, err := ParseMatchMode(in); !errors.Is(err, ErrInvalidMatchMode) {
			t.Fatalf("%q: expected ErrInvalidMatchMode, got %v", in, err)
		}
	}
}

func TestFormatAudit(t *testing.T) {
	if got := FormatAudit([]int{2, 5}, 7, 8); got != "MatchedProgramRows:2,5; PrevInv:7; Assigned:8" {
		t.Fatalf("got %q", got)
	}
	if got := FormatAudit(nil, 0, 1); got != "MatchedProgramRows:none; PrevInv:0; Assigned:1" {
		t.Fatalf("got %q", got)
	}
}

var programRows = [][]string{
	{"Date", "Invoice Number", "SME Name / Company Name"},
	{"2025-08-31", "INV-0007", "Jane Doe"},
	{"2025-07-31", "INV-0003", "Jane Doe"},
	{"2025-08-31", "Invoice 12", "Bob Stone"},
	{"2025-08-31", "", "  "},
	{"2025-06-30", "n/a", "Ann Lee"},
}

func TestScanProgramHistory(t *testing.T) {
	h := ScanProgramHistory(programRows, MatchNormalized)
	if h.PrevMax["jane doe"] != 7 || h.PrevMax["bob stone"] != 12 {
		t.Fatalf("prevMax: %v", h.PrevMax)
	}
	if n, ok := h.PrevMax["ann lee"]; !ok || n != 0 {
		t.Fatalf("ann lee must have history with floor 0: %v", h.PrevMax)
	}
	if refs := h.Refs["jane doe"]; len(refs) != 2 || refs[0] != 2 || refs[1] != 3 {
		t.Fatalf("refs: %v", refs)
	}
	if h.Rows != 5 {
		t.Fatalf("rows: %d", h.Rows)
	}

	exact := ScanProgramHistory(programRows, MatchExact)
	if _, ok := exact.PrevMax["Jane Doe"]; !ok {
		t.Fatalf("exact keys: %v", exact.PrevMax)
	}
}

func TestScanProgramHistoryHeaderFallback(t *testing.T) {
	rows := [][]string{
		{"a", "b", "c"},
		{"x", "No. 41", "Jane"},
	}
	h := ScanProgramHistory(rows, MatchExact)
	if h.PrevMax["Jane"] != 41 {
		t.Fatalf("fallback columns: %v", h.PrevMax)
	}
}

func ledger(rows ...[]string) [][]string {
	return append([][]string{ledgerHeader}, rows...)
}

func row(month, instructor, invoice string) []string {
	return []string{month, instructor, "Data Science", "", "10.00", "", "", invoice, "", "", ""}
}

func TestPlanAssignments(t *testing.T) {
	hist := ScanProgramHistory(programRows, MatchNormalized)
	l := ledger(
		row("September 2025", "Jane Doe", ""),
		row("September 2025", "Carl New", ""),
		row("September 2025", "jane  doe", ""),
		row("September 2025", "Bob Stone", ""),
	)
	plan := planAssignments(l, hist, AssignRequest{Period: "September 2025", Mode: MatchNormalized})

	if plan.Status != StatusOK || plan.Assigned != 3 {
		t.Fatalf("status=%s assigned=%d", plan.Status, plan.Assigned)
	}
	want := []string{"Invoice # 8", "", "Invoice # 9", "Invoice # 13"}
	for i, w := range want {
		if plan.invoice[i] != w {
			t.Fatalf("row %d: got %q, want %q", i+2, plan.invoice[i], w)
		}
	}
	if plan.audit[0] != "MatchedProgramRows:2,3; PrevInv:7; Assigned:8" {
		t.Fatalf("audit: %q", plan.audit[0])
	}
	if plan.audit[1] != "" {
		t.Fatalf("instructor without history must not be touched: %q", plan.audit[1])
	}
	if plan.colInvoice != core.ColInvoiceNumber || plan.colAudit != core.ColInvoiceAudit {
		t.Fatalf("columns: %d %d", plan.colInvoice, plan.colAudit)
	}
}

func TestPlanAssignmentsExcludesUnreadableHistory(t *testing.T) {
	prog := [][]string{
		{"Date", "Invoice Number", "SME Name"},
		{"x", "INV-99999999999999999999", "Jane"},
		{"x", "INV-0004", "Jane"},
		{"x", "INV-0002", "Bob"},
	}
	hist := ScanProgramHistory(prog, MatchExact)
	if rows := hist.Unreadable["Jane"]; len(rows) != 1 || rows[0] != 2 {
		t.Fatalf("unreadable: %v", hist.Unreadable)
	}

	l := ledger(
		row("September 2025", "Jane", ""),
		row("September 2025", "Bob", ""),
	)
	plan := planAssignments(l, hist, AssignRequest{Mode: MatchExact})
	if plan.invoice[0] != "" || plan.audit[0] != "" {
		t.Fatalf("jane must not be numbered: %q %q", plan.invoice[0], plan.audit[0])
	}
	if plan.invoice[1] != "Invoice # 3" {
		t.Fatalf("bob: %q", plan.invoice[1])
	}
	if plan.Assigned != 1 || plan.Excluded != 1 || len(plan.ExcludedKeys) != 1 || plan.ExcludedKeys[0] != "Jane" {
		t.Fatalf("result: %+v", plan.AssignResult)
	}
}

func TestPlanAssignmentsExcludesFloorAtIntLimit(t *testing.T) {
	hist := ProgramHistory{PrevMax: map[string]int{"Jane": math.MaxInt}}
	plan := planAssignments(ledger(row("September 2025", "Jane", "")), hist, AssignRequest{Mode: MatchExact})
	if plan.Assigned != 0 || plan.Excluded != 1 || plan.invoice[0] != "" {
		t.Fatalf("result: %+v invoice=%q", plan.AssignResult, plan.invoice[0])
	}
}

func TestPlanAssignmentsMonotonic(t *testing.T) {
	hist := ScanProgramHistory(programRows, MatchExact)
	var rows [][]string
	for i := 0; i < 6; i++ {
		rows = append(rows, row("September 2025", "Jane Doe", ""))
	}
	plan := planAssignments(ledger(rows...), hist, AssignRequest{Mode: MatchExact})
	last := hist.PrevMax["Jane Doe"]
	for _, a := range plan.Assignments {
		if a.Number <= last {
			t.Fatalf("number %d not above %d", a.Number, last)
		}
		last = a.Number
	}
	if len(plan.Assignments) != 6 {
		t.Fatalf("assignments: %d", len(plan.Assignments))
	}
}

func TestPlanAssignmentsKeepsExistingNumbers(t *testing.T) {
	hist := ScanProgramHistory(programRows, MatchNormalized)
	l := ledger(
		row("September 2025", "Jane Doe", "Invoice # 8"),
		row("September 2025", "Jane Doe", ""),
	)

	plan := planAssignments(l, hist, AssignRequest{Period: "September 2025", Mode: MatchNormalized})
	if plan.invoice[0] != "Invoice # 8" || plan.Skipped != 1 || plan.Assigned != 1 {
		t.Fatalf("plan: %+v invoices=%q", plan.AssignResult, plan.invoice)
	}
	if plan.invoice[1] != "Invoice # 8" || plan.audit[0] != "" {
		t.Fatalf("skipped row must not consume a slot: %q audit=%q", plan.invoice, plan.audit)
	}

	forced := planAssignments(l, hist, AssignRequest{Period: "September 2025", Mode: MatchNormalized, ForceOverwrite: true})
	if forced.invoice[0] != "Invoice # 8" || forced.invoice[1] != "Invoice # 9" || forced.Assigned != 2 {
		t.Fatalf("forced: %q", forced.invoice)
	}
}

func TestPlanAssignmentsPeriodFilter(t *testing.T) {
	hist := ScanProgramHistory(programRows, MatchNormalized)
	l := ledger(
		row("August 2025", "Jane Doe", ""),
		row("September 2025", "Jane Doe", ""),
	)
	plan := planAssignments(l, hist, AssignRequest{Period: "September 2025", Mode: MatchNormalized})
	if plan.invoice[0] != "" || plan.invoice[1] != "Invoice # 8" {
		t.Fatalf("filtered: %q", plan.invoice)
	}
	all := planAssignments(l, hist, AssignRequest{Mode: MatchNormalized})
	if all.invoice[0] != "Invoice # 8" || all.invoice[1] != "Invoice # 9" {
		t.Fatalf("unfiltered: %q", all.invoice)
	}
}

func TestPlanAssignmentsExactVersusNormalized(t *testing.T) {
	l := ledger(row("September 2025", "jane  doe", ""))

	exact := planAssignments(l, ScanProgramHistory(programRows, MatchExact), AssignRequest{Mode: MatchExact})
	if exact.Status != StatusNoMatches || exact.Assigned != 0 {
		t.Fatalf("exact: %+v", exact.AssignResult)
	}
	norm := planAssignments(l, ScanProgramHistory(programRows, MatchNormalized), AssignRequest{Mode: MatchNormalized})
	if norm.Assigned != 1 {
		t.Fatalf("normalized: %+v", norm.AssignResult)
	}
}

func TestPlanAssignmentsHeaderFallback(t *testing.T) {
	l := [][]string{
		{"Col A", "Who", "Course"},
		{"September 2025", "Jane Doe"},
	}
	plan := planAssignments(l, ScanProgramHistory(programRows, MatchExact), AssignRequest{Mode: MatchExact})
	if plan.colInvoice != core.ColInvoiceNumber || plan.colAudit != core.ColInvoiceAudit {
		t.Fatalf("fallback columns: %d %d", plan.colInvoice, plan.colAudit)
	}
	if plan.invoice[0] != "Invoice # 8" {
		t.Fatalf("invoice: %q", plan.invoice)
	}
}

func newAssigner(t *testing.T) (*InvoiceAssigner, func() [][]string) {
	t.Helper()
	s := newFixtureStore(t)
	s.AddTable(masterID, "Master data", ledger(
		row("September 2025", "Jane Doe", ""),
		row("September 2025", "Bob Stone", "Invoice # 99"),
		row("September 2025", "Jane Doe", ""),
	))
	cfg := fixtureConfig()
	a := NewInvoiceAssigner(s, cfg.Ledger, cfg.Program)
	return a, func() [][]string { return s.Table(masterID, "Master data") }
}

func TestInvoiceAssignerWritesInvoiceAndAudit(t *testing.T) {
	a, table := newAssigner(t)
	res, err := a.Assign(context.Background(), AssignRequest{Period: "September 2025", Mode: MatchNormalized})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Status != StatusOK || res.Assigned != 2 || res.Skipped != 1 {
		t.Fatalf("result: %+v", res)
	}
	got := table()
	if got[1][core.ColInvoiceNumber] != "Invoice # 8" || got[3][core.ColInvoiceNumber] != "Invoice # 9" {
		t.Fatalf("invoices: %q / %q", got[1][core.ColInvoiceNumber], got[3][core.ColInvoiceNumber])
	}
	if got[2][core.ColInvoiceNumber] != "Invoice # 99" {
		t.Fatalf("existing number changed: %q", got[2][core.ColInvoiceNumber])
	}
	if got[3][core.ColInvoiceAudit] != "MatchedProgramRows:2,3; PrevInv:7; Assigned:9" {
		t.Fatalf("audit: %q", got[3][core.ColInvoiceAudit])
	}
	if len(got[2]) > core.ColInvoiceAudit && got[2][core.ColInvoiceAudit] != "" {
		t.Fatalf("untouched row audit changed: %q", got[2][core.ColInvoiceAudit])
	}

	// a second run is a no-op
	res, err = a.Assign(context.Background(), AssignRequest{Period: "September 2025", Mode: MatchNormalized})
	if err != nil || res.Assigned != 0 || res.Skipped != 3 {
		t.Fatalf("rerun: %+v err=%v", res, err)
	}
	if again := table(); again[1][core.ColInvoiceNumber] != "Invoice # 8" || again[3][core.ColInvoiceNumber] != "Invoice # 9" {
		t.Fatalf("rerun renumbered rows")
	}
}

func TestInvoiceAssignerNoOps(t *testing.T) {
	ctx := context.Background()
	cfg := fixtureConfig()

	s := newFixtureStore(t)
	res, err := NewInvoiceAssigner(s, cfg.Ledger, cfg.Program).Assign(ctx, AssignRequest{Mode: MatchExact})
	if err != nil || res.Status != StatusEmpty {
		t.Fatalf("empty ledger: %+v err=%v", res, err)
	}

	s = newFixtureStore(t)
	s.AddTable(masterID, "Master data", ledger(row("September 2025", "Jane Doe", "")))
	s.AddTable(programID, "Program", [][]string{{"Date", "Invoice Number", "SME Name"}})
	res, err = NewInvoiceAssigner(s, cfg.Ledger, cfg.Program).Assign(ctx, AssignRequest{Mode: MatchExact})
	if err != nil || res.Status != StatusNoProgramRows || res.Assigned != 0 {
		t.Fatalf("no program rows: %+v err=%v", res, err)
	}

	s = newFixtureStore(t)
	s.AddTable(masterID, "Master data", ledger(row("September 2025", "Carl New", "")))
	res, err = NewInvoiceAssigner(s, cfg.Ledger, cfg.Program).Assign(ctx, AssignRequest{Mode: MatchExact})
	if err != nil || res.Status != StatusNoMatches {
		t.Fatalf("no matches: %+v err=%v", res, err)
	}
	if s.WriteCalls() != 0 {
		t.Fatalf("no-op assignment wrote to the store")
	}

	if _, err := NewInvoiceAssigner(s, cfg.Ledger, cfg.Program).Assign(ctx, AssignRequest{}); !errors.Is(err, ErrInvalidMatchMode) {
		t.Fatalf("expected ErrInvalidMatchMode, got %v", err)
	}
}

func TestInvoiceAssignerSequentialWritesInvoiceFirst(t *testing.T) {
	s := newFixtureStore(t)
	s.AddTable(masterID, "Master data", ledger(row("September 2025", "Jane Doe", "")))
	cfg := fixtureConfig()

	res, err := NewInvoiceAssigner(plainStore{s}, cfg.Ledger, cfg.Program).Assign(context.Background(), AssignRequest{Mode: MatchExact})
	if err != nil || res.Assigned != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if s.WriteCalls() != 2 {
		t.Fatalf("expected invoice and audit writes, got %d", s.WriteCalls())
	}
}

func TestInvoiceAssignerReadsDisplayedValues(t *testing.T) {
	s := newFixtureStore(t)
	s.AddTable(masterID, "Master data", ledger(
		row("September 2025", "Jane Doe", ""),
		row("September 2025", "Bob Stone", "13"),
	))
	entered := memory.New()
	entered.AddTable(masterID, "Master data", ledger(
		row("45901", "Jane Doe", ""),
		row("45901", "Bob Stone", "=12+1"),
	))
	cfg := fixtureConfig()

	res, err := NewInvoiceAssigner(formulaStore{Store: s, entered: entered}, cfg.Ledger, cfg.Program).
		Assign(context.Background(), AssignRequest{Period: "September 2025", Mode: MatchNormalized})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Status != StatusOK || res.Assigned != 1 || res.Skipped != 1 {
		t.Fatalf("result: %+v", res)
	}
	got := s.Table(masterID, "Master data")
	if got[1][core.ColInvoiceNumber] != "Invoice # 8" {
		t.Fatalf("jane: %q", got[1][core.ColInvoiceNumber])
	}
	if got[2][core.ColInvoiceNumber] != "13" {
		t.Fatalf("untouched row rewritten: %q", got[2][core.ColInvoiceNumber])
	}
}

func TestInvoiceAssignerSkipsUnreadableHistory(t *testing.T) {
	s := newFixtureStore(t)
	s.AddTable(masterID, "Master data", ledger(row("September 2025", "Jane Doe", "")))
	s.AddTable(programID, "Program", [][]string{
		{"Date", "Invoice Number", "SME Name"},
		{"x", "INV-99999999999999999999", "Jane Doe"},
	})
	cfg := fixtureConfig()

	res, err := NewInvoiceAssigner(s, cfg.Ledger, cfg.Program).Assign(context.Background(), AssignRequest{Mode: MatchExact})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Assigned != 0 || res.Excluded != 1 {
		t.Fatalf("result: %+v", res)
	}
	if s.WriteCalls() != 0 {
		t.Fatalf("excluded instructor must not be written")
	}
}
