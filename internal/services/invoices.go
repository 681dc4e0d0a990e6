package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"invoicer/internal/core"
	"invoicer/internal/sheets"
)

// MatchMode selects how instructor names are turned into grouping keys.
// Exact and normalized runs over the same data can group rows differently.
type MatchMode string

const (
	MatchExact      MatchMode = "exact"
	MatchNormalized MatchMode = "normalized"
)

var (
	ErrInvalidMatchMode   = errors.New("invalid match mode (want exact or normalized)")
	ErrInvoiceNumberRange = errors.New("invoice number out of range")
)

// ParseMatchMode validates a configured mode. There is no default.
func ParseMatchMode(s string) (MatchMode, error) {
	switch m := MatchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case MatchExact, MatchNormalized:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMatchMode, s)
}

// Key returns the grouping key for a raw instructor name.
func (m MatchMode) Key(raw string) string {
	if m == MatchNormalized {
		return core.NormalizeIdentity(raw)
	}
	return raw
}

// Header keywords in priority order, with the columns used when no header
// matches.
var (
	programInstructorKeywords = []string{"sme name", "sme name / company name", "company name"}
	programInvoiceKeywords    = []string{"invoice number", "invoice"}
	ledgerMonthKeywords       = []string{"month"}
	ledgerInstructorKeywords  = []string{"sme", "instructor", "name"}
	ledgerInvoiceKeywords     = []string{"invoice number", "invoice"}
	ledgerAuditKeywords       = []string{"invoice audit"}
)

const (
	programInstructorFallback = 2
	programInvoiceFallback    = 1
	// programColumns and ledgerReadTo bound the header discovery window (A..Z).
	programColumns = 26
	ledgerReadTo   = 25
)

var digitRun = regexp.MustCompile(`\d+`)

// ExtractInvoiceNumber returns the first run of digits in raw, or 0 when
// there is none. A run too large for an int is an ErrInvoiceNumberRange.
func ExtractInvoiceNumber(raw string) (int, error) {
	m := digitRun.FindString(raw)
	if m == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvoiceNumberRange, m)
	}
	return n, nil
}

// FormatInvoiceNumber renders an assigned number as stored in the ledger.
func FormatInvoiceNumber(n int) string {
	return fmt.Sprintf("Invoice # %d", n)
}

// FormatAudit records which program rows set the floor, the floor itself
// and the number assigned.
func FormatAudit(refs []int, prevMax, assigned int) string {
	list := "none"
	if len(refs) > 0 {
		parts := make([]string, len(refs))
		for i, r := range refs {
			parts[i] = strconv.Itoa(r)
		}
		list = strings.Join(parts, ",")
	}
	return fmt.Sprintf("MatchedProgramRows:%s; PrevInv:%d; Assigned:%d", list, prevMax, assigned)
}

// ProgramHistory is the per-key floor derived from the program store.
type ProgramHistory struct {
	PrevMax map[string]int
	// Refs lists the sheet rows (1-based, header is row 1) seen per key.
	Refs map[string][]int
	// Unreadable lists, per key, the sheet rows whose number could not be
	// parsed. Such keys have no reliable floor and are never assigned.
	Unreadable map[string][]int
	Rows       int
}

// ScanProgramHistory reads the header-led program table once and keeps the
// highest issued number per instructor key.
func ScanProgramHistory(rows [][]string, mode MatchMode) ProgramHistory {
	h := ProgramHistory{PrevMax: map[string]int{}, Refs: map[string][]int{}, Unreadable: map[string][]int{}}
	if len(rows) < 2 {
		return h
	}
	header := rows[0]
	colName := core.ColumnOr(core.FindColumnByPriority(header, programInstructorKeywords...), programInstructorFallback)
	colInv := core.ColumnOr(core.FindColumnByPriority(header, programInvoiceKeywords...), programInvoiceFallback)
	for i, row := range rows[1:] {
		h.Rows++
		name := core.Cell(row, colName)
		if strings.TrimSpace(name) == "" {
			continue
		}
		key := mode.Key(name)
		num, err := ExtractInvoiceNumber(core.Cell(row, colInv))
		if err != nil {
			h.Unreadable[key] = append(h.Unreadable[key], i+2)
		}
		if cur, ok := h.PrevMax[key]; !ok || num > cur {
			h.PrevMax[key] = num
		}
		h.Refs[key] = append(h.Refs[key], i+2)
	}
	return h
}

// AssignRequest parameterizes one assignment pass.
type AssignRequest struct {
	// Period restricts assignment to ledger rows whose month cell equals it.
	// Empty means every period.
	Period         string
	Mode           MatchMode
	ForceOverwrite bool
}

// Assignment is one number written to the ledger.
type Assignment struct {
	Row        int    `json:"row"`
	Instructor string `json:"instructor"`
	Number     int    `json:"number"`
	Audit      string `json:"audit"`
}

// AssignResult summarizes an assignment pass.
type AssignResult struct {
	Status   string `json:"status"`
	Assigned int    `json:"assigned"`
	Skipped  int    `json:"skipped"`
	// Excluded counts matched rows left alone because their instructor's
	// program history holds an unreadable number.
	Excluded     int          `json:"excluded,omitempty"`
	ExcludedKeys []string     `json:"excluded_keys,omitempty"`
	Assignments  []Assignment `json:"assignments,omitempty"`
}

// invoicePlan is the computed content of the invoice and audit columns for
// every ledger data row.
type invoicePlan struct {
	AssignResult
	colInvoice int
	colAudit   int
	invoice    []string
	audit      []string
}

// planAssignments computes new invoice numbers over the ledger (header row
// first). Rows are processed in ledger order; rows that already carry a
// number keep it and do not consume a slot unless req.ForceOverwrite.
func planAssignments(ledger [][]string, hist ProgramHistory, req AssignRequest) invoicePlan {
	header := ledger[0]
	data := ledger[1:]
	plan := invoicePlan{
		colInvoice: core.ColumnOr(core.FindColumnByPriority(header, ledgerInvoiceKeywords...), core.ColInvoiceNumber),
		colAudit:   core.ColumnOr(core.FindColumnByPriority(header, ledgerAuditKeywords...), core.ColInvoiceAudit),
	}
	colMonth := core.ColumnOr(core.FindColumnByPriority(header, ledgerMonthKeywords...), core.ColMonth)
	colName := core.ColumnOr(core.FindColumnByPriority(header, ledgerInstructorKeywords...), core.ColInstructor)

	plan.invoice = make([]string, len(data))
	plan.audit = make([]string, len(data))
	for i, row := range data {
		plan.invoice[i] = core.Cell(row, plan.colInvoice)
		plan.audit[i] = core.Cell(row, plan.colAudit)
	}

	filter := strings.TrimSpace(req.Period)
	var order []string
	groups := map[string][]int{}
	for i, row := range data {
		if filter != "" && strings.TrimSpace(core.Cell(row, colMonth)) != filter {
			continue
		}
		name := core.Cell(row, colName)
		if strings.TrimSpace(name) == "" {
			continue
		}
		key := req.Mode.Key(name)
		if _, ok := hist.PrevMax[key]; !ok {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	if len(order) == 0 {
		plan.Status = StatusNoMatches
		return plan
	}

	plan.Status = StatusOK
	for _, key := range order {
		prev := hist.PrevMax[key]
		if len(hist.Unreadable[key]) > 0 || prev > math.MaxInt-len(groups[key]) {
			plan.Excluded += len(groups[key])
			plan.ExcludedKeys = append(plan.ExcludedKeys, key)
			continue
		}
		next := prev + 1
		for _, i := range groups[key] {
			if strings.TrimSpace(plan.invoice[i]) != "" && !req.ForceOverwrite {
				plan.Skipped++
				continue
			}
			audit := FormatAudit(hist.Refs[key], prev, next)
			plan.invoice[i] = FormatInvoiceNumber(next)
			plan.audit[i] = audit
			plan.Assignments = append(plan.Assignments, Assignment{
				Row:        i + 2,
				Instructor: core.Cell(data[i], colName),
				Number:     next,
				Audit:      audit,
			})
			plan.Assigned++
			next++
		}
	}
	return plan
}

// ProgramLocation addresses the program table. An empty Table reads the
// collection's first table.
type ProgramLocation struct {
	CollectionID string
	Table        string
}

// InvoiceAssigner numbers ledger rows above each instructor's historical
// maximum in the program store.
type InvoiceAssigner struct {
	store   sheets.TabularStore
	ledger  LedgerLocation
	program ProgramLocation
}

func NewInvoiceAssigner(store sheets.TabularStore, ledger LedgerLocation, program ProgramLocation) *InvoiceAssigner {
	return &InvoiceAssigner{store: store, ledger: ledger, program: program}
}

// Assign runs one pass. Invoice and audit columns are written together, once,
// for the whole ledger; nothing is written when no row changed.
func (a *InvoiceAssigner) Assign(ctx context.Context, req AssignRequest) (AssignResult, error) {
	if _, err := ParseMatchMode(string(req.Mode)); err != nil {
		return AssignResult{}, err
	}
	ledger, err := readLedger(ctx, a.store, a.ledger, ledgerReadTo)
	if err != nil {
		return AssignResult{}, fmt.Errorf("read ledger: %w", err)
	}
	if len(ledger) < 2 {
		return AssignResult{Status: StatusEmpty}, nil
	}
	progRows, err := a.store.ReadRange(ctx, a.program.CollectionID, sheets.Columns(a.program.Table, 0, programColumns-1, 1))
	if err != nil {
		return AssignResult{}, fmt.Errorf("read program table: %w", err)
	}
	if len(progRows) < 2 {
		slog.InfoContext(ctx, "Program table has no data rows, nothing to assign")
		return AssignResult{Status: StatusNoProgramRows}, nil
	}
	hist := ScanProgramHistory(progRows, req.Mode)

	plan := planAssignments(ledger, hist, req)
	for _, key := range plan.ExcludedKeys {
		slog.WarnContext(ctx, "Skipping instructor with unreadable invoice history",
			"instructor_key", key,
			"program_rows", hist.Unreadable[key])
	}
	if plan.Assigned == 0 {
		slog.InfoContext(ctx, "No invoice numbers to assign", "status", plan.Status, "skipped", plan.Skipped, "excluded", plan.Excluded)
		return plan.AssignResult, nil
	}

	n := len(ledger) - 1
	writes := []sheets.RangeWrite{
		{Range: a.ledger.dataColumn(plan.colInvoice, n), Rows: column(plan.invoice), Mode: sheets.InputRaw},
		{Range: a.ledger.dataColumn(plan.colAudit, n), Rows: column(plan.audit), Mode: sheets.InputRaw},
	}
	if err := writeColumns(ctx, a.store, a.ledger.CollectionID, writes); err != nil {
		return AssignResult{}, fmt.Errorf("write invoice numbers: %w", err)
	}
	slog.InfoContext(ctx, "Assigned invoice numbers",
		"period", req.Period,
		"mode", req.Mode,
		"assigned", plan.Assigned,
		"skipped", plan.Skipped)
	return plan.AssignResult, nil
}
