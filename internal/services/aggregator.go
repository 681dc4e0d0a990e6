package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"invoicer/internal/core"
	"invoicer/internal/sheets"
)

// Header keywords for effort tables. Any header containing one of the
// keywords matches; the leftmost matching header wins.
var (
	effortInstructorKeywords = []string{"sme", "instructor", "name"}
	effortPeriodKeywords     = []string{"month"}
	effortAmountKeywords     = []string{"final round", "final amount", "amount"}
)

// effortColumns is the widest window read from an effort table (A..Z).
const effortColumns = 26

var ErrMissingColumns = errors.New("missing instructor or amount column")

// TableStatus is the per-table outcome of a best-effort read.
type TableStatus string

const (
	TableRead    TableStatus = "read"
	TableSkipped TableStatus = "skipped"
	TableFailed  TableStatus = "failed"
)

// TableOutcome records what happened to one source table.
type TableOutcome struct {
	Table    string        `json:"table"`
	Category core.Category `json:"category"`
	Status   TableStatus   `json:"status"`
	Rows     int           `json:"rows"`
	Err      error         `json:"-"`
}

// AggregateTotal is one accumulated, rounded amount.
type AggregateTotal struct {
	Key    core.AggregateKey
	Amount core.Money
}

// Aggregation holds totals in first-seen order plus per-table outcomes.
type Aggregation struct {
	Totals []AggregateTotal
	Tables []TableOutcome
}

// Aggregator sums effort amounts per (instructor, category) for one period.
type Aggregator struct {
	store       sheets.TabularStore
	classifier  *core.Classifier
	concurrency int
}

func NewAggregator(store sheets.TabularStore, classifier *core.Classifier, concurrency int) *Aggregator {
	return &Aggregator{store: store, classifier: classifier, concurrency: concurrency}
}

// Aggregate reads every "master" table of the effort collection and totals
// rows of period. A table that cannot be read is logged and skipped; only a
// failure to list the tables is returned as an error.
func (a *Aggregator) Aggregate(ctx context.Context, collectionID, period string) (Aggregation, error) {
	names, err := a.store.ListTableNames(ctx, collectionID)
	if err != nil {
		return Aggregation{}, fmt.Errorf("list effort tables: %w", err)
	}
	var qualifying []string
	for _, n := range names {
		if IsEffortTable(n) {
			qualifying = append(qualifying, n)
		}
	}
	reads := readTables(ctx, a.store, collectionID, qualifying, a.concurrency, func(name string) sheets.Range {
		return sheets.Columns(name, 0, effortColumns-1, 1)
	})

	var tables []Table
	var failed []TableOutcome
	for _, r := range reads {
		if r.Err != nil {
			slog.WarnContext(ctx, "Skipping unreadable effort table", "table", r.Name, "error", r.Err)
			failed = append(failed, TableOutcome{
				Table:    r.Name,
				Category: a.classifier.Classify(r.Name),
				Status:   TableFailed,
				Err:      r.Err,
			})
			continue
		}
		tables = append(tables, r.Table)
	}

	agg := AggregateTables(tables, period, a.classifier)
	agg.Tables = mergeOutcomes(qualifying, agg.Tables, failed)
	for _, o := range agg.Tables {
		if o.Status == TableSkipped {
			slog.WarnContext(ctx, "Skipping effort table", "table", o.Table, "error", o.Err)
		}
	}
	slog.InfoContext(ctx, "Aggregated effort tables",
		"period", period,
		"tables", len(qualifying),
		"totals", len(agg.Totals))
	return agg, nil
}

// IsEffortTable reports whether a table name takes part in aggregation.
func IsEffortTable(name string) bool {
	return strings.Contains(strings.ToLower(name), "master")
}

// AggregateTables totals rows of period across tables. Amounts are summed
// exactly and rounded once per key after all rows are added.
func AggregateTables(tables []Table, period string, classifier *core.Classifier) Aggregation {
	target := strings.TrimSpace(period)
	sums := map[core.AggregateKey]core.Money{}
	var order []core.AggregateKey
	var outcomes []TableOutcome

	for _, t := range tables {
		cat := classifier.Classify(t.Name)
		outcome := TableOutcome{Table: t.Name, Category: cat, Status: TableRead}
		if len(t.Rows) == 0 {
			outcome.Status = TableSkipped
			outcome.Err = ErrMissingColumns
			outcomes = append(outcomes, outcome)
			continue
		}
		header := t.Rows[0]
		colInstructor := core.FindColumn(header, effortInstructorKeywords...)
		colPeriod := core.FindColumn(header, effortPeriodKeywords...)
		colAmount := core.FindColumn(header, effortAmountKeywords...)
		if colInstructor < 0 || colAmount < 0 {
			outcome.Status = TableSkipped
			outcome.Err = ErrMissingColumns
			outcomes = append(outcomes, outcome)
			continue
		}
		for _, row := range t.Rows[1:] {
			if p := strings.TrimSpace(core.Cell(row, colPeriod)); p != "" && p != target {
				continue
			}
			instructor := strings.TrimSpace(core.Cell(row, colInstructor))
			if instructor == "" {
				continue
			}
			key := core.AggregateKey{Instructor: instructor, Category: cat}
			cur, seen := sums[key]
			if !seen {
				order = append(order, key)
			}
			sums[key] = cur.Add(core.ParseAmount(core.Cell(row, colAmount)))
			outcome.Rows++
		}
		outcomes = append(outcomes, outcome)
	}

	totals := make([]AggregateTotal, 0, len(order))
	for _, k := range order {
		totals = append(totals, AggregateTotal{Key: k, Amount: sums[k].Round()})
	}
	return Aggregation{Totals: totals, Tables: outcomes}
}

// mergeOutcomes lays out outcomes in the order tables were listed.
func mergeOutcomes(order []string, read, failed []TableOutcome) []TableOutcome {
	byName := make(map[string]TableOutcome, len(read)+len(failed))
	for _, o := range read {
		byName[o.Table] = o
	}
	for _, o := range failed {
		byName[o.Table] = o
	}
	out := make([]TableOutcome, 0, len(order))
	for _, n := range order {
		if o, ok := byName[n]; ok {
			out = append(out, o)
		}
	}
	return out
}
