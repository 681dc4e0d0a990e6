package services

import (
	"context"
	"fmt"

	"invoicer/internal/core"
	"invoicer/internal/sheets"

	"golang.org/x/sync/errgroup"
)

// Table is a named table as read from the store: header row first.
type Table struct {
	Name string
	Rows [][]string
}

// tableRead is the result of reading one table; Err is set when the read failed.
type tableRead struct {
	Table
	Err error
}

// readTables reads each named table through rng. With concurrency > 1 reads
// are issued in parallel; results are always returned in names order and a
// failed read never cancels the others.
func readTables(ctx context.Context, store sheets.TabularStore, collectionID string, names []string, concurrency int, rng func(name string) sheets.Range) []tableRead {
	out := make([]tableRead, len(names))
	if concurrency < 1 {
		concurrency = 1
	}
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			rows, err := store.ReadRange(ctx, collectionID, rng(name))
			out[i] = tableRead{Table: Table{Name: name, Rows: rows}, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// LedgerLocation addresses the master ledger table.
type LedgerLocation struct {
	CollectionID string
	Table        string
}

// dataColumn addresses rows 2..n+1 of one ledger column.
func (l LedgerLocation) dataColumn(col, n int) sheets.Range {
	return sheets.Range{Table: l.Table, FromCol: col, FromRow: 2, ToCol: col, ToRow: n + 1}
}

// readLedger reads ledger columns A..to as displayed values.
func readLedger(ctx context.Context, store sheets.TabularStore, loc LedgerLocation, to int) ([][]string, error) {
	return store.ReadRange(ctx, loc.CollectionID, sheets.Columns(loc.Table, 0, to, 1))
}

// readEntered returns the content of one ledger column for n data rows as
// entered, formulas included. Stores that only render values return them
// instead.
func readEntered(ctx context.Context, store sheets.TabularStore, loc LedgerLocation, col, n int) ([]string, error) {
	rng := loc.dataColumn(col, n)
	read := store.ReadRange
	if fr, ok := store.(sheets.FormulaReader); ok {
		read = fr.ReadFormulas
	}
	rows, err := read(ctx, loc.CollectionID, rng)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := 0; i < n && i < len(rows); i++ {
		out[i] = core.Cell(rows[i], 0)
	}
	return out, nil
}

// writeColumns applies writes in one call when the store supports batching,
// otherwise one WriteRange per element in order.
func writeColumns(ctx context.Context, store sheets.TabularStore, collectionID string, writes []sheets.RangeWrite) error {
	if bw, ok := store.(sheets.BatchWriter); ok {
		return bw.WriteRanges(ctx, collectionID, writes)
	}
	for _, w := range writes {
		if err := store.WriteRange(ctx, collectionID, w.Range, w.Rows, w.Mode); err != nil {
			return fmt.Errorf("write %s: %w", w.Range, err)
		}
	}
	return nil
}

// column wraps single cells as one-column rows.
func column(cells []string) [][]string {
	out := make([][]string, len(cells))
	for i, c := range cells {
		out[i] = []string{c}
	}
	return out
}
