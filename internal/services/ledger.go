package services

import (
	"context"
	"fmt"
	"time"

	"invoicer/internal/core"
	"invoicer/internal/sheets"
)

// BuildLedgerRows turns totals into ledger rows for period, in totals order.
// period is written as given. Tracker link, invoice number and email are
// left blank for later passes.
// When period is not a recognizable month the label is used verbatim and
// now's date stands in for the invoice date.
func BuildLedgerRows(totals []AggregateTotal, period string, now time.Time) []core.LedgerRow {
	label := period
	dated := now.Format(core.InvoiceDatedLayout)
	if info, ok := core.ParseAccountingPeriod(period); ok {
		label = info.Label()
		dated = info.InvoiceDated()
	}
	lastDate := now.Format(core.InvoiceLastDateLayout)

	rows := make([]core.LedgerRow, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, core.LedgerRow{
			Period:          period,
			Instructor:      t.Key.Instructor,
			Category:        t.Key.Category,
			Amount:          t.Amount.Round(),
			PeriodLabel:     label,
			InvoiceLastDate: lastDate,
			InvoiceDated:    dated,
		})
	}
	return rows
}

// LedgerAppender appends built rows to the master ledger.
type LedgerAppender struct {
	store  sheets.TabularStore
	ledger LedgerLocation
}

func NewLedgerAppender(store sheets.TabularStore, ledger LedgerLocation) *LedgerAppender {
	return &LedgerAppender{store: store, ledger: ledger}
}

// Append writes rows after the last ledger row and returns how many the
// store reports as written.
func (a *LedgerAppender) Append(ctx context.Context, rows []core.LedgerRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cells := make([][]string, len(rows))
	for i, r := range rows {
		cells[i] = r.Cells()
	}
	n, err := a.store.AppendRows(ctx, a.ledger.CollectionID, sheets.Columns(a.ledger.Table, 0, core.LedgerWidth-1, 1), cells)
	if err != nil {
		return 0, fmt.Errorf("append ledger rows: %w", err)
	}
	return n, nil
}
