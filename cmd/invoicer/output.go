package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"invoicer/internal/core"
	"invoicer/internal/services"
)

type classification struct {
	Table    string `json:"table"`
	Category string `json:"category"`
	Effort   bool   `json:"effort_table"`
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(title)
	return tw
}

func renderResult(w io.Writer, res services.Result) {
	tw := newTable(w, "Run")
	tw.AppendHeader(table.Row{"Run ID", "Period", "Status", "Rows written", "Invoices assigned"})
	tw.AppendRow(table.Row{res.RunID, res.Period, res.Status, res.RowsWritten, res.InvoicesAssigned})
	tw.Render()

	if len(res.Tables) > 0 {
		tt := newTable(w, "Effort tables")
		tt.AppendHeader(table.Row{"Table", "Category", "Status", "Rows"})
		for _, t := range res.Tables {
			tt.AppendRow(table.Row{t.Table, t.Category, t.Status, t.Rows})
		}
		tt.Render()
	}

	if len(res.Stages) > 0 {
		st := newTable(w, "Stages")
		st.AppendHeader(table.Row{"Stage", "Status", "Error"})
		for _, s := range res.Stages {
			st.AppendRow(table.Row{s.Name, s.Status, s.Error})
		}
		st.Render()
	}

	if res.Links != nil {
		renderLinks(w, *res.Links)
	}
}

func renderLinks(w io.Writer, res services.LinkResult) {
	tw := newTable(w, "Links")
	tw.AppendHeader(table.Row{"Status", "Updated", "Not found", "Emails written"})
	tw.AppendRow(table.Row{res.Status, res.Updated, res.NotFound, res.EmailsWritten})
	tw.Render()

	if len(res.Unmatched) == 0 {
		return
	}
	um := newTable(w, "Unmatched rows (sample)")
	um.AppendHeader(table.Row{"Row", "Instructor", "Category"})
	for _, u := range res.Unmatched {
		um.AppendRow(table.Row{u.Row, u.Instructor, u.Category})
	}
	um.Render()
}

func renderAssignments(w io.Writer, res services.AssignResult) {
	tw := newTable(w, fmt.Sprintf("Invoices (%s)", res.Status))
	tw.AppendHeader(table.Row{"Row", "Instructor", "Invoice", "Audit"})
	for _, a := range res.Assignments {
		tw.AppendRow(table.Row{a.Row, a.Instructor, services.FormatInvoiceNumber(a.Number), a.Audit})
	}
	tw.AppendFooter(table.Row{"", "Assigned", res.Assigned, fmt.Sprintf("skipped %d", res.Skipped)})
	tw.Render()
	if len(res.ExcludedKeys) > 0 {
		fmt.Fprintf(w, "Excluded %d rows, unreadable invoice history for: %s\n", res.Excluded, strings.Join(res.ExcludedKeys, ", "))
	}
}

func renderClassifications(w io.Writer, items []classification) {
	tw := newTable(w, "")
	tw.AppendHeader(table.Row{"Table", "Category", "Effort table"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.Table, c.Category, c.Effort})
	}
	tw.Render()
}

func renderRuns(w io.Writer, runs []core.RunRecord) {
	tw := newTable(w, "Runs")
	tw.AppendHeader(table.Row{"Started", "Run ID", "Period", "Status", "Rows", "Invoices", "Links", "Emails", "Error"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.StartedAt.Local().Format(time.DateTime),
			r.ID,
			r.Period,
			r.Status,
			r.RowsWritten,
			r.InvoicesAssigned,
			r.LinksUpdated,
			r.EmailsWritten,
			r.Error,
		})
	}
	tw.Render()
}
