package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"invoicer/internal/core"
	"invoicer/internal/sheets"
)

// UnmatchedSampleSize caps the unmatched-row diagnostic list.
const UnmatchedSampleSize = 30

// UnmatchedRow is a ledger row left without a tracker link.
type UnmatchedRow struct {
	Row        int           `json:"row"`
	Instructor string        `json:"instructor"`
	Category   core.Category `json:"category"`
}

// LinkResult summarizes one link/email population pass.
type LinkResult struct {
	Status        string         `json:"status"`
	Updated       int            `json:"updated"`
	NotFound      int            `json:"not_found"`
	EmailsWritten int            `json:"emails_written"`
	Unmatched     []UnmatchedRow `json:"unmatched_sample"`
}

// LinkPopulator fills tracker links and emails of the master ledger from a
// ContactDirectory.
type LinkPopulator struct {
	store  sheets.TabularStore
	ledger LedgerLocation
}

func NewLinkPopulator(store sheets.TabularStore, ledger LedgerLocation) *LinkPopulator {
	return &LinkPopulator{store: store, ledger: ledger}
}

// Populate rewrites the tracker and email columns for every data row.
// Rows without a resolved URL keep their current tracker cell; emails are
// written only when they differ from the current cell.
func (p *LinkPopulator) Populate(ctx context.Context, dir *ContactDirectory) (LinkResult, error) {
	rows, err := readLedger(ctx, p.store, p.ledger, core.ColEmail)
	if err != nil {
		return LinkResult{}, fmt.Errorf("read ledger: %w", err)
	}
	if len(rows) < 2 {
		return LinkResult{Status: StatusEmpty}, nil
	}
	data := rows[1:]
	current, err := readEntered(ctx, p.store, p.ledger, core.ColTracker, len(data))
	if err != nil {
		return LinkResult{}, fmt.Errorf("read tracker column: %w", err)
	}
	res, tracker, emails := resolveLinks(data, current, dir)

	writes := []sheets.RangeWrite{
		{Range: p.ledger.dataColumn(core.ColTracker, len(data)), Rows: column(tracker), Mode: sheets.InputUserEntered},
		{Range: p.ledger.dataColumn(core.ColEmail, len(data)), Rows: column(emails), Mode: sheets.InputRaw},
	}
	if err := writeColumns(ctx, p.store, p.ledger.CollectionID, writes); err != nil {
		return LinkResult{}, fmt.Errorf("write links: %w", err)
	}
	slog.InfoContext(ctx, "Populated tracker links",
		"rows", len(data),
		"updated", res.Updated,
		"not_found", res.NotFound,
		"emails_written", res.EmailsWritten)
	return res, nil
}

// resolveLinks computes new tracker and email cells for ledger data rows
// (header excluded). current holds the tracker cells as entered.
func resolveLinks(data [][]string, current []string, dir *ContactDirectory) (LinkResult, []string, []string) {
	res := LinkResult{Status: StatusOK}
	tracker := make([]string, len(data))
	emails := make([]string, len(data))
	for i, row := range data {
		instructor := core.Cell(row, core.ColInstructor)
		category := core.Category(core.Cell(row, core.ColCategory))
		url, email := dir.Resolve(instructor, category)

		if url != "" {
			tracker[i] = core.HyperlinkFormula(url, core.TrackerLinkText)
			res.Updated++
		} else {
			if i < len(current) {
				tracker[i] = current[i]
			}
			if strings.TrimSpace(tracker[i]) == "" {
				res.NotFound++
				if len(res.Unmatched) < UnmatchedSampleSize {
					res.Unmatched = append(res.Unmatched, UnmatchedRow{Row: i + 2, Instructor: instructor, Category: category})
				}
			}
		}

		existing := core.Cell(row, core.ColEmail)
		if email != "" && strings.TrimSpace(email) != strings.TrimSpace(existing) {
			emails[i] = email
			res.EmailsWritten++
		} else {
			emails[i] = existing
		}
	}
	return res, tracker, emails
}
