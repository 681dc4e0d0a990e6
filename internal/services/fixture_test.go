package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"invoicer/internal/core"
	"invoicer/internal/sheets"
	"invoicer/internal/sheets/memory"
)

const (
	masterID   = "master"
	effortID   = "effort"
	contactsID = "contacts"
	programID  = "program"
)

var ledgerHeader = []string{
	"Month", "SME Name", "Course", "Tracker Link", "Amount", "Period",
	"Invoice Last Date", "Invoice Number", "Invoice Dated", "Email", "Invoice Audit",
}

var fixedNow = time.Date(2025, time.October, 1, 9, 30, 0, 0, time.UTC)

// newFixtureStore seeds the four collections used by the pipeline tests.
func newFixtureStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()

	s.AddTable(masterID, "Config", [][]string{{"September 2025"}})
	s.AddTable(masterID, "Master data", [][]string{ledgerHeader})

	s.AddTable(effortID, "Master DS", [][]string{
		{"Month", "SME", "Final Amount"},
		{"September 2025", "Jane Doe", "1200.00"},
		{"October 2025", "Jane Doe", "500"},
		{"September 2025", "Jane Doe", "$300.00"},
		{"", "Bob Stone", "250"},
	})
	s.AddTable(effortID, "Roster", [][]string{
		{"Name", "Amount"},
		{"Jane Doe", "9999"},
	})
	s.AddTable(effortID, "Master DA", [][]string{
		{"Month", "Instructor", "Amount"},
		{"September 2025", "Jane Doe", "100"},
	})

	s.AddTable(contactsID, "Master DS", [][]string{
		{"Name", "Email", "Notes", "Tracker"},
		{"Jane Doe", "jane@example.com", "", "https://trk/jane-ds"},
		{"Bob Stone", "bob@example.com"},
	})
	s.AddTable(contactsID, "Master DA", [][]string{
		{"Name", "Email", "Tracker"},
		{"jane  doe", "jane.other@example.com", "https://trk/jane-da"},
	})
	s.AddTable(contactsID, "Onboarded", [][]string{
		{"Name", "Email", "Tracker"},
		{"Bob Stone", "", "https://trk/bob-onboarded"},
	})

	s.AddTable(programID, "Program", [][]string{
		{"Date", "Invoice Number", "SME Name / Company Name"},
		{"2025-08-31", "INV-0007", "Jane Doe"},
		{"2025-07-31", "INV-0003", "Jane Doe"},
		{"2025-08-31", "Invoice 12", "Bob Stone"},
	})
	return s
}

func fixtureConfig() ProcessorConfig {
	return ProcessorConfig{
		Ledger:             LedgerLocation{CollectionID: masterID, Table: "Master data"},
		ConfigTable:        "Config",
		EffortCollection:   effortID,
		ContactsCollection: contactsID,
		Program:            ProgramLocation{CollectionID: programID},
		Mode:               MatchNormalized,
		ReadConcurrency:    1,
	}
}

// plainStore hides optional capabilities of the wrapped store.
type plainStore struct {
	sheets.TabularStore
}

type fakeHistory struct {
	mu   sync.Mutex
	done map[string]bool
	runs []core.RunRecord
	err  error
}

func (h *fakeHistory) HasSuccessfulRun(_ context.Context, period string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done[period], h.err
}

func (h *fakeHistory) RecordRun(_ context.Context, run core.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	return nil
}

type fakeEvents struct {
	published []core.RunRecord
	err       error
}

func (e *fakeEvents) PublishPeriodProcessed(_ context.Context, run core.RunRecord) error {
	e.published = append(e.published, run)
	return e.err
}

// formulaStore renders values from the embedded store and answers
// ReadFormulas from entered, like a spreadsheet holding typed cells.
type formulaStore struct {
	*memory.Store
	entered *memory.Store
}

func (f formulaStore) ReadFormulas(ctx context.Context, collectionID string, rng sheets.Range) ([][]string, error) {
	return f.entered.ReadRange(ctx, collectionID, rng)
}
