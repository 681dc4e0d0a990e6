package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"invoicer/internal/config"
	applog "invoicer/internal/log"
	"invoicer/internal/services"
)

const fixtureYAML = `collections:
  master:
    - name: Config
      rows: [["September 2025"]]
    - name: Master data
      rows:
        - [Month, SME Name, Course, Tracker Link, Amount, Period, Invoice Last Date, Invoice Number, Invoice Dated, Email, Invoice Audit]
  effort:
    - name: Master DS
      rows:
        - [Month, SME Name, Total Amount]
        - [September 2025, Jane Doe, "1500"]
  contacts:
    - name: DS
      rows:
        - [SME Name, Email, Tracker]
        - [Jane Doe, jane@example.com, "https://tracker/jane"]
  program:
    - name: Program
      rows:
        - [Invoice Number, SME Name]
        - ["Invoice # 7", Jane Doe]
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.yaml")
	if err := os.WriteFile(fixture, []byte(fixtureYAML), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return &config.Config{
		DataBackend:       "memory",
		MemoryFixtureFile: fixture,
		MasterSheetName:   "Master data",
		ConfigSheetName:   "Config",
		InvoiceMatchMode:  "normalized",
		ReadConcurrency:   1,
		StoreMaxAttempts:  1,
		SQLiteDBPath:      filepath.Join(dir, "runs.db"),
		LogLevel:          "error",
		LogFormat:         "text",
	}
}

func TestProcessorConfigMemoryDefaults(t *testing.T) {
	cfg := &config.Config{DataBackend: "memory", MasterSheetName: "Master data", ConfigSheetName: "Config", ProgramSheetName: "P", InvoiceMatchMode: "exact", ReadConcurrency: 2}
	pc := ProcessorConfig(cfg)
	if pc.Ledger.CollectionID != MemoryMasterID || pc.EffortCollection != MemoryEffortID ||
		pc.ContactsCollection != MemoryContactsID || pc.Program.CollectionID != MemoryProgramID {
		t.Fatalf("unexpected collection IDs: %+v", pc)
	}
	if pc.Mode != services.MatchExact || pc.Program.Table != "P" || pc.ReadConcurrency != 2 {
		t.Fatalf("unexpected config: %+v", pc)
	}

	cfg.DataBackend = "sheets"
	if ProcessorConfig(cfg).Ledger.CollectionID != "" {
		t.Fatal("sheets backend must not invent collection IDs")
	}
}

func TestLoadClassifierMissingFile(t *testing.T) {
	if _, err := LoadClassifier(&config.Config{CategoryRulesFile: "/non/existent/rules.yaml"}); err == nil {
		t.Fatal("expected error for missing rules file")
	}
	c, err := LoadClassifier(&config.Config{})
	if err != nil || c == nil {
		t.Fatalf("default classifier: %v", err)
	}
}

func TestNewAppRunsPendingPeriod(t *testing.T) {
	cfg := memoryConfig(t)
	logger := applog.New(applog.Config{Level: 8, Output: os.Stderr})
	ctx := context.Background()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()
	if app.History == nil || app.Events != nil {
		t.Fatalf("history should be on and events off: %+v", app)
	}

	period, err := app.Processor.PendingPeriod(ctx)
	if err != nil || period != "September 2025" {
		t.Fatalf("pending = %q, %v", period, err)
	}
	res, err := app.Processor.ProcessMonth(ctx, period)
	if err != nil {
		t.Fatalf("ProcessMonth() error = %v", err)
	}
	if res.Status != services.StatusOK || res.RowsWritten != 1 || res.InvoicesAssigned != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	runs, err := app.History.ListRuns(ctx, 5)
	if err != nil || len(runs) != 1 || runs[0].Status != services.StatusOK {
		t.Fatalf("runs=%+v err=%v", runs, err)
	}

	again, err := app.Processor.ProcessMonth(ctx, period)
	if err != nil || again.Status != services.StatusAlreadyProcessed {
		t.Fatalf("second run = %+v, %v", again, err)
	}
}
