package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"invoicer/internal/core"
	"invoicer/internal/sheets"
)

const (
	// onboardedTable is excluded from the contact registry.
	onboardedTable = "onboarded"
	// contactColumns is the window read from registry tables (A..J); the URL
	// is searched from column C up to column J.
	contactColumns = 10
	contactURLFrom = 2
)

var urlPrefix = regexp.MustCompile(`(?i)^https?://`)

// ContactDirectory maps normalized instructor identities to what the
// registry knows about them. It is built once per run and read-only after.
type ContactDirectory struct {
	records map[string]*core.ContactRecord
	Tables  []TableOutcome
}

// Resolve returns the tracker URL filed under exactly category and the
// identity's email. No URL from another category is ever returned.
func (d *ContactDirectory) Resolve(instructor string, category core.Category) (url, email string) {
	rec, ok := d.records[core.NormalizeIdentity(instructor)]
	if !ok {
		return "", ""
	}
	url, _ = rec.LinkFor(category)
	return url, rec.Email
}

// Record returns the record for an identity.
func (d *ContactDirectory) Record(instructor string) (*core.ContactRecord, bool) {
	rec, ok := d.records[core.NormalizeIdentity(instructor)]
	return rec, ok
}

// Len is the number of known identities.
func (d *ContactDirectory) Len() int {
	return len(d.records)
}

// ContactResolver builds a ContactDirectory from the registry collection.
type ContactResolver struct {
	store       sheets.TabularStore
	classifier  *core.Classifier
	concurrency int
}

func NewContactResolver(store sheets.TabularStore, classifier *core.Classifier, concurrency int) *ContactResolver {
	return &ContactResolver{store: store, classifier: classifier, concurrency: concurrency}
}

// Build reads every registry table except "onboarded". Unreadable tables are
// logged and skipped.
func (r *ContactResolver) Build(ctx context.Context, collectionID string) (*ContactDirectory, error) {
	names, err := r.store.ListTableNames(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list registry tables: %w", err)
	}
	var wanted []string
	for _, n := range names {
		if strings.EqualFold(n, onboardedTable) {
			continue
		}
		wanted = append(wanted, n)
	}
	reads := readTables(ctx, r.store, collectionID, wanted, r.concurrency, func(name string) sheets.Range {
		return sheets.Columns(name, 0, contactColumns-1, 1)
	})

	var tables []Table
	var failed []TableOutcome
	for _, rd := range reads {
		if rd.Err != nil {
			slog.WarnContext(ctx, "Skipping unreadable registry table", "table", rd.Name, "error", rd.Err)
			failed = append(failed, TableOutcome{Table: rd.Name, Category: r.classifier.Classify(rd.Name), Status: TableFailed, Err: rd.Err})
			continue
		}
		tables = append(tables, rd.Table)
	}
	dir := BuildContactDirectory(tables, r.classifier)
	dir.Tables = mergeOutcomes(wanted, dir.Tables, failed)
	slog.InfoContext(ctx, "Built contact directory", "tables", len(wanted), "identities", dir.Len())
	return dir, nil
}

// BuildContactDirectory scans tables in order, skipping each header row.
// Emails and per-category URLs are first-seen-wins.
func BuildContactDirectory(tables []Table, classifier *core.Classifier) *ContactDirectory {
	dir := &ContactDirectory{records: map[string]*core.ContactRecord{}}
	for _, t := range tables {
		if strings.EqualFold(t.Name, onboardedTable) {
			continue
		}
		cat := classifier.Classify(t.Name)
		outcome := TableOutcome{Table: t.Name, Category: cat, Status: TableRead}
		for i, row := range t.Rows {
			if i == 0 {
				continue
			}
			name := strings.TrimSpace(core.Cell(row, 0))
			if name == "" {
				continue
			}
			key := core.NormalizeIdentity(name)
			rec, ok := dir.records[key]
			if !ok {
				rec = core.NewContactRecord()
				dir.records[key] = rec
			}
			rec.SetEmailIfAbsent(core.Cell(row, 1))
			if url := findURL(row); url != "" {
				rec.AddLink(cat, url)
			}
			rec.AddCategory(cat)
			outcome.Rows++
		}
		dir.Tables = append(dir.Tables, outcome)
	}
	return dir
}

// findURL returns the first cell in columns C..J that starts with http(s)://.
func findURL(row []string) string {
	for c := contactURLFrom; c < contactColumns && c < len(row); c++ {
		v := strings.TrimSpace(row[c])
		if urlPrefix.MatchString(v) {
			return v
		}
	}
	return ""
}
