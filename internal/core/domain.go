package core

import (
	"fmt"
	"strings"
	"time"
)

// Master ledger columns (0-based), A..K.
const (
	ColMonth = iota
	ColInstructor
	ColCategory
	ColTracker
	ColAmount
	ColPeriod
	ColInvoiceLastDate
	ColInvoiceNumber
	ColInvoiceDated
	ColEmail
	ColInvoiceAudit

	LedgerWidth = ColEmail + 1
)

// TrackerLinkText is the display text of tracker hyperlinks.
const TrackerLinkText = "Tracker Link"

type (
	// AggregateKey identifies one accumulated total: the trimmed raw
	// instructor string plus the category of the source table.
	AggregateKey struct {
		Instructor string
		Category   Category
	}

	// LedgerRow is one master-ledger row for an (instructor, category, period).
	LedgerRow struct {
		Period          string
		Instructor      string
		Category        Category
		TrackerLink     string
		Amount          Money
		PeriodLabel     string
		InvoiceLastDate string
		InvoiceNumber   string
		InvoiceDated    string
		Email           string
	}

	// ContactRecord collects what the contact registry knows about one
	// normalized identity. Email and per-category links are first-seen-wins.
	ContactRecord struct {
		Links      []string
		Email      string
		ByCategory map[Category]string
		Categories []Category
	}

	// RunRecord is the persisted outcome of one period run.
	RunRecord struct {
		ID               string
		Period           string
		Status           string
		RowsWritten      int
		InvoicesAssigned int
		LinksUpdated     int
		EmailsWritten    int
		Error            string
		StartedAt        time.Time
		FinishedAt       time.Time
	}
)

// Cells renders the row in ledger column order (A..J).
func (r LedgerRow) Cells() []string {
	return []string{
		r.Period,
		r.Instructor,
		string(r.Category),
		r.TrackerLink,
		r.Amount.String(),
		r.PeriodLabel,
		r.InvoiceLastDate,
		r.InvoiceNumber,
		r.InvoiceDated,
		r.Email,
	}
}

// NewContactRecord returns an empty record.
func NewContactRecord() *ContactRecord {
	return &ContactRecord{ByCategory: map[Category]string{}}
}

// SetEmailIfAbsent stores email unless one is already known. It reports
// whether the record changed.
func (c *ContactRecord) SetEmailIfAbsent(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || c.Email != "" {
		return false
	}
	c.Email = email
	return true
}

// AddLink files url under cat unless that category already has one, and
// appends it to the ordered list of all links.
func (c *ContactRecord) AddLink(cat Category, url string) {
	if _, ok := c.ByCategory[cat]; !ok {
		c.ByCategory[cat] = url
	}
	c.Links = append(c.Links, url)
}

// AddCategory records that the identity appears in a table of cat.
func (c *ContactRecord) AddCategory(cat Category) {
	for _, seen := range c.Categories {
		if seen == cat {
			return
		}
	}
	c.Categories = append(c.Categories, cat)
}

// LinkFor returns the link filed under exactly cat. There is no fallback to
// links of other categories.
func (c *ContactRecord) LinkFor(cat Category) (string, bool) {
	url, ok := c.ByCategory[cat]
	return url, ok
}

// HyperlinkFormula builds the spreadsheet directive that displays text and
// links to url.
func HyperlinkFormula(url, text string) string {
	esc := func(s string) string { return strings.ReplaceAll(s, `"`, `""`) }
	return fmt.Sprintf(`=HYPERLINK("%s","%s")`, esc(url), esc(text))
}
