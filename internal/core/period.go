package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PeriodInfo describes a calendar month parsed from an accounting-period label.
type PeriodInfo struct {
	Year      int
	Month     time.Month
	MonthName string
	LastDay   int
	LastDate  time.Time
}

var (
	namedPeriod   = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{4})$`)
	numericPeriod = regexp.MustCompile(`^(\d{1,2})[/\-](\d{4})$`)
)

// ParseAccountingPeriod accepts "<MonthName> <YYYY>" (month matched by its
// first three letters, case-insensitive) or "<M>/<YYYY>" / "<M>-<YYYY>".
// ok is false for anything else; callers then use the label verbatim.
func ParseAccountingPeriod(label string) (PeriodInfo, bool) {
	s := strings.TrimSpace(label)
	if s == "" {
		return PeriodInfo{}, false
	}
	if m := namedPeriod.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[2])
		prefix := strings.ToLower(m[1])
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		for mon := time.January; mon <= time.December; mon++ {
			if strings.HasPrefix(strings.ToLower(mon.String()), prefix) {
				return newPeriodInfo(year, mon), true
			}
		}
	}
	if m := numericPeriod.FindStringSubmatch(s); m != nil {
		mon, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if mon >= 1 && mon <= 12 {
			return newPeriodInfo(year, time.Month(mon)), true
		}
	}
	return PeriodInfo{}, false
}

func newPeriodInfo(year int, mon time.Month) PeriodInfo {
	// day 0 of the next month is the last day of this one
	last := time.Date(year, mon+1, 0, 0, 0, 0, 0, time.UTC)
	return PeriodInfo{
		Year:      year,
		Month:     mon,
		MonthName: mon.String(),
		LastDay:   last.Day(),
		LastDate:  last,
	}
}

// Label renders the billing window, e.g. "1 September - 30 September 2025".
func (p PeriodInfo) Label() string {
	return fmt.Sprintf("1 %s - %d %s %d", p.MonthName, p.LastDay, p.MonthName, p.Year)
}

// InvoiceDated renders the last date of the month as DD/MM/YYYY.
func (p PeriodInfo) InvoiceDated() string {
	return p.LastDate.Format(InvoiceDatedLayout)
}

const (
	// InvoiceDatedLayout is the display format of the invoice date column.
	InvoiceDatedLayout = "02/01/2006"
	// InvoiceLastDateLayout is the display format of the run date column.
	InvoiceLastDateLayout = "02 01 2006"
)
