package sheets

import (
	"fmt"
	"strings"
)

// Range addresses a rectangle inside one table. Columns are 0-based, rows
// are 1-based as displayed by the store. ToRow 0 leaves the range open
// downwards; ToCol below FromCol means a single column.
type Range struct {
	Table   string
	FromCol int
	FromRow int
	ToCol   int
	ToRow   int
}

// Cell addresses one cell.
func Cell(table string, col, row int) Range {
	return Range{Table: table, FromCol: col, FromRow: row, ToCol: col, ToRow: row}
}

// Columns addresses columns from..to starting at fromRow, open-ended.
func Columns(table string, from, to, fromRow int) Range {
	return Range{Table: table, FromCol: from, FromRow: fromRow, ToCol: to}
}

// Width is the number of columns covered.
func (r Range) Width() int {
	if r.ToCol < r.FromCol {
		return 1
	}
	return r.ToCol - r.FromCol + 1
}

// String renders the range in A1 notation, e.g. 'Master DS'!A1:J.
func (r Range) String() string {
	fromRow := r.FromRow
	if fromRow < 1 {
		fromRow = 1
	}
	toCol := r.ToCol
	if toCol < r.FromCol {
		toCol = r.FromCol
	}
	var b strings.Builder
	if r.Table != "" {
		b.WriteString(QuoteTable(r.Table))
		b.WriteByte('!')
	}
	fmt.Fprintf(&b, "%s%d:%s", ColumnLetter(r.FromCol), fromRow, ColumnLetter(toCol))
	if r.ToRow > 0 {
		fmt.Fprintf(&b, "%d", r.ToRow)
	}
	return b.String()
}

// QuoteTable wraps a table name in single quotes, doubling embedded quotes.
func QuoteTable(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// ColumnLetter converts a 0-based column index to its letter name (0 -> A,
// 26 -> AA).
func ColumnLetter(idx int) string {
	if idx < 0 {
		idx = 0
	}
	var out []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		out = append([]byte{byte('A' + (n-1)%26)}, out...)
	}
	return string(out)
}
