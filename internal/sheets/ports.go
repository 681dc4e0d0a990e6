package sheets

import "context"

// Ports for outbound adapters.
type (
	// TabularStore is a remote store of named collections, each holding
	// ordered named tables of string cells.
	TabularStore interface {
		// ListTableNames returns table names in their stored order.
		ListTableNames(ctx context.Context, collectionID string) ([]string, error)
		// ReadRange returns the rectangular slice of cells in rng. Trailing
		// empty cells and rows may be absent.
		ReadRange(ctx context.Context, collectionID string, rng Range) ([][]string, error)
		// AppendRows inserts rows after the last non-empty row of rng.Table and
		// reports how many rows were written.
		AppendRows(ctx context.Context, collectionID string, rng Range, rows [][]string) (int, error)
		// WriteRange overwrites cells starting at rng's top-left corner.
		WriteRange(ctx context.Context, collectionID string, rng Range, rows [][]string, mode InputMode) error
	}

	// BatchWriter is implemented by stores able to apply several range writes
	// in a single call.
	BatchWriter interface {
		WriteRanges(ctx context.Context, collectionID string, writes []RangeWrite) error
	}

	// FormulaReader is implemented by stores that can return cell formulas
	// instead of their rendered values.
	FormulaReader interface {
		ReadFormulas(ctx context.Context, collectionID string, rng Range) ([][]string, error)
	}
)

// RangeWrite is one element of a batched write.
type RangeWrite struct {
	Range Range
	Rows  [][]string
	Mode  InputMode
}

// InputMode controls how written strings are interpreted by the store.
type InputMode int

const (
	// InputRaw stores strings literally.
	InputRaw InputMode = iota
	// InputUserEntered lets the store interpret values as if typed by a user
	// (formulas, numbers).
	InputUserEntered
)

func (m InputMode) String() string {
	if m == InputUserEntered {
		return "USER_ENTERED"
	}
	return "RAW"
}
