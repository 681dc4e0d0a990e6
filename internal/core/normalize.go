package core

import "strings"

// NormalizeIdentity folds an instructor name for fuzzy matching: trims,
// collapses whitespace runs to a single space and lower-cases.
// Two names denote the same identity iff their normalized forms are equal.
func NormalizeIdentity(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// SameIdentity reports whether a and b normalize to the same identity.
func SameIdentity(a, b string) bool {
	return NormalizeIdentity(a) == NormalizeIdentity(b)
}

// FindColumn returns the index of the first header, scanning left to right,
// that contains any of the keywords (case-insensitive), or -1.
func FindColumn(headers []string, keywords ...string) int {
	for i, h := range headers {
		low := strings.ToLower(h)
		for _, k := range keywords {
			if strings.Contains(low, k) {
				return i
			}
		}
	}
	return -1
}

// FindColumnByPriority tries keywords in order and returns the first header
// containing the earliest matching keyword (case-insensitive), or -1.
func FindColumnByPriority(headers []string, keywords ...string) int {
	low := make([]string, len(headers))
	for i, h := range headers {
		low[i] = strings.ToLower(h)
	}
	for _, k := range keywords {
		for i, h := range low {
			if strings.Contains(h, k) {
				return i
			}
		}
	}
	return -1
}

// ColumnOr returns idx, or fallback when idx is -1.
func ColumnOr(idx, fallback int) int {
	if idx < 0 {
		return fallback
	}
	return idx
}

// Cell returns row[idx] or "" when the row is too short.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
