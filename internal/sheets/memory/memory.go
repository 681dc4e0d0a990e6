package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	ports "invoicer/internal/sheets"

	"gopkg.in/yaml.v3"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrTableNotFound      = errors.New("table not found")
)

// Ensure interface conformance
var (
	_ ports.TabularStore = (*Store)(nil)
	_ ports.BatchWriter  = (*Store)(nil)
)

type table struct {
	name string
	rows [][]string
}

// Store is an in-process TabularStore. Cells are kept exactly as written, so
// formulas read back verbatim.
type Store struct {
	mu          sync.Mutex
	collections map[string][]*table
	failures    map[string]error
	writeCalls  int
}

func New() *Store {
	return &Store{
		collections: map[string][]*table{},
		failures:    map[string]error{},
	}
}

// Fixture is the on-disk seed format:
//
//	collections:
//	  master-id:
//	    - name: Master data
//	      rows: [[Month, SME Name]]
type Fixture struct {
	Collections map[string][]FixtureTable `yaml:"collections"`
}

type FixtureTable struct {
	Name string     `yaml:"name"`
	Rows [][]string `yaml:"rows"`
}

// NewFromFile seeds a store from a YAML fixture.
func NewFromFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	s := New()
	for id, tables := range fx.Collections {
		s.AddCollection(id)
		for _, t := range tables {
			s.AddTable(id, t.Name, t.Rows)
		}
	}
	return s, nil
}

// AddCollection registers an empty collection.
func (s *Store) AddCollection(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[id]; !ok {
		s.collections[id] = nil
	}
}

// AddTable appends a table to the collection, or replaces the rows of an
// existing table with the same name.
func (s *Store) AddTable(collectionID, name string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyRows(rows)
	for _, t := range s.collections[collectionID] {
		if t.name == name {
			t.rows = cp
			return
		}
	}
	s.collections[collectionID] = append(s.collections[collectionID], &table{name: name, rows: cp})
}

// FailTable makes every later operation on the table return err.
func (s *Store) FailTable(collectionID, name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failKey(collectionID, name)] = err
}

// Table returns a copy of all rows of a table.
func (s *Store) Table(collectionID, name string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(collectionID, name)
	if err != nil {
		return nil
	}
	return copyRows(t.rows)
}

// WriteCalls counts mutating calls (append, write, batch write).
func (s *Store) WriteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCalls
}

func (s *Store) ListTableNames(_ context.Context, collectionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tables, ok := s.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	return names, nil
}

func (s *Store) ReadRange(_ context.Context, collectionID string, rng ports.Range) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(collectionID, rng.Table)
	if err != nil {
		return nil, err
	}
	from := max(rng.FromRow, 1) - 1
	to := len(t.rows)
	if rng.ToRow > 0 && rng.ToRow < to {
		to = rng.ToRow
	}
	var out [][]string
	for i := from; i < to; i++ {
		row := t.rows[i]
		var cells []string
		for c := rng.FromCol; c < rng.FromCol+rng.Width() && c < len(row); c++ {
			cells = append(cells, row[c])
		}
		out = append(out, trimRow(cells))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *Store) AppendRows(_ context.Context, collectionID string, rng ports.Range, rows [][]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(collectionID, rng.Table)
	if err != nil {
		return 0, err
	}
	s.writeCalls++
	last := len(t.rows)
	for last > 0 && len(trimRow(t.rows[last-1])) == 0 {
		last--
	}
	t.rows = t.rows[:last]
	for _, r := range rows {
		line := make([]string, rng.FromCol, rng.FromCol+len(r))
		t.rows = append(t.rows, append(line, r...))
	}
	return len(rows), nil
}

func (s *Store) WriteRange(_ context.Context, collectionID string, rng ports.Range, rows [][]string, _ ports.InputMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookup(collectionID, rng.Table)
	if err != nil {
		return err
	}
	s.writeCalls++
	t.write(rng, rows)
	return nil
}

// WriteRanges applies all writes under one lock. Nothing is written when any
// target table is missing or failing.
func (s *Store) WriteRanges(_ context.Context, collectionID string, writes []ports.RangeWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make([]*table, len(writes))
	for i, w := range writes {
		t, err := s.lookup(collectionID, w.Range.Table)
		if err != nil {
			return err
		}
		targets[i] = t
	}
	s.writeCalls++
	for i, w := range writes {
		targets[i].write(w.Range, w.Rows)
	}
	return nil
}

func (t *table) write(rng ports.Range, rows [][]string) {
	start := max(rng.FromRow, 1) - 1
	for i, r := range rows {
		idx := start + i
		for len(t.rows) <= idx {
			t.rows = append(t.rows, nil)
		}
		line := t.rows[idx]
		if need := rng.FromCol + len(r); len(line) < need {
			line = append(line, make([]string, need-len(line))...)
		}
		copy(line[rng.FromCol:], r)
		t.rows[idx] = line
	}
}

func (s *Store) lookup(collectionID, name string) (*table, error) {
	if err, ok := s.failures[failKey(collectionID, name)]; ok {
		return nil, err
	}
	tables, ok := s.collections[collectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}
	// an unqualified range addresses the first table
	if name == "" && len(tables) > 0 {
		return tables[0], nil
	}
	for _, t := range tables {
		if t.name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
}

func failKey(collectionID, name string) string {
	return collectionID + "\x00" + name
}

func trimRow(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n:n]
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
