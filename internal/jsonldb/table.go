// Implements the generic JSONL table with in-memory caching and observers.

package jsonldb

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

var (
	// ErrNotFound is returned when a row ID does not exist in the table.
	ErrNotFound = errors.New("row not found")
	// ErrDuplicateID is returned when appending a row whose ID already exists.
	ErrDuplicateID = errors.New("duplicate row id")
	// ErrDuplicateKey is returned when a mutation would violate a unique index.
	ErrDuplicateKey = errors.New("duplicate unique key")
	// ErrIDChanged is returned when a Modify callback changes the row ID.
	ErrIDChanged = errors.New("row id cannot be changed")

	errZeroID = errors.New("row id is zero")
)

// Row is implemented by every type stored in a Table.
type Row[T any] interface {
	// Clone returns a deep copy.
	Clone() T
	// GetID returns the primary key.
	GetID() ksid.ID
	// Validate checks the row before it is persisted.
	Validate() error
}

// TableObserver is notified after every committed mutation.
//
// Callbacks run while the table write lock is held; they must not call back
// into the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// constraint is implemented by observers that can reject a mutation.
type constraint[T any] interface {
	checkRow(row T) error
	checkAll(rows []T) error
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string

	mu        sync.RWMutex
	rows      []T
	pos       map[ksid.ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: data directories are shared
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	t := &Table[T]{path: path}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the backing file path.
func (t *Table[T]) Path() string {
	return t.path
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = nil
	t.pos = make(map[ksid.ID]int)
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	var rows []T
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var h schemaHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("failed to parse schema header in %s: %w", t.path, err)
			}
			if err := h.Validate(); err != nil {
				return fmt.Errorf("invalid schema header in %s: %w", t.path, err)
			}
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		if err := row.Validate(); err != nil {
			return fmt.Errorf("invalid row %s in %s: %w", row.GetID(), t.path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}

	// Rows may be out of order after manual edits or clock drift.
	if !slices.IsSortedFunc(rows, compareRows[T]) {
		slices.SortFunc(rows, compareRows[T])
	}
	for i, row := range rows {
		if _, dup := t.pos[row.GetID()]; dup {
			return fmt.Errorf("%w %s in %s", ErrDuplicateID, row.GetID(), t.path)
		}
		t.pos[row.GetID()] = i
	}
	t.rows = rows
	return nil
}

// isZero reports whether v is the zero value of T, e.g. a nil row pointer.
func isZero[T any](v T) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}

func compareRows[T Row[T]](a, b T) int {
	return cmp.Compare(a.GetID(), b.GetID())
}

// AddObserver registers o and replays every existing row through OnAppend.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
	for _, row := range t.rows {
		o.OnAppend(row)
	}
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value.
func (t *Table[T]) Get(id ksid.ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i, ok := t.pos[id]; ok {
		return t.rows[i].Clone()
	}
	var zero T
	return zero
}

// Last returns a clone of the last row, or the zero value if empty.
func (t *Table[T]) Last() T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.rows) == 0 {
		var zero T
		return zero
	}
	return t.rows[len(t.rows)-1].Clone()
}

// All returns an iterator over clones of all rows, in ID order.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		snapshot := slices.Clone(t.rows)
		t.mu.RUnlock()
		for _, row := range snapshot {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append validates row, adds it to the table and persists it.
func (t *Table[T]) Append(row T) error {
	if err := checkNewRow(row); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pos[row.GetID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, row.GetID())
	}
	if err := t.checkConstraints(row); err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}
	if err := t.appendLine(data); err != nil {
		return err
	}
	row = row.Clone()
	t.pos[row.GetID()] = len(t.rows)
	t.rows = append(t.rows, row)
	for _, o := range t.observers {
		o.OnAppend(row)
	}
	return nil
}

// Modify runs fn on a clone of the row and persists the result.
//
// The write lock is held for the whole read-modify-write cycle. If fn returns
// an error, nothing is written.
func (t *Table[T]) Modify(id ksid.ID, fn func(row T) error) (T, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.pos[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := t.rows[i]
	curr := prev.Clone()
	if err := fn(curr); err != nil {
		return zero, err
	}
	if curr.GetID() != id {
		return zero, ErrIDChanged
	}
	if err := curr.Validate(); err != nil {
		return zero, err
	}
	if err := t.checkConstraints(curr); err != nil {
		return zero, err
	}
	next := slices.Clone(t.rows)
	next[i] = curr
	if err := writeRows(t.path, t.path+".tmp", next); err != nil {
		return zero, err
	}
	t.rows = next
	for _, o := range t.observers {
		o.OnUpdate(prev, curr)
	}
	return curr.Clone(), nil
}

// Delete removes the row with the given ID. It reports whether a row existed.
func (t *Table[T]) Delete(id ksid.ID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.pos[id]
	if !ok {
		return false, nil
	}
	prev := t.rows[i]
	next := slices.Delete(slices.Clone(t.rows), i, i+1)
	if err := writeRows(t.path, t.path+".tmp", next); err != nil {
		return false, err
	}
	t.setRows(next)
	for _, o := range t.observers {
		o.OnDelete(prev)
	}
	return true, nil
}

// Replace replaces all rows with the provided slice and persists it.
//
// Observers see the replacement as a deletion of every previous row followed
// by an append of every new row.
func (t *Table[T]) Replace(rows []T) error {
	next := make([]T, len(rows))
	for i, row := range rows {
		if err := checkNewRow(row); err != nil {
			return err
		}
		next[i] = row.Clone()
	}
	slices.SortFunc(next, compareRows[T])
	for i := 1; i < len(next); i++ {
		if next[i].GetID() == next[i-1].GetID() {
			return fmt.Errorf("%w: %s", ErrDuplicateID, next[i].GetID())
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, o := range t.observers {
		if c, ok := o.(constraint[T]); ok {
			if err := c.checkAll(next); err != nil {
				return err
			}
		}
	}
	if err := writeRows(t.path, t.path+".tmp", next); err != nil {
		return err
	}
	prev := t.rows
	t.setRows(next)
	for _, o := range t.observers {
		for _, row := range prev {
			o.OnDelete(row)
		}
		for _, row := range next {
			o.OnAppend(row)
		}
	}
	return nil
}

// setRows swaps the row slice and rebuilds the position map. Caller holds the
// write lock.
func (t *Table[T]) setRows(rows []T) {
	t.rows = rows
	t.pos = make(map[ksid.ID]int, len(rows))
	for i, row := range rows {
		t.pos[row.GetID()] = i
	}
}

func (t *Table[T]) checkConstraints(row T) error {
	for _, o := range t.observers {
		if c, ok := o.(constraint[T]); ok {
			if err := c.checkRow(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// appendLine appends one encoded row, writing the schema header first when
// the file is new or empty. Caller holds the write lock.
func (t *Table[T]) appendLine(data []byte) error {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: table files are not secret
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat table file: %w", err)
	}
	w := bufio.NewWriter(f)
	if st.Size() == 0 {
		if err := writeHeader[T](w); err != nil {
			return err
		}
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush row: %w", err)
	}
	return f.Sync()
}

func checkNewRow[T Row[T]](row T) error {
	if row.GetID().IsZero() {
		return errZeroID
	}
	return row.Validate()
}

// writeRows writes the header and rows to tmp, syncs it and renames it over
// path when path is not empty.
func writeRows[T Row[T]](path, tmp string, rows []T) error {
	f, err := os.Create(tmp) //nolint:gosec // G304: path is owned by the table
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	if err := writeHeader[T](w); err != nil {
		return err
	}
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync table file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	ok = true
	if path == "" {
		return nil
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}

func writeHeader[T any](w *bufio.Writer) error {
	cols, err := schemaFromType[T]()
	if err != nil {
		return err
	}
	data, err := json.Marshal(schemaHeader{Version: currentVersion, Columns: cols})
	if err != nil {
		return fmt.Errorf("failed to marshal schema header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write schema header: %w", err)
	}
	return w.WriteByte('\n')
}
