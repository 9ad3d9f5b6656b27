// Implements atomic commits spanning several tables.

package jsonldb

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/maruel/ksid"
)

var (
	// ErrTxDone is returned when using a transaction after Commit or Rollback.
	ErrTxDone = errors.New("transaction already finished")

	errJournalEmpty = errors.New("journal has no entries")
)

const journalName = "journal.json"

// DB groups tables that share a directory and serializes transactions over
// them.
//
// A commit first writes every touched table to a temporary file, then records
// the pending renames in a journal. The journal write is the commit point:
// [OpenDB] replays a leftover journal so a crash mid-commit is either fully
// applied or not visible at all.
type DB struct {
	dir string
	mu  sync.Mutex
}

// journal lists the temp files to rename over their tables.
type journal struct {
	ID      ksid.ID        `json:"id"`
	Renames []journalEntry `json:"renames"`
}

type journalEntry struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OpenDB opens the database directory, creating it if needed, and completes
// any interrupted commit. It must be called before tables in dir are loaded.
func OpenDB(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directories are shared
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	db := &DB{dir: dir}
	if err := db.recover(); err != nil {
		return nil, err
	}
	return db, nil
}

// Dir returns the database directory.
func (db *DB) Dir() string {
	return db.dir
}

// Path returns the path of a file named name in the database directory.
func (db *DB) Path(name string) string {
	return filepath.Join(db.dir, name)
}

func (db *DB) recover() error {
	p := db.Path(journalName)
	data, err := os.ReadFile(p) //nolint:gosec // G304: path is owned by the db
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read journal: %w", err)
	}
	var j journal
	if err := json.Unmarshal(data, &j); err != nil {
		// A torn journal means the commit point was never reached.
		slog.Warn("Discarding unreadable journal", "err", err)
		return os.Remove(p)
	}
	for _, e := range j.Renames {
		if _, err := os.Stat(e.From); err != nil {
			// Already renamed before the crash.
			continue
		}
		if err := os.Rename(e.From, e.To); err != nil {
			return fmt.Errorf("failed to replay journal: %w", err)
		}
	}
	slog.Info("Replayed journal", "tx", j.ID, "files", len(j.Renames))
	return os.Remove(p)
}

// Update runs fn in a transaction and commits it if fn returns nil.
func (db *DB) Update(fn func(tx *Tx) error) error {
	tx := db.Begin()
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Begin starts a transaction. Only one transaction runs at a time; Begin
// blocks until the previous one finishes.
func (db *DB) Begin() *Tx {
	db.mu.Lock()
	return &Tx{db: db, id: ksid.NewID(), staged: make(map[any]txPart)}
}

// txPart is the type-erased view of a staged table.
type txPart interface {
	check() error
	prepare(tmp string) (bool, error)
	path() string
	publish()
	release()
}

// Tx stages mutations over one or more tables.
//
// Staging a table takes its write lock until the transaction ends, so plain
// table reads from other goroutines wait for the commit.
type Tx struct {
	db     *DB
	id     ksid.ID
	parts  []txPart
	staged map[any]txPart
	done   bool
}

// Commit atomically persists every staged table and notifies observers.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	defer tx.finish()

	for _, p := range tx.parts {
		if err := p.check(); err != nil {
			return err
		}
	}
	var j journal
	j.ID = tx.id
	var changed []txPart
	for _, p := range tx.parts {
		tmp := fmt.Sprintf("%s.%s.tx", p.path(), tx.id)
		ok, err := p.prepare(tmp)
		if err != nil {
			removeTemps(j.Renames)
			return err
		}
		if ok {
			j.Renames = append(j.Renames, journalEntry{From: tmp, To: p.path()})
			changed = append(changed, p)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	if err := tx.writeJournal(&j); err != nil {
		removeTemps(j.Renames)
		return err
	}
	for _, e := range j.Renames {
		if err := os.Rename(e.From, e.To); err != nil {
			// The journal stays behind and is replayed by the next OpenDB.
			return fmt.Errorf("commit %s interrupted: %w", tx.id, err)
		}
	}
	if err := os.Remove(tx.db.Path(journalName)); err != nil {
		slog.Warn("Failed to remove journal", "tx", tx.id, "err", err)
	}
	for _, p := range changed {
		p.publish()
	}
	return nil
}

// Rollback drops every staged change. It is safe to call after Commit.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.finish()
}

func (tx *Tx) finish() {
	tx.done = true
	for _, p := range slices.Backward(tx.parts) {
		p.release()
	}
	tx.db.mu.Unlock()
}

func (tx *Tx) writeJournal(j *journal) error {
	if len(j.Renames) == 0 {
		return errJournalEmpty
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}
	p := tx.db.Path(journalName)
	tmp := p + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: path is owned by the db
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to commit journal: %w", err)
	}
	return nil
}

func removeTemps(entries []journalEntry) {
	for _, e := range entries {
		_ = os.Remove(e.From)
	}
}

// TableTx is a table staged in a transaction. Reads see the staged state.
type TableTx[T Row[T]] struct {
	t        *Table[T]
	rows     []T
	pos      map[ksid.ID]int
	modified map[ksid.ID]struct{}
	dirty    bool
}

// Stage adds t to the transaction and returns its staged view. Staging the
// same table twice returns the same view.
func Stage[T Row[T]](tx *Tx, t *Table[T]) *TableTx[T] {
	if p, ok := tx.staged[t]; ok {
		return p.(*TableTx[T])
	}
	t.mu.Lock()
	s := &TableTx[T]{
		t:        t,
		rows:     slices.Clone(t.rows),
		pos:      make(map[ksid.ID]int, len(t.rows)),
		modified: make(map[ksid.ID]struct{}),
	}
	for i, row := range s.rows {
		s.pos[row.GetID()] = i
	}
	tx.staged[t] = s
	tx.parts = append(tx.parts, s)
	return s
}

// Get returns a clone of the staged row, or the zero value.
func (s *TableTx[T]) Get(id ksid.ID) T {
	if i, ok := s.pos[id]; ok {
		return s.rows[i].Clone()
	}
	var zero T
	return zero
}

// All iterates over clones of the staged rows.
func (s *TableTx[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, row := range slices.Clone(s.rows) {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append stages a new row.
func (s *TableTx[T]) Append(row T) error {
	if err := checkNewRow(row); err != nil {
		return err
	}
	if _, ok := s.pos[row.GetID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, row.GetID())
	}
	s.pos[row.GetID()] = len(s.rows)
	s.rows = append(s.rows, row.Clone())
	s.dirty = true
	return nil
}

// Modify stages fn applied to a clone of the row.
func (s *TableTx[T]) Modify(id ksid.ID, fn func(row T) error) (T, error) {
	var zero T
	i, ok := s.pos[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	curr := s.rows[i].Clone()
	if err := fn(curr); err != nil {
		return zero, err
	}
	if curr.GetID() != id {
		return zero, ErrIDChanged
	}
	if err := curr.Validate(); err != nil {
		return zero, err
	}
	s.rows[i] = curr
	s.modified[id] = struct{}{}
	s.dirty = true
	return curr.Clone(), nil
}

// Delete stages the removal of a row. It reports whether the row existed.
func (s *TableTx[T]) Delete(id ksid.ID) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	s.rows = slices.Delete(s.rows, i, i+1)
	delete(s.pos, id)
	for j := i; j < len(s.rows); j++ {
		s.pos[s.rows[j].GetID()] = j
	}
	s.dirty = true
	return true
}

func (s *TableTx[T]) check() error {
	if !s.dirty {
		return nil
	}
	for _, o := range s.t.observers {
		if c, ok := o.(constraint[T]); ok {
			if err := c.checkAll(s.rows); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *TableTx[T]) path() string {
	return s.t.path
}

func (s *TableTx[T]) prepare(tmp string) (bool, error) {
	if !s.dirty {
		return false, nil
	}
	slices.SortFunc(s.rows, compareRows[T])
	if err := writeRows[T]("", tmp, s.rows); err != nil {
		return false, err
	}
	return true, nil
}

// publish swaps the staged rows in and notifies observers.
func (s *TableTx[T]) publish() {
	t := s.t
	prev := t.rows
	prevPos := t.pos
	t.setRows(s.rows)
	for _, o := range t.observers {
		for _, old := range prev {
			if _, ok := t.pos[old.GetID()]; !ok {
				o.OnDelete(old)
			}
		}
		for _, row := range t.rows {
			i, ok := prevPos[row.GetID()]
			if !ok {
				o.OnAppend(row)
				continue
			}
			if _, mod := s.modified[row.GetID()]; mod {
				o.OnUpdate(prev[i], row)
			}
		}
	}
}

func (s *TableTx[T]) release() {
	s.t.mu.Unlock()
}
