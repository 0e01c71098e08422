// Package journal persists the last observed state of synced items. Each
// record pairs an item path with the change token seen when the item was
// last synced; comparing a fresh token against the stored one is how the
// scanner decides whether an item changed without reading its content.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openvdir/vdirsync/internal/db"
	"github.com/openvdir/vdirsync/internal/etag"
)

const schema = `
CREATE TABLE IF NOT EXISTS item_journal (
    path TEXT PRIMARY KEY,
    etag TEXT NOT NULL,
    size INTEGER NOT NULL,
    last_modified TEXT NOT NULL -- RFC3339
);

CREATE INDEX IF NOT EXISTS idx_journal_etag ON item_journal(etag);
`

// Record is the persisted state of one synced item.
type Record struct {
	Path         string
	Size         int64
	ETag         etag.ETag
	LastModified time.Time
}

// dbRecord mirrors Record for sqlx scanning; time is stored as TEXT.
type dbRecord struct {
	Path         string `db:"path"`
	Size         int64  `db:"size"`
	ETag         string `db:"etag"`
	LastModified string `db:"last_modified"`
}

func (r *dbRecord) toRecord() (*Record, error) {
	modTime, err := time.Parse(time.RFC3339Nano, r.LastModified)
	if err != nil {
		return nil, fmt.Errorf("parse stored timestamp for %s: %w", r.Path, err)
	}
	return &Record{
		Path:         r.Path,
		Size:         r.Size,
		ETag:         etag.ETag(r.ETag),
		LastModified: modTime,
	}, nil
}

var errNotOpen = errors.New("journal not open")

// Journal is the sqlite-backed store of item records.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

func New(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

// Open connects to the underlying database and applies the schema.
func (j *Journal) Open() error {
	if j.db != nil {
		return errors.New("journal already open")
	}

	conn, err := db.Open(j.dbPath, db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("initialize journal schema: %w", err)
	}

	j.db = conn
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return errNotOpen
	}
	if err := j.db.Close(); err != nil {
		return err
	}
	j.db = nil
	slog.Debug("journal closed", "path", j.dbPath)
	return nil
}

// Get returns the record for path, or nil when the path is unknown.
func (j *Journal) Get(path string) (*Record, error) {
	if j.db == nil {
		return nil, errNotOpen
	}
	var row dbRecord
	err := j.db.Get(&row, "SELECT path, size, etag, last_modified FROM item_journal WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query path %s: %w", path, err)
	}
	return row.toRecord()
}

// Changed reports whether the token for path differs from the stored one.
// Unknown paths count as changed.
func (j *Journal) Changed(path string, tok etag.ETag) (bool, error) {
	if j.db == nil {
		return false, errNotOpen
	}
	var stored string
	err := j.db.Get(&stored, "SELECT etag FROM item_journal WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("query path %s: %w", path, err)
	}
	return etag.ETag(stored) != tok, nil
}

// Set inserts or replaces the record for rec.Path.
func (j *Journal) Set(rec *Record) error {
	if j.db == nil {
		return errNotOpen
	}
	if rec == nil {
		return errors.New("cannot set nil record")
	}

	row := dbRecord{
		Path:         rec.Path,
		Size:         rec.Size,
		ETag:         string(rec.ETag),
		LastModified: rec.LastModified.Format(time.RFC3339Nano),
	}

	query := `INSERT OR REPLACE INTO item_journal (path, size, etag, last_modified)
	          VALUES (:path, :size, :etag, :last_modified)`
	if _, err := j.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("set record for path %s: %w", rec.Path, err)
	}
	slog.Debug("journal set", "path", rec.Path, "etag", rec.ETag)
	return nil
}

// Paths returns every path known to the journal.
func (j *Journal) Paths() ([]string, error) {
	if j.db == nil {
		return nil, errNotOpen
	}
	var paths []string
	if err := j.db.Select(&paths, "SELECT path FROM item_journal"); err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	return paths, nil
}

// All returns the full journal as a map keyed by path.
func (j *Journal) All() (map[string]*Record, error) {
	if j.db == nil {
		return nil, errNotOpen
	}
	var rows []dbRecord
	if err := j.db.Select(&rows, "SELECT path, size, etag, last_modified FROM item_journal"); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records := make(map[string]*Record, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			slog.Error("skipping corrupt journal row", "path", rows[i].Path, "error", err)
			continue
		}
		records[rec.Path] = rec
	}
	return records, nil
}

func (j *Journal) Count() (int, error) {
	if j.db == nil {
		return 0, errNotOpen
	}
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM item_journal"); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (j *Journal) Delete(path string) error {
	if j.db == nil {
		return errNotOpen
	}
	if _, err := j.db.Exec("DELETE FROM item_journal WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete path %s: %w", path, err)
	}
	return nil
}
