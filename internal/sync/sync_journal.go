package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/savebox/savebox/internal/db"
	"github.com/savebox/savebox/internal/utils"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS pack_journal (
    name TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    hash TEXT NOT NULL,
    packed_at TEXT NOT NULL -- RFC3339 string
);

CREATE INDEX IF NOT EXISTS idx_pack_journal_fingerprint ON pack_journal(fingerprint);
`

// PackRecord remembers the container hash produced the last time a save was
// packed, keyed by the cheap fingerprint of its on-disk content. As long as
// the fingerprint holds, the hash can be reused without repacking.
type PackRecord struct {
	Name        string
	Fingerprint string
	Hash        string
	PackedAt    time.Time
}

// dbPackRecord is the scan shape, with time stored as TEXT.
type dbPackRecord struct {
	Name        string `db:"name"`
	Fingerprint string `db:"fingerprint"`
	Hash        string `db:"hash"`
	PackedAt    string `db:"packed_at"`
}

// PackJournal persists pack results across daemon restarts using SQLite.
type PackJournal struct {
	db     *sqlx.DB
	dbPath string
}

// NewPackJournal creates a PackJournal backed by an SQLite database at dbPath.
// Call Open before use.
func NewPackJournal(dbPath string) *PackJournal {
	return &PackJournal{dbPath: dbPath}
}

// Open the journal and the underlying database.
func (j *PackJournal) Open() error {
	if j.db != nil {
		return fmt.Errorf("pack journal already open")
	}

	if err := utils.EnsureParent(j.dbPath); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	sqldb, err := db.NewSqliteDB(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open pack journal: %w", err)
	}

	if _, err := sqldb.Exec(journalSchema); err != nil {
		sqldb.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j.db = sqldb
	return nil
}

// Close closes the underlying database connection.
func (j *PackJournal) Close() error {
	if j.db == nil {
		return fmt.Errorf("pack journal not open")
	}
	if err := j.db.Close(); err != nil {
		slog.Error("failed to close pack journal", "error", err)
		return err
	}
	j.db = nil
	slog.Debug("pack journal closed")
	return nil
}

// Get retrieves the record for a save, or nil when the save was never packed.
func (j *PackJournal) Get(name string) (*PackRecord, error) {
	var rec dbPackRecord
	err := j.db.Get(&rec, "SELECT name, fingerprint, hash, packed_at FROM pack_journal WHERE name = ?", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query save %q: %w", name, err)
	}

	packedAt, err := time.Parse(time.RFC3339, rec.PackedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored timestamp for %q: %w", name, err)
	}

	return &PackRecord{
		Name:        rec.Name,
		Fingerprint: rec.Fingerprint,
		Hash:        rec.Hash,
		PackedAt:    packedAt,
	}, nil
}

// Set inserts or updates the record for a save.
func (j *PackJournal) Set(rec *PackRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot set nil record")
	}

	data := dbPackRecord{
		Name:        rec.Name,
		Fingerprint: rec.Fingerprint,
		Hash:        rec.Hash,
		PackedAt:    rec.PackedAt.Format(time.RFC3339),
	}

	query := `INSERT OR REPLACE INTO pack_journal (name, fingerprint, hash, packed_at)
	          VALUES (:name, :fingerprint, :hash, :packed_at)`
	if _, err := j.db.NamedExec(query, data); err != nil {
		return fmt.Errorf("failed to set record for %q: %w", rec.Name, err)
	}
	slog.Debug("pack journal set", "name", rec.Name, "hash", rec.Hash)
	return nil
}

// Delete removes the record for a save. Removing an absent record is not an
// error.
func (j *PackJournal) Delete(name string) error {
	if _, err := j.db.Exec("DELETE FROM pack_journal WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete record for %q: %w", name, err)
	}
	return nil
}

// Count returns the number of journal entries.
func (j *PackJournal) Count() (int, error) {
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM pack_journal"); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Destroy closes the journal and moves the database aside as a timestamped
// backup.
func (j *PackJournal) Destroy() error {
	if err := j.Close(); err != nil {
		return fmt.Errorf("failed to destroy journal: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	if err := os.Rename(j.dbPath, fmt.Sprintf("%s.%s.bak", j.dbPath, timestamp)); err != nil {
		return fmt.Errorf("failed to rename journal file: %w", err)
	}
	return nil
}

// Fingerprint summarizes a save location cheaply enough to run on every
// refresh. Files fold in size and mtime; directories fold in file count,
// total size and the newest mtime. It deliberately avoids reading content.
func Fingerprint(location string) (string, error) {
	info, err := os.Stat(location)
	if err != nil {
		return "", err
	}

	if !info.IsDir() {
		return fmt.Sprintf("f:%d:%d", info.Size(), info.ModTime().UnixNano()), nil
	}

	var (
		count  int64
		size   int64
		newest int64
	)
	err = filepath.WalkDir(location, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		count++
		size += fi.Size()
		if mt := fi.ModTime().UnixNano(); mt > newest {
			newest = mt
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("d:%d:%d:%d", count, size, newest), nil
}
