package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested snapshot doesn't exist.
var ErrNotFound = errors.New("snapshot not found")

// Store keeps encoded snapshots in a SQLite database, with their per-type
// summaries in a separate table so they can be queried without decoding.
type Store struct {
	db *sql.DB
}

// Entry describes a stored snapshot.
type Entry struct {
	ID      int64
	Title   string
	TakenAt time.Time
	Format  Format
	Objects int
	Bytes   int
}

// TypeSample is the size of one type in one stored snapshot.
type TypeSample struct {
	SnapshotID int64
	TakenAt    time.Time
	Count      int
	Bytes      int
}

// OpenStore opens or creates the store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		taken_at INTEGER NOT NULL,
		format INTEGER NOT NULL,
		objects INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshots table: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshot_types (
		snapshot_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		count INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		PRIMARY KEY (snapshot_id, type)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot_types table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (st *Store) Close() error {
	if st.db != nil {
		return st.db.Close()
	}
	return nil
}

// Save encodes s in format f and stores it. It returns the new id.
func (st *Store) Save(ctx context.Context, s *Snapshot, f Format) (int64, error) {
	data, err := Marshal(s, f)
	if err != nil {
		return 0, fmt.Errorf("encoding snapshot: %w", err)
	}
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO snapshots (title, taken_at, format, objects, bytes, data) VALUES (?, ?, ?, ?, ?, ?)",
		s.Title, s.TakenAt, int(f), s.Summary.Objects, s.Summary.Bytes, data,
	)
	if err != nil {
		return 0, fmt.Errorf("saving snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading snapshot id: %w", err)
	}
	for _, ts := range s.Summary.ByType {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_types (snapshot_id, type, count, bytes) VALUES (?, ?, ?, ?)",
			id, ts.Type, ts.Count, ts.Bytes,
		)
		if err != nil {
			return 0, fmt.Errorf("saving %s summary: %w", ts.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing snapshot: %w", err)
	}
	log.Infof("stored snapshot %d %q (%s, %d bytes)", id, s.Title, f, len(data))
	return id, nil
}

// Load retrieves and decodes the snapshot with the given id.
func (st *Store) Load(ctx context.Context, id int64) (*Snapshot, error) {
	var format int
	var data []byte
	err := st.db.QueryRowContext(ctx, "SELECT format, data FROM snapshots WHERE id = ?", id).Scan(&format, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying snapshot %d: %w", id, err)
	}
	return Unmarshal(data, Format(format))
}

// List returns every stored snapshot, oldest first.
func (st *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := st.db.QueryContext(ctx,
		"SELECT id, title, taken_at, format, objects, bytes FROM snapshots ORDER BY taken_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var takenAt int64
		var format int
		if err := rows.Scan(&e.ID, &e.Title, &takenAt, &format, &e.Objects, &e.Bytes); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		e.TakenAt = time.Unix(0, takenAt)
		e.Format = Format(format)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return out, nil
}

// History returns the count and size of one type across every stored
// snapshot, oldest first. Snapshots without the type are skipped.
func (st *Store) History(ctx context.Context, typ string) ([]TypeSample, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT s.id, s.taken_at, t.count, t.bytes
		FROM snapshot_types t JOIN snapshots s ON s.id = t.snapshot_id
		WHERE t.type = ? ORDER BY s.taken_at, s.id`, typ)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", typ, err)
	}
	defer rows.Close()

	var out []TypeSample
	for rows.Next() {
		var ts TypeSample
		var takenAt int64
		if err := rows.Scan(&ts.SnapshotID, &takenAt, &ts.Count, &ts.Bytes); err != nil {
			return nil, fmt.Errorf("scanning %s history: %w", typ, err)
		}
		ts.TakenAt = time.Unix(0, takenAt)
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying %s history: %w", typ, err)
	}
	return out, nil
}

// Delete removes the snapshot with the given id.
func (st *Store) Delete(ctx context.Context, id int64) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting snapshot %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("deleting snapshot %d: %w", id, err)
	} else if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_types WHERE snapshot_id = ?", id); err != nil {
		return fmt.Errorf("deleting snapshot %d summary: %w", id, err)
	}
	return tx.Commit()
}
