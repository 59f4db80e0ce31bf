package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lapse-go/internal/database/migrations"
	"lapse-go/internal/lapse"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements lapse.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path, which can be a file path or
// ":memory:", and migrates it to the latest schema.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, lapse.NewStorageError("opening database", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, lapse.NewStorageError("migrating database", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer per store instance. This also keeps ":memory:" databases
	// from being split across pooled connections.
	db.SetMaxOpenConns(1)

	// SQLite default is OFF for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// The capture store must survive crashes mid-recording.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	return db, nil
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

// Timelapse operations

func (s *SQLiteDatabase) SaveTimelapse(ctx context.Context, t *lapse.Timelapse) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, lapse.NewStorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	if t.IsActive {
		var activeID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM timelapses WHERE is_active = 1`).Scan(&activeID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return 0, lapse.NewStorageError("checking active timelapse", err)
		case activeID != t.ID:
			return 0, fmt.Errorf("saving timelapse: timelapse %d: %w", activeID, lapse.ErrActiveSessionExists)
		}
	}

	id := t.ID
	if id == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO timelapses (name, description, started_at, is_active) VALUES (?, ?, ?, ?)`,
			t.Name, t.Description, toMicros(t.StartedAt), t.IsActive)
		if err != nil {
			return 0, lapse.NewStorageError("inserting timelapse", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, lapse.NewStorageError("reading timelapse id", err)
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO timelapses (id, name, description, started_at, is_active) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   name = excluded.name,
			   description = excluded.description,
			   started_at = excluded.started_at,
			   is_active = excluded.is_active`,
			id, t.Name, t.Description, toMicros(t.StartedAt), t.IsActive)
		if err != nil {
			return 0, lapse.NewStorageError("upserting timelapse", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE timelapse_id = ?`, id); err != nil {
			return 0, lapse.NewStorageError("replacing chunks", err)
		}
	}

	for _, c := range t.Chunks {
		c.TimelapseID = id
		if err := insertChunk(ctx, tx, c); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, lapse.NewStorageError("committing timelapse", err)
	}
	return id, nil
}

func insertChunk(ctx context.Context, tx *sql.Tx, c *lapse.Chunk) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (timelapse_id, data, created_at, session_epoch) VALUES (?, ?, ?, ?)`,
		c.TimelapseID, c.Data, toMicros(c.CreatedAt), string(c.Epoch))
	if err != nil {
		return lapse.NewStorageError("inserting chunk", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return lapse.NewStorageError("reading chunk id", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindTimelapse(ctx context.Context, id int64) (*lapse.Timelapse, error) {
	return s.findTimelapse(ctx, `WHERE id = ?`, id)
}

func (s *SQLiteDatabase) FindActiveTimelapse(ctx context.Context) (*lapse.Timelapse, error) {
	return s.findTimelapse(ctx, `WHERE is_active = 1 ORDER BY id LIMIT 1`)
}

func (s *SQLiteDatabase) findTimelapse(ctx context.Context, where string, args ...any) (*lapse.Timelapse, error) {
	var (
		t         lapse.Timelapse
		startedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, started_at, is_active FROM timelapses `+where, args...).
		Scan(&t.ID, &t.Name, &t.Description, &startedAt, &t.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, lapse.NewStorageError("finding timelapse", err)
	}
	t.StartedAt = fromMicros(startedAt)

	chunks, err := s.findChunks(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Chunks = chunks
	return &t, nil
}

func (s *SQLiteDatabase) findChunks(ctx context.Context, timelapseID int64) ([]*lapse.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timelapse_id, data, created_at, session_epoch FROM chunks WHERE timelapse_id = ? ORDER BY id`,
		timelapseID)
	if err != nil {
		return nil, lapse.NewStorageError("finding chunks", err)
	}
	defer rows.Close()

	var chunks []*lapse.Chunk
	for rows.Next() {
		var (
			c         lapse.Chunk
			createdAt int64
			epoch     string
		)
		if err := rows.Scan(&c.ID, &c.TimelapseID, &c.Data, &createdAt, &epoch); err != nil {
			return nil, lapse.NewStorageError("scanning chunk", err)
		}
		c.CreatedAt = fromMicros(createdAt)
		c.Epoch = lapse.SessionEpoch(epoch)
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, lapse.NewStorageError("iterating chunks", err)
	}
	return chunks, nil
}

func (s *SQLiteDatabase) InsertChunk(ctx context.Context, c *lapse.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lapse.NewStorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM timelapses WHERE id = ?`, c.TimelapseID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("timelapse %d: %w", c.TimelapseID, lapse.ErrNotFound)
		}
		return lapse.NewStorageError("loading timelapse", err)
	}

	if err := insertChunk(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return lapse.NewStorageError("committing chunk", err)
	}
	return nil
}

func (s *SQLiteDatabase) SetTimelapseActive(ctx context.Context, id int64, active bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE timelapses SET is_active = ? WHERE id = ?`, active, id); err != nil {
		return lapse.NewStorageError("updating timelapse", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteTimelapse(ctx context.Context, id int64) error {
	// Chunks go with it through ON DELETE CASCADE.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timelapses WHERE id = ?`, id); err != nil {
		return lapse.NewStorageError("deleting timelapse", err)
	}
	return nil
}

// Snapshot operations

func (s *SQLiteDatabase) InsertSnapshot(ctx context.Context, snap *lapse.Snapshot) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (created_at, session_epoch) VALUES (?, ?)`,
		toMicros(snap.CreatedAt), string(snap.Epoch))
	if err != nil {
		return 0, lapse.NewStorageError("inserting snapshot", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, lapse.NewStorageError("reading snapshot id", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FindAllSnapshots(ctx context.Context) ([]*lapse.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, session_epoch FROM snapshots ORDER BY id`)
	if err != nil {
		return nil, lapse.NewStorageError("finding snapshots", err)
	}
	defer rows.Close()

	var snaps []*lapse.Snapshot
	for rows.Next() {
		var (
			snap      lapse.Snapshot
			createdAt int64
			epoch     string
		)
		if err := rows.Scan(&snap.ID, &createdAt, &epoch); err != nil {
			return nil, lapse.NewStorageError("scanning snapshot", err)
		}
		snap.CreatedAt = fromMicros(createdAt)
		snap.Epoch = lapse.SessionEpoch(epoch)
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, lapse.NewStorageError("iterating snapshots", err)
	}
	return snaps, nil
}

func (s *SQLiteDatabase) DeleteAllSnapshots(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return lapse.NewStorageError("deleting snapshots", err)
	}
	return nil
}

// Device operations

func (s *SQLiteDatabase) SaveDevice(ctx context.Context, d *lapse.Device) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lapse.NewStorageError("beginning transaction", err)
	}
	defer tx.Rollback()

	if d.ThisDevice {
		var otherID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM devices WHERE this_device = 1 AND id != ?`, d.ID).Scan(&otherID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return lapse.NewStorageError("checking this device", err)
		default:
			return fmt.Errorf("saving device %s: device %s: %w", d.ID, otherID, lapse.ErrThisDeviceExists)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO devices (id, passkey, this_device) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET passkey = excluded.passkey, this_device = excluded.this_device`,
		d.ID, d.Passkey, d.ThisDevice)
	if err != nil {
		return lapse.NewStorageError("saving device", err)
	}

	if err := tx.Commit(); err != nil {
		return lapse.NewStorageError("committing device", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindDevice(ctx context.Context, id string) (*lapse.Device, error) {
	var d lapse.Device
	err := s.db.QueryRowContext(ctx, `SELECT id, passkey, this_device FROM devices WHERE id = ?`, id).
		Scan(&d.ID, &d.Passkey, &d.ThisDevice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, lapse.NewStorageError("finding device", err)
	}
	return &d, nil
}

func (s *SQLiteDatabase) FindAllDevices(ctx context.Context) ([]*lapse.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, passkey, this_device FROM devices ORDER BY id`)
	if err != nil {
		return nil, lapse.NewStorageError("finding devices", err)
	}
	defer rows.Close()

	var devices []*lapse.Device
	for rows.Next() {
		var d lapse.Device
		if err := rows.Scan(&d.ID, &d.Passkey, &d.ThisDevice); err != nil {
			return nil, lapse.NewStorageError("scanning device", err)
		}
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, lapse.NewStorageError("iterating devices", err)
	}
	return devices, nil
}

func (s *SQLiteDatabase) DeleteDevice(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return lapse.NewStorageError("deleting device", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Compile-time check that SQLiteDatabase implements lapse.Database.
var _ lapse.Database = (*SQLiteDatabase)(nil)
