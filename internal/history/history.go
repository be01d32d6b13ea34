// Package history keeps emitted snapshots in a SQLite database.
//
// The parser reports a snapshot every time the table of a poll grows, so a
// poll is stored once and overwritten until the next poll begins.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/k-kuroguro/smiview/internal/model"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("snapshot not found")

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Entry summarizes one stored poll.
type Entry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	RecordedAt time.Time `json:"recordedAt"`
	Nodes      int       `json:"nodes"`
	Devices    int       `json:"devices"`
	Processes  int       `json:"processes"`
}

// DeviceSample is one device row of a stored poll.
type DeviceSample struct {
	SnapshotID  int64     `json:"snapshotId"`
	Timestamp   time.Time `json:"timestamp"`
	Hostname    string    `json:"hostname"`
	DeviceID    int       `json:"deviceId"`
	Name        string    `json:"name"`
	Utilization int       `json:"utilization"`
	MemoryUsed  int       `json:"memoryUsed"`
	MemoryTotal int       `json:"memoryTotal"`
	Temperature int       `json:"temperature"`
	PowerUsage  int       `json:"powerUsage"`
	Processes   int       `json:"processes"`
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at INTEGER NOT NULL UNIQUE,
			recorded_at INTEGER NOT NULL,
			nodes INTEGER NOT NULL,
			devices INTEGER NOT NULL,
			processes INTEGER NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS device_samples (
			snapshot_id INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			hostname TEXT NOT NULL,
			device_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			utilization INTEGER NOT NULL,
			memory_used INTEGER NOT NULL,
			memory_total INTEGER NOT NULL,
			temperature INTEGER NOT NULL,
			power_usage INTEGER NOT NULL,
			processes INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_device_samples_device ON device_samples(hostname, device_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Record stores snap, replacing the row of the same poll if there is one.
func (s *Store) Record(ctx context.Context, snap model.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	nodes, devices, procs := snap.Counts()
	takenAt := snap.Timestamp.UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM snapshots WHERE taken_at = ?`, takenAt).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (taken_at, recorded_at, nodes, devices, processes, payload) VALUES (?, ?, ?, ?, ?, ?)`,
			takenAt, time.Now().UnixNano(), nodes, devices, procs, string(payload))
		if err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE snapshots SET recorded_at = ?, nodes = ?, devices = ?, processes = ?, payload = ? WHERE id = ?`,
			time.Now().UnixNano(), nodes, devices, procs, string(payload), id); err != nil {
			return fmt.Errorf("updating snapshot %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM device_samples WHERE snapshot_id = ?`, id); err != nil {
			return err
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO device_samples
		(snapshot_id, hostname, device_id, name, utilization, memory_used, memory_total, temperature, power_usage, processes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, n := range snap.Nodes {
		for _, d := range n.Devices {
			if _, err := stmt.ExecContext(ctx, id, n.Hostname, d.ID, d.Name, d.Utilization,
				d.Memory.Used, d.Memory.Total, d.Temperature, d.PowerUsage, len(d.Processes)); err != nil {
				return fmt.Errorf("inserting device sample: %w", err)
			}
		}
	}
	return tx.Commit()
}

// List returns up to limit polls, newest first. A limit below 1 means all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken_at, recorded_at, nodes, devices, processes FROM snapshots ORDER BY taken_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var takenAt, recordedAt int64
		if err := rows.Scan(&e.ID, &takenAt, &recordedAt, &e.Nodes, &e.Devices, &e.Processes); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, takenAt)
		e.RecordedAt = time.Unix(0, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get loads the full snapshot stored under id.
func (s *Store) Get(ctx context.Context, id int64) (model.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decoding snapshot %d: %w", id, err)
	}
	return snap, nil
}

// DeviceSamples returns up to limit samples of one device, newest first.
func (s *Store) DeviceSamples(ctx context.Context, hostname string, deviceID, limit int) ([]DeviceSample, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.snapshot_id, s.taken_at, d.hostname, d.device_id, d.name, d.utilization,
			d.memory_used, d.memory_total, d.temperature, d.power_usage, d.processes
		FROM device_samples d JOIN snapshots s ON s.id = d.snapshot_id
		WHERE d.hostname = ? AND d.device_id = ?
		ORDER BY s.taken_at DESC LIMIT ?`, hostname, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying device samples: %w", err)
	}
	defer rows.Close()

	var samples []DeviceSample
	for rows.Next() {
		var d DeviceSample
		var takenAt int64
		if err := rows.Scan(&d.SnapshotID, &takenAt, &d.Hostname, &d.DeviceID, &d.Name, &d.Utilization,
			&d.MemoryUsed, &d.MemoryTotal, &d.Temperature, &d.PowerUsage, &d.Processes); err != nil {
			return nil, err
		}
		d.Timestamp = time.Unix(0, takenAt)
		samples = append(samples, d)
	}
	return samples, rows.Err()
}
