package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Store is the deployment address book. Writes are serialised across
// processes with a file lock.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create address book directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create address book lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open address book sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS deployments (
			run_id TEXT PRIMARY KEY,
			network_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			permit2 TEXT NOT NULL DEFAULT '',
			router TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_deployments_network_updated ON deployments(network_id, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init address book schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(rec Record) error {
	if strings.TrimSpace(rec.RunID) == "" {
		return fmt.Errorf("save deployment: missing run id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock address book: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock address book: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	createdNanos := parseTimestamp(rec.CreatedAt)
	updatedNanos := parseTimestamp(rec.UpdatedAt)

	_, err = s.db.Exec(`
		INSERT INTO deployments (run_id, network_id, status, stage, permit2, router, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status,
			stage=excluded.stage,
			permit2=excluded.permit2,
			router=excluded.router,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, rec.RunID, rec.NetworkID, string(rec.Status), string(rec.Stage), rec.Permit2, rec.Router, createdNanos, updatedNanos, payload)
	if err != nil {
		return fmt.Errorf("save deployment: %w", err)
	}
	return nil
}

func (s *Store) Get(runID string) (Record, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM deployments WHERE run_id = ?", runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("deployment not found: %s", runID))
		}
		return Record{}, fmt.Errorf("read deployment: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode deployment payload: %w", err)
	}
	return rec, nil
}

// List returns the most recently updated runs, optionally for one network
// (networkID 0 lists every network).
func (s *Store) List(networkID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if networkID == 0 {
		rows, err = s.db.Query("SELECT payload FROM deployments ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM deployments WHERE network_id = ? ORDER BY updated_at DESC LIMIT ?", networkID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode deployment row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}
	return records, nil
}

// LatestPermit2 returns the Permit2 address of the most recent run on the
// network that confirmed one, including runs that failed afterwards.
func (s *Store) LatestPermit2(networkID int64) (common.Address, string, bool, error) {
	var addr, runID string
	err := s.db.QueryRow(
		"SELECT permit2, run_id FROM deployments WHERE network_id = ? AND permit2 != '' ORDER BY updated_at DESC LIMIT 1",
		networkID,
	).Scan(&addr, &runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Address{}, "", false, nil
		}
		return common.Address{}, "", false, fmt.Errorf("read latest permit2: %w", err)
	}
	if !common.IsHexAddress(addr) {
		return common.Address{}, "", false, fmt.Errorf("address book holds malformed permit2 %q for run %s", addr, runID)
	}
	return common.HexToAddress(addr), runID, true, nil
}

func parseTimestamp(v string) int64 {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Now().UTC().UnixNano()
	}
	return t.UTC().UnixNano()
}
