package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLiteStore persists the registry in the devices, owner_devices and
// registry_counter tables created by the embedded migrations.
//
// TryCommit runs its reads and writes in one transaction. With the
// database package's single connection and immediate transaction lock
// that transaction is the store's exclusive section.
type SQLiteStore struct {
	db       *sql.DB
	maxOwned int
	now      func() time.Time
}

// NewSQLiteStore returns a store over a migrated database.
func NewSQLiteStore(db *sql.DB, maxOwned int) *SQLiteStore {
	return &SQLiteStore{db: db, maxOwned: maxOwned, now: time.Now}
}

// Contains reports whether id is registered.
func (s *SQLiteStore) Contains(ctx context.Context, id ID) (bool, error) {
	return deviceExists(ctx, s.db, id)
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id ID) (Record, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, "SELECT owner FROM devices WHERE id = ?", id.String()).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrDeviceNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("querying device: %w", err)
	}
	return Record{ID: id, Owner: Owner(owner)}, nil
}

// OwnedBy returns the owner's device ids in registration order.
func (s *SQLiteStore) OwnedBy(ctx context.Context, owner Owner) ([]ID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT device_id FROM owner_devices WHERE owner = ? ORDER BY position", string(owner))
	if err != nil {
		return nil, fmt.Errorf("querying owner index: %w", err)
	}
	defer rows.Close()

	ids := []ID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning owner index: %w", err)
		}
		id, err := ParseID(raw)
		if err != nil {
			return nil, fmt.Errorf("owner index for %q: %w", owner, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owner index: %w", err)
	}
	return ids, nil
}

// Count returns the number of registered devices.
func (s *SQLiteStore) Count(ctx context.Context) (uint64, error) {
	return readCounter(ctx, s.db)
}

// TryCommit registers rec in a single transaction.
func (s *SQLiteStore) TryCommit(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	exists, err := deviceExists(ctx, tx, rec.ID)
	if err != nil {
		return err
	}
	count, err := readCounter(ctx, tx)
	if err != nil {
		return err
	}
	var owned int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM owner_devices WHERE owner = ?", string(rec.Owner),
	).Scan(&owned); err != nil {
		return fmt.Errorf("counting owner devices: %w", err)
	}

	if err := checkCommit(exists, count, owned, s.maxOwned); err != nil {
		return err
	}

	id := rec.ID.String()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO devices (id, owner, created_at) VALUES (?, ?, ?)",
		id, string(rec.Owner), s.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO owner_devices (owner, position, device_id) VALUES (?, ?, ?)",
		string(rec.Owner), owned, id,
	); err != nil {
		return fmt.Errorf("appending owner index: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO registry_counter (id, value) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET value = excluded.value`,
		strconv.FormatUint(count+1, 10),
	); err != nil {
		return fmt.Errorf("updating counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func deviceExists(ctx context.Context, q queryer, id ID) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices WHERE id = ?", id.String()).Scan(&n); err != nil {
		return false, fmt.Errorf("checking device: %w", err)
	}
	return n > 0, nil
}

func readCounter(ctx context.Context, q queryer) (uint64, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT value FROM registry_counter WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter: %w", err)
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing counter %q: %w", raw, err)
	}
	return count, nil
}

// isUniqueConstraintError checks if an error is a SQLite UNIQUE violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
