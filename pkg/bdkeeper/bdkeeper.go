// Package bdkeeper is the local SQLite store of the client: the offline
// action queue, its attachment blobs and the read-through cache.
package bdkeeper

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

	_ "github.com/mattn/go-sqlite3"

	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// ErrNotFound is returned when a queued action, blob or cache entry does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS OfflineQueue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	action TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	method TEXT NOT NULL CHECK(method IN ('POST', 'PUT', 'PATCH', 'DELETE')),
	payload TEXT,
	enqueued_at INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('Pending', 'Replaying', 'Abandoned'))
);
CREATE TABLE IF NOT EXISTS Attachments (
	action_id INTEGER NOT NULL REFERENCES OfflineQueue(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	field TEXT NOT NULL,
	file_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	ref TEXT NOT NULL,
	PRIMARY KEY (action_id, position)
);
CREATE TABLE IF NOT EXISTS Blobs (
	ref TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS ReadCache (
	key TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	fetched_at INTEGER NOT NULL
);`

type Keeper struct {
	db *sql.DB
}

// NewKeeper wraps an already opened database.
func NewKeeper(db *sql.DB) *Keeper {
	return &Keeper{db: db}
}

// Open opens (creating if needed) the database file at path and applies the schema.
// The special path ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Keeper, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	k := NewKeeper(db)
	if err := k.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return k, nil
}

// Migrate creates missing tables.
func (k *Keeper) Migrate(ctx context.Context) error {
	if _, err := k.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (k *Keeper) Close() error {
	return k.db.Close()
}

func (k *Keeper) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rollbackErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertAction appends an action and returns the assigned id. Attachments
// carrying Data have their blob stored under Ref in the same transaction.
func (k *Keeper) InsertAction(ctx context.Context, a models.QueuedAction) (int64, error) {
	var id int64
	err := k.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO OfflineQueue
			(request_id, action, endpoint, method, payload, enqueued_at, attempts, last_error, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.RequestID, a.Action, a.Endpoint, a.Method, nullableJSON(a.Payload),
			a.EnqueuedAt.UnixNano(), a.Attempts, a.LastError, string(a.Status))
		if err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for i, att := range a.Attachments {
			if att.Data != nil {
				_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO Blobs (ref, data) VALUES (?, ?)", att.Ref, att.Data)
				if err != nil {
					return fmt.Errorf("failed to store blob: %w", err)
				}
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO Attachments
				(action_id, position, field, file_name, content_type, ref) VALUES (?, ?, ?, ?, ?, ?)`,
				id, i, att.Field, att.FileName, att.ContentType, att.Ref)
			if err != nil {
				return fmt.Errorf("failed to insert attachment: %w", err)
			}
		}
		return nil
	})
	return id, err
}

// ListActions returns actions oldest first, optionally limited to the given statuses.
func (k *Keeper) ListActions(ctx context.Context, statuses ...models.ActionStatus) ([]models.QueuedAction, error) {
	query := `SELECT id, request_id, action, endpoint, method, payload, enqueued_at, attempts, last_error, status
		FROM OfflineQueue`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + strings.Repeat("?,", len(statuses)-1) + "?)"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += " ORDER BY id"

	rows, err := k.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var actions []models.QueuedAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows encountered an error: %w", err)
	}
	rows.Close()

	// Attachments are read after the first cursor is closed: the pool has one connection.
	if err := k.loadAttachments(ctx, actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// GetAction returns a single action by id.
func (k *Keeper) GetAction(ctx context.Context, id int64) (models.QueuedAction, error) {
	row := k.db.QueryRowContext(ctx, `SELECT id, request_id, action, endpoint, method, payload, enqueued_at, attempts, last_error, status
		FROM OfflineQueue WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueuedAction{}, fmt.Errorf("action %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.QueuedAction{}, err
	}
	actions := []models.QueuedAction{a}
	if err := k.loadAttachments(ctx, actions); err != nil {
		return models.QueuedAction{}, err
	}
	return actions[0], nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(s scanner) (models.QueuedAction, error) {
	var (
		a          models.QueuedAction
		payload    sql.NullString
		enqueuedAt int64
		status     string
	)
	err := s.Scan(&a.ID, &a.RequestID, &a.Action, &a.Endpoint, &a.Method, &payload,
		&enqueuedAt, &a.Attempts, &a.LastError, &status)
	if err != nil {
		return a, err
	}
	if payload.Valid {
		a.Payload = json.RawMessage(payload.String)
	}
	a.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()
	a.Status = models.ActionStatus(status)
	return a, nil
}

func (k *Keeper) loadAttachments(ctx context.Context, actions []models.QueuedAction) error {
	if len(actions) == 0 {
		return nil
	}
	index := make(map[int64]int, len(actions))
	for i, a := range actions {
		index[a.ID] = i
	}

	rows, err := k.db.QueryContext(ctx, `SELECT action_id, field, file_name, content_type, ref
		FROM Attachments ORDER BY action_id, position`)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			actionID int64
			att      models.Attachment
		)
		if err := rows.Scan(&actionID, &att.Field, &att.FileName, &att.ContentType, &att.Ref); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if i, ok := index[actionID]; ok {
			actions[i].Attachments = append(actions[i].Attachments, att)
		}
	}
	return rows.Err()
}

// DeleteAction removes an action and prunes blobs nothing references any more.
func (k *Keeper) DeleteAction(ctx context.Context, id int64) error {
	return k.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM Attachments WHERE action_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM OfflineQueue WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("action %d: %w", id, ErrNotFound)
		}
		return pruneBlobs(ctx, tx)
	})
}

// ClearActions empties the queue together with its blobs.
func (k *Keeper) ClearActions(ctx context.Context) error {
	return k.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{"DELETE FROM Attachments", "DELETE FROM OfflineQueue", "DELETE FROM Blobs"} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func pruneBlobs(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM Blobs WHERE ref NOT IN (SELECT ref FROM Attachments)")
	return err
}

// UpdateActionStatus stores replay bookkeeping for an action.
func (k *Keeper) UpdateActionStatus(ctx context.Context, id int64, status models.ActionStatus, attempts int, lastError string) error {
	res, err := k.db.ExecContext(ctx, "UPDATE OfflineQueue SET status = ?, attempts = ?, last_error = ? WHERE id = ?",
		string(status), attempts, lastError, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("action %d: %w", id, ErrNotFound)
	}
	return nil
}

// ResetReplaying returns actions left in Replaying (e.g. by a crash mid-drain) to Pending.
func (k *Keeper) ResetReplaying(ctx context.Context) (int64, error) {
	res, err := k.db.ExecContext(ctx, "UPDATE OfflineQueue SET status = ? WHERE status = ?",
		string(models.StatusPending), string(models.StatusReplaying))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus returns queue counters.
func (k *Keeper) CountByStatus(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := k.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM OfflineQueue GROUP BY status")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch models.ActionStatus(status) {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusReplaying:
			stats.Replaying = count
		case models.StatusAbandoned:
			stats.Abandoned = count
		}
	}
	return stats, rows.Err()
}

func (k *Keeper) GetBlob(ctx context.Context, ref string) ([]byte, error) {
	var data []byte
	err := k.db.QueryRowContext(ctx, "SELECT data FROM Blobs WHERE ref = ?", ref).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blob %s: %w", ref, ErrNotFound)
	}
	return data, err
}

// GetCache returns the cached body for key and the time it was fetched.
func (k *Keeper) GetCache(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		body      []byte
		fetchedAt int64
	)
	err := k.db.QueryRowContext(ctx, "SELECT body, fetched_at FROM ReadCache WHERE key = ?", key).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("cache %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return body, time.Unix(0, fetchedAt).UTC(), nil
}

func (k *Keeper) PutCache(ctx context.Context, key string, body []byte, fetchedAt time.Time) error {
	_, err := k.db.ExecContext(ctx, `INSERT INTO ReadCache (key, body, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at`,
		key, body, fetchedAt.UnixNano())
	return err
}

func (k *Keeper) DeleteCache(ctx context.Context, key string) error {
	_, err := k.db.ExecContext(ctx, "DELETE FROM ReadCache WHERE key = ?", key)
	return err
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
