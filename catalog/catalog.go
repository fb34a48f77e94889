// CLAUDE:SUMMARY URL catalog store: insert-if-absent dedup, serialized batch claims, fetch/failure accounting, refresh due queries.
// Package catalog is the authoritative deduplicated registry of discovered
// URLs and their lifecycle state.
//
// Identity is the hex hash of the normalized URL (urlnorm.Hash). The queue
// processor and refresher are the only mutators of status after insert.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Statuses of a catalog entry.
const (
	StatusPending = "pending"
	StatusFetched = "fetched"
	StatusFailed  = "failed"
)

// RefreshNever disables refresh for an entry (videos are immutable).
const RefreshNever = "never"

// RefreshDays builds a days:N refresh policy.
func RefreshDays(n int) string { return fmt.Sprintf("days:%d", n) }

// RefreshInterval parses a refresh policy into a duration. Returns false
// for "never" or malformed policies.
func RefreshInterval(policy string) (time.Duration, bool) {
	if policy == RefreshNever || policy == "" {
		return 0, false
	}
	rest, ok := strings.CutPrefix(policy, "days:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * 24 * time.Hour, true
}

// Entry is one row in the catalog.
type Entry struct {
	URLHash        string `json:"url_hash"`
	URL            string `json:"url"`
	Kind           string `json:"kind"`
	Status         string `json:"status"`
	Priority       int    `json:"priority"`
	DiscoveredFrom string `json:"discovered_from,omitempty"`
	AddedAt        int64  `json:"added_at"`
	LastFetchedAt  *int64 `json:"last_fetched_at,omitempty"`
	NextRefreshAt  *int64 `json:"next_refresh_at,omitempty"`
	RefreshPolicy  string `json:"refresh_policy"`
	RetryCount     int    `json:"retry_count"`
	LastError      string `json:"last_error,omitempty"`
}

// Store wraps the catalog database.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) the catalog database at path and applies
// the schema. The parent directory is created.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.DB.Close() }

// InsertResult reports the outcome of an InsertIfAbsent call.
type InsertResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// InsertIfAbsent inserts entries whose url_hash is not yet present and
// reports duplicates without error. Existing rows are never modified
// through this path.
func (s *Store) InsertIfAbsent(ctx context.Context, entries []*Entry) (InsertResult, error) {
	var res InsertResult
	if len(entries) == 0 {
		return res, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO catalog
		(url_hash, url, kind, status, priority, discovered_from, added_at, refresh_policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return res, fmt.Errorf("catalog: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, e := range entries {
		if e.AddedAt == 0 {
			e.AddedAt = now
		}
		if e.Status == "" {
			e.Status = StatusPending
		}
		if e.RefreshPolicy == "" {
			e.RefreshPolicy = RefreshNever
		}
		var from any
		if e.DiscoveredFrom != "" {
			from = e.DiscoveredFrom
		}
		r, err := stmt.ExecContext(ctx,
			e.URLHash, e.URL, e.Kind, e.Status, e.Priority, from, e.AddedAt, e.RefreshPolicy)
		if err != nil {
			return res, fmt.Errorf("catalog: insert %s: %w", e.URL, err)
		}
		n, _ := r.RowsAffected()
		if n > 0 {
			res.Added++
		} else {
			res.Skipped++
		}
	}
	return res, tx.Commit()
}

const entryColumns = `url_hash, url, kind, status, priority, discovered_from,
	added_at, last_fetched_at, next_refresh_at, refresh_policy, retry_count, last_error`

// ClaimBatch atomically returns up to n pending entries ordered by priority
// then age, marking them in-flight so a concurrent worker cannot claim the
// same rows.
func (s *Store) ClaimBatch(ctx context.Context, n int) ([]*Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog
		WHERE status = ? AND claimed_at IS NULL
		ORDER BY priority DESC, added_at ASC
		LIMIT ?`, StatusPending, n)
	if err != nil {
		return nil, fmt.Errorf("catalog: claim select: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now().UnixMilli()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`UPDATE catalog SET claimed_at = ? WHERE url_hash = ?`, now, e.URLHash); err != nil {
			return nil, fmt.Errorf("catalog: claim mark: %w", err)
		}
	}
	return entries, tx.Commit()
}

// ReleaseClaims clears all in-flight markers. Called at startup so entries
// claimed by a crashed run re-enter the queue.
func (s *Store) ReleaseClaims(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE catalog SET claimed_at = NULL WHERE claimed_at IS NOT NULL`)
	return err
}

// MarkFetched records a successful fetch and schedules the next refresh.
// nextRefreshAt may be nil for refresh_policy=never entries.
func (s *Store) MarkFetched(ctx context.Context, urlHash string, when time.Time, nextRefreshAt *time.Time) error {
	var next any
	if nextRefreshAt != nil {
		next = nextRefreshAt.UnixMilli()
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE catalog SET status = ?, last_fetched_at = ?, next_refresh_at = ?,
		last_error = NULL, claimed_at = NULL
		WHERE url_hash = ?`,
		StatusFetched, when.UnixMilli(), next, urlHash)
	if err != nil {
		return fmt.Errorf("catalog: mark fetched: %w", err)
	}
	return requireRow(res, urlHash)
}

// MarkFailed records a failed attempt. Transient failures increment
// retry_count and re-enter pending until maxRetries is exhausted; permanent
// failures stick at failed immediately.
func (s *Store) MarkFailed(ctx context.Context, urlHash, errMsg string, permanent bool, maxRetries int) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	var retries int
	if err := tx.QueryRowContext(ctx,
		`SELECT retry_count FROM catalog WHERE url_hash = ?`, urlHash).Scan(&retries); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("catalog: no entry %s", urlHash)
		}
		return fmt.Errorf("catalog: mark failed: %w", err)
	}

	retries++
	if retries > maxRetries {
		retries = maxRetries
	}
	status := StatusPending
	if permanent || retries >= maxRetries {
		status = StatusFailed
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE catalog SET status = ?, retry_count = ?, last_error = ?, claimed_at = NULL
		WHERE url_hash = ?`,
		status, retries, errMsg, urlHash); err != nil {
		return fmt.Errorf("catalog: mark failed: %w", err)
	}
	return tx.Commit()
}

// RetryFailed moves failed entries back to pending with a fresh retry
// budget. Operator-initiated only.
func (s *Store) RetryFailed(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE catalog SET status = ?, retry_count = 0, last_error = NULL WHERE status = ?`,
		StatusPending, StatusFailed)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DueForRefresh returns fetched entries whose next refresh time has passed.
// Entries with refresh_policy=never are excluded by definition.
func (s *Store) DueForRefresh(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog
		WHERE status = ? AND refresh_policy != ? AND next_refresh_at IS NOT NULL AND next_refresh_at <= ?
		ORDER BY priority DESC, last_fetched_at ASC
		LIMIT ?`, StatusFetched, RefreshNever, now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: due: %w", err)
	}
	return scanEntries(rows)
}

// Get returns the entry with the given hash, or nil if absent.
func (s *Store) Get(ctx context.Context, urlHash string) (*Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog WHERE url_hash = ?`, urlHash)
	if err != nil {
		return nil, err
	}
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// ListByStatus returns all entries with the given status, newest first.
func (s *Store) ListByStatus(ctx context.Context, status string) ([]*Entry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog WHERE status = ? ORDER BY added_at DESC`, status)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Clear bulk-deletes entries with the given statuses. Only pending and
// failed entries may be cleared; fetched rows are never touched here.
func (s *Store) Clear(ctx context.Context, statuses ...string) (int, error) {
	var total int64
	for _, st := range statuses {
		if st != StatusPending && st != StatusFailed {
			return int(total), fmt.Errorf("catalog: refusing to clear status %q", st)
		}
		res, err := s.DB.ExecContext(ctx, `DELETE FROM catalog WHERE status = ?`, st)
		if err != nil {
			return int(total), fmt.Errorf("catalog: clear %s: %w", st, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return int(total), nil
}

// DeleteAll wipes the catalog. Only meaningful when paired with a vector
// index wipe.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM catalog`); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM api_call_log`)
	return err
}

// CountsByStatus returns entry counts keyed by status.
func (s *Store) CountsByStatus(ctx context.Context) (map[string]int, error) {
	return s.countsBy(ctx, "status")
}

// CountsByKind returns entry counts keyed by kind.
func (s *Store) CountsByKind(ctx context.Context) (map[string]int, error) {
	return s.countsBy(ctx, "kind")
}

func (s *Store) countsBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM catalog GROUP BY `+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, urlHash string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("catalog: no entry %s", urlHash)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()
	var entries []*Entry
	for rows.Next() {
		var e Entry
		var from, lastErr sql.NullString
		var fetched, refresh sql.NullInt64
		if err := rows.Scan(&e.URLHash, &e.URL, &e.Kind, &e.Status, &e.Priority, &from,
			&e.AddedAt, &fetched, &refresh, &e.RefreshPolicy, &e.RetryCount, &lastErr); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		e.DiscoveredFrom = from.String
		e.LastError = lastErr.String
		if fetched.Valid {
			v := fetched.Int64
			e.LastFetchedAt = &v
		}
		if refresh.Valid {
			v := refresh.Int64
			e.NextRefreshAt = &v
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
