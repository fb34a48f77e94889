// CLAUDE:SUMMARY Applies the catalog SQL schema: discovered URL registry plus API call log.
package catalog

import "database/sql"

// Schema is the complete catalog schema.
const Schema = `
-- Discovered URLs and their lifecycle state
CREATE TABLE IF NOT EXISTS catalog (
    url_hash        TEXT PRIMARY KEY,
    url             TEXT NOT NULL,
    kind            TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    priority        INTEGER NOT NULL DEFAULT 50,
    discovered_from TEXT,
    added_at        INTEGER NOT NULL,
    last_fetched_at INTEGER,
    next_refresh_at INTEGER,
    refresh_policy  TEXT NOT NULL DEFAULT 'never',
    retry_count     INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT,
    claimed_at      INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_catalog_url_hash ON catalog(url_hash);
CREATE INDEX IF NOT EXISTS idx_catalog_queue ON catalog(status, priority DESC, added_at);
CREATE INDEX IF NOT EXISTS idx_catalog_refresh ON catalog(status, next_refresh_at);

-- External API usage (quota surfacing only, never on the hot path)
CREATE TABLE IF NOT EXISTS api_call_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    api_name        TEXT NOT NULL,
    called_at       INTEGER NOT NULL,
    success         INTEGER NOT NULL,
    latency_ms      INTEGER NOT NULL DEFAULT 0,
    remaining_quota INTEGER
);
CREATE INDEX IF NOT EXISTS idx_api_call_log_name ON api_call_log(api_name, called_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
