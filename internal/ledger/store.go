package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"papercast/internal/config"
)

// Store persists ledger entries in SQLite. Entries outlive the episodes
// they describe; a failed run's trail stays queryable for operators.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS processing_log (
    id TEXT PRIMARY KEY,
    episode_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    metadata_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_processing_log_episode ON processing_log(episode_id, started_at);
`

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Append inserts a new entry row.
func (s *Store) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO processing_log (
            id, episode_id, stage, status, started_at, completed_at,
            retry_count, error_message, metadata_json
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.EpisodeID,
		string(entry.Stage),
		string(entry.Status),
		entry.StartedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(entry.CompletedAt),
		entry.RetryCount,
		nullableString(entry.ErrorMessage),
		nullableString(metadata),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Update persists mutations of an existing entry (retry count, resolution).
func (s *Store) Update(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE processing_log
         SET status = ?, completed_at = ?, retry_count = ?, error_message = ?, metadata_json = ?
         WHERE id = ?`,
		string(entry.Status),
		nullableTime(entry.CompletedAt),
		entry.RetryCount,
		nullableString(entry.ErrorMessage),
		nullableString(metadata),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("update ledger entry: %w", err)
	}
	return nil
}

// ForEpisode returns all entries recorded for an episode, oldest first.
func (s *Store) ForEpisode(ctx context.Context, episodeID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM processing_log WHERE episode_id = ? ORDER BY started_at, id`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM processing_log GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CheckHealth verifies the database answers a ping and the table exists.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("ledger database connection unavailable")
	}
	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		return fmt.Errorf("ping ledger database: %w", err)
	}
	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'processing_log'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errors.New("processing_log table missing")
		}
		return fmt.Errorf("query table info: %w", err)
	}
	return nil
}

const entryColumns = "id, episode_id, stage, status, started_at, completed_at, retry_count, error_message, metadata_json"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id           string
		episodeID    string
		stage        string
		status       string
		startedRaw   string
		completedRaw sql.NullString
		retryCount   int
		errorMessage sql.NullString
		metadataJSON sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&episodeID,
		&stage,
		&status,
		&startedRaw,
		&completedRaw,
		&retryCount,
		&errorMessage,
		&metadataJSON,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           id,
		EpisodeID:    episodeID,
		Stage:        Stage(stage),
		Status:       Status(status),
		RetryCount:   retryCount,
		ErrorMessage: errorMessage.String,
	}
	if started, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		entry.StartedAt = started
	}
	if completedRaw.Valid {
		if completed, err := time.Parse(time.RFC3339Nano, completedRaw.String); err == nil {
			entry.CompletedAt = &completed
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(metadataJSON.String), &metadata); err == nil {
			entry.Metadata = metadata
		}
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]string{}
	}
	return entry, nil
}

func marshalMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(encoded), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
