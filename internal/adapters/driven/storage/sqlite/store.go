package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/scanqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
)

// DatabaseFile is the cache database name inside the data directory.
const DatabaseFile = "artifacts.db"

// Ensure Store implements the interface.
var _ driven.ArtifactCache = (*Store)(nil)

// Store is a SQLite-backed artifact cache.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.scanqa/cache.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".scanqa", "cache")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_name.up.sql newer than the recorded version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_artifacts.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Get retrieves and verifies the payload stored under key.
func (s *Store) Get(ctx context.Context, key domain.ArtifactKey) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload, checksum FROM artifacts
		WHERE fingerprint = ? AND stage = ? AND config_hash = ?
	`, string(key.Fingerprint), string(key.Stage), key.ConfigHash)

	var payload []byte
	var checksum string
	if err := row.Scan(&payload, &checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: reading %s artifact: %w", domain.ErrCacheCorruption, key.Stage, err)
	}

	if sum := checksumOf(payload); sum != checksum {
		return nil, fmt.Errorf("%w: %s artifact checksum mismatch", domain.ErrCacheCorruption, key.Stage)
	}
	return payload, nil
}

// Put stores or replaces the payload for key.
func (s *Store) Put(ctx context.Context, key domain.ArtifactKey, payload []byte) error {
	if !key.Stage.IsValid() || key.Fingerprint == "" {
		return fmt.Errorf("%w: artifact key %+v", domain.ErrInvalidInput, key)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (fingerprint, stage, config_hash, payload, checksum, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, stage, config_hash) DO UPDATE SET
			payload = excluded.payload,
			checksum = excluded.checksum,
			size = excluded.size,
			created_at = excluded.created_at
	`, string(key.Fingerprint), string(key.Stage), key.ConfigHash,
		payload, checksumOf(payload), len(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving %s artifact: %w", key.Stage, err)
	}
	return nil
}

// List returns the entries of one document ordered by stage.
func (s *Store) List(ctx context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, stage, config_hash, size, created_at
		FROM artifacts WHERE fingerprint = ?
		ORDER BY CASE stage
			WHEN 'extract' THEN 0 WHEN 'chunk' THEN 1 WHEN 'embed' THEN 2 ELSE 3
		END, config_hash
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()
	return scanInfos(rows)
}

// ListAll returns every entry ordered by fingerprint and stage.
func (s *Store) ListAll(ctx context.Context) ([]domain.ArtifactInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, stage, config_hash, size, created_at
		FROM artifacts
		ORDER BY fingerprint, CASE stage
			WHEN 'extract' THEN 0 WHEN 'chunk' THEN 1 WHEN 'embed' THEN 2 ELSE 3
		END, config_hash
	`)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()
	return scanInfos(rows)
}

// Delete removes every entry of one document.
func (s *Store) Delete(ctx context.Context, fp domain.Fingerprint) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE fingerprint = ?", string(fp))
	if err != nil {
		return 0, fmt.Errorf("deleting artifacts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted artifacts: %w", err)
	}
	return int(n), nil
}

func scanInfos(rows *sql.Rows) ([]domain.ArtifactInfo, error) {
	var infos []domain.ArtifactInfo
	for rows.Next() {
		var fp, stage, hash string
		var info domain.ArtifactInfo
		var createdAt sql.NullTime
		if err := rows.Scan(&fp, &stage, &hash, &info.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		info.Key = domain.ArtifactKey{
			Fingerprint: domain.Fingerprint(fp),
			Stage:       domain.Stage(stage),
			ConfigHash:  hash,
		}
		if createdAt.Valid {
			info.CreatedAt = createdAt.Time
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func checksumOf(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
