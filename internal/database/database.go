package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // SQLCipher-enabled SQLite3 driver

	"media-catalog/internal/events"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrInvalidKey is returned by Open when the passphrase is wrong or the file
// is not a readable SQLCipher database. No handle is left open in that case.
var ErrInvalidKey = errors.New("invalid passphrase or corrupt database")

// Database manages all operations against one encrypted catalog file.
// It is safe for concurrent use; background tasks that need full isolation
// should open their own Database against the same path instead of sharing
// one handle across task boundaries.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	bus    *events.Bus
}

// Open opens or creates the encrypted database at dbPath, verifies the
// passphrase, and brings the schema to the latest version. The parent
// directory is created if missing.
func Open(ctx context.Context, dbPath, passphrase string) (*Database, error) {
	logging.Info("opening store at %s", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL with relaxed sync lets one connection write while others read;
	// the loss window is bounded to the current writer transaction.
	connStr := fmt.Sprintf(
		"%s?_pragma_key=%s&_pragma_cipher_page_size=4096&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on",
		dbPath, url.QueryEscape(passphrase),
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	// Reading the schema catalog forces key derivation; a wrong passphrase
	// or corrupt file fails here, before any schema work.
	verifyCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	if err := db.QueryRowContext(verifyCtx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after key verification failure: %v", closeErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.migrate(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after migration failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}

	// Optional optimization; the store stays usable without it.
	if err := d.ensureFolderKeyIndex(); err != nil {
		logging.Warn("folder_key unique index not created yet: %v", err)
	}

	logging.Info("store opened at %s", dbPath)
	return d, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// SetEventBus attaches a bus for change notifications. Optional; a nil bus
// simply drops events.
func (d *Database) SetEventBus(bus *events.Bus) {
	d.bus = bus
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// Backup writes an encrypted copy of the store to destPath using SQLCipher's
// own export. The destination is keyed with the given passphrase.
func (d *Database) Backup(ctx context.Context, destPath, passphrase string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("backup", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// ATTACH ... KEY does not accept placeholders; quote manually.
	attach := fmt.Sprintf("ATTACH DATABASE '%s' AS backup KEY '%s'",
		sqlQuote(destPath), sqlQuote(passphrase))
	if _, err = conn.ExecContext(ctx, attach); err != nil {
		return fmt.Errorf("failed to attach backup database: %w", err)
	}
	if _, err = conn.ExecContext(ctx, "SELECT sqlcipher_export('backup')"); err != nil {
		_, _ = conn.ExecContext(ctx, "DETACH DATABASE backup")
		return fmt.Errorf("failed to export backup: %w", err)
	}
	if _, err = conn.ExecContext(ctx, "DETACH DATABASE backup"); err != nil {
		return fmt.Errorf("failed to detach backup database: %w", err)
	}
	return nil
}

// Rekey changes the store passphrase in place. Existing handles keep working;
// new opens must use the new passphrase.
func (d *Database) Rekey(ctx context.Context, newPassphrase string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("rekey", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	// PRAGMA rekey does not accept placeholders either.
	_, err = d.db.ExecContext(ctx, fmt.Sprintf("PRAGMA rekey = '%s'", sqlQuote(newPassphrase)))
	if err != nil {
		return fmt.Errorf("failed to rekey database: %w", err)
	}
	return nil
}

// UpdateDBMetrics updates database connection metrics.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// sqlQuote escapes single quotes for embedding inside SQL string literals.
func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// nowUnix is the single clock used for persisted timestamps.
func nowUnix() int64 {
	return time.Now().Unix()
}

// recordQuery records database query metrics.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
