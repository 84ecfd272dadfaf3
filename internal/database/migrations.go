package database

import (
	"context"
	"database/sql"
	"fmt"

	"media-catalog/internal/logging"
)

// migration is one idempotent, additive schema step. Steps never drop
// columns or tables; downgrade is not supported.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations is the ordered schema history. Append only.
var migrations = []migration{
	{1, "media catalog", migrateMediaCatalog},
	{2, "favorite flag", migrateFavoriteFlag},
	{3, "albums", migrateAlbums},
	{4, "people and faces", migratePeople},
	{5, "face scan state", migrateScanState},
	{6, "perceptual signatures", migrateSignatures},
}

// migrate brings the schema to the latest version. Applied versions are
// tracked in schema_migrations; each pending step runs in its own
// transaction so a crash leaves a consistent prefix of the history applied.
// Every step is also individually idempotent, which keeps concurrent opens
// from independent connections safe.
func (d *Database) migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := d.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	rows.Close()

	pending := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if err := m.apply(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.version, m.name, nowUnix(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		logging.Info("applied migration %d: %s", m.version, m.name)
		pending++
	}

	if pending > 0 {
		logging.Info("schema is current after %d migration(s)", pending)
	}
	return nil
}

func migrateMediaCatalog(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS media (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		path       TEXT NOT NULL UNIQUE,
		kind       TEXT NOT NULL,
		mtime      INTEGER NOT NULL,
		size       INTEGER NOT NULL,
		thumb_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_media_mtime ON media(mtime);
	CREATE INDEX IF NOT EXISTS idx_media_kind  ON media(kind);
	`)
	return err
}

func migrateFavoriteFlag(tx *sql.Tx) error {
	return addColumnIfMissing(tx, "media", "favorite", "INTEGER NOT NULL DEFAULT 0")
}

func migrateAlbums(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS albums (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		title      TEXT NOT NULL UNIQUE,
		cover_path TEXT
	);

	CREATE TABLE IF NOT EXISTS album_media (
		album_id INTEGER NOT NULL,
		media_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (album_id, media_id),
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE,
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_album_media_media ON album_media(media_id);
	`)
	return err
}

func migratePeople(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS persons (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		display_name TEXT,
		is_pet       INTEGER NOT NULL DEFAULT 0,
		cover_path   TEXT,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_persons_is_pet ON persons(is_pet);

	CREATE TABLE IF NOT EXISTS person_alias (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL,
		alias     TEXT NOT NULL,
		UNIQUE (person_id, alias),
		FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS faces (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		media_id  INTEGER NOT NULL,
		x         REAL NOT NULL,
		y         REAL NOT NULL,
		w         REAL NOT NULL,
		h         REAL NOT NULL,
		embedding BLOB,
		quality   REAL,
		ts        INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_faces_media   ON faces(media_id);
	CREATE INDEX IF NOT EXISTS idx_faces_quality ON faces(quality);

	CREATE TABLE IF NOT EXISTS person_face (
		person_id INTEGER NOT NULL,
		face_id   INTEGER NOT NULL UNIQUE,
		PRIMARY KEY (person_id, face_id),
		FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE CASCADE,
		FOREIGN KEY (face_id)   REFERENCES faces(id)   ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_person_face_person ON person_face(person_id);

	CREATE TABLE IF NOT EXISTS face_suggestions (
		face_id   INTEGER NOT NULL,
		person_id INTEGER NOT NULL,
		score     REAL,
		state     TEXT NOT NULL DEFAULT 'pending',
		ts        INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (face_id, person_id),
		FOREIGN KEY (face_id)   REFERENCES faces(id)   ON DELETE CASCADE,
		FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_face_sug_person ON face_suggestions(person_id);
	CREATE INDEX IF NOT EXISTS idx_face_sug_state  ON face_suggestions(state);
	`)
	return err
}

func migrateScanState(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE IF NOT EXISTS face_scan_state (
		media_id   INTEGER PRIMARY KEY,
		last_mtime INTEGER NOT NULL,
		last_ts    INTEGER NOT NULL,
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE
	);
	`)
	return err
}

func migrateSignatures(tx *sql.Tx) error {
	if err := addColumnIfMissing(tx, "albums", "folder_key", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(tx, "persons", "rep_sig", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(tx, "faces", "sig", "TEXT"); err != nil {
		return err
	}
	return addColumnIfMissing(tx, "faces", "is_hidden", "INTEGER NOT NULL DEFAULT 0")
}

// addColumnIfMissing guards ALTER TABLE ADD COLUMN so migrations stay
// idempotent across restarts and concurrent opens.
func addColumnIfMissing(tx *sql.Tx, table, column, definition string) error {
	var exists bool
	err := tx.QueryRow(
		"SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?",
		table, column,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for %s.%s column: %w", table, column, err)
	}
	if exists {
		return nil
	}

	logging.Info("migrating schema: adding %s.%s", table, column)
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return fmt.Errorf("failed to add %s.%s column: %w", table, column, err)
	}
	return nil
}
