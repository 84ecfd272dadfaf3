package database

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"media-catalog/internal/events"
	"media-catalog/internal/logging"
)

// peopleTables lists the face-recognition tables in delete-safe order
// (children before parents).
var peopleTables = []string{
	"person_face",
	"face_suggestions",
	"faces",
	"person_alias",
	"persons",
	"face_scan_state",
}

// wipeableTables is the allowlist for WipeTable.
var wipeableTables = map[string]bool{
	"media":            true,
	"albums":           true,
	"album_media":      true,
	"persons":          true,
	"person_alias":     true,
	"person_face":      true,
	"faces":            true,
	"face_suggestions": true,
	"face_scan_state":  true,
}

// WipePeople clears every face-recognition table in one transaction,
// including scan watermarks so the next scan starts from scratch. The
// media catalog and albums are untouched.
func (d *Database) WipePeople(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("wipe_people", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin wipe: %w", err)
	}
	defer tx.Rollback()

	for _, table := range peopleTables {
		if _, err = tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wipe: %w", err)
	}

	logging.Info("cleared all people and face data")
	d.bus.Publish(events.Event{Type: events.PersonChanged})
	return nil
}

// WipeTable deletes every row from one allowlisted table and returns the
// number of rows removed.
func (d *Database) WipeTable(ctx context.Context, table string) (int64, error) {
	if !wipeableTables[table] {
		return 0, fmt.Errorf("table %q is not wipeable", table)
	}

	start := time.Now()
	var err error
	defer func() { recordQuery("wipe_table", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx, "DELETE FROM "+table)
	if err != nil {
		return 0, fmt.Errorf("failed to wipe %s: %w", table, err)
	}
	return res.RowsAffected()
}

// TableCounts returns row counts for every catalog table, for diagnostics.
func (d *Database) TableCounts(ctx context.Context) (map[string]int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[string]int64, len(wipeableTables))
	for table := range wipeableTables {
		var n int64
		if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// PurgeMedia removes media rows whose paths no longer match any configured
// root, along with their album links via cascade, and returns how many
// rows were deleted.
func (d *Database) PurgeMedia(ctx context.Context, roots []string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("purge_media", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.QueryContext(ctx, "SELECT id, path FROM media")
	if err != nil {
		return 0, fmt.Errorf("failed to read media: %w", err)
	}
	var strayIDs []int64
	for rows.Next() {
		var id int64
		var p string
		if err = rows.Scan(&id, &p); err != nil {
			rows.Close()
			return 0, err
		}
		if !underAnyRoot(p, roots) {
			strayIDs = append(strayIDs, id)
		}
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(strayIDs) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	for _, id := range strayIDs {
		if _, err = tx.Exec("DELETE FROM media WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("failed to delete media %d: %w", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	logging.Info("purged %d media row(s) outside configured roots", len(strayIDs))
	return int64(len(strayIDs)), nil
}

// ResetPersonCovers clears every person's avatar path so covers can be
// regenerated from the current best faces.
func (d *Database) ResetPersonCovers(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("reset_person_covers", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx,
		"UPDATE persons SET cover_path = NULL, updated_at = ? WHERE cover_path IS NOT NULL", nowUnix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		d.bus.Publish(events.Event{Type: events.PersonChanged})
	}
	return n, err
}

// underAnyRoot reports whether a media path falls under one of the
// configured roots. Matching is case-insensitive like folder keys, and
// media sitting directly in a root still counts.
func underAnyRoot(mediaPath string, roots []string) bool {
	norm := strings.ToLower(filepath.ToSlash(mediaPath))
	for _, root := range roots {
		if r := normalizeRoot(root); r != "" && strings.HasPrefix(norm, r) {
			return true
		}
	}
	return false
}
