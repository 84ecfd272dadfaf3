package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"media-catalog/internal/events"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// ensureFolderKeyIndex attempts the unique index on albums.folder_key.
// Best effort: a prior partial failure may have left duplicate keys behind,
// in which case creation fails until a repair pass converges them.
func (d *Database) ensureFolderKeyIndex() error {
	_, err := d.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_albums_folder_key
		ON albums(folder_key) WHERE folder_key IS NOT NULL`)
	return err
}

// ListAlbums returns all albums with their member counts, ordered by title.
func (d *Database) ListAlbums(ctx context.Context) ([]Album, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_albums", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT a.id, a.title, a.cover_path, a.folder_key, COUNT(am.media_id)
		FROM albums a
		LEFT JOIN album_media am ON am.album_id = a.id
		GROUP BY a.id
		ORDER BY a.title COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	defer rows.Close()

	var albums []Album
	for rows.Next() {
		var a Album
		var cover, key sql.NullString
		if err = rows.Scan(&a.ID, &a.Title, &cover, &key, &a.Count); err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		a.CoverPath = cover.String
		a.FolderKey = key.String
		albums = append(albums, a)
	}
	err = rows.Err()
	return albums, err
}

// RenameAlbum changes an album title. A title collision surfaces as the
// underlying unique-constraint error; the caller must choose another value.
func (d *Database) RenameAlbum(ctx context.Context, albumID int64, title string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("rename_album", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, "UPDATE albums SET title = ? WHERE id = ?", title, albumID)
	return err
}

// SetAlbumCover sets or clears an album cover.
func (d *Database) SetAlbumCover(ctx context.Context, albumID int64, coverPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, "UPDATE albums SET cover_path = ? WHERE id = ?",
		nullableString(coverPath), albumID)
	return err
}

// getOrCreateAlbumTx looks an album up by folder key, falling back to the
// default title for albums created before folder keys existed (backfilling
// the key), and finally creates a fresh album with the default title.
func getOrCreateAlbumTx(tx *sql.Tx, folderKey string) (int64, error) {
	var id int64

	err := tx.QueryRow("SELECT id FROM albums WHERE folder_key = ?", folderKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	title := DefaultAlbumTitle(folderKey)
	err = tx.QueryRow("SELECT id FROM albums WHERE title = ? AND folder_key IS NULL", title).Scan(&id)
	if err == nil {
		if _, err := tx.Exec("UPDATE albums SET folder_key = ? WHERE id = ?", folderKey, id); err != nil {
			logging.Warn("could not backfill folder key %q on album %d: %v", folderKey, id, err)
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.Exec("INSERT INTO albums (title, folder_key) VALUES (?, ?)", title, folderKey)
	if err != nil {
		// A concurrent writer may have created it between our lookups, or a
		// same-title album without a key exists elsewhere; retry by title.
		if lookupErr := tx.QueryRow("SELECT id FROM albums WHERE title = ?", title).Scan(&id); lookupErr == nil {
			return id, nil
		}
		return 0, fmt.Errorf("failed to create album for key %q: %w", folderKey, err)
	}
	return res.LastInsertId()
}

// RebuildAlbumsFromMedia derives albums from every catalog row: media
// already linked to an album keeps that album (backfilling its key when
// missing); unlinked media is attached to the album for its folder key,
// creating one when needed. Additive and re-entrant: running it twice
// produces no duplicate links. A dedupe pass runs afterwards as a safety
// net.
func (d *Database) RebuildAlbumsFromMedia(ctx context.Context, roots []string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("rebuild_albums", start, err) }()

	d.mu.Lock()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to begin rebuild: %w", err)
	}

	err = rebuildTx(tx, roots)
	if err != nil {
		_ = tx.Rollback()
		d.mu.Unlock()
		return err
	}
	if err = tx.Commit(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}
	d.mu.Unlock()

	if dedupeErr := d.DedupeByFolderKey(ctx); dedupeErr != nil {
		logging.Warn("post-rebuild dedupe failed: %v", dedupeErr)
	}

	d.bus.Publish(events.Event{Type: events.AlbumsChanged})
	return nil
}

func rebuildTx(tx *sql.Tx, roots []string) error {
	rows, err := tx.Query("SELECT id, path, thumb_path FROM media")
	if err != nil {
		return fmt.Errorf("failed to read media: %w", err)
	}

	type mediaRow struct {
		id    int64
		path  string
		thumb string
	}
	var media []mediaRow
	for rows.Next() {
		var m mediaRow
		var thumb sql.NullString
		if err := rows.Scan(&m.id, &m.path, &thumb); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan media: %w", err)
		}
		m.thumb = thumb.String
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range media {
		key := FolderKeyForPath(m.path, roots)
		if key == "" {
			continue
		}

		// Media already in some album keeps it; just backfill the key.
		var albumID int64
		err := tx.QueryRow(
			"SELECT album_id FROM album_media WHERE media_id = ? ORDER BY album_id LIMIT 1",
			m.id,
		).Scan(&albumID)
		switch err {
		case nil:
			if _, err := tx.Exec(
				"UPDATE albums SET folder_key = ? WHERE id = ? AND folder_key IS NULL",
				key, albumID,
			); err != nil {
				logging.Debug("folder key backfill for album %d skipped: %v", albumID, err)
			}
		case sql.ErrNoRows:
			albumID, err = getOrCreateAlbumTx(tx, key)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO album_media (album_id, media_id) VALUES (?, ?)",
				albumID, m.id,
			); err != nil {
				return fmt.Errorf("failed to link media %d: %w", m.id, err)
			}
		default:
			return err
		}

		if m.thumb != "" {
			if _, err := tx.Exec(
				"UPDATE albums SET cover_path = ? WHERE id = ? AND (cover_path IS NULL OR cover_path = '')",
				m.thumb, albumID,
			); err != nil {
				logging.Debug("cover assignment for album %d skipped: %v", albumID, err)
			}
		}
	}
	return nil
}

// DedupeByFolderKey merges albums sharing a non-empty folder key into the
// lowest-id survivor: membership links move over, a missing cover is
// adopted, and the duplicate row is deleted.
func (d *Database) DedupeByFolderKey(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("dedupe_albums", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin dedupe: %w", err)
	}

	rows, err := tx.Query(`
		SELECT folder_key FROM albums
		WHERE folder_key IS NOT NULL AND folder_key != ''
		GROUP BY folder_key HAVING COUNT(*) > 1`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to find duplicate keys: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			rows.Close()
			_ = tx.Rollback()
			return err
		}
		keys = append(keys, k)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		_ = tx.Rollback()
		return err
	}
	rows.Close()

	for _, key := range keys {
		ids, idsErr := albumIDsForKeyTx(tx, key)
		if idsErr != nil || len(ids) < 2 {
			continue
		}
		survivor := ids[0]
		for _, dup := range ids[1:] {
			if mergeErr := mergeAlbumTx(tx, survivor, dup); mergeErr != nil {
				logging.Warn("merge of album %d into %d failed: %v", dup, survivor, mergeErr)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dedupe: %w", err)
	}
	return nil
}

func albumIDsForKeyTx(tx *sql.Tx, key string) ([]int64, error) {
	rows, err := tx.Query("SELECT id FROM albums WHERE folder_key = ? ORDER BY id", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// mergeAlbumTx folds album dup into survivor: links move (duplicates
// dropped), a missing survivor cover adopts the duplicate's, and the
// duplicate row goes away.
func mergeAlbumTx(tx *sql.Tx, survivor, dup int64) error {
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO album_media (album_id, media_id, position)
		SELECT ?, media_id, position FROM album_media WHERE album_id = ?`, survivor, dup); err != nil {
		return fmt.Errorf("failed to move links: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE albums SET cover_path = (SELECT cover_path FROM albums WHERE id = ?)
		WHERE id = ? AND (cover_path IS NULL OR cover_path = '')`, dup, survivor); err != nil {
		return fmt.Errorf("failed to adopt cover: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM album_media WHERE album_id = ?", dup); err != nil {
		return fmt.Errorf("failed to drop duplicate links: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM albums WHERE id = ?", dup); err != nil {
		return fmt.Errorf("failed to drop duplicate album: %w", err)
	}
	metrics.AlbumsMergedTotal.Inc()
	return nil
}

// RepairAlbums is the canonicalization pass run on store open and after
// bulk rebuilds. It infers each album's canonical folder key from a
// majority vote over its linked media, merges albums sharing a canonical
// key (preferring a user-renamed survivor), backfills stored keys, removes
// empty albums and re-attempts the unique folder-key index.
//
// The pass runs in one transaction with individually best-effort steps, so
// a crash leaves the pre-repair state and the next run converges further.
// Callers must not run two repairs concurrently against the same store.
func (d *Database) RepairAlbums(ctx context.Context, roots []string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("repair_albums", start, err) }()
	metrics.AlbumRepairRunsTotal.Inc()

	d.mu.Lock()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to begin repair: %w", err)
	}

	err = repairTx(tx, roots)
	if err != nil {
		_ = tx.Rollback()
		d.mu.Unlock()
		return err
	}
	if err = tx.Commit(); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to commit repair: %w", err)
	}
	d.mu.Unlock()

	// Step 5: the optional index, outside the transaction so its failure
	// cannot roll back the merges that already committed.
	if idxErr := d.ensureFolderKeyIndex(); idxErr != nil {
		logging.Warn("folder_key unique index still missing after repair: %v", idxErr)
	}

	d.bus.Publish(events.Event{Type: events.AlbumsChanged})
	return nil
}

type albumRow struct {
	id    int64
	title string
	key   string
}

func repairTx(tx *sql.Tx, roots []string) error {
	rows, err := tx.Query("SELECT id, title, folder_key FROM albums ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to read albums: %w", err)
	}
	var albums []albumRow
	for rows.Next() {
		var a albumRow
		var key sql.NullString
		if err := rows.Scan(&a.id, &a.title, &key); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan album: %w", err)
		}
		a.key = key.String
		albums = append(albums, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	// Step 1: canonical key per album by majority vote over its media.
	// The stored key may be stale and is deliberately ignored here.
	groups := make(map[string][]albumRow)
	for _, a := range albums {
		canonical, voteErr := canonicalKeyTx(tx, a.id, roots)
		if voteErr != nil {
			logging.Warn("canonical key vote for album %d failed: %v", a.id, voteErr)
			continue
		}
		if canonical == "" {
			// No media or no inferable key: left alone.
			continue
		}
		groups[canonical] = append(groups[canonical], a)
	}

	for canonical, group := range groups {
		if len(group) == 1 {
			// Step 2: just backfill the stored key.
			a := group[0]
			if a.key != canonical {
				if _, err := tx.Exec("UPDATE albums SET folder_key = ? WHERE id = ?", canonical, a.id); err != nil {
					logging.Warn("key backfill for album %d failed: %v", a.id, err)
				}
			}
			continue
		}

		// Step 3: merge into the preferred survivor.
		survivor := chooseSurvivor(group, canonical)
		for _, a := range group {
			if a.id == survivor {
				continue
			}
			if err := mergeAlbumTx(tx, survivor, a.id); err != nil {
				logging.Warn("repair merge of album %d into %d failed: %v", a.id, survivor, err)
			}
		}
		if _, err := tx.Exec("UPDATE albums SET folder_key = ? WHERE id = ?", canonical, survivor); err != nil {
			logging.Warn("key update for survivor %d failed: %v", survivor, err)
		}
	}

	// Step 4: orphan cleanup.
	res, err := tx.Exec("DELETE FROM albums WHERE id NOT IN (SELECT DISTINCT album_id FROM album_media)")
	if err != nil {
		logging.Warn("orphan album cleanup failed: %v", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		metrics.AlbumsOrphanedTotal.Add(float64(n))
		logging.Info("removed %d empty album(s)", n)
	}
	return nil
}

// canonicalKeyTx votes over the folder keys of an album's current media.
// Ties break on the lexicographically smaller key for determinism.
func canonicalKeyTx(tx *sql.Tx, albumID int64, roots []string) (string, error) {
	rows, err := tx.Query(`
		SELECT m.path FROM album_media am
		JOIN media m ON m.id = am.media_id
		WHERE am.album_id = ?`, albumID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	votes := make(map[string]int)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return "", err
		}
		if key := FolderKeyForPath(p, roots); key != "" {
			votes[key]++
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	best := ""
	bestCount := 0
	for key, count := range votes {
		if count > bestCount || (count == bestCount && key < best) {
			best = key
			bestCount = count
		}
	}
	return best, nil
}

// chooseSurvivor prefers a user-renamed album; lowest id breaks ties
// either way. A title is considered renamed when it differs from the
// generated default for the album's own stored key, so an album
// auto-titled from a now-stale key does not masquerade as customized.
func chooseSurvivor(group []albumRow, canonical string) int64 {
	customized := func(a albumRow) bool {
		key := a.key
		if key == "" {
			key = canonical
		}
		return a.title != DefaultAlbumTitle(key)
	}

	survivor := int64(0)
	for _, a := range group {
		if customized(a) && (survivor == 0 || a.id < survivor) {
			survivor = a.id
		}
	}
	if survivor != 0 {
		return survivor
	}
	survivor = group[0].id
	for _, a := range group[1:] {
		if a.id < survivor {
			survivor = a.id
		}
	}
	return survivor
}
