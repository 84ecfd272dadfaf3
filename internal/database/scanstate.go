package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetUnscannedMedia returns up to batch media rows that have never been
// face-scanned or have changed on disk since their last scan. Never-scanned
// rows come first (watermark 0), newest media first within a watermark, so
// fresh imports surface before old backlog.
func (d *Database) GetUnscannedMedia(ctx context.Context, batch int) ([]ScanCandidate, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_unscanned", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT m.id, m.path, m.thumb_path, m.mtime
		FROM media m
		LEFT JOIN face_scan_state ss ON ss.media_id = m.id
		WHERE ss.media_id IS NULL OR ss.last_mtime < m.mtime
		ORDER BY COALESCE(ss.last_ts, 0) ASC, m.mtime DESC
		LIMIT ?`, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan candidates: %w", err)
	}
	defer rows.Close()

	var items []ScanCandidate
	for rows.Next() {
		var c ScanCandidate
		var thumb sql.NullString
		if err = rows.Scan(&c.MediaID, &c.Path, &thumb, &c.MTime); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.ThumbPath = thumb.String
		items = append(items, c)
	}
	err = rows.Err()
	return items, err
}

// MarkMediaScanned advances the scan watermark for a media item. mtime is
// the file modification time observed during the scan, so a later on-disk
// change re-queues the item.
func (d *Database) MarkMediaScanned(ctx context.Context, mediaID, mtime int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_scanned", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO face_scan_state (media_id, last_mtime, last_ts)
		VALUES (?, ?, ?)
		ON CONFLICT(media_id) DO UPDATE SET
			last_mtime = excluded.last_mtime,
			last_ts = excluded.last_ts`,
		mediaID, mtime, nowUnix())
	return err
}
