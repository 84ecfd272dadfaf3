package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"media-catalog/internal/events"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
)

// MediaFilter selects a subset of the catalog. The same predicate set feeds
// both CountMedia and FetchMediaPage so counts and pages never disagree.
type MediaFilter struct {
	// Kind restricts to images or videos when set.
	Kind mediatypes.Kind
	// Search is a case-sensitive substring match on the stored path.
	// Folder keys compare case-insensitively; this filter intentionally
	// does not.
	Search string
	// FavoritesOnly keeps only favorited media.
	FavoritesOnly bool
	// AlbumID restricts to members of one album when > 0.
	AlbumID int64
}

// orderColumns is the allowlist for FetchMediaPage order clauses.
// Offset paging makes no cursor guarantee; callers wanting stable walks
// should stick to the mtime DESC convention.
var orderColumns = map[string]string{
	"":           "m.mtime DESC",
	"mtime DESC": "m.mtime DESC",
	"mtime ASC":  "m.mtime ASC",
	"path ASC":   "m.path ASC",
	"path DESC":  "m.path DESC",
	"size ASC":   "m.size ASC",
	"size DESC":  "m.size DESC",
}

// buildMediaWhere renders the filter into a WHERE clause and its arguments.
func buildMediaWhere(f MediaFilter) (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}

	if f.AlbumID > 0 {
		clauses = append(clauses, "m.id IN (SELECT media_id FROM album_media WHERE album_id = ?)")
		args = append(args, f.AlbumID)
	}
	if f.Kind == mediatypes.KindImage || f.Kind == mediatypes.KindVideo {
		clauses = append(clauses, "m.kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Search != "" {
		// instr is case-sensitive, unlike LIKE on ASCII.
		clauses = append(clauses, "instr(m.path, ?) > 0")
		args = append(args, f.Search)
	}
	if f.FavoritesOnly {
		clauses = append(clauses, "m.favorite = 1")
	}

	where := ""
	for i, c := range clauses {
		if i == 0 {
			where = "WHERE " + c
		} else {
			where += " AND " + c
		}
	}
	return where, args
}

// UpsertMedia inserts or updates a media row keyed by path. The favorite
// flag is not part of the payload and survives re-indexing.
func (d *Database) UpsertMedia(ctx context.Context, path string, kind mediatypes.Kind, mtime, size int64, thumbPath string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_media", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO media (path, kind, mtime, size, thumb_path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind = excluded.kind,
			mtime = excluded.mtime,
			size = excluded.size,
			thumb_path = excluded.thumb_path
	`, path, string(kind), mtime, size, nullableString(thumbPath))
	return err
}

// CountMedia returns the number of catalog rows matching the filter.
func (d *Database) CountMedia(ctx context.Context, f MediaFilter) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_media", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	where, args := buildMediaWhere(f)

	var count int
	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media m "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return count, nil
}

// FetchMediaPage returns one offset page of catalog rows matching the
// filter. orderBy must be one of the allowed clauses ("mtime DESC" by
// convention); unknown values fall back to the default.
func (d *Database) FetchMediaPage(ctx context.Context, offset, limit int, f MediaFilter, orderBy string) ([]MediaItem, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_media_page", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	order, ok := orderColumns[orderBy]
	if !ok {
		logging.Debug("unknown order clause %q, using default", orderBy)
		order = orderColumns[""]
	}

	where, args := buildMediaWhere(f)
	query := fmt.Sprintf(`
		SELECT m.id, m.path, m.kind, m.mtime, m.size, m.thumb_path, m.favorite
		FROM media m
		%s
		ORDER BY %s
		LIMIT ? OFFSET ?`, where, order)
	args = append(args, limit, offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	var items []MediaItem
	for rows.Next() {
		item, scanErr := scanMediaItem(rows)
		if scanErr != nil {
			err = scanErr
			return nil, fmt.Errorf("scan failed: %w", scanErr)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// GetMediaByPath retrieves a single media row by its unique path.
func (d *Database) GetMediaByPath(ctx context.Context, path string) (*MediaItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRowContext(ctx, `
		SELECT m.id, m.path, m.kind, m.mtime, m.size, m.thumb_path, m.favorite
		FROM media m WHERE m.path = ?`, path)

	item, err := scanMediaItem(row)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// MediaIDByPath resolves a path to its surrogate id. Returns 0 and no error
// when the path is not indexed.
func (d *Database) MediaIDByPath(ctx context.Context, path string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var id int64
	err := d.db.QueryRowContext(ctx, "SELECT id FROM media WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetFavorite flips the favorite flag for a path and publishes a
// FavoriteChanged event.
func (d *Database) SetFavorite(ctx context.Context, path string, favorite bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_favorite", start, err) }()

	d.mu.Lock()
	res, err := d.db.ExecContext(ctx, "UPDATE media SET favorite = ? WHERE path = ?", boolToInt(favorite), path)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	if rows, _ := res.RowsAffected(); rows > 0 {
		d.bus.Publish(events.Event{Type: events.FavoriteChanged, Path: path, Favorite: favorite})
	}
	return nil
}

// DeleteMedia removes a media row and, via cascade, its album links, faces,
// suggestions and scan state. Deletion is always explicit; indexing never
// removes rows implicitly.
func (d *Database) DeleteMedia(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_media", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, "DELETE FROM media WHERE path = ?", path)
	return err
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan code.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMediaItem(r rowScanner) (MediaItem, error) {
	var item MediaItem
	var kind string
	var thumb sql.NullString
	var favorite int

	if err := r.Scan(&item.ID, &item.Path, &kind, &item.MTime, &item.Size, &thumb, &favorite); err != nil {
		return MediaItem{}, err
	}
	item.Kind = mediatypes.Kind(kind)
	if thumb.Valid {
		item.ThumbPath = thumb.String
	}
	item.Favorite = favorite != 0
	return item, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
