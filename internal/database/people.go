package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"media-catalog/internal/events"
	"media-catalog/internal/metrics"
)

// CreatePerson inserts a person and returns the new id. repSig is the hex
// representative signature and may be empty for manually created persons.
func (d *Database) CreatePerson(ctx context.Context, name string, isPet bool, coverPath, repSig string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_person", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO persons (display_name, is_pet, cover_path, rep_sig, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		name, boolToInt(isPet), nullableString(coverPath), nullableString(repSig), nowUnix(), nowUnix())
	if err != nil {
		return 0, fmt.Errorf("failed to create person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	d.bus.Publish(events.Event{Type: events.PersonChanged, ID: id})
	return id, nil
}

// SetPersonName renames a person.
func (d *Database) SetPersonName(ctx context.Context, personID int64, name string) error {
	return d.updatePersonField(ctx, "set_person_name", personID,
		"UPDATE persons SET display_name = ?, updated_at = ? WHERE id = ?", name, nowUnix(), personID)
}

// SetIsPet toggles the pet flag.
func (d *Database) SetIsPet(ctx context.Context, personID int64, isPet bool) error {
	return d.updatePersonField(ctx, "set_is_pet", personID,
		"UPDATE persons SET is_pet = ?, updated_at = ? WHERE id = ?", boolToInt(isPet), nowUnix(), personID)
}

// SetPersonCover sets or clears a person's avatar path.
func (d *Database) SetPersonCover(ctx context.Context, personID int64, coverPath string) error {
	return d.updatePersonField(ctx, "set_person_cover", personID,
		"UPDATE persons SET cover_path = ?, updated_at = ? WHERE id = ?",
		nullableString(coverPath), nowUnix(), personID)
}

// SetPersonSignature stores the representative perceptual signature used by
// FindSimilarPerson, as a hex digest.
func (d *Database) SetPersonSignature(ctx context.Context, personID int64, repSig string) error {
	return d.updatePersonField(ctx, "set_person_sig", personID,
		"UPDATE persons SET rep_sig = ?, updated_at = ? WHERE id = ?",
		nullableString(repSig), nowUnix(), personID)
}

func (d *Database) updatePersonField(ctx context.Context, op string, personID int64, query string, args ...any) error {
	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	d.bus.Publish(events.Event{Type: events.PersonChanged, ID: personID})
	return nil
}

// DeletePerson removes a person; aliases, face assignments and suggestions
// follow via cascade.
func (d *Database) DeletePerson(ctx context.Context, personID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_person", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, "DELETE FROM persons WHERE id = ?", personID)
	if err != nil {
		return err
	}
	d.bus.Publish(events.Event{Type: events.PersonChanged, ID: personID})
	return nil
}

// AddAlias records an alternate name for a person. Duplicates are ignored.
func (d *Database) AddAlias(ctx context.Context, personID int64, alias string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_alias", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO person_alias (person_id, alias) VALUES (?, ?)", personID, alias)
	return err
}

// ListPersons returns persons with pending-suggestion counts, most recently
// updated first. Pets are excluded unless includePets is set.
func (d *Database) ListPersons(ctx context.Context, includePets bool) ([]Person, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_persons", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `
		SELECT p.id, p.display_name, p.is_pet, p.cover_path, p.rep_sig, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM face_suggestions fs WHERE fs.person_id = p.id AND fs.state = 'pending')
		FROM persons p`
	if !includePets {
		query += " WHERE p.is_pet = 0"
	}
	query += " ORDER BY p.updated_at DESC, p.id DESC"

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	var persons []Person
	for rows.Next() {
		var p Person
		var isPet int
		var cover, sig sql.NullString
		if err = rows.Scan(&p.ID, &p.DisplayName, &isPet, &cover, &sig,
			&p.CreatedAt, &p.UpdatedAt, &p.SuggestionsCount); err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		p.IsPet = isPet != 0
		p.CoverPath = cover.String
		p.RepSig = sig.String
		persons = append(persons, p)
	}
	err = rows.Err()
	return persons, err
}

// GetPerson fetches a single person by id.
func (d *Database) GetPerson(ctx context.Context, personID int64) (*Person, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var p Person
	var isPet int
	var cover, sig sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT id, display_name, is_pet, cover_path, rep_sig, created_at, updated_at
		FROM persons WHERE id = ?`, personID).
		Scan(&p.ID, &p.DisplayName, &isPet, &cover, &sig, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.IsPet = isPet != 0
	p.CoverPath = cover.String
	p.RepSig = sig.String
	return &p, nil
}

// AddFace records a detected face region on a media item and returns the
// face id. embedding may be nil; sig is the hex perceptual signature of the
// face crop and may be empty.
func (d *Database) AddFace(ctx context.Context, mediaID int64, box BBox, embedding []byte, quality float64, sig string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_face", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO faces (media_id, x, y, w, h, embedding, quality, sig)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mediaID, box.X, box.Y, box.W, box.H, embedding, quality, nullableString(sig))
	if err != nil {
		return 0, fmt.Errorf("failed to add face: %w", err)
	}
	metrics.FacesDetectedTotal.Inc()
	return res.LastInsertId()
}

// HideFace marks a face as hidden without deleting it.
func (d *Database) HideFace(ctx context.Context, faceID int64, hidden bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, "UPDATE faces SET is_hidden = ? WHERE id = ?",
		boolToInt(hidden), faceID)
	return err
}

// DeleteFace removes a face; its assignment and suggestions cascade.
func (d *Database) DeleteFace(ctx context.Context, faceID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.ExecContext(ctx, "DELETE FROM faces WHERE id = ?", faceID)
	return err
}

// AddSuggestion proposes that a face belongs to a person. A repeat of an
// already rejected pair reopens it as pending; a pending or accepted pair
// keeps its state. The stored score only improves to a non-null value.
func (d *Database) AddSuggestion(ctx context.Context, faceID, personID int64, score *float64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_suggestion", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	var scoreVal any
	if score != nil {
		scoreVal = *score
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO face_suggestions (face_id, person_id, score, state, ts)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT(face_id, person_id) DO UPDATE SET
			score = COALESCE(excluded.score, face_suggestions.score),
			state = CASE WHEN face_suggestions.state = 'rejected' THEN 'pending'
			             ELSE face_suggestions.state END,
			ts = excluded.ts`,
		faceID, personID, scoreVal, nowUnix())
	if err != nil {
		return fmt.Errorf("failed to add suggestion: %w", err)
	}
	return nil
}

// AcceptSuggestion assigns the face to the person and settles every
// suggestion for that face: the accepted pair becomes accepted, all rival
// pairs become rejected. A face has at most one owner; accepting for a new
// person moves the assignment.
func (d *Database) AcceptSuggestion(ctx context.Context, faceID, personID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("accept_suggestion", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin accept: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`
		INSERT INTO person_face (person_id, face_id) VALUES (?, ?)
		ON CONFLICT(face_id) DO UPDATE SET person_id = excluded.person_id`,
		personID, faceID); err != nil {
		return fmt.Errorf("failed to assign face: %w", err)
	}
	if _, err = tx.Exec(`
		UPDATE face_suggestions
		SET state = CASE WHEN person_id = ? THEN 'accepted' ELSE 'rejected' END, ts = ?
		WHERE face_id = ?`,
		personID, nowUnix(), faceID); err != nil {
		return fmt.Errorf("failed to settle suggestions: %w", err)
	}
	if _, err = tx.Exec("UPDATE persons SET updated_at = ? WHERE id = ?", nowUnix(), personID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit accept: %w", err)
	}

	d.bus.Publish(events.Event{Type: events.PersonChanged, ID: personID})
	return nil
}

// RejectSuggestion marks one face/person pair rejected. Other suggestions
// for the face stay untouched.
func (d *Database) RejectSuggestion(ctx context.Context, faceID, personID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("reject_suggestion", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	_, err = d.db.ExecContext(ctx, `
		UPDATE face_suggestions SET state = 'rejected', ts = ?
		WHERE face_id = ? AND person_id = ?`,
		nowUnix(), faceID, personID)
	return err
}

// ListPersonMedia returns media containing the person's confirmed faces,
// newest first.
func (d *Database) ListPersonMedia(ctx context.Context, personID int64, limit, offset int) ([]PersonMediaRow, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_person_media", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT m.id, m.path, m.thumb_path, m.mtime
		FROM person_face pf
		JOIN faces f ON f.id = pf.face_id
		JOIN media m ON m.id = f.media_id
		WHERE pf.person_id = ?
		ORDER BY m.mtime DESC
		LIMIT ? OFFSET ?`, personID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list person media: %w", err)
	}
	defer rows.Close()

	var items []PersonMediaRow
	for rows.Next() {
		var r PersonMediaRow
		var thumb sql.NullString
		if err = rows.Scan(&r.MediaID, &r.Path, &thumb, &r.MTime); err != nil {
			return nil, fmt.Errorf("failed to scan person media: %w", err)
		}
		r.ThumbPath = thumb.String
		items = append(items, r)
	}
	err = rows.Err()
	return items, err
}

// ListPersonSuggestions returns the pending suggestions for a person with
// enough context to render a review card: best-scored first, then newest.
func (d *Database) ListPersonSuggestions(ctx context.Context, personID int64, limit int) ([]SuggestionRow, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_suggestions", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT fs.face_id, fs.person_id, fs.score, fs.ts,
		       f.media_id, f.x, f.y, f.w, f.h,
		       m.path, m.thumb_path
		FROM face_suggestions fs
		JOIN faces f ON f.id = fs.face_id
		JOIN media m ON m.id = f.media_id
		WHERE fs.person_id = ? AND fs.state = 'pending' AND f.is_hidden = 0
		ORDER BY fs.score DESC, fs.ts DESC
		LIMIT ?`, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var items []SuggestionRow
	for rows.Next() {
		var r SuggestionRow
		var score sql.NullFloat64
		var thumb sql.NullString
		if err = rows.Scan(&r.FaceID, &r.PersonID, &score, &r.TS,
			&r.MediaID, &r.Box.X, &r.Box.Y, &r.Box.W, &r.Box.H,
			&r.Path, &thumb); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		if score.Valid {
			r.Score = &score.Float64
		}
		r.ThumbPath = thumb.String
		items = append(items, r)
	}
	err = rows.Err()
	return items, err
}

// FindSimilarPerson scans stored representative signatures for the closest
// one within maxDistance Hamming bits of sig and returns its person id, or
// 0 when nobody is close enough. Linear over persons with a signature;
// local galleries keep this in the low hundreds.
func (d *Database) FindSimilarPerson(ctx context.Context, sig uint64, maxDistance int) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_similar_person", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, rep_sig FROM persons WHERE rep_sig IS NOT NULL AND rep_sig != '' ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("failed to scan signatures: %w", err)
	}
	defer rows.Close()

	bestID := int64(0)
	bestDist := maxDistance + 1
	for rows.Next() {
		var id int64
		var hexSig string
		if err = rows.Scan(&id, &hexSig); err != nil {
			return 0, err
		}
		other, parseErr := strconv.ParseUint(hexSig, 16, 64)
		if parseErr != nil {
			continue
		}
		if dist := bits.OnesCount64(sig ^ other); dist < bestDist {
			bestDist = dist
			bestID = id
		}
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}
	return bestID, nil
}

// BestFaceForPerson returns the highest-quality visible face assigned to a
// person, for avatar generation. Nil when the person has no faces.
func (d *Database) BestFaceForPerson(ctx context.Context, personID int64) (*Face, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var f Face
	var sig sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT f.id, f.media_id, f.x, f.y, f.w, f.h, f.quality, f.sig, f.ts
		FROM person_face pf
		JOIN faces f ON f.id = pf.face_id
		WHERE pf.person_id = ? AND f.is_hidden = 0
		ORDER BY f.quality DESC, f.ts DESC
		LIMIT 1`, personID).
		Scan(&f.ID, &f.MediaID, &f.Box.X, &f.Box.Y, &f.Box.W, &f.Box.H, &f.Quality, &sig, &f.TS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Sig = sig.String
	return &f, nil
}

// FaceMedia returns the source media path and thumbnail path for a face.
func (d *Database) FaceMedia(ctx context.Context, faceID int64) (path, thumbPath string, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var thumb sql.NullString
	err = d.db.QueryRowContext(ctx, `
		SELECT m.path, m.thumb_path FROM faces f JOIN media m ON m.id = f.media_id WHERE f.id = ?`,
		faceID).Scan(&path, &thumb)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	return path, thumb.String, err
}
