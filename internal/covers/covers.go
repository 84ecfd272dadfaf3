// Package covers builds person avatars from their best detected face and
// derives perceptual signatures from face crops. Avatar files live in a
// people/ subdirectory of the thumbnail cache and are named randomly so a
// regenerated avatar never fights browser or UI caches.
package covers

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"media-catalog/internal/ahash"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
)

const (
	// avatarSize is the edge length of generated avatars.
	avatarSize = 256
	// padRatio widens the detector box so avatars include some hair and chin.
	padRatio = 0.25

	jpegQuality = 88
)

// Service generates avatars against one store and cache directory.
type Service struct {
	store    *database.Database
	coverDir string
}

// NewService creates the people cover directory under cacheDir.
func NewService(store *database.Database, cacheDir string) (*Service, error) {
	coverDir := filepath.Join(cacheDir, "people")
	if err := os.MkdirAll(coverDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cover directory: %w", err)
	}
	return &Service{store: store, coverDir: coverDir}, nil
}

// resolveBox converts a possibly-normalized bounding box to pixel space.
// Detectors disagree on conventions; boxes with every coordinate at or
// below 2.0 are treated as fractions of the image dimensions.
func resolveBox(box database.BBox, bounds image.Rectangle) database.BBox {
	if box.X <= 2 && box.Y <= 2 && box.W <= 2 && box.H <= 2 {
		fw, fh := float64(bounds.Dx()), float64(bounds.Dy())
		return database.BBox{X: box.X * fw, Y: box.Y * fh, W: box.W * fw, H: box.H * fh}
	}
	return box
}

// CropFaceSquare cuts a padded square around the face box, clamped to the
// image. The square is centered on the box center and sized from its
// longer edge, so the crop survives detectors with tight or elongated
// boxes.
func CropFaceSquare(img image.Image, box database.BBox) image.Image {
	bounds := img.Bounds()
	box = resolveBox(box, bounds)

	side := box.W
	if box.H > side {
		side = box.H
	}
	side *= 1 + 2*padRatio
	if side < 1 {
		side = 1
	}

	cx := box.X + box.W/2
	cy := box.Y + box.H/2

	half := side / 2
	rect := image.Rect(
		int(cx-half), int(cy-half),
		int(cx+half), int(cy+half),
	).Intersect(bounds)
	if rect.Empty() {
		rect = bounds
	}

	return imaging.Resize(imaging.Crop(img, rect), avatarSize, avatarSize, imaging.Lanczos)
}

// FaceSignature computes the perceptual signature of a face crop, for
// matching new faces against known persons.
func FaceSignature(srcPath string, box database.BBox) (uint64, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("failed to decode %s: %w", srcPath, err)
	}
	return ahash.Signature(CropFaceSquare(img, box)), nil
}

// GenerateForPerson renders a fresh avatar from the person's best face and
// stores its path, replacing any previous file. When the face crop fails
// (source unreadable, broken thumbnail) it falls back to pointing the
// cover at the media thumbnail or source path, so a person with faces is
// never left cover-less. Returns the stored path, or "" when the person
// has no usable face.
func (s *Service) GenerateForPerson(ctx context.Context, personID int64) (string, error) {
	face, err := s.store.BestFaceForPerson(ctx, personID)
	if err != nil {
		return "", err
	}
	if face == nil {
		return "", nil
	}

	srcPath, thumbPath, err := s.store.FaceMedia(ctx, face.ID)
	if err != nil || srcPath == "" {
		return "", err
	}

	coverPath, cropErr := s.renderCrop(srcPath, face.Box)
	if cropErr != nil {
		logging.Warn("face crop for person %d failed, using fallback cover: %v", personID, cropErr)
		coverPath = thumbPath
		if coverPath == "" {
			coverPath = srcPath
		}
		if err := s.store.SetPersonCover(ctx, personID, coverPath); err != nil {
			return "", err
		}
		return coverPath, nil
	}

	old := ""
	if p, getErr := s.store.GetPerson(ctx, personID); getErr == nil && p != nil {
		old = p.CoverPath
	}
	if err := s.store.SetPersonCover(ctx, personID, coverPath); err != nil {
		os.Remove(coverPath)
		return "", err
	}
	if old != "" && old != coverPath && filepath.Dir(old) == s.coverDir {
		if rmErr := os.Remove(old); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Debug("could not remove stale avatar %s: %v", old, rmErr)
		}
	}
	return coverPath, nil
}

// renderCrop decodes the source, crops around the face and writes a fresh
// avatar file.
func (s *Service) renderCrop(srcPath string, box database.BBox) (string, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", srcPath, err)
	}
	coverPath := filepath.Join(s.coverDir, uuid.NewString()+".jpg")
	if err := imaging.Save(CropFaceSquare(img, box), coverPath, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("failed to save avatar: %w", err)
	}
	return coverPath, nil
}

// EnsureIfMissing generates an avatar only when the person has none, or
// when the stored file has gone missing from disk.
func (s *Service) EnsureIfMissing(ctx context.Context, personID int64) error {
	p, err := s.store.GetPerson(ctx, personID)
	if err != nil || p == nil {
		return err
	}
	if p.CoverPath != "" {
		if _, statErr := os.Stat(p.CoverPath); statErr == nil {
			return nil
		}
	}
	_, err = s.GenerateForPerson(ctx, personID)
	return err
}

// RegenerateAll rebuilds every person's avatar and returns how many were
// written. Persons without faces are skipped, not failed.
func (s *Service) RegenerateAll(ctx context.Context) (int, error) {
	persons, err := s.store.ListPersons(ctx, true)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, p := range persons {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		path, genErr := s.GenerateForPerson(ctx, p.ID)
		if genErr != nil {
			logging.Warn("avatar for person %d failed: %v", p.ID, genErr)
			continue
		}
		if path != "" {
			done++
		}
	}
	return done, nil
}
