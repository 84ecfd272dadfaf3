package covers

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-catalog/internal/database"
	"media-catalog/internal/mediatypes"
)

func openTestStore(t *testing.T) *database.Database {
	t.Helper()
	d, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), "test-pass")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// writePortrait renders a 200x300 image with a bright block where the face
// box will point.
func writePortrait(t *testing.T, dir string) string {
	t.Helper()
	img := imaging.New(200, 300, color.NRGBA{R: 30, G: 30, B: 30, A: 255})
	face := imaging.New(60, 60, color.NRGBA{R: 230, G: 210, B: 190, A: 255})
	img = imaging.Paste(img, face, image.Pt(70, 80))
	path := filepath.Join(dir, "portrait.jpg")
	require.NoError(t, imaging.Save(img, path))
	return path
}

func TestCropFaceSquare(t *testing.T) {
	img := imaging.New(200, 300, color.NRGBA{A: 255})

	tests := []struct {
		name string
		box  database.BBox
	}{
		{"pixel box", database.BBox{X: 70, Y: 80, W: 60, H: 60}},
		{"normalized box", database.BBox{X: 0.35, Y: 0.27, W: 0.3, H: 0.2}},
		{"box at the edge", database.BBox{X: 180, Y: 280, W: 60, H: 60}},
		{"degenerate box", database.BBox{X: 50, Y: 50, W: 0, H: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop := CropFaceSquare(img, tt.box)
			b := crop.Bounds()
			assert.Equal(t, 256, b.Dx())
			assert.Equal(t, 256, b.Dy())
		})
	}
}

func TestGenerateForPerson(t *testing.T) {
	ctx := context.Background()
	d := openTestStore(t)
	dir := t.TempDir()

	src := writePortrait(t, dir)
	require.NoError(t, d.UpsertMedia(ctx, src, mediatypes.KindImage, 100, 1, ""))
	mediaID, err := d.MediaIDByPath(ctx, src)
	require.NoError(t, err)

	personID, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)
	faceID, err := d.AddFace(ctx, mediaID, database.BBox{X: 70, Y: 80, W: 60, H: 60}, nil, 0.9, "")
	require.NoError(t, err)
	require.NoError(t, d.AddSuggestion(ctx, faceID, personID, nil))
	require.NoError(t, d.AcceptSuggestion(ctx, faceID, personID))

	svc, err := NewService(d, dir)
	require.NoError(t, err)

	coverPath, err := svc.GenerateForPerson(ctx, personID)
	require.NoError(t, err)
	require.NotEmpty(t, coverPath)

	img, err := imaging.Open(coverPath)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())

	p, err := d.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, coverPath, p.CoverPath)

	// Regenerating replaces the file and cleans up the old one.
	second, err := svc.GenerateForPerson(ctx, personID)
	require.NoError(t, err)
	assert.NotEqual(t, coverPath, second)
	_, statErr := os.Stat(coverPath)
	assert.True(t, os.IsNotExist(statErr), "stale avatar should be removed")
}

func TestGenerateForPersonWithoutFaces(t *testing.T) {
	ctx := context.Background()
	d := openTestStore(t)

	personID, err := d.CreatePerson(ctx, "Nobody", false, "", "")
	require.NoError(t, err)

	svc, err := NewService(d, t.TempDir())
	require.NoError(t, err)

	coverPath, err := svc.GenerateForPerson(ctx, personID)
	require.NoError(t, err)
	assert.Empty(t, coverPath, "no face means no avatar, not an error")
}

func TestEnsureIfMissing(t *testing.T) {
	ctx := context.Background()
	d := openTestStore(t)
	dir := t.TempDir()

	src := writePortrait(t, dir)
	require.NoError(t, d.UpsertMedia(ctx, src, mediatypes.KindImage, 100, 1, ""))
	mediaID, err := d.MediaIDByPath(ctx, src)
	require.NoError(t, err)

	personID, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)
	faceID, err := d.AddFace(ctx, mediaID, database.BBox{X: 70, Y: 80, W: 60, H: 60}, nil, 0.9, "")
	require.NoError(t, err)
	require.NoError(t, d.AddSuggestion(ctx, faceID, personID, nil))
	require.NoError(t, d.AcceptSuggestion(ctx, faceID, personID))

	svc, err := NewService(d, dir)
	require.NoError(t, err)

	require.NoError(t, svc.EnsureIfMissing(ctx, personID))
	p, err := d.GetPerson(ctx, personID)
	require.NoError(t, err)
	first := p.CoverPath
	require.NotEmpty(t, first)

	// A second call keeps the existing avatar.
	require.NoError(t, svc.EnsureIfMissing(ctx, personID))
	p, err = d.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, first, p.CoverPath)

	// But a deleted file triggers regeneration.
	require.NoError(t, os.Remove(first))
	require.NoError(t, svc.EnsureIfMissing(ctx, personID))
	p, err = d.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.NotEqual(t, first, p.CoverPath)
}

func TestGenerateForPersonFallsBackOnBadSource(t *testing.T) {
	ctx := context.Background()
	d := openTestStore(t)
	dir := t.TempDir()

	// Indexed but unreadable source with a thumbnail on record.
	src := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not a jpeg"), 0o644))
	require.NoError(t, d.UpsertMedia(ctx, src, mediatypes.KindImage, 100, 1, "/cache/corrupt-thumb.jpg"))
	mediaID, err := d.MediaIDByPath(ctx, src)
	require.NoError(t, err)

	personID, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)
	faceID, err := d.AddFace(ctx, mediaID, database.BBox{X: 10, Y: 10, W: 20, H: 20}, nil, 0.5, "")
	require.NoError(t, err)
	require.NoError(t, d.AddSuggestion(ctx, faceID, personID, nil))
	require.NoError(t, d.AcceptSuggestion(ctx, faceID, personID))

	svc, err := NewService(d, dir)
	require.NoError(t, err)

	coverPath, err := svc.GenerateForPerson(ctx, personID)
	require.NoError(t, err, "a failed crop falls back instead of failing")
	assert.Equal(t, "/cache/corrupt-thumb.jpg", coverPath)

	p, err := d.GetPerson(ctx, personID)
	require.NoError(t, err)
	assert.Equal(t, coverPath, p.CoverPath)
}

func TestFaceSignatureStable(t *testing.T) {
	dir := t.TempDir()
	src := writePortrait(t, dir)
	box := database.BBox{X: 70, Y: 80, W: 60, H: 60}

	a, err := FaceSignature(src, box)
	require.NoError(t, err)
	b, err := FaceSignature(src, box)
	require.NoError(t, err)
	assert.Equal(t, a, b, "the signature of the same crop must be stable")
}
