// Package thumbs generates and caches square thumbnails for catalog media.
// Thumbnail files are content-addressed by source path, size and mtime, so
// a changed file naturally gets a fresh thumbnail and stale ones are just
// unreferenced cache entries.
package thumbs

import (
	"crypto/sha1"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
)

const jpegQuality = 85

// Generator produces thumbnails under one cache directory.
type Generator struct {
	cacheDir     string
	size         int
	videoEnabled bool
}

// NewGenerator returns a Generator writing size-pixel square thumbnails
// into cacheDir. Video thumbnails require ffmpeg on PATH and are attempted
// only when videoEnabled is set.
func NewGenerator(cacheDir string, size int, videoEnabled bool) (*Generator, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache: %w", err)
	}
	return &Generator{cacheDir: cacheDir, size: size, videoEnabled: videoEnabled}, nil
}

// PathFor returns the cache path a thumbnail for this source would use.
func (g *Generator) PathFor(srcPath string, mtime int64) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", srcPath, g.size, mtime)))
	return filepath.Join(g.cacheDir, fmt.Sprintf("%x.jpg", sum))
}

// Ensure produces a thumbnail for the media file if one is not already
// cached, and returns its path. Returns "" without error for kinds it
// cannot thumbnail.
func (g *Generator) Ensure(srcPath string, kind mediatypes.Kind, mtime int64) (string, error) {
	switch kind {
	case mediatypes.KindImage:
		return g.ensureImage(srcPath, mtime)
	case mediatypes.KindVideo:
		if !g.videoEnabled {
			return "", nil
		}
		return g.ensureVideo(srcPath, mtime)
	default:
		return "", nil
	}
}

func (g *Generator) ensureImage(srcPath string, mtime int64) (string, error) {
	dst := g.PathFor(srcPath, mtime)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", srcPath, err)
	}

	if err := imaging.Save(g.letterbox(src), dst, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return dst, nil
}

// letterbox fits the image into the square thumbnail, centered on a dark
// background so portrait and landscape media tile uniformly.
func (g *Generator) letterbox(src image.Image) image.Image {
	fitted := imaging.Fit(src, g.size, g.size, imaging.Lanczos)
	canvas := imaging.New(g.size, g.size, color.NRGBA{R: 18, G: 18, B: 18, A: 255})
	return imaging.PasteCenter(canvas, fitted)
}

// ensureVideo extracts a frame one second in via ffmpeg and letterboxes it
// like an image thumbnail.
func (g *Generator) ensureVideo(srcPath string, mtime int64) (string, error) {
	dst := g.PathFor(srcPath, mtime)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}

	frame := dst + ".frame.jpg"
	defer os.Remove(frame)

	cmd := exec.Command("ffmpeg",
		"-ss", "1", "-i", srcPath,
		"-frames:v", "1", "-q:v", "3",
		"-y", frame)
	if out, err := cmd.CombinedOutput(); err != nil {
		logging.Debug("ffmpeg failed for %s: %s", srcPath, out)
		return "", fmt.Errorf("failed to extract frame from %s: %w", srcPath, err)
	}

	src, err := imaging.Open(frame)
	if err != nil {
		return "", fmt.Errorf("failed to decode extracted frame: %w", err)
	}
	if err := imaging.Save(g.letterbox(src), dst, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return dst, nil
}
