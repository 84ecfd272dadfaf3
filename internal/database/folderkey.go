package database

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// normalizeRoot lower-cases a root directory, converts it to forward
// slashes and guarantees a trailing slash, so prefix matching against
// normalized media paths is purely textual.
func normalizeRoot(root string) string {
	r := strings.ToLower(filepath.ToSlash(strings.TrimSpace(root)))
	if r == "" {
		return ""
	}
	if !strings.HasSuffix(r, "/") {
		r += "/"
	}
	return r
}

// FolderKeyForPath derives the stable folder identity of a media path:
// the normalized parent-directory path relative to the best-matching root.
// Roots are matched case-insensitively and the longest match wins, which
// resolves nested roots correctly. Returns "" when no root matches or the
// media sits directly in a root; such media is excluded from automatic
// albums.
func FolderKeyForPath(mediaPath string, roots []string) string {
	norm := strings.ToLower(filepath.ToSlash(mediaPath))

	best := ""
	for _, root := range roots {
		r := normalizeRoot(root)
		if r == "" {
			continue
		}
		if strings.HasPrefix(norm, r) && len(r) > len(best) {
			best = r
		}
	}
	if best == "" {
		return ""
	}

	rel := strings.TrimPrefix(norm, best)
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return strings.Trim(dir, "/")
}

var titleCaser = cases.Title(language.Und)

// DefaultAlbumTitle renders a folder key into the title used when an album
// is created fresh: each segment title-cased, joined with " - ". A rename
// is never overridden with this value.
func DefaultAlbumTitle(folderKey string) string {
	segments := strings.Split(folderKey, "/")
	for i, seg := range segments {
		segments[i] = titleCaser.String(seg)
	}
	return strings.Join(segments, " - ")
}
