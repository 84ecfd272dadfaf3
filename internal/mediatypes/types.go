package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind represents the kind of a catalogued media file.
type Kind string

const (
	// KindImage represents an image file.
	KindImage Kind = "image"
	// KindVideo represents a video file.
	KindVideo Kind = "video"
	// KindOther represents an unknown or unsupported file type.
	KindOther Kind = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".3gp":  true,
}

// KindForExt returns the Kind for a given file extension.
// The extension should include the leading dot (e.g., ".jpg"); case is ignored.
// Returns KindOther if the extension is not recognized.
func KindForExt(ext string) Kind {
	ext = strings.ToLower(ext)
	if ImageExtensions[ext] {
		return KindImage
	}
	if VideoExtensions[ext] {
		return KindVideo
	}
	return KindOther
}

// KindForPath classifies a path by its extension.
func KindForPath(path string) Kind {
	return KindForExt(filepath.Ext(path))
}

// IsMediaFile returns true if the path has a supported media extension.
func IsMediaFile(path string) bool {
	return KindForPath(path) != KindOther
}
