package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultThumbSize     = 320
	DefaultScanBatchSize = 48
)

// Config holds the settings consumed by the catalog, indexer and scanner.
// The store itself does not own these values; they are plain key/value
// configuration read at startup.
type Config struct {
	// StorePath is the full path to the encrypted database file.
	StorePath string
	// CacheDir is where thumbnails and person covers are written.
	CacheDir string
	// Roots are the indexed root directories albums are derived from.
	Roots []string
	// ThumbSize is the square thumbnail edge in pixels.
	ThumbSize int
	// ScanBatchSize is the face-scan batch size per drain cycle.
	ScanBatchSize int
	// VideoThumbs enables ffmpeg-based video thumbnails.
	VideoThumbs bool
}

// Load reads configuration from the environment, with an optional .env file.
// A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	dataDir := os.Getenv("CATALOG_DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir()
	}

	cfg := Config{
		StorePath:     filepath.Join(dataDir, "db", "catalog.db"),
		CacheDir:      filepath.Join(dataDir, "cache"),
		Roots:         splitList(os.Getenv("CATALOG_ROOTS")),
		ThumbSize:     envInt("CATALOG_THUMB_SIZE", DefaultThumbSize),
		ScanBatchSize: envInt("CATALOG_SCAN_BATCH", DefaultScanBatchSize),
		VideoThumbs:   envBool("CATALOG_VIDEO_THUMBS", true),
	}

	if p := os.Getenv("CATALOG_DB_PATH"); p != "" {
		cfg.StorePath = p
	}
	return cfg
}

// defaultDataDir places application data under the per-user config directory,
// falling back to the working directory when none is available.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "media-catalog")
	}
	return "media-catalog-data"
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean flag.
func envBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

// splitList splits a path-list value on the OS path list separator,
// dropping empty entries and duplicates while preserving order.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(value, string(os.PathListSeparator)) {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
