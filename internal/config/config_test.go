package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"CATALOG_DATA_DIR", "CATALOG_DB_PATH", "CATALOG_ROOTS",
		"CATALOG_THUMB_SIZE", "CATALOG_SCAN_BATCH", "CATALOG_VIDEO_THUMBS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.ThumbSize != DefaultThumbSize {
		t.Errorf("ThumbSize = %d, want %d", cfg.ThumbSize, DefaultThumbSize)
	}
	if cfg.ScanBatchSize != DefaultScanBatchSize {
		t.Errorf("ScanBatchSize = %d, want %d", cfg.ScanBatchSize, DefaultScanBatchSize)
	}
	if !cfg.VideoThumbs {
		t.Error("VideoThumbs should default to true")
	}
	if !strings.HasSuffix(cfg.StorePath, "catalog.db") {
		t.Errorf("StorePath = %q, want a catalog.db path", cfg.StorePath)
	}
	if len(cfg.Roots) != 0 {
		t.Errorf("Roots = %v, want empty", cfg.Roots)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CATALOG_DB_PATH", "/tmp/custom.db")
	t.Setenv("CATALOG_THUMB_SIZE", "128")
	t.Setenv("CATALOG_SCAN_BATCH", "10")
	t.Setenv("CATALOG_VIDEO_THUMBS", "off")
	t.Setenv("CATALOG_ROOTS", strings.Join([]string{"/pics", "/pics", "/videos"}, string(os.PathListSeparator)))

	cfg := Load()

	if cfg.StorePath != "/tmp/custom.db" {
		t.Errorf("StorePath = %q, want /tmp/custom.db", cfg.StorePath)
	}
	if cfg.ThumbSize != 128 {
		t.Errorf("ThumbSize = %d, want 128", cfg.ThumbSize)
	}
	if cfg.ScanBatchSize != 10 {
		t.Errorf("ScanBatchSize = %d, want 10", cfg.ScanBatchSize)
	}
	if cfg.VideoThumbs {
		t.Error("VideoThumbs should be off")
	}
	if len(cfg.Roots) != 2 || cfg.Roots[0] != "/pics" || cfg.Roots[1] != "/videos" {
		t.Errorf("Roots = %v, want [/pics /videos]", cfg.Roots)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("CATALOG_THUMB_SIZE", "not-a-number")
	if got := envInt("CATALOG_THUMB_SIZE", 99); got != 99 {
		t.Errorf("envInt invalid = %d, want default 99", got)
	}

	t.Setenv("CATALOG_THUMB_SIZE", "-5")
	if got := envInt("CATALOG_THUMB_SIZE", 99); got != 99 {
		t.Errorf("envInt negative = %d, want default 99", got)
	}
}
