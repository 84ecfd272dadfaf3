// Package indexer walks the configured media roots and feeds the catalog.
// Each file commits individually, so a cancelled run keeps everything
// indexed so far and the next run picks up where it stopped. Indexing
// never deletes rows; pruning is an explicit admin operation.
package indexer

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/thumbs"
)

// Summary reports what one indexing run did.
type Summary struct {
	Total      int
	Images     int
	Videos     int
	ThumbsOK   int
	ThumbsFail int
	Errors     int
}

// Indexer scans roots into one store.
type Indexer struct {
	store  *database.Database
	thumbs *thumbs.Generator
	roots  []string
}

// New returns an Indexer. thumbGen may be nil to index without thumbnails.
func New(store *database.Database, thumbGen *thumbs.Generator, roots []string) *Indexer {
	return &Indexer{store: store, thumbs: thumbGen, roots: roots}
}

// Run walks every root once. Per-file failures are counted and logged, not
// fatal; only context cancellation or a store-level failure aborts the
// walk. On cancellation the summary covers the work done so far.
func (ix *Indexer) Run(ctx context.Context) (Summary, error) {
	metrics.IndexerRunsTotal.Inc()

	var sum Summary
	for _, root := range ix.roots {
		logging.Info("indexing %s", root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				logging.Warn("walk error at %s: %v", path, err)
				sum.Errors++
				metrics.IndexerErrorsTotal.Inc()
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !mediatypes.IsMediaFile(path) {
				return nil
			}
			if err := ix.indexFile(ctx, path, d, &sum); err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logging.Info("indexing cancelled after %d file(s)", sum.Total)
				return sum, err
			}
			return sum, err
		}
	}

	logging.Info("indexed %d file(s): %d image(s), %d video(s), %d error(s)",
		sum.Total, sum.Images, sum.Videos, sum.Errors)
	return sum, nil
}

func (ix *Indexer) indexFile(ctx context.Context, path string, d fs.DirEntry, sum *Summary) error {
	info, err := d.Info()
	if err != nil {
		logging.Warn("stat failed for %s: %v", path, err)
		sum.Errors++
		metrics.IndexerErrorsTotal.Inc()
		return nil
	}

	kind := mediatypes.KindForPath(path)
	mtime := info.ModTime().Unix()

	thumbPath := ""
	if ix.thumbs != nil {
		thumbPath, err = ix.thumbs.Ensure(path, kind, mtime)
		if err != nil {
			logging.Debug("thumbnail failed for %s: %v", path, err)
			sum.ThumbsFail++
		} else if thumbPath != "" {
			sum.ThumbsOK++
		}
	}

	// Store failures abort the run: if one upsert fails the rest will too.
	if err := ix.store.UpsertMedia(ctx, path, kind, mtime, info.Size(), thumbPath); err != nil {
		return err
	}

	sum.Total++
	metrics.IndexerFilesIndexed.Inc()
	switch kind {
	case mediatypes.KindImage:
		sum.Images++
	case mediatypes.KindVideo:
		sum.Videos++
	}
	return nil
}
