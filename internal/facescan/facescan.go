// Package facescan drains the scan queue, runs a pluggable face detector
// over each media item and files the results: faces are stored, matched
// against known persons by perceptual signature and turned into pending
// suggestions for the operator to review.
package facescan

import (
	"context"
	"fmt"

	"media-catalog/internal/ahash"
	"media-catalog/internal/covers"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// DefaultMaxDistance is the Hamming cutoff for signature matches. Beyond
// it a face founds a new person instead of suggesting an existing one.
const DefaultMaxDistance = 10

// Detection is one face found by a detector, in source-image pixel space
// (or normalized coordinates; the store accepts both).
type Detection struct {
	Box database.BBox
	// Quality in [0,1]; zero means the detector gave no estimate and the
	// box area is used as a proxy.
	Quality float64
}

// Detector finds faces in an image file. Implementations run external
// models and are expected to be slow; the scanner calls them serially.
type Detector interface {
	Detect(ctx context.Context, path string) ([]Detection, error)
}

// Summary reports one scan run.
type Summary struct {
	Scanned    int
	Faces      int
	NewPersons int
	Errors     int
}

// Scanner wires a detector to the store.
type Scanner struct {
	store       *database.Database
	covers      *covers.Service
	detector    Detector
	batchSize   int
	maxDistance int
}

// New returns a Scanner. coverSvc may be nil to skip avatar generation.
func New(store *database.Database, coverSvc *covers.Service, det Detector, batchSize int) *Scanner {
	if batchSize < 1 {
		batchSize = 48
	}
	return &Scanner{
		store:       store,
		covers:      coverSvc,
		detector:    det,
		batchSize:   batchSize,
		maxDistance: DefaultMaxDistance,
	}
}

// Run drains the scan queue in batches until it is empty or the context is
// cancelled. A media item's watermark only advances when its scan fully
// succeeded; failed items keep their place in the queue and are retried on
// the next run, not within this one.
func (s *Scanner) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	failed := make(map[int64]bool)
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		// Failed items stay queued and would crowd out fresh ones; widen
		// the fetch so each batch still carries new work.
		batch, err := s.store.GetUnscannedMedia(ctx, s.batchSize+len(failed))
		if err != nil {
			return sum, fmt.Errorf("failed to fetch scan batch: %w", err)
		}

		// Items that already failed this run come back on the next fetch;
		// once the batch is nothing but those, the queue is drained.
		progressed := false
		for _, item := range batch {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			if failed[item.MediaID] {
				continue
			}
			progressed = true
			if err := s.scanOne(ctx, item, &sum); err != nil {
				logging.Warn("face scan failed for %s: %v", item.Path, err)
				failed[item.MediaID] = true
				sum.Errors++
				metrics.FaceScanErrorsTotal.Inc()
				continue
			}
			sum.Scanned++
		}
		if !progressed {
			return sum, nil
		}
		metrics.FaceScanBatchesTotal.Inc()
	}
}

func (s *Scanner) scanOne(ctx context.Context, item database.ScanCandidate, sum *Summary) error {
	detections, err := s.detector.Detect(ctx, item.Path)
	if err != nil {
		return err
	}

	for _, det := range detections {
		if err := s.fileDetection(ctx, item, det, sum); err != nil {
			return err
		}
	}

	return s.store.MarkMediaScanned(ctx, item.MediaID, item.MTime)
}

func (s *Scanner) fileDetection(ctx context.Context, item database.ScanCandidate, det Detection, sum *Summary) error {
	sig, sigErr := covers.FaceSignature(item.Path, det.Box)
	sigHex := ""
	if sigErr != nil {
		logging.Debug("signature failed for %s: %v", item.Path, sigErr)
	} else {
		sigHex = ahash.Encode(sig)
	}

	quality := det.Quality
	if quality == 0 {
		quality = det.Box.W * det.Box.H
	}

	faceID, err := s.store.AddFace(ctx, item.MediaID, det.Box, nil, quality, sigHex)
	if err != nil {
		return err
	}
	sum.Faces++

	if sigErr != nil {
		// Without a signature there is nothing to match against.
		return nil
	}

	personID, err := s.store.FindSimilarPerson(ctx, sig, s.maxDistance)
	if err != nil {
		return err
	}
	if personID == 0 {
		personID, err = s.store.CreatePerson(ctx, "", false, "", sigHex)
		if err != nil {
			return err
		}
		sum.NewPersons++
	}

	if err := s.store.AddSuggestion(ctx, faceID, personID, s.matchScore(ctx, sig, personID)); err != nil {
		return err
	}

	if s.covers != nil {
		if err := s.covers.EnsureIfMissing(ctx, personID); err != nil {
			logging.Debug("avatar for person %d failed: %v", personID, err)
		}
	}
	return nil
}

// matchScore maps the Hamming distance between the face signature and the
// person's representative signature onto [0,1] for suggestion ranking.
// Nil when the person has no signature to compare against.
func (s *Scanner) matchScore(ctx context.Context, sig uint64, personID int64) *float64 {
	p, err := s.store.GetPerson(ctx, personID)
	if err != nil || p == nil || p.RepSig == "" {
		return nil
	}
	rep, err := ahash.Decode(p.RepSig)
	if err != nil {
		return nil
	}
	score := 1 - float64(ahash.Distance(sig, rep))/64
	return &score
}
