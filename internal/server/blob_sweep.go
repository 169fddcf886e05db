package server

import (
	"context"
	"fmt"
	"time"

	"sitrep/internal/blobstore"
)

// DefaultSweepGracePeriod keeps blobs of in-flight submissions out of reach.
const DefaultSweepGracePeriod = time.Hour

// BlobSweepResult reports one sweep run.
type BlobSweepResult struct {
	CandidateCount int
	DeletedCount   int
	FailedCount    int
	ReclaimedBytes int64
	Keys           []string
	DryRun         bool
}

// SweepBlobs finds image blobs no report references and that are older than
// grace. With apply false nothing is deleted.
func (s *ReportService) SweepBlobs(ctx context.Context, grace time.Duration, apply bool) (BlobSweepResult, error) {
	result := BlobSweepResult{DryRun: !apply, Keys: []string{}}

	lister, ok := s.blobs.(blobstore.Lister)
	if !ok {
		return result, notImplemented(fmt.Errorf("blob backend does not support listing"))
	}
	if grace <= 0 {
		grace = DefaultSweepGracePeriod
	}
	cutoff := s.now().UTC().Add(-grace)

	// Blobs are listed before references are read so a report inserted in
	// between still protects its key.
	blobs, err := lister.List(ctx, blobstore.KeyPrefix)
	if err != nil {
		return result, storeFailure(fmt.Errorf("list blobs: %w", err))
	}
	refs, err := s.reports.ImageReferences(ctx)
	if err != nil {
		return result, storeFailure(fmt.Errorf("list image references: %w", err))
	}

	for _, blob := range blobs {
		if _, referenced := refs[blob.Key]; referenced {
			continue
		}
		if blob.ModifiedAt.After(cutoff) {
			continue
		}
		result.CandidateCount++
		result.Keys = append(result.Keys, blob.Key)

		if !apply {
			result.ReclaimedBytes += blob.SizeBytes
			continue
		}
		if err := s.blobs.Delete(ctx, blob.Key); err != nil {
			result.FailedCount++
			s.logger.Warn("sweep delete failed", "key", blob.Key, "error", err)
			continue
		}
		result.DeletedCount++
		result.ReclaimedBytes += blob.SizeBytes
		sweepDeletedBlobs.Inc()
	}

	if apply {
		s.logger.Info("blob sweep complete", "candidates", result.CandidateCount, "deleted", result.DeletedCount, "failed", result.FailedCount)
	}
	return result, nil
}
