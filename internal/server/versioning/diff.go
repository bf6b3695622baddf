package versioning

import "github.com/mbelovs/contractvault/internal/server/models"

// contentSimilarityThreshold is the similarity below which two branch
// heads are considered divergent enough to block an automatic merge.
const contentSimilarityThreshold = 0.8

// computeDiff summarizes the delta between two snapshots by comparing
// byte positions up to the shorter length. Deliberately O(n) and
// imprecise: the overlap is counted whole as ModifiedBytes, and
// Similarity is the fraction of matching positions within it. Callers
// needing a real edit-distance diff should treat this as a pluggable
// strategy.
func computeDiff(a, b []byte) *models.VersionDiff {
	overlap := len(a)
	if len(b) < overlap {
		overlap = len(b)
	}

	matches := 0
	for i := 0; i < overlap; i++ {
		if a[i] == b[i] {
			matches++
		}
	}

	diff := &models.VersionDiff{
		AddedBytes:    int64(max(0, len(b)-len(a))),
		RemovedBytes:  int64(max(0, len(a)-len(b))),
		ModifiedBytes: int64(overlap),
	}
	diff.TotalChanges = diff.AddedBytes + diff.RemovedBytes + diff.ModifiedBytes

	switch {
	case len(a) == 0 && len(b) == 0:
		diff.Similarity = 1.0
	case overlap == 0:
		diff.Similarity = 0.0
	default:
		diff.Similarity = float64(matches) / float64(overlap)
	}
	return diff
}
