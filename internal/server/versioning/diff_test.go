package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDiff(t *testing.T) {
	tests := []struct {
		name       string
		a, b       string
		added      int64
		removed    int64
		modified   int64
		similarity float64
	}{
		{name: "identical", a: "abcdef", b: "abcdef", modified: 6, similarity: 1.0},
		{name: "growth", a: "abc", b: "abcdef", added: 3, modified: 3, similarity: 1.0},
		{name: "shrink", a: "abcdef", b: "abc", removed: 3, modified: 3, similarity: 1.0},
		{name: "half changed", a: "aabb", b: "aacc", modified: 4, similarity: 0.5},
		{name: "disjoint", a: "aaaa", b: "zzzz", modified: 4, similarity: 0.0},
		{name: "both empty", similarity: 1.0},
		{name: "one empty", a: "abc", removed: 3, similarity: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := computeDiff([]byte(tt.a), []byte(tt.b))
			assert.Equal(t, tt.added, diff.AddedBytes)
			assert.Equal(t, tt.removed, diff.RemovedBytes)
			assert.Equal(t, tt.modified, diff.ModifiedBytes)
			assert.Equal(t, tt.added+tt.removed+tt.modified, diff.TotalChanges)
			assert.InDelta(t, tt.similarity, diff.Similarity, 1e-9)
		})
	}
}
