package compression

import "math"

// EstimateRatio approximates the achievable compression ratio without
// running the real transform, from the Shannon entropy of the byte
// histogram. Low entropy (<4 bits/byte) ≈ 0.3, medium (<6) ≈ 0.6,
// high ≈ 0.8. Denylisted MIME types report 1.0. This is a planning/UI
// heuristic only and is never used for correctness decisions.
func (e *Engine) EstimateRatio(data []byte, mimeType string) float64 {
	if !e.IsCompressible(mimeType) {
		return 1.0
	}
	if len(data) == 0 {
		return 1.0
	}

	entropy := shannonEntropy(data)
	switch {
	case entropy < 4:
		return 0.3
	case entropy < 6:
		return 0.6
	default:
		return 0.8
	}
}

// shannonEntropy returns the entropy of the byte histogram in bits per
// byte, in [0, 8].
func shannonEntropy(data []byte) float64 {
	var histogram [256]int
	for _, b := range data {
		histogram[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
