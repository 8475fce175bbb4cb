package batch

import "github.com/shivam2014/trading-journal-stream/internal/model"

type patternKey struct {
	patternType string
	timestamp   int64
}

// DedupPatterns merges incoming patterns into existing, keeping one instance
// per (patternType, timestamp). When duplicates differ in confidence, the
// highest-confidence instance survives. First-seen order is preserved.
func DedupPatterns(existing, incoming []model.Pattern) []model.Pattern {
	index := make(map[patternKey]int, len(existing)+len(incoming))
	out := make([]model.Pattern, 0, len(existing)+len(incoming))

	merge := func(p model.Pattern) {
		key := patternKey{p.PatternType, p.Timestamp}
		if i, seen := index[key]; seen {
			if p.Confidence > out[i].Confidence {
				out[i] = p
			}
			return
		}
		index[key] = len(out)
		out = append(out, p)
	}

	for _, p := range existing {
		merge(p)
	}
	for _, p := range incoming {
		merge(p)
	}
	return out
}
