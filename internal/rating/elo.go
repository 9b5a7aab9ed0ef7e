package rating

import "math"

// Defaults match the classic ELO parameters the tournament has always
// used: fresh competitors enter at 1200 and every pairwise exchange
// moves at most K points.
const (
	Initial  = 1200.0
	DefaultK = 10.0
)

// Expected returns the expected score of a player rated `a` against an
// opponent rated `b`, in [0, 1].
func Expected(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// Rank computes new ratings for a finishing order, winner first. Every
// ordered pair is treated as a decided game: the earlier finisher
// scores 1 against the later one, which scores 0. Per-player deltas are
// the sum of K*(actual-expected) over all opponents, computed from the
// pre-race ratings so that evaluation order does not matter.
//
// Ratings are kept in full float64 precision with no intermediate
// rounding, which keeps the exchange exactly zero-sum: each pair
// contributes +d to one player and -d to the other.
func Rank(ranking []float64, k float64) []float64 {
	updated := make([]float64, len(ranking))
	for pi, r := range ranking {
		delta := 0.0
		for oi, opp := range ranking {
			if oi == pi {
				continue
			}
			actual := 0.0
			if pi < oi {
				actual = 1.0
			}
			delta += k * (actual - Expected(r, opp))
		}
		updated[pi] = r + delta
	}
	return updated
}
