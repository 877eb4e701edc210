package insight

// confidenceSaturation is the sample count at which evidence weight
// reaches one half. Confidence approaches the pattern's stability as the
// sample count grows.
const confidenceSaturation = 5

// Confidence scores how much to trust a rate-based pattern derived from
// n samples. rate is the observed success (or occurrence) rate in [0,1].
// The score is the pattern's stability, how far the rate sits from a coin
// flip, discounted by how little evidence backs it. It is monotone
// non-decreasing in n for a fixed rate and always lands in [0,1].
func Confidence(n int, rate float64) float64 {
	if n <= 0 {
		return 0
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	stability := rate
	if 1-rate > stability {
		stability = 1 - rate
	}
	weight := float64(n) / float64(n+confidenceSaturation)
	return stability * weight
}

// CountConfidence scores a pure frequency pattern, where there is no
// success rate and the only evidence is how often the pattern occurred.
func CountConfidence(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) / float64(n+confidenceSaturation)
}
