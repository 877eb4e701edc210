package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfidenceBounds(t *testing.T) {
	for _, n := range []int{0, 1, 5, 100, 100000} {
		for _, rate := range []float64{-0.5, 0, 0.25, 0.5, 0.9, 1, 1.5} {
			c := Confidence(n, rate)
			assert.GreaterOrEqual(t, c, 0.0, "n=%d rate=%f", n, rate)
			assert.LessOrEqual(t, c, 1.0, "n=%d rate=%f", n, rate)
		}
	}
}

func TestConfidenceMonotoneInSamples(t *testing.T) {
	for _, rate := range []float64{0, 0.3, 0.5, 0.8, 1} {
		prev := -1.0
		for n := 0; n <= 200; n++ {
			c := Confidence(n, rate)
			assert.GreaterOrEqual(t, c, prev, "rate=%f n=%d", rate, n)
			prev = c
		}
	}
}

func TestConfidenceRewardsStability(t *testing.T) {
	// A consistent pattern in either direction beats a coin flip.
	assert.Greater(t, Confidence(20, 0.9), Confidence(20, 0.5))
	assert.Greater(t, Confidence(20, 0.1), Confidence(20, 0.5))
	assert.InDelta(t, Confidence(20, 0.9), Confidence(20, 0.1), 1e-12)
}

func TestConfidenceZeroSamples(t *testing.T) {
	assert.Zero(t, Confidence(0, 1))
	assert.Zero(t, CountConfidence(0))
}

func TestCountConfidenceApproachesOne(t *testing.T) {
	assert.Less(t, CountConfidence(3), CountConfidence(30))
	assert.Greater(t, CountConfidence(1000), 0.99)
}
