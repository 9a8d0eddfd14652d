package postprocess

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-detect/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(x1, y1, x2, y2 float32) images.Box {
	return images.Box{Y1: y1, X1: x1, Y2: y2, X2: x2}
}

func TestSuppress(t *testing.T) {
	tests := []struct {
		name     string
		boxes    []images.Box
		scores   []float32
		config   NMSConfig
		expected []int
	}{
		{
			name:     "empty input",
			config:   DefaultNMSConfig(),
			expected: []int{},
		},
		{
			name:     "overlapping boxes keep the best",
			boxes:    []images.Box{box(0, 0, 100, 100), box(5, 5, 105, 105), box(300, 300, 400, 400)},
			scores:   []float32{0.6, 0.9, 0.5},
			config:   DefaultNMSConfig(),
			expected: []int{1, 2},
		},
		{
			name:     "prefilter drops low scores",
			boxes:    []images.Box{box(0, 0, 10, 10), box(20, 20, 30, 30), box(40, 40, 50, 50)},
			scores:   []float32{0.19, 0.2, 0.5},
			config:   DefaultNMSConfig(),
			expected: []int{2, 1},
		},
		{
			name:     "identical boxes and scores keep the lower index",
			boxes:    []images.Box{box(0, 0, 10, 10), box(0, 0, 10, 10), box(0, 0, 10, 10)},
			scores:   []float32{0.5, 0.8, 0.8},
			config:   DefaultNMSConfig(),
			expected: []int{1},
		},
		{
			name:     "iou equal to threshold is not suppressed",
			boxes:    []images.Box{box(0, 0, 100, 100), box(0, 0, 50, 100)},
			scores:   []float32{0.9, 0.8},
			config:   NMSConfig{MaxOutputs: 10, IoUThreshold: 0.5, ScoreThreshold: 0},
			expected: []int{0, 1},
		},
		{
			name:     "max outputs caps the result",
			boxes:    []images.Box{box(0, 0, 1, 1), box(2, 2, 3, 3), box(4, 4, 5, 5)},
			scores:   []float32{0.3, 0.9, 0.6},
			config:   NMSConfig{MaxOutputs: 2, IoUThreshold: 0.45, ScoreThreshold: 0.2},
			expected: []int{1, 2},
		},
		{
			name:     "zero max outputs",
			boxes:    []images.Box{box(0, 0, 1, 1)},
			scores:   []float32{0.9},
			config:   NMSConfig{MaxOutputs: 0, IoUThreshold: 0.45},
			expected: []int{},
		},
		{
			name:     "zero-area boxes never suppress each other",
			boxes:    []images.Box{box(5, 5, 5, 5), box(5, 5, 5, 5)},
			scores:   []float32{0.9, 0.8},
			config:   DefaultNMSConfig(),
			expected: []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Suppress(tt.boxes, tt.scores, tt.config))
		})
	}
}

// TestSuppressProperties checks the output invariants on random inputs.
func TestSuppressProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	config := DefaultNMSConfig()

	for round := 0; round < 50; round++ {
		n := rng.Intn(300)
		boxes := make([]images.Box, n)
		scores := make([]float32, n)
		for i := range boxes {
			x, y := rng.Float32()*600, rng.Float32()*600
			boxes[i] = box(x, y, x+10+rng.Float32()*100, y+10+rng.Float32()*100)
			// Quantized scores produce plenty of ties.
			scores[i] = float32(rng.Intn(10)) / 10
		}

		kept := Suppress(boxes, scores, config)

		require.LessOrEqual(t, len(kept), min(config.MaxOutputs, n))
		for a := range kept {
			assert.GreaterOrEqual(t, scores[kept[a]], config.ScoreThreshold)
			if a > 0 {
				prev, cur := kept[a-1], kept[a]
				assert.GreaterOrEqual(t, scores[prev], scores[cur])
				if scores[prev] == scores[cur] {
					assert.Less(t, prev, cur, "ties must be ordered by index")
				}
			}
			for b := a + 1; b < len(kept); b++ {
				assert.LessOrEqual(t, images.CalculateIoU(boxes[kept[a]], boxes[kept[b]]), config.IoUThreshold)
			}
		}

		assert.Equal(t, kept, Suppress(boxes, scores, config), "suppression must be deterministic")
	}
}

func TestSuppressByClass(t *testing.T) {
	boxes := []images.Box{box(0, 0, 100, 100), box(2, 2, 102, 102), box(4, 4, 104, 104)}
	scores := []float32{0.9, 0.8, 0.7}
	classes := []int{0, 1, 0}

	config := DefaultNMSConfig()
	assert.Equal(t, []int{0}, Apply(boxes, scores, classes, config))

	config.ClassAware = true
	assert.Equal(t, []int{0, 1}, Apply(boxes, scores, classes, config))

	// Missing class ids fall back to class-agnostic suppression.
	assert.Equal(t, []int{0}, SuppressByClass(boxes, scores, nil, config))
}
