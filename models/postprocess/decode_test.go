package postprocess

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// rows is a [1, 3, 4+2] output: three candidates, two classes.
var rows = [][]float32{
	{320, 320, 100, 50, 0.9, 0.1},
	{100, 200, 20, 40, 0.3, 0.7},
	{10, 10, 4, 4, 0.05, 0.05},
}

func rowMajor() *tensor.Dense {
	data := make([]float32, 0, 18)
	for _, r := range rows {
		data = append(data, r...)
	}
	return tensor.New(tensor.WithShape(1, 3, 6), tensor.WithBacking(data))
}

func attributeMajor() *tensor.Dense {
	data := make([]float32, 0, 18)
	for a := 0; a < 6; a++ {
		for _, r := range rows {
			data = append(data, r[a])
		}
	}
	return tensor.New(tensor.WithShape(1, 6, 3), tensor.WithBacking(data))
}

func assertRows(t *testing.T, got []RawCandidate) {
	t.Helper()
	require.Len(t, got, len(rows))
	for i, r := range rows {
		assert.Equal(t, r[0], got[i].CenterX)
		assert.Equal(t, r[1], got[i].CenterY)
		assert.Equal(t, r[2], got[i].Width)
		assert.Equal(t, r[3], got[i].Height)
		assert.Equal(t, r[4:], got[i].Scores)
	}
}

// TestDecodeLayouts validates that both supported layouts decode to the same candidates.
func TestDecodeLayouts(t *testing.T) {
	tests := []struct {
		name       string
		output     *tensor.Dense
		numClasses int
	}{
		{"row major with classes", rowMajor(), 2},
		{"row major inferred", rowMajor(), 0},
		{"attribute major with classes", attributeMajor(), 2},
		{"attribute major inferred", attributeMajor(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.output, tt.numClasses)
			require.NoError(t, err)
			assertRows(t, got)
		})
	}
}

// TestDecodeDoesNotModifyOutput ensures the transposed path works on a copy.
func TestDecodeDoesNotModifyOutput(t *testing.T) {
	output := attributeMajor()
	before := append([]float32(nil), output.Data().([]float32)...)

	_, err := Decode(output, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 6, 3}, []int(output.Shape()))
	assert.Equal(t, before, output.Data().([]float32))
}

func TestDecodeShapeMismatch(t *testing.T) {
	tests := []struct {
		name       string
		output     tensor.Tensor
		numClasses int
	}{
		{"rank two", tensor.New(tensor.WithShape(3, 6), tensor.WithBacking(make([]float32, 18))), 2},
		{"batch of two", tensor.New(tensor.WithShape(2, 3, 6), tensor.WithBacking(make([]float32, 36))), 2},
		{"class count matches neither axis", rowMajor(), 5},
		{"no class scores", tensor.New(tensor.WithShape(1, 10, 4), tensor.WithBacking(make([]float32, 40))), 0},
		{"float64 output", tensor.New(tensor.WithShape(1, 3, 6), tensor.WithBacking(make([]float64, 18))), 2},
		{"nil output", nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.output, tt.numClasses)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
		})
	}
}

func TestRawCandidateBoxAndBest(t *testing.T) {
	c := RawCandidate{CenterX: 50, CenterY: 40, Width: 20, Height: 10, Scores: []float32{0.2, 0.8, 0.8}}

	box := c.Box()
	assert.Equal(t, float32(35), box.Y1)
	assert.Equal(t, float32(40), box.X1)
	assert.Equal(t, float32(45), box.Y2)
	assert.Equal(t, float32(60), box.X2)

	score, class := c.Best()
	assert.Equal(t, float32(0.8), score)
	assert.Equal(t, 1, class, "first maximum wins")

	score, class = RawCandidate{}.Best()
	assert.Zero(t, score)
	assert.Equal(t, -1, class)
}

func TestFlatten(t *testing.T) {
	raw, err := Decode(rowMajor(), 2)
	require.NoError(t, err)

	boxes, scores, classes := Flatten(raw)
	require.Len(t, boxes, 3)
	assert.Equal(t, []float32{0.9, 0.7, 0.05}, scores)
	assert.Equal(t, []int{0, 1, 0}, classes)
	assert.Equal(t, float32(270), boxes[0].X1)
}
