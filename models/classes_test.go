package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelSetName(t *testing.T) {
	tests := []struct {
		name     string
		set      LabelSet
		id       int
		expected string
	}{
		{"first coco class", COCOLabels, 0, "person"},
		{"last coco class", COCOLabels, 79, "toothbrush"},
		{"one past the end", COCOLabels, 80, UnknownLabel},
		{"negative id", COCOLabels, -1, UnknownLabel},
		{"empty set", LabelSet{}, 0, UnknownLabel},
		{"nil set", nil, 3, UnknownLabel},
		{"custom set", LabelSet{"a", "b"}, 1, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.set.Name(tt.id))
		})
	}
}

func TestLabelSetSizes(t *testing.T) {
	assert.Len(t, COCOLabels, 80)
	assert.Len(t, VOCLabels, 20)

	idx, ok := COCOLabels.Index("dog")
	assert.True(t, ok)
	assert.Equal(t, 16, idx)

	_, ok = COCOLabels.Index("unicorn")
	assert.False(t, ok)
}

// TestLookupFamily validates that lookups return independent copies.
func TestLookupFamily(t *testing.T) {
	for _, family := range Families {
		t.Run(string(family), func(t *testing.T) {
			labels, err := LookupFamily(family)
			require.NoError(t, err)
			require.NotEmpty(t, labels)

			labels[0] = "mutated"
			again, err := LookupFamily(family)
			require.NoError(t, err)
			assert.NotEqual(t, "mutated", again[0])
		})
	}

	upper, err := LookupFamily("COCO")
	require.NoError(t, err)
	assert.Equal(t, COCOLabels, upper)

	_, err = LookupFamily("imagenet")
	assert.Error(t, err)
}
