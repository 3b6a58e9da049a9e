package clip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/batch-clip/internal/model"
)

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected model.Distance
		hasError bool
	}{
		{"", model.Distance{}, false},
		{"   ", model.Distance{}, false},
		{"0", model.Distance{}, false},
		{"0 Feet", model.Distance{}, false},
		{"100", model.Distance{Value: 100}, false},
		{"100 Meters", model.Distance{Value: 100, Unit: "Meters"}, false},
		{"100Meters", model.Distance{Value: 100, Unit: "Meters"}, false},
		{"2.5 km", model.Distance{Value: 2.5, Unit: "Kilometers"}, false},
		{".5 mi", model.Distance{Value: 0.5, Unit: "Miles"}, false},
		{"1,500 feet", model.Distance{Value: 1500, Unit: "Feet"}, false},
		{"3 Nautical Miles", model.Distance{Value: 3, Unit: "NauticalMiles"}, false},
		{"10 DecimalDegrees", model.Distance{Value: 10, Unit: "DecimalDegrees"}, false},
		{"-5 Meters", model.Distance{}, true},
		{"Meters", model.Distance{}, true},
		{"ten meters", model.Distance{}, true},
		{"100 parsecs", model.Distance{}, true},
		{"1e3", model.Distance{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDistance(tt.input)
			if tt.hasError {
				assert.ErrorIs(t, err, model.ErrInvalidDistance)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLenientDistance(t *testing.T) {
	tests := []struct {
		input string
		want  model.Distance
		ok    bool
	}{
		{"-50", model.Distance{Value: -50}, true},
		{"-5 Meters", model.Distance{Value: -5, Unit: "Meters"}, true},
		{"50 US Survey Feet", model.Distance{Value: 50, Unit: "Feet"}, true},
		{"Distance 50", model.Distance{Value: 50}, true},
		{"50 Meters buffer", model.Distance{Value: 50, Unit: "Meters"}, true},
		{"1e3", model.Distance{Value: 13}, true},
		{"about 2.5km", model.Distance{Value: 25, Unit: "Kilometers"}, true},
		{"a-b 7", model.Distance{Value: 7}, true},
		{"zero 0", model.Distance{}, true},
		{"far away", model.Distance{}, false},
		{"", model.Distance{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := LenientDistance(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistance_Meters(t *testing.T) {
	m, ok := model.Distance{Value: 2, Unit: "Kilometers"}.Meters()
	require.True(t, ok)
	assert.InDelta(t, 2000, m, 1e-9)

	m, ok = model.Distance{Value: 100, Unit: "Feet"}.Meters()
	require.True(t, ok)
	assert.InDelta(t, 30.48, m, 1e-9)

	_, ok = model.Distance{Value: 100}.Meters()
	assert.False(t, ok)

	_, ok = model.Distance{Value: 1, Unit: "DecimalDegrees"}.Meters()
	assert.False(t, ok)
}

// TestNormalizeGDBName covers the documented normalization examples and
// the names that cannot produce a usable container.
func TestNormalizeGDBName(t *testing.T) {
	tests := []struct {
		input    string
		want     string
		hasError bool
	}{
		{"My Clip", "My_Clip.gdb", false},
		{"data.gdb", "data.gdb", false},
		{"My Output.gdb", "My_Output.gdb", false},
		{"clip", "clip.gdb", false},
		{"a b c.v2.gdb", "a_b_c.gdb", false},
		{" My Clip", "_My_Clip.gdb", false},
		{"", "", true},
		{".gdb", "", true},
		{"../escape", "", true},
		{"sub/dir", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeGDBName(tt.input)
			if tt.hasError {
				assert.ErrorIs(t, err, model.ErrInvalidGDBName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
