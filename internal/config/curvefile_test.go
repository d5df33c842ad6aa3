package config_test

import (
	"strings"
	"testing"

	"github.com/foucault/nvfancontrol/internal/config"
	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurve(t *testing.T) {
	input := `
# fan curve for the living room box
30 20
40 30

50	40
60 50 trailing junk is tolerated
`
	cf, err := config.ParseCurve(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []curve.Point{
		{Temperature: 30, Speed: 20},
		{Temperature: 40, Speed: 30},
		{Temperature: 50, Speed: 40},
		{Temperature: 60, Speed: 50},
	}, cf.Points)
	assert.Nil(t, cf.Flicker)
}

func TestParseCurveSkipsMalformedLines(t *testing.T) {
	input := `
30 20
not a pair
40 thirty
40 30
`
	cf, err := config.ParseCurve(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []curve.Point{
		{Temperature: 30, Speed: 20},
		{Temperature: 40, Speed: 30},
	}, cf.Points)
}

func TestParseCurveFlickerDirective(t *testing.T) {
	input := `
30 20
80 80
fanflicker = [11, 38]
`
	cf, err := config.ParseCurve(strings.NewReader(input))
	require.NoError(t, err)

	require.NotNil(t, cf.Flicker)
	assert.Equal(t, 11, cf.Flicker.Min)
	assert.Equal(t, 38, cf.Flicker.Max)
}

func TestParseCurveBadFlickerDirective(t *testing.T) {
	tests := []string{
		"fanflicker [11, 38]",
		"fanflicker = 11, 38",
		"fanflicker = [11]",
		"fanflicker = [11, 38, 40]",
		"fanflicker = [eleven, 38]",
	}

	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			_, err := config.ParseCurve(strings.NewReader(line))
			require.Error(t, err)
			assert.Equal(t, config.ErrBadDirective, errors.CodeOf(err))
		})
	}
}

func TestDefaultPoints(t *testing.T) {
	// The built-in curve must itself be valid
	_, err := curve.New(config.DefaultPoints())
	assert.NoError(t, err)
}
