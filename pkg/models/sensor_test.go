package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingComplete(t *testing.T) {
	in := NewSensorInput(6.8, 320, 12, 210, 0.42, 27.5)
	r, err := in.Reading()
	require.NoError(t, err)
	assert.Equal(t, [6]float64{6.8, 320, 12, 210, 0.42, 27.5}, r.Features())
}

func TestReadingAcceptsZero(t *testing.T) {
	in := NewSensorInput(0, 0, 0, 0, 0, 0)
	_, err := in.Reading()
	require.NoError(t, err)
}

func TestReadingMissingFields(t *testing.T) {
	var in SensorInput
	require.NoError(t, json.Unmarshal([]byte(`{"pH":7,"TDS":300,"Gas":1,"ColorIndex":0.5}`), &in))

	_, err := in.Reading()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"Turbidity", "Temp"}, verr.Fields)
	assert.Contains(t, err.Error(), "Turbidity")
}

func TestReadingRejectsNonFinite(t *testing.T) {
	in := NewSensorInput(math.NaN(), 1, 1, 1, 1, math.Inf(1))
	_, err := in.Reading()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ElementsMatch(t, []string{"pH", "Temp"}, verr.Fields)
}

func TestReadingFromFeaturesRoundTrip(t *testing.T) {
	f := [6]float64{1, 2, 3, 4, 5, 6}
	assert.Equal(t, f, ReadingFromFeatures(f).Features())
}
