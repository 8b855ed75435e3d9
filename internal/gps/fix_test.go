package gps

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	assert.True(t, Fix{Validity: "A"}.Valid())
	assert.False(t, Fix{Validity: "V"}.Valid())
	assert.False(t, Fix{}.Valid())
}

func TestVelocityNE(t *testing.T) {
	t.Run("due north", func(t *testing.T) {
		n, e := Fix{SpeedKnots: 10, CourseDeg: 0}.VelocityNE()
		assert.InDelta(t, 5.14444, n, 1e-5)
		assert.InDelta(t, 0, e, 1e-12)
	})

	t.Run("due east", func(t *testing.T) {
		n, e := Fix{SpeedKnots: 10, CourseDeg: 90}.VelocityNE()
		assert.InDelta(t, 0, n, 1e-12)
		assert.InDelta(t, 5.14444, e, 1e-5)
	})

	t.Run("southwest", func(t *testing.T) {
		n, e := Fix{SpeedKnots: 2, CourseDeg: 225}.VelocityNE()
		assert.Less(t, n, 0.0)
		assert.Less(t, e, 0.0)
		assert.InDelta(t, n, e, 1e-12)
	})
}

func TestFixJSONRoundTrip(t *testing.T) {
	in := Fix{
		Time:       "12:34:56",
		Date:       "2026-08-26",
		Latitude:   52.52,
		Longitude:  13.405,
		SpeedKnots: 3.2,
		CourseDeg:  271.5,
		Validity:   "A",
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Fix
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
