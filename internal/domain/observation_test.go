package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationKey_ParseRoundTrip(t *testing.T) {
	k := ObservationKey{Master: "toltec", ObsNum: 113515, SubObsNum: 1, ScanNum: 2}
	got, err := ParseObservationKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, got)

	for _, bad := range []string{"", "toltec-1-2", "TOLTEC-1-2-3", "toltec-a-2-3"} {
		_, err := ParseObservationKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestObservationKey_Less(t *testing.T) {
	a := ObservationKey{Master: "toltec", ObsNum: 10, SubObsNum: 0, ScanNum: 5}
	b := ObservationKey{Master: "toltec", ObsNum: 10, SubObsNum: 1, ScanNum: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}

func TestPageRequest_TokenRoundTrip(t *testing.T) {
	tok := NextPageToken(0, 10, 25)
	p := PageRequest{MaxResults: 10, PageToken: tok}
	assert.Equal(t, 10, p.Offset())
	assert.Equal(t, "", NextPageToken(20, 10, 25))
	assert.Equal(t, DefaultMaxResults, PageRequest{}.Limit())
	assert.Equal(t, MaxMaxResults, PageRequest{MaxResults: 5000}.Limit())
}
