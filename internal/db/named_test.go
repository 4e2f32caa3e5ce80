package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamed(t *testing.T) {
	queries, err := Named("refreshStationMviews")
	require.NoError(t, err)
	assert.Len(t, queries, len(StationViews))

	queries, err = Named("deleteOldTelemetry")
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, KindDeleteOldTelemetry, queries[0].Kind)

	_, err = Named("dropEverything")
	assert.ErrorIs(t, err, ErrUnknownQuery)
	assert.Contains(t, err.Error(), `"dropEverything"`)
}

func TestNamedQueries(t *testing.T) {
	assert.Equal(t, []string{
		"deleteOldTelemetry",
		"refreshFloodWarningsMview",
		"refreshStationMviews",
		"updateStationTa8km",
	}, NamedQueries())

	for _, name := range NamedQueries() {
		queries, err := Named(name)
		require.NoError(t, err)
		for _, q := range queries {
			assert.NoError(t, q.Validate(), name)
		}
	}
}
