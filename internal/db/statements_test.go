package db

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertValueParentArgOrder(t *testing.T) {
	imported := time.Date(2018, 6, 29, 11, 15, 0, 0, time.UTC)
	id := int64(5075)
	row := ParentRow{
		Filename:    "fwfidata/rloi/test.xml",
		Imported:    imported,
		RloiID:      &id,
		Station:     "test1",
		Region:      "North West",
		Parameter:   "Water Level",
		Qualifier:   "Stage",
		Units:       "m",
		PostProcess: true,
		Subtract:    1.5,
		PORMaxValue: 3.2,
		StationType: "S",
		Percentile5: 2.1,
		DataType:    "Instantaneous",
		Period:      "15 min",
	}
	q := InsertValueParent(row)

	require.Len(t, q.Args, 17)
	assert.Equal(t, "fwfidata/rloi/test.xml", q.Args[0])
	assert.Equal(t, imported, q.Args[1])
	assert.Equal(t, &id, q.Args[2])
	assert.Equal(t, "Water Level", q.Args[7])
	assert.Equal(t, true, q.Args[10])
	assert.Equal(t, 1.5, q.Args[11])
	assert.Equal(t, "15 min", q.Args[16])
	assert.Contains(t, q.Text, "RETURNING telemetry_value_parent_id")
	assert.NoError(t, q.Validate())
}

func TestUpsertTelemetryStationEmptyNGR(t *testing.T) {
	q := UpsertTelemetryStation(StationRow{Reference: "rain1", Region: "EA Wales", Name: "Llyn"})
	require.Len(t, q.Args, 6)
	assert.Nil(t, q.Args[3])
	assert.Nil(t, q.Args[4].(*int))
	assert.Contains(t, q.Text, "ON CONFLICT ON CONSTRAINT unique_station")
}

func TestDeleteOldTelemetryCutoff(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	q := DeleteOldTelemetry(now)
	require.Len(t, q.Args, 1)
	assert.Equal(t, time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), q.Args[0])
}

func TestInsertStationsBatches(t *testing.T) {
	rows := make([]Row, 1201)
	for i := range rows {
		rows[i] = Row{"rloi_id": i}
	}
	queries, err := InsertStations(rows)
	require.NoError(t, err)
	require.Len(t, queries, 3)
	assert.Len(t, queries[0].Args, 500)
	assert.Len(t, queries[1].Args, 500)
	assert.Len(t, queries[2].Args, 201)
	assert.Equal(t, 1200, queries[2].Args[200])

	queries, err = InsertStations(nil)
	require.NoError(t, err)
	assert.Empty(t, queries)
}

func TestRefreshStationViews(t *testing.T) {
	queries := RefreshStationViews()
	require.Len(t, queries, len(StationViews))
	for i, q := range queries {
		assert.Equal(t, fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s WITH DATA", StationViews[i]), q.Text)
	}
	assert.NotContains(t, RefreshFloodWarningsView().Text, "CONCURRENTLY")
}

func TestSelectRloiIDsPaging(t *testing.T) {
	q := SelectRloiIDs(Page{})
	assert.Empty(t, q.Args)
	assert.False(t, strings.Contains(q.Text, "LIMIT"))

	q = SelectRloiIDs(Page{Offset: 500, Limit: 500})
	assert.True(t, strings.HasSuffix(q.Text, "LIMIT $1 OFFSET $2"))
	assert.Equal(t, []any{500, 500}, q.Args)
}

func TestInsertThresholds(t *testing.T) {
	q, err := InsertThresholds([]ThresholdRow{
		{StationID: 1001, FwisCode: "065WAF423", FwisType: "A", Direction: "u", Value: 33.4},
		{StationID: 1001, FwisCode: "065FWF5001", FwisType: "W", Direction: "d", Value: 34.4},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`insert into "station_imtd_threshold" ("direction", "fwis_code", "fwis_type", "station_id", "value") values ($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)`,
		q.Text)
	assert.Equal(t, []any{
		"u", "065WAF423", "A", int64(1001), 33.4,
		"d", "065FWF5001", "W", int64(1001), 34.4,
	}, q.Args)
}

func TestInsertDisplaySeries(t *testing.T) {
	q, err := InsertDisplaySeries([]DisplaySeriesRow{{StationID: 1, Direction: "d", DisplayTimeSeries: true}})
	require.NoError(t, err)
	assert.Equal(t, []any{"d", true, int64(1)}, q.Args)
}
