package db

import (
	"fmt"
	"time"
)

// RetentionWindow is how long telemetry parent rows are kept after import.
const RetentionWindow = 5 * 24 * time.Hour

// StationBatchSize is the number of telemetry_context rows per insert.
const StationBatchSize = 500

// StationViews are refreshed after the station snapshot or telemetry changes.
var StationViews = []string{
	"u_flood.telemetry_context_mview",
	"u_flood.station_split_mview",
	"u_flood.stations_overview_mview",
	"u_flood.impact_mview",
	"u_flood.rivers_mview",
	"u_flood.rainfall_stations_mview",
	"u_flood.stations_list_mview",
}

// FloodWarningsView is refreshed after the FWIS warnings are replaced.
const FloodWarningsView = "u_flood.fwa_mview"

const (
	upsertTelemetryStationSQL = `INSERT INTO u_flood.sls_telemetry_station (station_reference, region, station_name, ngr, easting, northing)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT ON CONSTRAINT unique_station DO UPDATE SET station_name = EXCLUDED.station_name,
                                                      ngr          = EXCLUDED.ngr,
                                                      easting      = EXCLUDED.easting,
                                                      northing     = EXCLUDED.northing`

	insertValueParentSQL = `INSERT INTO sls_telemetry_value_parent(filename, imported, rloi_id, station, region, start_timestamp,
                                       end_timestamp, parameter, qualifier, units, post_process, subtract,
                                       por_max_value, station_type, percentile_5, data_type, period)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING telemetry_value_parent_id`

	deleteOldTelemetrySQL = `DELETE FROM u_flood.sls_telemetry_value_parent WHERE imported < $1`

	deleteStationsSQL = `TRUNCATE TABLE u_flood.telemetry_context`

	stationLoadTimestampSQL = `INSERT INTO u_flood.current_load_timestamp VALUES (2, $1) ON CONFLICT (id) DO UPDATE SET load_timestamp = $1`

	updateTimestampSQL = `UPDATE u_flood.current_load_timestamp SET load_timestamp = $1 WHERE id = 1`

	updateStationTa8kmSQL = `SELECT u_flood.station_ta_8km_update()`

	selectRloiIDsSQL = `SELECT DISTINCT rloi_id FROM rivers_mview WHERE rloi_id IS NOT NULL ORDER BY rloi_id ASC`

	deleteThresholdsSQL = `DELETE FROM station_imtd_threshold WHERE station_id = $1`

	deleteDisplaySeriesSQL = `DELETE FROM station_display_time_series WHERE station_id = $1`

	upsertFfoiMaxSQL = `INSERT INTO u_flood.ffoi_max (telemetry_id, value, value_date, filename, updated_date)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (telemetry_id) DO UPDATE SET value = $2, value_date = $3, filename = $4, updated_date = $5`

	deleteCurrentFwisSQL = `DELETE FROM u_flood.fwis`
)

// StationRow is a telemetry station upserted for rainfall gauges that have no
// station descriptor. Easting/Northing are nil when no grid reference exists.
type StationRow struct {
	Reference string
	Region    string
	Name      string
	NGR       string
	Easting   *int
	Northing  *int
}

// UpsertTelemetryStation inserts or refreshes a telemetry station, keyed on
// the (station_reference, region) unique constraint.
func UpsertTelemetryStation(row StationRow) Query {
	var ngr any
	if row.NGR != "" {
		ngr = row.NGR
	}
	return Query{
		Kind: KindUpsertTelemetryStation,
		Text: upsertTelemetryStationSQL,
		Args: []any{row.Reference, row.Region, row.Name, ngr, row.Easting, row.Northing},
	}
}

// ParentRow is the header of one imported value-set. Field order matches the
// insert column order.
type ParentRow struct {
	Filename       string
	Imported       time.Time
	RloiID         *int64
	Station        string
	Region         string
	StartTimestamp *time.Time
	EndTimestamp   *time.Time
	Parameter      string
	Qualifier      string
	Units          string
	PostProcess    bool
	Subtract       float64
	PORMaxValue    float64
	StationType    string
	Percentile5    float64
	DataType       string
	Period         string
}

// Args returns the 17 positional values in column order.
func (p ParentRow) Args() []any {
	return []any{
		p.Filename,
		p.Imported,
		p.RloiID,
		p.Station,
		p.Region,
		p.StartTimestamp,
		p.EndTimestamp,
		p.Parameter,
		p.Qualifier,
		p.Units,
		p.PostProcess,
		p.Subtract,
		p.PORMaxValue,
		p.StationType,
		p.Percentile5,
		p.DataType,
		p.Period,
	}
}

// InsertValueParent inserts a parent row returning telemetry_value_parent_id.
func InsertValueParent(row ParentRow) Query {
	return Query{Kind: KindInsertValueParent, Text: insertValueParentSQL, Args: row.Args()}
}

// ValueRow is one reading of a value-set. ProcessedValue is nil exactly when
// Error is true.
type ValueRow struct {
	ParentID       int64
	Value          float64
	ProcessedValue *float64
	Timestamp      *time.Time
	Error          bool
}

// InsertValues builds one multi-row insert for all rows of a value-set.
func InsertValues(rows []ValueRow) (Query, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			"telemetry_value_parent_id": r.ParentID,
			"value":                     r.Value,
			"processed_value":           r.ProcessedValue,
			"value_timestamp":           r.Timestamp,
			"error":                     r.Error,
		}
	}
	return InsertRows(KindInsertValues, "sls_telemetry_value", out)
}

// DeleteOldTelemetry removes parent rows (and cascaded values) imported
// before now minus RetentionWindow.
func DeleteOldTelemetry(now time.Time) Query {
	return Query{
		Kind: KindDeleteOldTelemetry,
		Text: deleteOldTelemetrySQL,
		Args: []any{now.UTC().Add(-RetentionWindow)},
	}
}

// DeleteStations truncates the station snapshot table.
func DeleteStations() Query {
	return Query{Kind: KindDeleteStations, Text: deleteStationsSQL}
}

// InsertStations splits the snapshot rows into inserts of StationBatchSize.
func InsertStations(rows []Row) ([]Query, error) {
	var queries []Query
	for start := 0; start < len(rows); start += StationBatchSize {
		end := min(start+StationBatchSize, len(rows))
		q, err := InsertRows(KindInsertStations, "u_flood.telemetry_context", rows[start:end])
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

// RefreshView refreshes one materialized view concurrently.
func RefreshView(view string) Query {
	return Query{
		Kind: KindRefreshView,
		Text: fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s WITH DATA", view),
	}
}

// RefreshStationViews returns one refresh per station view, in order.
func RefreshStationViews() []Query {
	queries := make([]Query, len(StationViews))
	for i, v := range StationViews {
		queries[i] = RefreshView(v)
	}
	return queries
}

// RefreshFloodWarningsView refreshes the flood warning area view. It is not
// concurrent because the FWIS load runs inside a transaction.
func RefreshFloodWarningsView() Query {
	return Query{
		Kind: KindRefreshView,
		Text: fmt.Sprintf("REFRESH MATERIALIZED VIEW %s WITH DATA", FloodWarningsView),
	}
}

// StationLoadTimestamp records when the station snapshot was loaded.
func StationLoadTimestamp(ts int64) Query {
	return Query{Kind: KindStationLoadTimestamp, Text: stationLoadTimestampSQL, Args: []any{ts}}
}

// UpdateTimestamp records when the flood warnings were loaded.
func UpdateTimestamp(ts int64) Query {
	return Query{Kind: KindUpdateTimestamp, Text: updateTimestampSQL, Args: []any{ts}}
}

// UpdateStationTa8km recalculates the stations within 8km of target areas.
func UpdateStationTa8km() Query {
	return Query{Kind: KindUpdateStationTa8km, Text: updateStationTa8kmSQL}
}

// Page bounds a distinct id projection. A zero Limit means no paging.
type Page struct {
	Offset int
	Limit  int
}

// SelectRloiIDs lists distinct, non-null RLOI ids in ascending order.
func SelectRloiIDs(page Page) Query {
	if page.Limit <= 0 {
		return Query{Kind: KindSelectRloiIDs, Text: selectRloiIDsSQL}
	}
	return Query{
		Kind: KindSelectRloiIDs,
		Text: selectRloiIDsSQL + " LIMIT $1 OFFSET $2",
		Args: []any{page.Limit, max(page.Offset, 0)},
	}
}

// ThresholdRow is one station_imtd_threshold row.
type ThresholdRow struct {
	StationID int64
	FwisCode  string
	FwisType  string
	Direction string
	Value     float64
}

// DeleteThresholds removes every threshold row of a station.
func DeleteThresholds(stationID int64) Query {
	return Query{Kind: KindDeleteThresholds, Text: deleteThresholdsSQL, Args: []any{stationID}}
}

// InsertThresholds inserts all thresholds of a station in one statement.
func InsertThresholds(rows []ThresholdRow) (Query, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			"station_id": r.StationID,
			"fwis_code":  r.FwisCode,
			"fwis_type":  r.FwisType,
			"direction":  r.Direction,
			"value":      r.Value,
		}
	}
	return InsertRows(KindInsertThresholds, "station_imtd_threshold", out)
}

// DisplaySeriesRow is one station_display_time_series row.
type DisplaySeriesRow struct {
	StationID         int64
	Direction         string
	DisplayTimeSeries bool
}

// DeleteDisplaySeries removes every display series row of a station.
func DeleteDisplaySeries(stationID int64) Query {
	return Query{Kind: KindDeleteDisplaySeries, Text: deleteDisplaySeriesSQL, Args: []any{stationID}}
}

// InsertDisplaySeries inserts the display series rows of a station.
func InsertDisplaySeries(rows []DisplaySeriesRow) (Query, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			"station_id":          r.StationID,
			"direction":           r.Direction,
			"display_time_series": r.DisplayTimeSeries,
		}
	}
	return InsertRows(KindInsertDisplaySeries, "station_display_time_series", out)
}

// FfoiMaxRow is the forecast maximum of one telemetry station.
type FfoiMaxRow struct {
	TelemetryID string
	Value       float64
	ValueDate   time.Time
	Filename    string
	UpdatedDate time.Time
}

// UpsertFfoiMax stores the latest forecast maximum for a station.
func UpsertFfoiMax(row FfoiMaxRow) Query {
	return Query{
		Kind: KindUpsertFfoiMax,
		Text: upsertFfoiMaxSQL,
		Args: []any{row.TelemetryID, row.Value, row.ValueDate, row.Filename, row.UpdatedDate},
	}
}

// DeleteCurrentFwis removes all current flood warnings.
func DeleteCurrentFwis() Query {
	return Query{Kind: KindDeleteCurrentFwis, Text: deleteCurrentFwisSQL}
}

// InsertFloodWarnings inserts the current flood warnings.
func InsertFloodWarnings(rows []Row) (Query, error) {
	return InsertRows(KindInsertFloodWarnings, "u_flood.fwis", rows)
}
