package imtd

import (
	"errors"
	"fmt"
	"slices"

	"floodsync/internal/db"
)

// IncludedThresholdTypes are the flood warning and alert thresholds stored.
var IncludedThresholdTypes = []string{
	"FW ACT FW",
	"FW ACTCON FW",
	"FW RES FW",
	"FW ACT FAL",
	"FW ACTCON FAL",
	"FW RES FAL",
}

const (
	parameterFlow       = "Flow"
	qualifierDownstream = "Downstream Stage"

	// warningTypeIndex is the position of the warning type letter in a flood
	// warning area code, e.g. the "W" of 065FWF5001.
	warningTypeIndex = 4
)

// Direction is "d" for downstream stage series and "u" otherwise.
func Direction(qualifier string) string {
	if qualifier == qualifierDownstream {
		return "d"
	}
	return "u"
}

// ParseThresholds keeps the included thresholds of every non-Flow series.
// Thresholds without a usable flood warning area code are dropped.
func ParseThresholds(stationID int64, series []TimeSeries) []db.ThresholdRow {
	var rows []db.ThresholdRow
	for _, ts := range series {
		if ts.Parameter == parameterFlow {
			continue
		}
		direction := Direction(ts.Qualifier)
		for _, th := range ts.Thresholds {
			if !slices.Contains(IncludedThresholdTypes, th.ThresholdType) {
				continue
			}
			if th.FloodWarningArea == nil || len(*th.FloodWarningArea) <= warningTypeIndex {
				continue
			}
			area := *th.FloodWarningArea
			rows = append(rows, db.ThresholdRow{
				StationID: stationID,
				FwisCode:  area,
				FwisType:  area[warningTypeIndex : warningTypeIndex+1],
				Direction: direction,
				Value:     th.Level,
			})
		}
	}
	return rows
}

// ParseDisplaySeries returns one row per direction, keeping the first
// series seen for each.
func ParseDisplaySeries(stationID int64, series []TimeSeries) []db.DisplaySeriesRow {
	var rows []db.DisplaySeriesRow
	seen := map[string]bool{}
	for _, ts := range series {
		direction := Direction(ts.Qualifier)
		if seen[direction] {
			continue
		}
		seen[direction] = true
		row := db.DisplaySeriesRow{StationID: stationID, Direction: direction}
		if ts.DisplayTimeSeries != nil {
			row.DisplayTimeSeries = *ts.DisplayTimeSeries
		}
		rows = append(rows, row)
	}
	return rows
}

var errInvalidSeries = errors.New("validation error")

// ValidateDisplaySeries checks every row has a station and direction, and
// that the API supplied the display flag.
func ValidateDisplaySeries(rows []db.DisplaySeriesRow, series []TimeSeries) error {
	for _, ts := range series {
		if ts.DisplayTimeSeries == nil {
			return fmt.Errorf("%w: \"display_time_series\" is required", errInvalidSeries)
		}
	}
	for _, r := range rows {
		if r.StationID <= 0 {
			return fmt.Errorf("%w: \"station_id\" must be positive", errInvalidSeries)
		}
		if r.Direction == "" {
			return fmt.Errorf("%w: \"direction\" is not allowed to be empty", errInvalidSeries)
		}
	}
	return nil
}
