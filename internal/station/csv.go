// Package station loads the telemetry station snapshot (a CSV export of
// the station context) into the database and publishes one descriptor
// per station for the telemetry pipeline.
package station

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"floodsync/internal/db"
)

// Record is one CSV row keyed by header name.
type Record map[string]string

// ParseCSV reads a CSV document with a header line. Short rows leave the
// missing columns empty.
func ParseCSV(data []byte) ([]Record, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = fields[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

var (
	textColumns = map[string]string{
		"telemetry_id":       "Telemetry_ID",
		"wiski_id":           "WISKI_ID",
		"station_type":       "Station_Type",
		"post_process":       "Post_Process",
		"region":             "Region",
		"area":               "Area",
		"catchment":          "Catchment",
		"display_region":     "Display_Region",
		"display_area":       "Display_Area",
		"display_catchment":  "Display_Catchment",
		"agency_name":        "Agency_Name",
		"external_name":      "External_Name",
		"location_info":      "Location_Info",
		"actual_ngr":         "Actual_NGR",
		"comments":           "Comments",
		"d_comments":         "D_Comments",
		"d_period_of_record": "D_Period_of_Record",
		"status":             "Status",
		"status_reason":      "Status_Reason",
		"period_of_record":   "Period_of_Record",
		"wiski_river_name":   "Wiski_River_Name",
	}
	intColumns = map[string]string{
		"rloi_id":         "RLOI_ID",
		"x_coord_actual":  "X_coord_Actual",
		"y_coord_actual":  "Y_Coord_Actual",
		"x_coord_display": "X_coord_Display",
		"y_coord_display": "Y_coord_Display",
	}
	floatColumns = map[string]string{
		"subtract":        "Subtract",
		"site_max":        "Site_Max",
		"stage_datum":     "Stage_Datum",
		"por_max_value":   "POR_Max_Value",
		"highest_level":   "Highest_Level",
		"por_min_value":   "POR_Min_Value",
		"percentile_5":    "percentile_5",
		"percentile_95":   "percentile_95",
		"d_stage_datum":   "D_Stage_Datum",
		"d_por_max_value": "D_POR_Max_Value",
		"d_highest_level": "D_Highest_Level",
		"d_percentile_5":  "D_percentile_5",
		"d_percentile_95": "D_percentile_95",
		"d_por_min_value": "D_POR_Min_Value",
	}
	dateColumns = map[string]string{
		"d_date_por_min":       "D_Date_POR_Min",
		"d_date_por_max":       "D_Date_POR_Max",
		"d_date_highest_level": "D_Date_Highest_Level",
		"date_open":            "Date_Open",
		"date_por_min":         "Date_POR_Min",
		"date_por_max":         "Date_POR_Max",
		"date_highest_level":   "Date_Highest_Level",
		"status_date":          "Status_Date",
	}
)

// ColumnCount is the number of telemetry_context columns written per row.
var ColumnCount = len(textColumns) + len(intColumns) + len(floatColumns) + len(dateColumns)

// ToRow maps a CSV record to a telemetry_context row. Empty or unparsable
// numbers and dates become NULL; text columns keep the raw value and are
// NULL when the header is missing.
func ToRow(rec Record) db.Row {
	row := make(db.Row, ColumnCount)
	for col, field := range textColumns {
		if v, ok := rec[field]; ok {
			row[col] = v
		} else {
			row[col] = nil
		}
	}
	for col, field := range intColumns {
		row[col] = parseIntNull(rec[field])
	}
	for col, field := range floatColumns {
		row[col] = parseFloatNull(rec[field])
	}
	for col, field := range dateColumns {
		row[col] = parseDateNull(rec[field])
	}
	return row
}

// ToRows maps every record.
func ToRows(records []Record) []db.Row {
	rows := make([]db.Row, len(records))
	for i, rec := range records {
		rows[i] = ToRow(rec)
	}
	return rows
}

// parseIntNull parses the leading integer of s, so "1234.0" and "12 m"
// both parse.
func parseIntNull(s string) any {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return nil
	}
	return n
}

func parseFloatNull(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

var dateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateNull reads the dates of the export, which are UK day-first
// dates in UTC, and returns them as UTC times.
func parseDateNull(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return nil
}
