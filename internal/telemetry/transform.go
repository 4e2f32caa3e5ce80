package telemetry

import (
	"math"
	"strconv"
	"strings"
	"time"

	"floodsync/internal/db"
	"floodsync/internal/feed"
	"floodsync/internal/gridref"
)

const (
	ParameterWaterLevel = "Water Level"
	ParameterRainfall   = "Rainfall"
)

// ImportedParameters are always imported, descriptor or not. Water Level is
// only imported for stations with a descriptor.
var ImportedParameters = []string{ParameterRainfall}

// Regions maps telemetry file region names onto the region names used by
// the station descriptors.
var Regions = map[string]string{
	"Yorkshire":              "North East",
	"Northumbria":            "North East",
	"Welsh":                  "EA Wales",
	"Wales":                  "EA Wales",
	"Devon and Cornwall":     "South West",
	"Wessex":                 "South West",
	"Kent and South London":  "Southern",
	"Solent and South Downs": "Southern",
}

// RainfallPostfixes are equipment suffixes removed from rain gauge names.
var RainfallPostfixes = []string{
	"Raingauge",
	"Rain Gauge",
	"Raingauge TBR",
	"TBR",
	"RG",
}

const processedDecimals = 3

// NormalizeRegion maps a feed region through Regions.
func NormalizeRegion(region string) string {
	if mapped, ok := Regions[region]; ok {
		return mapped
	}
	return region
}

// RemovePostfix trims trailing whitespace and then strips one trailing
// " <postfix>" when the name ends with one.
func RemovePostfix(name string) string {
	name = strings.TrimRight(name, " \t\r\n")
	for _, p := range RainfallPostfixes {
		if suffix := " " + p; strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// Imported reports whether a value-set with parameter should be stored.
func Imported(parameter string, found bool) bool {
	for _, p := range ImportedParameters {
		if p == parameter {
			return true
		}
	}
	return found && parameter == ParameterWaterLevel
}

// BuildStationRow derives the telemetry station upserted for stations with
// no descriptor. region is the normalized region.
func BuildStationRow(st feed.Station, region string) db.StationRow {
	row := db.StationRow{
		Reference: st.Reference,
		Region:    region,
		Name:      RemovePostfix(st.Name),
		NGR:       st.NGR,
	}
	if st.NGR != "" {
		if p, err := gridref.ToBNG(st.NGR); err == nil {
			e, n := p.Easting, p.Northing
			row.Easting, row.Northing = &e, &n
		}
	}
	return row
}

// BuildParentRow derives the parent record of one value-set.
func BuildParentRow(key string, imported time.Time, ref Reference, st feed.Station, vs feed.ValueSet) db.ParentRow {
	return db.ParentRow{
		Filename:       key,
		Imported:       imported,
		RloiID:         ref.RloiID(),
		Station:        st.Reference,
		Region:         ref.Region(),
		StartTimestamp: ParseTimestamp(vs.StartDate, vs.StartTime),
		EndTimestamp:   ParseTimestamp(vs.EndDate, vs.EndTime),
		Parameter:      vs.Parameter,
		Qualifier:      vs.Qualifier,
		Units:          vs.Units,
		PostProcess:    ref.PostProcess(),
		Subtract:       ref.Subtract(),
		PORMaxValue:    ref.PORMax(),
		StationType:    ref.StationType(),
		Percentile5:    ref.Percentile5(),
		DataType:       vs.DataType,
		Period:         vs.Period,
	}
}

// BuildValueRow derives one value record. Water Level readings are offset
// when the reference enables post-processing and configures Subtract. A
// non-finite processed value is stored as NULL with error set.
func BuildValueRow(parentID int64, r feed.Reading, parameter string, ref Reference) db.ValueRow {
	value := parseFloat(r.Value)
	processed := value

	if parameter == ParameterWaterLevel && ref.PostProcess() && ref.HasOffset() {
		processed = Round3(value - ref.Subtract())
	}

	row := db.ValueRow{
		ParentID:  parentID,
		Value:     value,
		Timestamp: ParseTimestamp(r.Date, r.Time),
	}
	if math.IsNaN(processed) || math.IsInf(processed, 0) {
		row.Error = true
	} else {
		row.ProcessedValue = &processed
	}
	return row
}

// BuildValueRows maps the readings in order.
func BuildValueRows(parentID int64, vs feed.ValueSet, ref Reference) []db.ValueRow {
	rows := make([]db.ValueRow, 0, len(vs.Readings))
	for _, r := range vs.Readings {
		rows = append(rows, BuildValueRow(parentID, r, vs.Parameter, ref))
	}
	return rows
}

// Round3 rounds the exact binary value of v to 3 decimal places, so 1.0005,
// stored just below the half, becomes 1.000.
func Round3(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', processedDecimals, 64), 64)
	if err != nil {
		return math.NaN()
	}
	return r
}

var timeLayouts = []string{"15:04:05", "15:04:05.000", "15:04"}

// ParseTimestamp combines a date and time as UTC. It returns nil when either
// part is missing or invalid.
func ParseTimestamp(date, clock string) *time.Time {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation("2006-01-02T"+layout, date+"T"+clock, time.UTC)
		if err == nil {
			return &t
		}
	}
	return nil
}
