package db

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownQuery is returned for statements that are not registered.
var ErrUnknownQuery = errors.New("unknown query")

// ErrNoRows is returned when a multi-row insert is requested with no rows.
var ErrNoRows = errors.New("no rows to insert")

// Kind identifies a registered statement.
type Kind int

const (
	KindUnknown Kind = iota
	KindUpsertTelemetryStation
	KindInsertValueParent
	KindInsertValues
	KindDeleteOldTelemetry
	KindDeleteStations
	KindInsertStations
	KindRefreshView
	KindStationLoadTimestamp
	KindUpdateTimestamp
	KindUpdateStationTa8km
	KindSelectRloiIDs
	KindDeleteThresholds
	KindInsertThresholds
	KindDeleteDisplaySeries
	KindInsertDisplaySeries
	KindUpsertFfoiMax
	KindDeleteCurrentFwis
	KindInsertFloodWarnings
)

var kindNames = map[Kind]string{
	KindUpsertTelemetryStation: "slsTelemetryStation",
	KindInsertValueParent:      "slsTelemetryValueParent",
	KindInsertValues:           "slsTelemetryValues",
	KindDeleteOldTelemetry:     "deleteOldTelemetry",
	KindDeleteStations:         "deleteStations",
	KindInsertStations:         "insertStations",
	KindRefreshView:            "refreshView",
	KindStationLoadTimestamp:   "stationLoadTimestamp",
	KindUpdateTimestamp:        "updateTimestamp",
	KindUpdateStationTa8km:     "updateStationTa8km",
	KindSelectRloiIDs:          "selectRloiIds",
	KindDeleteThresholds:       "deleteThresholds",
	KindInsertThresholds:       "insertThresholds",
	KindDeleteDisplaySeries:    "deleteDisplayTimeSeries",
	KindInsertDisplaySeries:    "insertDisplayTimeSeries",
	KindUpsertFfoiMax:          "upsertFfoiMax",
	KindDeleteCurrentFwis:      "deleteCurrentFwis",
	KindInsertFloodWarnings:    "insertFloodWarnings",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Query is a statement ready to execute with positional arguments.
type Query struct {
	Kind Kind
	Text string
	Args []any
}

// Validate reports ErrUnknownQuery for zero or unregistered queries.
func (q Query) Validate() error {
	if _, ok := kindNames[q.Kind]; !ok || strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: %s", ErrUnknownQuery, q.Kind)
	}
	return nil
}

// Row is one row of a programmatically built insert, keyed by column.
type Row map[string]any

// InsertRows builds a single multi-row insert. Columns are the sorted keys
// of the first row; a key missing from a later row is bound as NULL.
func InsertRows(kind Kind, table string, rows []Row) (Query, error) {
	if len(rows) == 0 {
		return Query{}, fmt.Errorf("%s: %w", table, ErrNoRows)
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "insert into %s (%s) values ", quoteIdent(table), strings.Join(quoted, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, row[col])
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}

	return Query{Kind: kind, Text: b.String(), Args: args}, nil
}

// quoteIdent double-quotes each dot separated part of an identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
