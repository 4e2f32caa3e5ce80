package db

import (
	"fmt"
	"sort"
	"time"
)

func single(q func() Query) func() []Query {
	return func() []Query { return []Query{q()} }
}

// named maps the maintenance statements that can be requested by name, for
// example from a scheduled event payload.
var named = map[string]func() []Query{
	"deleteOldTelemetry":        func() []Query { return []Query{DeleteOldTelemetry(time.Now())} },
	"refreshStationMviews":      RefreshStationViews,
	"refreshFloodWarningsMview": single(RefreshFloodWarningsView),
	"updateStationTa8km":        single(UpdateStationTa8km),
}

// Named resolves maintenance statements by name. Unknown names are
// ErrUnknownQuery.
func Named(name string) ([]Query, error) {
	build, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, name)
	}
	return build(), nil
}

// NamedQueries lists the registered names in order.
func NamedQueries() []string {
	names := make([]string, 0, len(named))
	for n := range named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
