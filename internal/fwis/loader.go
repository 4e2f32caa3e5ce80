package fwis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"floodsync/internal/db"
	"floodsync/internal/logging"
)

// Source returns the current warnings.
type Source interface {
	Warnings(ctx context.Context) ([]Warning, error)
}

// ToRow maps a warning to a u_flood.fwis row. Timestamps that do not
// parse are stored as NULL.
func ToRow(w Warning) db.Row {
	a := w.Attr
	return db.Row{
		"situation":         strings.TrimSpace(w.Situation),
		"ta_id":             a.TaID,
		"ta_code":           a.TaCode,
		"ta_name":           a.TaName,
		"ta_description":    a.TaDescription,
		"quick_dial":        a.QuickDial,
		"ta_version":        a.Version,
		"ta_category":       a.TaCategory,
		"owner_area":        a.OwnerArea,
		"ta_created_date":   parseTime(a.CreatedOn),
		"ta_modified_date":  parseTime(a.LastModifiedDate),
		"situation_changed": parseTime(a.SituationChanged),
		"severity_changed":  parseTime(a.SeverityChanged),
		"message_received":  parseTime(a.TimeMessageReceived),
		"severity_value":    a.SeverityValue,
		"severity":          a.Severity,
	}
}

func parseTime(s string) any {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return t.UTC()
}

// Loader replaces the current warnings.
type Loader struct {
	gw  db.Gateway
	src Source
	log *zap.Logger
	now func() time.Time
}

// NewLoader returns a Loader. A nil logger discards output.
func NewLoader(gw db.Gateway, src Source, log *zap.Logger) *Loader {
	return &Loader{gw: gw, src: src, log: logging.OrNop(log), now: time.Now}
}

// Run fetches the warnings and saves them. It returns the number saved.
func (l *Loader) Run(ctx context.Context) (int, error) {
	warnings, err := l.src.Warnings(ctx)
	if err != nil {
		return 0, err
	}
	ts := l.now().Unix()
	if err := l.Save(ctx, warnings, ts); err != nil {
		return 0, err
	}
	l.log.Info("flood warnings saved", zap.Int("warnings", len(warnings)), zap.Int64("timestamp", ts))
	return len(warnings), nil
}

// Save deletes the current warnings, inserts warnings, refreshes the
// warning area view and records ts (seconds since epoch), all in one
// transaction.
func (l *Loader) Save(ctx context.Context, warnings []Warning, ts int64) error {
	queries := []db.Query{db.DeleteCurrentFwis()}
	if len(warnings) > 0 {
		rows := make([]db.Row, len(warnings))
		for i, w := range warnings {
			rows[i] = ToRow(w)
		}
		insert, err := db.InsertFloodWarnings(rows)
		if err != nil {
			return err
		}
		queries = append(queries, insert)
	}
	queries = append(queries, db.RefreshFloodWarningsView(), db.UpdateTimestamp(ts))

	if err := l.gw.WithTx(ctx, func(tx db.Executor) error {
		return db.Sequence(ctx, tx, queries)
	}); err != nil {
		return fmt.Errorf("save flood warnings: %w", err)
	}
	return nil
}
