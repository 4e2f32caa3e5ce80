package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"floodsync/internal/feed"
	"floodsync/internal/logging"
	"floodsync/internal/notify"
	"floodsync/internal/storage"
	"floodsync/internal/tracker"
)

// Pipeline is the name of the telemetry import in the tracker and alerts.
const Pipeline = "rloi"

// ImportTracker records which feed files were loaded.
type ImportTracker interface {
	Start(ctx context.Context, key, pipeline string) (*tracker.ImportRecord, error)
	Finish(ctx context.Context, rec *tracker.ImportRecord) error
}

// Alerter is told about runs with failed value-sets.
type Alerter interface {
	Failures(ctx context.Context, run notify.RunSummary) error
}

// Importer reads a feed file, processes it once and reports the outcome.
type Importer struct {
	store   storage.Getter
	proc    *Processor
	tracker ImportTracker
	alerts  Alerter
	log     *zap.Logger
}

// NewImporter returns an Importer. tracker and alerts may be nil.
func NewImporter(store storage.Getter, proc *Processor, tr ImportTracker, alerts Alerter, log *zap.Logger) *Importer {
	return &Importer{store: store, proc: proc, tracker: tr, alerts: alerts, log: logging.OrNop(log)}
}

// Import loads bucket/key. A file that was already imported is skipped
// without error. A tracker failure is logged and the file imported anyway. Value-set failures are reported through the Alerter and
// the returned summary, not as an error.
func (im *Importer) Import(ctx context.Context, bucket, key string) (Summary, error) {
	log := im.log.With(zap.String("bucket", bucket), zap.String("key", key))

	var rec *tracker.ImportRecord
	if im.tracker != nil {
		var err error
		rec, err = im.tracker.Start(ctx, key, Pipeline)
		if errors.Is(err, tracker.ErrAlreadyImported) {
			log.Info("file already imported, skipping")
			return Summary{}, nil
		}
		if err != nil {
			log.Warn("could not record import start, importing untracked", zap.Error(err))
			rec = nil
		}
	}

	sum, err := im.load(ctx, bucket, key)
	im.finish(ctx, log, rec, sum, err)
	if err != nil {
		return sum, err
	}

	if im.alerts != nil {
		run := notify.RunSummary{Pipeline: Pipeline, Source: key, Total: sum.Total, Failed: sum.Failed, Err: sum.Err()}
		if err := im.alerts.Failures(ctx, run); err != nil {
			log.Warn("failed to publish alert", zap.Error(err))
		}
	}
	return sum, nil
}

func (im *Importer) load(ctx context.Context, bucket, key string) (Summary, error) {
	data, err := im.store.Get(ctx, bucket, key)
	if err != nil {
		return Summary{}, fmt.Errorf("read feed: %w", err)
	}
	doc, err := feed.Parse(data)
	if err != nil {
		return Summary{}, err
	}
	return im.proc.Process(ctx, doc, key)
}

func (im *Importer) finish(ctx context.Context, log *zap.Logger, rec *tracker.ImportRecord, sum Summary, err error) {
	if rec == nil {
		return
	}
	rec.Status = tracker.StatusCompleted
	rec.Total, rec.Processed, rec.Skipped, rec.Failed, rec.Values = sum.Total, sum.Processed, sum.Skipped, sum.Failed, sum.Values
	switch {
	case err != nil:
		rec.Status = tracker.StatusFailed
		rec.Error = err.Error()
	case sum.Failed > 0:
		rec.Error = sum.Err().Error()
	}
	if ferr := im.tracker.Finish(ctx, rec); ferr != nil {
		log.Warn("failed to record import", zap.Error(ferr))
	}
}
