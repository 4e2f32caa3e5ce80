package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floodsync/internal/db"
	"floodsync/internal/feed"
	"floodsync/internal/logging"
	"floodsync/internal/metrics"
)

// DefaultConcurrency is the number of value-sets processed at once.
const DefaultConcurrency = 3

// DescriptorFinder resolves station descriptors. found is false when the
// station has none.
type DescriptorFinder interface {
	Find(ctx context.Context, region, reference string) (desc Descriptor, found bool, err error)
}

// RunScoped is implemented by finders that cache. Process calls ForRun once
// per document and uses the returned finder for that document only.
type RunScoped interface {
	ForRun() DescriptorFinder
}

// Summary is the outcome of one feed import.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	Failed    int
	Values    int
	Errors    []error
}

// Err joins the per value-set errors; nil when none failed.
func (s Summary) Err() error { return errors.Join(s.Errors...) }

// Option configures a Processor.
type Option func(*Processor)

// WithConcurrency sets how many value-sets are in flight.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.log = logging.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithClock overrides the import timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor loads telemetry feed documents into the database.
type Processor struct {
	gw          db.Gateway
	finder      DescriptorFinder
	concurrency int
	log         *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewProcessor returns a Processor writing through gw.
func NewProcessor(gw db.Gateway, finder DescriptorFinder, opts ...Option) *Processor {
	p := &Processor{
		gw:          gw,
		finder:      finder,
		concurrency: DefaultConcurrency,
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type task struct {
	finder  DescriptorFinder
	station feed.Station
	region  string
	set     feed.ValueSet
}

type taskResult struct {
	outcome string
	values  int
	err     error
}

// Process imports every value-set of doc. key is the object key of the feed
// and is stored as the parent filename. A failing value-set is logged and
// counted in the summary; it never stops its siblings.
func (p *Processor) Process(ctx context.Context, doc *feed.Document, key string) (Summary, error) {
	if doc == nil {
		return Summary{}, feed.ErrEmptyDocument
	}

	total := doc.ValueSetCount()
	p.log.Info("values to process", zap.String("key", key), zap.Int("value_sets", total))
	if total == 0 {
		return Summary{}, nil
	}

	finder := p.finder
	if rs, ok := finder.(RunScoped); ok {
		finder = rs.ForRun()
	}

	results := make([]taskResult, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	i := 0
	for _, st := range doc.Stations {
		if len(st.ValueSets) == 0 {
			continue
		}
		region := NormalizeRegion(st.Region)
		for _, vs := range st.ValueSets {
			slot := &results[i]
			t := task{finder: finder, station: st, region: region, set: vs}
			i++
			g.Go(func() error {
				slot.outcome, slot.values, slot.err = p.run(gctx, key, t)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	s := Summary{Total: total}
	for _, r := range results {
		switch r.outcome {
		case metrics.OutcomeProcessed:
			s.Processed++
			s.Values += r.values
		case metrics.OutcomeSkipped:
			s.Skipped++
		case metrics.OutcomeFailed:
			s.Failed++
			s.Errors = append(s.Errors, r.err)
		}
	}

	p.log.Info("all values processed",
		zap.String("key", key),
		zap.Int("value_sets", s.Total),
		zap.Int("processed", s.Processed),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("values", s.Values),
	)
	return s, nil
}

func (p *Processor) run(ctx context.Context, key string, t task) (string, int, error) {
	n, err := p.processValueSet(ctx, key, t)
	outcome := metrics.OutcomeProcessed
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
		err = fmt.Errorf("station %s %s: %w", t.station.Reference, t.set.Parameter, err)
		p.log.Error("value-set failed",
			zap.String("station", t.station.Reference),
			zap.String("region", t.region),
			zap.String("parameter", t.set.Parameter),
			zap.String("qualifier", t.set.Qualifier),
			zap.Error(err),
		)
	case n == 0:
		outcome = metrics.OutcomeSkipped
	}
	p.metrics.ValueSet(outcome)
	p.metrics.Values(n)
	return outcome, n, err
}

// processValueSet returns the number of value rows inserted. Zero with a nil
// error means the value-set was skipped.
func (p *Processor) processValueSet(ctx context.Context, key string, t task) (int, error) {
	desc, found, err := t.finder.Find(ctx, t.region, t.station.Reference)
	if err != nil {
		return 0, err
	}
	if !Imported(t.set.Parameter, found) || len(t.set.Readings) == 0 {
		return 0, nil
	}

	ref := Found(desc)
	if !found {
		ref = Synthesized(t.region)
		row := BuildStationRow(t.station, t.region)
		if _, err := p.gw.Execute(ctx, db.UpsertTelemetryStation(row)); err != nil {
			return 0, err
		}
		p.log.Debug("telemetry station upserted",
			zap.String("station", row.Reference),
			zap.String("region", row.Region),
		)
	}

	parent := BuildParentRow(key, p.now().UTC(), ref, t.station, t.set)
	var inserted int
	err = p.gw.WithTx(ctx, func(tx db.Executor) error {
		res, err := tx.Execute(ctx, db.InsertValueParent(parent))
		if err != nil {
			return err
		}
		parentID, err := res.Int64("telemetry_value_parent_id")
		if err != nil {
			return fmt.Errorf("parent id: %w", err)
		}

		rows := BuildValueRows(parentID, t.set, ref)
		q, err := db.InsertValues(rows)
		if err != nil {
			return err
		}
		if _, err := tx.Execute(ctx, q); err != nil {
			return err
		}
		inserted = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.log.Debug("station values loaded",
		zap.Any("rloi_id", parent.RloiID),
		zap.String("station", t.station.Reference),
		zap.String("parameter", t.set.Parameter),
		zap.String("qualifier", t.set.Qualifier),
		zap.Int("values", inserted),
	)
	return inserted, nil
}
