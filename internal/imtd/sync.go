package imtd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floodsync/internal/db"
	"floodsync/internal/logging"
	"floodsync/internal/metrics"
)

// Pipeline names, used in logs and metrics.
const (
	PipelineThresholds    = "imtd"
	PipelineDisplaySeries = "dts"
)

const (
	DefaultBatchSize   = 500
	DefaultConcurrency = 16
)

// Fetcher returns the time series metadata of one station.
type Fetcher interface {
	TimeSeries(ctx context.Context, stationID int64) ([]TimeSeries, error)
}

// Continuer schedules another run starting at offset.
type Continuer interface {
	Continue(ctx context.Context, offset int) error
}

// Result summarises one page of stations.
type Result struct {
	Offset    int
	Stations  int
	Processed int
	NotFound  int
	Failed    int
	Errors    []error
	// Next is the offset handed to the Continuer, or -1 when the page was
	// not full.
	Next int
}

// Err joins the per-station errors.
func (r Result) Err() error { return errors.Join(r.Errors...) }

// Options configure a Sync.
type Options struct {
	BatchSize   int
	Concurrency int
	Continuer   Continuer
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

type stationFunc func(ctx context.Context, stationID int64) (string, error)

// Sync replaces per-station rows from the thresholds API for a page of
// RLOI ids taken from rivers_mview.
type Sync struct {
	name        string
	gw          db.Gateway
	api         Fetcher
	batchSize   int
	concurrency int
	cont        Continuer
	log         *zap.Logger
	metrics     *metrics.Metrics
	station     stationFunc
}

func newSync(name string, gw db.Gateway, api Fetcher, opts Options) *Sync {
	s := &Sync{
		name:        name,
		gw:          gw,
		api:         api,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		cont:        opts.Continuer,
		log:         logging.OrNop(opts.Logger).With(zap.String("pipeline", name)),
		metrics:     opts.Metrics,
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	// A page that cannot be continued would leave the remaining stations
	// unsynced, so without a Continuer every station is one page.
	if s.batchSize > 0 && s.cont == nil {
		s.log.Warn("no continuation configured, syncing all stations in one run", zap.Int("batch_size", s.batchSize))
		s.batchSize = 0
	}
	return s
}

// NewThresholdSync replaces station_imtd_threshold rows. A zero BatchSize,
// or a nil Continuer, processes every station in one run.
func NewThresholdSync(gw db.Gateway, api Fetcher, opts Options) *Sync {
	s := newSync(PipelineThresholds, gw, api, opts)
	s.station = s.syncThresholds
	return s
}

// NewDisplaySeriesSync replaces station_display_time_series rows.
func NewDisplaySeriesSync(gw db.Gateway, api Fetcher, opts Options) *Sync {
	s := newSync(PipelineDisplaySeries, gw, api, opts)
	s.station = s.syncDisplaySeries
	return s
}

// StationIDs lists distinct RLOI ids in ascending order.
func StationIDs(ctx context.Context, e db.Executor, page db.Page) ([]int64, error) {
	res, err := e.Execute(ctx, db.SelectRloiIDs(page))
	if err != nil {
		return nil, fmt.Errorf("could not get list of id's from database: %w", err)
	}
	ids := make([]int64, 0, len(res.Rows))
	for i := range res.Rows {
		id, err := res.Int64At(i, "rloi_id")
		if err != nil {
			return nil, fmt.Errorf("could not get list of id's from database: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Run processes the page starting at offset. Only a failure to list the
// station ids, or to schedule the next page, is returned as an error;
// station failures are logged and collected in the Result.
func (s *Sync) Run(ctx context.Context, offset int) (Result, error) {
	offset = max(offset, 0)
	res := Result{Offset: offset, Next: -1}

	s.log.Info("retrieving rloi ids", zap.Int("limit", s.batchSize), zap.Int("offset", offset))
	ids, err := StationIDs(ctx, s.gw, db.Page{Offset: offset, Limit: s.batchSize})
	if err != nil {
		return res, err
	}
	s.log.Info("retrieved rloi ids", zap.Int("count", len(ids)))
	res.Stations = len(ids)

	outcomes := make([]string, len(ids))
	errs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i], errs[i] = s.run(gctx, id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for i, outcome := range outcomes {
		switch outcome {
		case metrics.OutcomeProcessed:
			res.Processed++
		case metrics.OutcomeNotFound:
			res.NotFound++
		case metrics.OutcomeFailed:
			res.Failed++
			res.Errors = append(res.Errors, errs[i])
		}
	}

	if s.batchSize > 0 && len(ids) >= s.batchSize && s.cont != nil {
		next := offset + s.batchSize
		s.log.Info("continuing with next page", zap.Int("offset", next))
		if err := s.cont.Continue(ctx, next); err != nil {
			return res, fmt.Errorf("continue at offset %d: %w", next, err)
		}
		res.Next = next
	}
	return res, nil
}

func (s *Sync) run(ctx context.Context, stationID int64) (string, error) {
	outcome, err := s.station(ctx, stationID)
	if err != nil {
		outcome = metrics.OutcomeFailed
		err = fmt.Errorf("station %d: %w", stationID, err)
		s.log.Error("could not process data for station", zap.Int64("station", stationID), zap.Error(err))
	}
	s.metrics.Station(s.name, outcome)
	return outcome, err
}

func (s *Sync) fetch(ctx context.Context, stationID int64) ([]TimeSeries, string, error) {
	series, err := s.api.TimeSeries(ctx, stationID)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("station not found", zap.Int64("station", stationID), zap.Int("status", 404))
		return nil, metrics.OutcomeNotFound, nil
	}
	if err != nil {
		return nil, "", err
	}
	return series, metrics.OutcomeProcessed, nil
}

func (s *Sync) syncThresholds(ctx context.Context, stationID int64) (string, error) {
	series, outcome, err := s.fetch(ctx, stationID)
	if err != nil {
		return "", err
	}

	rows := ParseThresholds(stationID, series)
	if len(rows) == 0 {
		if _, err := s.gw.Execute(ctx, db.DeleteThresholds(stationID)); err != nil {
			return "", fmt.Errorf("error deleting thresholds: %w", err)
		}
		s.log.Info("deleted thresholds", zap.Int64("station", stationID))
		return outcome, nil
	}

	insert, err := db.InsertThresholds(rows)
	if err != nil {
		return "", err
	}
	err = s.gw.WithTx(ctx, func(tx db.Executor) error {
		return db.Sequence(ctx, tx, []db.Query{db.DeleteThresholds(stationID), insert})
	})
	if err != nil {
		return "", fmt.Errorf("database error processing thresholds: %w", err)
	}
	s.log.Info("processed thresholds", zap.Int64("station", stationID), zap.Int("thresholds", len(rows)))
	return outcome, nil
}

func (s *Sync) syncDisplaySeries(ctx context.Context, stationID int64) (string, error) {
	series, outcome, err := s.fetch(ctx, stationID)
	if err != nil {
		return "", err
	}

	rows := ParseDisplaySeries(stationID, series)
	if len(rows) == 0 {
		if _, err := s.gw.Execute(ctx, db.DeleteDisplaySeries(stationID)); err != nil {
			return "", fmt.Errorf("error deleting display time series: %w", err)
		}
		s.log.Info("deleted display time series", zap.Int64("station", stationID))
		return outcome, nil
	}
	if err := ValidateDisplaySeries(rows, series); err != nil {
		return "", err
	}

	insert, err := db.InsertDisplaySeries(rows)
	if err != nil {
		return "", err
	}
	err = s.gw.WithTx(ctx, func(tx db.Executor) error {
		return db.Sequence(ctx, tx, []db.Query{db.DeleteDisplaySeries(stationID), insert})
	})
	if err != nil {
		return "", fmt.Errorf("database error processing display time series: %w", err)
	}
	s.log.Info("processed display time series", zap.Int64("station", stationID), zap.Int("rows", len(rows)))
	return outcome, nil
}

// SyncStation runs the pipeline for a single station outside of a page.
func (s *Sync) SyncStation(ctx context.Context, stationID int64) (string, error) {
	return s.run(ctx, stationID)
}
