package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floodsync/internal/db"
	"floodsync/internal/logging"
	"floodsync/internal/metrics"
	"floodsync/internal/storage"
)

// StationsKey is the object holding every station of the snapshot.
const StationsKey = "rloi/stations.json"

// DefaultConcurrency bounds the per-station descriptor uploads.
const DefaultConcurrency = 8

// DescriptorKey is where the descriptor of one station is written. It is
// the key the telemetry pipeline reads.
func DescriptorKey(rec Record) string {
	return fmt.Sprintf("rloi/%s/%s/station.json", rec["Region"], rec["Telemetry_ID"])
}

// Result summarises one snapshot load.
type Result struct {
	Stations int
	Uploaded int
	Failed   int
}

// Loader replaces the station snapshot.
type Loader struct {
	gw          db.Gateway
	store       storage.Putter
	bucket      string
	concurrency int
	log         *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

func WithLogger(l *zap.Logger) Option { return func(ld *Loader) { ld.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(ld *Loader) { ld.metrics = m } }

func WithConcurrency(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option { return func(ld *Loader) { ld.now = now } }

// NewLoader returns a Loader writing descriptors to bucket.
func NewLoader(gw db.Gateway, store storage.Putter, bucket string, opts ...Option) *Loader {
	l := &Loader{
		gw:          gw,
		store:       store,
		bucket:      bucket,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = logging.OrNop(l.log)
	return l
}

// Load parses the CSV, replaces the database snapshot and then publishes
// the descriptors.
func (l *Loader) Load(ctx context.Context, data []byte) (Result, error) {
	records, err := ParseCSV(data)
	if err != nil {
		return Result{}, err
	}
	if err := l.SaveToDB(ctx, records); err != nil {
		return Result{Stations: len(records)}, err
	}
	return l.SaveToObjects(ctx, records)
}

// SaveToDB truncates telemetry_context and inserts the records in one
// transaction, then refreshes the station views. Every view refresh is
// attempted.
func (l *Loader) SaveToDB(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return errors.New("station snapshot has no records")
	}
	inserts, err := db.InsertStations(ToRows(records))
	if err != nil {
		return err
	}
	queries := append([]db.Query{db.DeleteStations()}, inserts...)
	queries = append(queries, db.StationLoadTimestamp(l.now().Unix()))

	if err := l.gw.WithTx(ctx, func(tx db.Executor) error {
		return db.Sequence(ctx, tx, queries)
	}); err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	l.log.Info("stations loaded", zap.Int("stations", len(records)), zap.Int("batches", len(inserts)))

	if err := db.ExecuteAll(ctx, l.gw, db.RefreshStationViews()); err != nil {
		return fmt.Errorf("refresh station views: %w", err)
	}
	l.log.Info("station views refreshed")
	return nil
}

// SaveToObjects writes the full list, then one descriptor per station.
// A failed descriptor upload is logged and counted but does not fail the
// load.
func (l *Loader) SaveToObjects(ctx context.Context, records []Record) (Result, error) {
	res := Result{Stations: len(records)}
	all, err := json.Marshal(records)
	if err != nil {
		return res, err
	}
	err = l.store.Put(ctx, l.bucket, StationsKey, all)
	l.metrics.Object(StationsKey, err)
	if err != nil {
		return res, err
	}
	l.log.Info("uploaded", zap.String("key", StationsKey), zap.Int("stations", len(records)))

	var uploaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, rec := range records {
		g.Go(func() error {
			key := DescriptorKey(rec)
			body, err := json.Marshal(rec)
			if err == nil {
				err = l.store.Put(gctx, l.bucket, key, body)
			}
			l.metrics.Object(key, err)
			if err != nil {
				failed.Add(1)
				l.log.Error("failed to upload", zap.String("key", key), zap.Error(err))
				return nil
			}
			uploaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res.Uploaded = int(uploaded.Load())
	res.Failed = int(failed.Load())
	l.log.Info("stations processed", zap.Int("uploaded", res.Uploaded), zap.Int("failed", res.Failed))
	return res, nil
}
