// Package ffoi stores forecast flood telemetry (FFOI) files: the water
// level forecast of each station and its maximum over the next 36 hours.
package ffoi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floodsync/internal/db"
	"floodsync/internal/feed"
	"floodsync/internal/logging"
	"floodsync/internal/metrics"
	"floodsync/internal/storage"
	"floodsync/internal/telemetry"
)

// Horizon is how far ahead forecast values are considered.
const Horizon = 36 * time.Hour

const defaultConcurrency = 8

// Forecast is the stored form of one station block.
type Forecast struct {
	feed.Station
	Key  string `json:"key"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// ObjectKey is where the forecast of a station is stored.
func ObjectKey(reference string) string {
	return fmt.Sprintf("ffoi/%s.json", reference)
}

// Maximum is the highest forecast value inside the horizon.
type Maximum struct {
	Value float64
	At    time.Time
}

// FindMaximum returns the highest value strictly between now and
// now+Horizon. Readings that do not parse are ignored. Ties keep the later
// reading.
func FindMaximum(vs feed.ValueSet, now time.Time) (Maximum, bool) {
	var (
		best  Maximum
		found bool
	)
	until := now.Add(Horizon)
	for _, r := range vs.Readings {
		at := telemetry.ParseTimestamp(r.Date, r.Time)
		if at == nil || !at.After(now) || !at.Before(until) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
		if err != nil {
			continue
		}
		if !found || v >= best.Value {
			best, found = Maximum{Value: v, At: *at}, true
		}
	}
	return best, found
}

// Summary counts the stations of one file.
type Summary struct {
	Stations int
	Stored   int
	Skipped  int
	Failed   int
}

// Processor stores forecasts.
type Processor struct {
	gw          db.Gateway
	store       storage.Putter
	bucket      string
	log         *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	concurrency int
}

// NewProcessor returns a Processor writing forecasts to bucket.
func NewProcessor(gw db.Gateway, store storage.Putter, bucket string, log *zap.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		gw:          gw,
		store:       store,
		bucket:      bucket,
		log:         logging.OrNop(log),
		metrics:     m,
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
}

// Process handles every water level station block of doc. A station with
// no value inside the horizon is skipped entirely. Storage and database
// failures are logged per station and do not stop the file.
func (p *Processor) Process(ctx context.Context, doc *feed.Document, key string) (Summary, error) {
	if doc == nil {
		return Summary{}, feed.ErrEmptyDocument
	}
	now := p.now().UTC()

	var sum Summary
	var stored, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, st := range doc.Stations {
		if len(st.ValueSets) == 0 || st.ValueSets[0].Parameter != telemetry.ParameterWaterLevel {
			continue
		}
		sum.Stations++
		fc := Forecast{Station: st, Key: key, Date: doc.Date, Time: doc.Time}
		g.Go(func() error {
			switch err := p.station(gctx, fc, now); {
			case errors.Is(err, errNoFutureValues):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
			default:
				stored.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum.Stored = int(stored.Load())
	sum.Skipped = int(skipped.Load())
	sum.Failed = int(failed.Load())
	p.log.Info("file processed", zap.String("key", key), zap.Int("stations", sum.Stations),
		zap.Int("stored", sum.Stored), zap.Int("skipped", sum.Skipped), zap.Int("failed", sum.Failed))
	return sum, nil
}

var errNoFutureValues = errors.New("no forecast values inside horizon")

func (p *Processor) station(ctx context.Context, fc Forecast, now time.Time) error {
	ref := fc.Reference
	best, ok := FindMaximum(fc.ValueSets[0], now)
	if !ok {
		return errNoFutureValues
	}

	objectKey := ObjectKey(ref)
	body, err := json.Marshal(fc)
	if err == nil {
		err = p.store.Put(ctx, p.bucket, objectKey, body)
	}
	p.metrics.Object(objectKey, err)
	var errs []error
	if err != nil {
		p.log.Error("failed to upload", zap.String("key", objectKey), zap.Error(err))
		errs = append(errs, err)
	}

	_, err = p.gw.Execute(ctx, db.UpsertFfoiMax(db.FfoiMaxRow{
		TelemetryID: ref,
		Value:       best.Value,
		ValueDate:   best.At,
		Filename:    fc.Key,
		UpdatedDate: now,
	}))
	if err != nil {
		p.log.Error("failed to store forecast maximum", zap.String("station", ref), zap.Error(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
