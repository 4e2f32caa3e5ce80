package imtd

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"floodsync/internal/db"
	"floodsync/internal/db/dbtest"
	"floodsync/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeContinuer struct {
	mu      sync.Mutex
	offsets []int
	err     error
}

func (f *fakeContinuer) Continue(_ context.Context, offset int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	return f.err
}

func stationRecorder(ids ...any) *dbtest.Recorder {
	return dbtest.NewRecorder().On(db.KindSelectRloiIDs, dbtest.Rows("rloi_id", ids...))
}

func TestThresholdSyncReplacesRows(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1001?version=2",
		httpmock.NewStringResponder(http.StatusOK, fixture(t)))
	rec := stationRecorder(int32(1001))

	res, err := NewThresholdSync(rec, c, Options{Concurrency: DefaultConcurrency}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, Result{Stations: 1, Processed: 1, Next: -1}, res)

	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, db.KindSelectRloiIDs, calls[0].Query.Kind)
	assert.Empty(t, calls[0].Query.Args)
	assert.Equal(t, db.KindDeleteThresholds, calls[1].Query.Kind)
	assert.Equal(t, []any{int64(1001)}, calls[1].Query.Args)
	assert.Equal(t, db.KindInsertThresholds, calls[2].Query.Kind)
	assert.Equal(t, calls[1].Tx, calls[2].Tx)
	assert.NotZero(t, calls[1].Tx)
	assert.Len(t, calls[2].Query.Args, 7*5)
	assert.Equal(t, 1, rec.Committed())
}

func TestThresholdSyncNotFoundDeletes(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1001?version=2",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1006?version=2",
		httpmock.NewStringResponder(http.StatusOK, fixture(t)))
	rec := stationRecorder(int64(1001), int64(1006))
	m := metrics.New()

	res, err := NewThresholdSync(rec, c, Options{Concurrency: 1, Metrics: m}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.NotFound)
	assert.Equal(t, 1, res.Processed)

	deletes := rec.Queries(db.KindDeleteThresholds)
	require.Len(t, deletes, 2)
	assert.Equal(t, []any{int64(1001)}, deletes[0].Args)
	inserts := rec.Queries(db.KindInsertThresholds)
	require.Len(t, inserts, 1)
	assert.Equal(t, int64(1006), inserts[0].Args[3])
	for _, c := range rec.Calls() {
		if c.Query.Kind == db.KindDeleteThresholds && c.Query.Args[0] == int64(1001) {
			assert.Zero(t, c.Tx)
		}
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationCounter(PipelineThresholds, metrics.OutcomeNotFound)))
}

func TestThresholdSyncNoMatchingThresholdsDeletesOnly(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1001?version=2",
		httpmock.NewStringResponder(http.StatusOK, `[{"TimeSeriesMetaData":[{"Parameter":"Level","qualifier":"Stage","Thresholds":[{"ThresholdType":"INFO RLOI OTH","Level":1,"FloodWarningArea":null}]}]}]`))
	rec := stationRecorder(int64(1001))

	_, err := NewThresholdSync(rec, c, Options{}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []db.Kind{db.KindSelectRloiIDs, db.KindDeleteThresholds}, rec.Kinds())
}

func TestThresholdSyncStationFailureContinues(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1?version=2",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/2?version=2",
		httpmock.NewStringResponder(http.StatusOK, fixture(t)))
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/3?version=2",
		httpmock.NewStringResponder(http.StatusOK, fixture(t)))
	boom := errors.New("deadlock detected")
	rec := stationRecorder(int64(1), int64(2), int64(3)).On(db.KindInsertThresholds, func(q db.Query) (*db.Result, error) {
		if q.Args[3] == int64(3) {
			return nil, boom
		}
		return &db.Result{}, nil
	})

	res, err := NewThresholdSync(rec, c, Options{Concurrency: 16}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stations)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.Failed)
	assert.ErrorIs(t, res.Err(), boom)
	assert.Equal(t, 1, rec.RolledBack())
	assert.Equal(t, 1, rec.Committed())
}

func TestSyncListFailureAbortsRun(t *testing.T) {
	c, mock := mockClient(t)
	boom := errors.New("relation does not exist")
	rec := dbtest.NewRecorder().Fail(db.KindSelectRloiIDs, boom)

	_, err := NewThresholdSync(rec, c, Options{}).Run(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mock.GetTotalCallCount())
}

func TestSyncContinuesFullPage(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusNotFound, ""))
	cont := &fakeContinuer{}
	rec := stationRecorder(int64(1), int64(2))

	res, err := NewDisplaySeriesSync(rec, c, Options{BatchSize: 2, Continuer: cont}).Run(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Next)
	assert.Equal(t, []int{6}, cont.offsets)
	assert.Equal(t, []any{2, 4}, rec.Queries(db.KindSelectRloiIDs)[0].Args)

	rec = stationRecorder(int64(1))
	res, err = NewDisplaySeriesSync(rec, c, Options{BatchSize: 2, Continuer: cont}).Run(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, -1, res.Next)
	assert.Len(t, cont.offsets, 1)
}

func TestSyncContinuationFailure(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusNotFound, ""))
	boom := errors.New("throttled")

	_, err := NewThresholdSync(stationRecorder(int64(1)), c, Options{BatchSize: 1, Continuer: &fakeContinuer{err: boom}}).Run(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
}

func TestDisplaySeriesSync(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1001?version=2",
		httpmock.NewStringResponder(http.StatusOK, fixture(t)))
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1002?version=2",
		httpmock.NewStringResponder(http.StatusOK, `[{"TimeSeriesMetaData":[]}]`))
	rec := stationRecorder(int64(1001), int64(1002))

	res, err := NewDisplaySeriesSync(rec, c, Options{BatchSize: DefaultBatchSize}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	insert := rec.Queries(db.KindInsertDisplaySeries)
	require.Len(t, insert, 1)
	assert.Equal(t, []any{"u", false, int64(1001), "d", true, int64(1001)}, insert[0].Args)
	assert.Equal(t, 2, rec.Count(db.KindDeleteDisplaySeries))
}

func TestDisplaySeriesSyncValidationFailure(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/1001?version=2",
		httpmock.NewStringResponder(http.StatusOK, `[{"TimeSeriesMetaData":[{"qualifier":"Stage"}]}]`))
	rec := stationRecorder(int64(1001))

	res, err := NewDisplaySeriesSync(rec, c, Options{}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, rec.Count(db.KindInsertDisplaySeries))
}

func TestSyncStation(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterResponder(http.MethodGet, baseURL+"/Location/7?version=2",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	rec := dbtest.NewRecorder()

	outcome, err := NewThresholdSync(rec, c, Options{}).SyncStation(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNotFound, outcome)
	assert.Equal(t, []db.Kind{db.KindDeleteThresholds}, rec.Kinds())
}

func TestSyncWithoutContinuerProcessesAllStations(t *testing.T) {
	c, mock := mockClient(t)
	mock.RegisterNoResponder(httpmock.NewStringResponder(http.StatusNotFound, ""))
	rec := stationRecorder(int64(1), int64(2), int64(3))
	core, logs := observer.New(zap.WarnLevel)

	res, err := NewThresholdSync(rec, c, Options{BatchSize: 2, Logger: zap.New(core)}).Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stations)
	assert.Equal(t, 3, res.NotFound)
	assert.Equal(t, -1, res.Next)
	assert.Empty(t, rec.Queries(db.KindSelectRloiIDs)[0].Args)
	assert.Equal(t, 1, logs.FilterMessage("no continuation configured, syncing all stations in one run").Len())
}
