package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodsync/internal/metrics"
	"floodsync/internal/tracker"
)

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

type fakeImports struct {
	since time.Time
	limit int
	err   error
}

func (f *fakeImports) ListRecent(_ context.Context, since time.Time, limit int) ([]tracker.ImportRecord, error) {
	f.since, f.limit = since, limit
	if f.err != nil {
		return nil, f.err
	}
	return []tracker.ImportRecord{
		{Key: "fwfidata/rloi/a.xml", Status: tracker.StatusCompleted, Values: 12},
		{Key: "fwfidata/rloi/b.xml", Status: tracker.StatusFailed, Error: "boom"},
	}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	if key == "fwfidata/rloi/b.xml" {
		return "", errors.New("no credentials")
	}
	return "https://" + bucket + ".s3.test/" + key + "?X-Amz-Signature=x", nil
}

type fakeSyncer struct{ err error }

func (f fakeSyncer) SyncStation(context.Context, int64) (string, error) {
	return metrics.OutcomeProcessed, f.err
}

type fakeRuns struct{ input any }

func (f *fakeRuns) Start(_ context.Context, input any) (string, error) {
	f.input = input
	return "arn:aws:states:eu-west-2:1:execution:imtd:1", nil
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	s.Routes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	rr := serve(&Server{}, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestImports(t *testing.T) {
	imports := &fakeImports{}
	s := &Server{Imports: imports, Presigner: fakePresigner{}, Bucket: "lfw-data", Now: func() time.Time { return now }}

	rr := serve(s, http.MethodGet, "/imports?limit=1000")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, now.Add(-24*time.Hour), imports.since)
	assert.Equal(t, maxImportLimit, imports.limit)

	var body importsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "fwfidata/rloi/a.xml", body.Imports[0].Key)
	assert.Contains(t, body.Imports[0].URL, "lfw-data.s3.test")
	assert.Empty(t, body.Imports[1].URL)
	assert.Equal(t, "boom", body.Imports[1].Error)
}

func TestImportsParams(t *testing.T) {
	imports := &fakeImports{}
	s := &Server{Imports: imports}

	rr := serve(s, http.MethodGet, "/imports?since=2024-01-09T00:00:00Z")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), imports.since)
	assert.Equal(t, 100, imports.limit)

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/imports?since=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodGet, "/imports?limit=0").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodPost, "/imports").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(&Server{}, http.MethodGet, "/imports").Code)
	assert.Equal(t, http.StatusBadGateway, serve(&Server{Imports: &fakeImports{err: errors.New("x")}}, http.MethodGet, "/imports").Code)
}

func TestSyncStation(t *testing.T) {
	s := &Server{Syncer: fakeSyncer{}}

	rr := serve(s, http.MethodPost, "/thresholds/sync?station=1165")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, 1165.0, body["station"])
	assert.Equal(t, metrics.OutcomeProcessed, body["outcome"])

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/thresholds/sync").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/thresholds/sync?station=-4").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodGet, "/thresholds/sync?station=1").Code)
	assert.Equal(t, http.StatusBadGateway, serve(&Server{Syncer: fakeSyncer{err: errors.New("x")}}, http.MethodPost, "/thresholds/sync?station=1").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(&Server{}, http.MethodPost, "/thresholds/sync?station=1").Code)
}

func TestStartRun(t *testing.T) {
	runs := &fakeRuns{}
	s := &Server{Runs: runs, Now: func() time.Time { return now }}

	rr := serve(s, http.MethodPost, "/thresholds/run?offset=500")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]int{"offset": 500}, runs.input)
	assert.Equal(t, "execution started", decode(t, rr)["message"])

	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPost, "/thresholds/run?offset=-1").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(&Server{}, http.MethodPost, "/thresholds/run").Code)
}
