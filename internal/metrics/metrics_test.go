package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ValueSet(OutcomeProcessed)
	m.ValueSet(OutcomeProcessed)
	m.ValueSet(OutcomeFailed)
	m.Values(3)
	m.Values(0)
	m.Station("imtd", OutcomeNotFound)
	m.Object("rloi/North West/x/station.json", nil)
	m.Object("rloi/stations.json", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValueSetCounter(OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValueSetCounter(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ValuesCounter()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationCounter("imtd", OutcomeNotFound)))

	n, err := testutil.GatherAndCount(m.Registry(), "floodsync_storage_objects_written_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ValueSet(OutcomeProcessed)
	m.Values(1)
	m.Station("dts", OutcomeFailed)
	m.Object("fgs/latest.json", nil)
	assert.Nil(t, m.Registry())
}

func TestPusher(t *testing.T) {
	assert.Nil(t, NewPusher("  ", "rloi-process"))
	assert.NoError(t, (*Pusher)(nil).Push(context.Background(), New()))

	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.ValueSet(OutcomeProcessed)
	require.NoError(t, NewPusher(srv.URL, "rloi-process").Push(context.Background(), m))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, strings.HasSuffix(path.Load().(string), "/job/rloi-process"))

	err := NewPusher(srv.URL, "").Push(context.Background(), m)
	assert.Error(t, err)
}
