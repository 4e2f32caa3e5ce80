package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floodsync/internal/storage"
)

const bucket = "lfw-data"

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string, string) ([]byte, error) { return nil, f.err }

func TestDescriptorKey(t *testing.T) {
	assert.Equal(t, "rloi/North West/test1/station.json", DescriptorKey("North West", "test1"))
}

func TestLookupFound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, bucket, DescriptorKey("North West", "test1"), []byte(`{"RLOI_ID":"5075","Region":"North West","Post_Process":"y","Subtract":"1"}`)))

	l := NewLookup(store, bucket, time.Minute)
	desc, found, err := l.Find(ctx, "North West", "test1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "5075", desc.RloiID.String())

	_, _, err = l.Find(ctx, "North West", "test1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Gets(bucket, DescriptorKey("North West", "test1")))
}

func TestLookupNotFoundIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	l := NewLookup(store, bucket, time.Minute)

	for range 3 {
		_, found, err := l.Find(ctx, "Anglian", "missing")
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Equal(t, 1, store.Gets(bucket, DescriptorKey("Anglian", "missing")))
}

func TestLookupWithoutCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	l := NewLookup(store, bucket, 0)
	_, _, _ = l.Find(ctx, "Anglian", "x")
	_, _, _ = l.Find(ctx, "Anglian", "x")
	assert.Equal(t, 2, store.Gets(bucket, DescriptorKey("Anglian", "x")))
}

func TestLookupErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("access denied")
	_, _, err := NewLookup(failingStore{err: boom}, bucket, time.Minute).Find(ctx, "Anglian", "x")
	assert.ErrorIs(t, err, boom)

	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, bucket, DescriptorKey("Anglian", "bad"), []byte(`{not json`)))
	l := NewLookup(store, bucket, time.Minute)
	_, found, err := l.Find(ctx, "Anglian", "bad")
	require.Error(t, err)
	assert.False(t, found)

	_, _, err = l.Find(ctx, "Anglian", "bad")
	require.Error(t, err)
	assert.Equal(t, 2, store.Gets(bucket, DescriptorKey("Anglian", "bad")))
}

func TestLookupForRunStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	l := NewLookup(store, bucket, time.Minute)

	_, found, err := l.Find(ctx, "Anglian", "late")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, bucket, DescriptorKey("Anglian", "late"), []byte(`{"RLOI_ID":"9","Region":"Anglian","Post_Process":"n"}`)))

	_, found, err = l.ForRun().Find(ctx, "Anglian", "late")
	require.NoError(t, err)
	assert.True(t, found)
}
