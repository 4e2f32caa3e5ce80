package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"floodsync/internal/storage"
)

// DescriptorKey is the object key of a station descriptor.
func DescriptorKey(region, reference string) string {
	return fmt.Sprintf("rloi/%s/%s/station.json", region, reference)
}

type lookupResult struct {
	desc  Descriptor
	found bool
}

// Lookup resolves station descriptors from the object store. Results,
// including misses, are cached for the lifetime of the Lookup so value-sets
// of the same station share one read. Processor asks for a fresh Lookup per
// run through ForRun, so a descriptor written between runs is always seen.
type Lookup struct {
	store  storage.Getter
	bucket string
	ttl    time.Duration
	cache  *cache.Cache
}

// NewLookup returns a Lookup reading from bucket. ttl bounds how long a
// result is reused; zero disables caching. Expired entries are dropped on
// read, no janitor goroutine is started.
func NewLookup(store storage.Getter, bucket string, ttl time.Duration) *Lookup {
	l := &Lookup{store: store, bucket: bucket, ttl: ttl}
	if ttl > 0 {
		l.cache = cache.New(ttl, 0)
	}
	return l
}

// ForRun returns a Lookup on the same bucket with an empty cache.
func (l *Lookup) ForRun() DescriptorFinder {
	return NewLookup(l.store, l.bucket, l.ttl)
}

// Find returns the descriptor for region/reference. A missing object is not
// an error: found is false.
func (l *Lookup) Find(ctx context.Context, region, reference string) (Descriptor, bool, error) {
	key := DescriptorKey(region, reference)
	if l.cache != nil {
		if v, ok := l.cache.Get(key); ok {
			r := v.(lookupResult)
			return r.desc, r.found, nil
		}
	}

	data, err := l.store.Get(ctx, l.bucket, key)
	if errors.Is(err, storage.ErrNotFound) {
		l.remember(key, lookupResult{})
		return Descriptor{}, false, nil
	}
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("fetch descriptor %s: %w", key, err)
	}

	desc, err := ParseDescriptor(data)
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("%s: %w", key, err)
	}
	l.remember(key, lookupResult{desc: desc, found: true})
	return desc, true, nil
}

func (l *Lookup) remember(key string, r lookupResult) {
	if l.cache != nil {
		l.cache.SetDefault(key, r)
	}
}
