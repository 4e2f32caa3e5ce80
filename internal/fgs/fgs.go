// Package fgs archives the latest flood guidance statement.
package fgs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floodsync/internal/logging"
	"floodsync/internal/metrics"
	"floodsync/internal/storage"
)

// DefaultTimeout is the request timeout of the statements API.
const DefaultTimeout = 30 * time.Second

// LatestKey always holds the most recent statement.
const LatestKey = "fgs/latest.json"

// Statement is a flood guidance statement. Body is the statement object
// exactly as the API returned it.
type Statement struct {
	ID   string
	Body json.RawMessage
}

// Key is where the statement is archived.
func (s Statement) Key() string { return "fgs/" + s.ID + ".json" }

// Client fetches the latest statement.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a Client for url.
func NewClient(url string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{url: url, http: hc}
}

// Latest returns the current statement.
func (c *Client) Latest(ctx context.Context) (Statement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Statement{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Statement{}, fmt.Errorf("FGS request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Statement{}, fmt.Errorf("FGS request failed (HTTP Status: %d)", resp.StatusCode)
	}

	var out struct {
		Statement json.RawMessage `json:"statement"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Statement{}, fmt.Errorf("decode FGS response: %w", err)
	}
	return parseStatement(out.Statement)
}

func parseStatement(raw json.RawMessage) (Statement, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Statement{}, errors.New("FGS response has no statement")
	}
	var head struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Statement{}, fmt.Errorf("decode FGS statement: %w", err)
	}
	id := strings.Trim(string(head.ID), `"`)
	if id == "" || id == "null" {
		return Statement{}, errors.New("FGS statement has no id")
	}
	return Statement{ID: id, Body: raw}, nil
}

// Source returns the latest statement.
type Source interface {
	Latest(ctx context.Context) (Statement, error)
}

// Archiver copies the latest statement to object storage.
type Archiver struct {
	src     Source
	store   storage.Putter
	bucket  string
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewArchiver returns an Archiver writing to bucket.
func NewArchiver(src Source, store storage.Putter, bucket string, log *zap.Logger, m *metrics.Metrics) *Archiver {
	return &Archiver{src: src, store: store, bucket: bucket, log: logging.OrNop(log), metrics: m}
}

// Run stores the statement under its id and as the latest statement.
func (a *Archiver) Run(ctx context.Context) (Statement, error) {
	st, err := a.src.Latest(ctx)
	if err != nil {
		return Statement{}, err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range []string{st.Key(), LatestKey} {
		g.Go(func() error {
			err := a.store.Put(gctx, a.bucket, key, st.Body)
			a.metrics.Object(key, err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	a.log.Info("flood guidance statement stored", zap.String("id", st.ID))
	return st, nil
}
