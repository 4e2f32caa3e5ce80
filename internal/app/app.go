// Package app wires configuration, logging, metrics and AWS clients for
// the lambda entry points and the API.
package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"floodsync/internal/config"
	"floodsync/internal/db"
	"floodsync/internal/logging"
	"floodsync/internal/metrics"
	"floodsync/internal/storage"
)

// Env is shared by every invocation of a lambda.
type Env struct {
	Config config.Config
	Log    *zap.Logger
	// Metrics counts the current invocation. Flush pushes it and starts a
	// new one.
	Metrics *metrics.Metrics
	AWS     aws.Config

	pusher *metrics.Pusher
}

// New loads configuration for service. Metrics are pushed under the
// service name as job.
func New(ctx context.Context, service string) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.MustNew(logging.Config{Service: service, Level: cfg.LogLevel})
	awsCfg, err := storage.LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Env{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
		AWS:     awsCfg,
		pusher:  metrics.NewPusher(cfg.PushgatewayURL, service),
	}, nil
}

// OpenDB opens a pool. Callers close it before the invocation returns.
func (e *Env) OpenDB(ctx context.Context) (*db.Pool, error) {
	if err := e.Config.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.Open(ctx, e.Config.DatabaseURL, db.WithLogger(e.Log))
}

// HTTPClient returns a client with the configured timeout.
func (e *Env) HTTPClient() *http.Client {
	return &http.Client{Timeout: e.Config.HTTPTimeout}
}

// Flush pushes the invocation's metrics, replaces them with empty ones for
// the next invocation and syncs the logger. Failures are only logged.
func (e *Env) Flush(ctx context.Context) {
	if err := e.pusher.Push(ctx, e.Metrics); err != nil {
		e.Log.Warn("failed to push metrics", zap.Error(err))
	}
	e.Metrics = metrics.New()
	_ = e.Log.Sync()
}

// Object is one object named in an S3 event.
type Object struct {
	Bucket string
	Key    string
}

// Objects lists the objects of an S3 notification. Keys arrive URL
// encoded, with spaces as '+'.
func Objects(ev events.S3Event) ([]Object, error) {
	out := make([]Object, 0, len(ev.Records))
	for _, r := range ev.Records {
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
		}
		out = append(out, Object{Bucket: r.S3.Bucket.Name, Key: key})
	}
	return out, nil
}
