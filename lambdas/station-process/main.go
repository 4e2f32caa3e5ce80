package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"floodsync/internal/app"
	"floodsync/internal/station"
	"floodsync/internal/storage"
)

var (
	env   *app.Env
	store *storage.S3
)

// handler loads the station snapshot CSV named in the S3 notification.
// Descriptors are written back to the bucket the CSV arrived in.
func handler(ctx context.Context, ev events.S3Event) error {
	defer env.Flush(ctx)

	objects, err := app.Objects(ev)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return fmt.Errorf("event has no records")
	}
	obj := objects[0]
	env.Log.Info("received new event", zap.String("bucket", obj.Bucket), zap.String("key", obj.Key))

	data, err := store.Get(ctx, obj.Bucket, obj.Key)
	if err != nil {
		return err
	}

	pool, err := env.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	loader := station.NewLoader(pool, store, obj.Bucket,
		station.WithLogger(env.Log),
		station.WithMetrics(env.Metrics),
	)
	res, err := loader.Load(ctx, data)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		env.Log.Warn("some station descriptors were not uploaded", zap.Int("failed", res.Failed))
	}
	return nil
}

func main() {
	var err error
	env, err = app.New(context.Background(), "station-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	store = storage.NewS3(env.AWS)
	lambda.Start(handler)
}
