package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"floodsync/internal/app"
	"floodsync/internal/feed"
	"floodsync/internal/ffoi"
	"floodsync/internal/storage"
)

var (
	env   *app.Env
	store *storage.S3
)

// handler stores the forecasts of each FFOI file in the notification, in
// the bucket the file arrived in.
func handler(ctx context.Context, ev events.S3Event) error {
	defer env.Flush(ctx)

	objects, err := app.Objects(ev)
	if err != nil {
		return err
	}

	pool, err := env.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	for _, obj := range objects {
		env.Log.Info("received new file", zap.String("bucket", obj.Bucket), zap.String("key", obj.Key))
		data, err := store.Get(ctx, obj.Bucket, obj.Key)
		if err != nil {
			return err
		}
		doc, err := feed.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", obj.Key, err)
		}
		proc := ffoi.NewProcessor(pool, store, obj.Bucket, env.Log, env.Metrics)
		if _, err := proc.Process(ctx, doc, obj.Key); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	var err error
	env, err = app.New(context.Background(), "ffoi-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	store = storage.NewS3(env.AWS)
	lambda.Start(handler)
}
