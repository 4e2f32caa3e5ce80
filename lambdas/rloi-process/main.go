package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"floodsync/internal/app"
	"floodsync/internal/notify"
	"floodsync/internal/storage"
	"floodsync/internal/telemetry"
	"floodsync/internal/tracker"
)

// descriptorTTL bounds the descriptor cache of a single import.
const descriptorTTL = 10 * time.Minute

var (
	env   *app.Env
	store *storage.S3
)

// handler imports every telemetry file named in the S3 notification.
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

	lookup := telemetry.NewLookup(store, env.Config.Bucket, descriptorTTL)
	proc := telemetry.NewProcessor(pool, lookup,
		telemetry.WithConcurrency(env.Config.RLOIConcurrency),
		telemetry.WithLogger(env.Log),
		telemetry.WithMetrics(env.Metrics),
	)
	im := telemetry.NewImporter(store, proc,
		tracker.New(env.AWS, env.Config.TrackerTable),
		notify.New(env.AWS, env.Config.SNSTopicName),
		env.Log,
	)

	for _, obj := range objects {
		env.Log.Info("received new file", zap.String("bucket", obj.Bucket), zap.String("key", obj.Key))
		if _, err := im.Import(ctx, obj.Bucket, obj.Key); err != nil {
			return fmt.Errorf("import %s: %w", obj.Key, err)
		}
	}
	return nil
}

func main() {
	var err error
	env, err = app.New(context.Background(), "rloi-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	store = storage.NewS3(env.AWS)
	lambda.Start(handler)
}
