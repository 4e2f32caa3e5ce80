package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"floodsync/internal/app"
	"floodsync/internal/imtd"
	"floodsync/internal/invoke"
	"floodsync/internal/notify"
)

var env *app.Env

// handler replaces the display time series of one page of stations, one
// station at a time, and continues with the next page.
func handler(ctx context.Context, in invoke.Event) error {
	defer env.Flush(ctx)

	pool, err := env.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	batch := env.Config.IMTDBatchSize
	if batch == 0 {
		batch = imtd.DefaultBatchSize
	}
	opts := imtd.Options{
		BatchSize:   batch,
		Concurrency: 1,
		Logger:      env.Log,
		Metrics:     env.Metrics,
	}
	if env.Config.StateMachineARN != "" {
		opts.Continuer = invoke.New(env.AWS, env.Config.StateMachineARN, imtd.PipelineDisplaySeries)
	}
	client := imtd.NewClient(env.Config.IMTDURL, env.HTTPClient())

	res, err := imtd.NewDisplaySeriesSync(pool, client, opts).Run(ctx, in.Offset)
	if err != nil {
		return err
	}
	env.Log.Info("display time series sync complete",
		zap.Int("offset", res.Offset),
		zap.Int("stations", res.Stations),
		zap.Int("failed", res.Failed),
		zap.Int("next", res.Next),
	)
	alerts := notify.New(env.AWS, env.Config.SNSTopicName)
	run := notify.RunSummary{Pipeline: imtd.PipelineDisplaySeries, Total: res.Stations, Failed: res.Failed, Err: res.Err()}
	if err := alerts.Failures(ctx, run); err != nil {
		env.Log.Warn("failed to publish alert", zap.Error(err))
	}
	return nil
}

func main() {
	var err error
	env, err = app.New(context.Background(), "dts-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	lambda.Start(handler)
}
