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

// handler replaces the thresholds of one page of stations. A full page
// schedules the next one through the state machine, when configured.
func handler(ctx context.Context, in invoke.Event) error {
	defer env.Flush(ctx)

	pool, err := env.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	opts := imtd.Options{
		BatchSize:   env.Config.IMTDBatchSize,
		Concurrency: env.Config.IMTDConcurrency,
		Logger:      env.Log,
		Metrics:     env.Metrics,
	}
	if env.Config.StateMachineARN != "" {
		opts.Continuer = invoke.New(env.AWS, env.Config.StateMachineARN, imtd.PipelineThresholds)
	}
	client := imtd.NewClient(env.Config.IMTDURL, env.HTTPClient())

	res, err := imtd.NewThresholdSync(pool, client, opts).Run(ctx, in.Offset)
	if err != nil {
		return err
	}
	env.Log.Info("threshold sync complete",
		zap.Int("stations", res.Stations),
		zap.Int("processed", res.Processed),
		zap.Int("not_found", res.NotFound),
		zap.Int("failed", res.Failed),
	)
	alerts := notify.New(env.AWS, env.Config.SNSTopicName)
	run := notify.RunSummary{Pipeline: imtd.PipelineThresholds, Total: res.Stations, Failed: res.Failed, Err: res.Err()}
	if err := alerts.Failures(ctx, run); err != nil {
		env.Log.Warn("failed to publish alert", zap.Error(err))
	}
	return nil
}

func main() {
	var err error
	env, err = app.New(context.Background(), "imtd-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	lambda.Start(handler)
}
