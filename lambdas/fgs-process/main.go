package main

import (
	"context"
	"errors"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"floodsync/internal/app"
	"floodsync/internal/fgs"
	"floodsync/internal/storage"
)

var (
	env   *app.Env
	store *storage.S3
)

// handler copies the latest flood guidance statement to the data bucket.
func handler(ctx context.Context) error {
	defer env.Flush(ctx)
	if env.Config.Bucket == "" {
		return errors.New("LFW_DATA_SLS_BUCKET is required")
	}
	client := fgs.NewClient(env.Config.FGSURL, env.HTTPClient())
	_, err := fgs.NewArchiver(client, store, env.Config.Bucket, env.Log, env.Metrics).Run(ctx)
	return err
}

func main() {
	var err error
	env, err = app.New(context.Background(), "fgs-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	store = storage.NewS3(env.AWS)
	lambda.Start(handler)
}
