package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"floodsync/internal/app"
	"floodsync/internal/fwis"
)

var env *app.Env

// handler replaces the current flood warnings. It runs on a schedule and
// ignores its input.
func handler(ctx context.Context) error {
	defer env.Flush(ctx)

	pool, err := env.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	client := fwis.NewClient(env.Config.FWISURL, env.Config.FWISAPIKey, env.HTTPClient())
	_, err = fwis.NewLoader(pool, client, env.Log).Run(ctx)
	return err
}

func main() {
	var err error
	env, err = app.New(context.Background(), "fwis-process")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	lambda.Start(handler)
}
