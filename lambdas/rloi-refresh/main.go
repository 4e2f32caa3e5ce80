package main

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"floodsync/internal/app"
	"floodsync/internal/db"
)

// refreshInput optionally names the maintenance statements to run. With no
// names, old telemetry is deleted and the station views are refreshed.
type refreshInput struct {
	Queries []string `json:"queries,omitempty"`
}

var defaultQueries = []string{"deleteOldTelemetry", "refreshStationMviews"}

var env *app.Env

func handler(ctx context.Context, in refreshInput) error {
	defer env.Flush(ctx)

	names := in.Queries
	if len(names) == 0 {
		names = defaultQueries
	}
	var queries []db.Query
	for _, name := range names {
		q, err := db.Named(name)
		if err != nil {
			return err
		}
		queries = append(queries, q...)
	}

	pool, err := env.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	// Statements run in order; a failed delete must not skip the refreshes.
	if err := db.ExecuteAll(ctx, pool, queries); err != nil {
		return err
	}
	env.Log.Info("maintenance complete", zap.Strings("queries", names))
	return nil
}

func main() {
	var err error
	env, err = app.New(context.Background(), "rloi-refresh")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	lambda.Start(handler)
}
