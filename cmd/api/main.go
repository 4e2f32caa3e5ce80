package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"floodsync/cmd/api/handler"
	"floodsync/internal/app"
	"floodsync/internal/imtd"
	"floodsync/internal/invoke"
	"floodsync/internal/storage"
	"floodsync/internal/tracker"
)

// withCORS wraps an http.Handler to add permissive CORS headers and handle preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.New(ctx, "api")
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer env.Flush(context.Background())

	srv := &handler.Server{
		Imports:   tracker.New(env.AWS, env.Config.TrackerTable),
		Presigner: storage.NewS3(env.AWS),
		Bucket:    env.Config.Bucket,
		Log:       env.Log,
	}
	if env.Config.StateMachineARN != "" {
		srv.Runs = invoke.New(env.AWS, env.Config.StateMachineARN, imtd.PipelineThresholds)
	}
	if pool, err := env.OpenDB(ctx); err != nil {
		env.Log.Warn("database unavailable, station sync disabled", zap.Error(err))
	} else {
		defer pool.Close()
		client := imtd.NewClient(env.Config.IMTDURL, env.HTTPClient())
		srv.Syncer = imtd.NewThresholdSync(pool, client, imtd.Options{Logger: env.Log, Metrics: env.Metrics})
	}

	mux := http.NewServeMux()
	srv.Routes(mux)
	httpSrv := &http.Server{
		Addr:              ":" + env.Config.Port,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	env.Log.Info("starting floodsync API", zap.String("addr", httpSrv.Addr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		env.Log.Fatal("server error", zap.Error(err))
	}
}
