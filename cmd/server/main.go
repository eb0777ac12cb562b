package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/skincheck-api/internal/config"
	"github.com/Brownie44l1/skincheck-api/internal/handlers"
	"github.com/Brownie44l1/skincheck-api/internal/logging"
	"github.com/Brownie44l1/skincheck-api/internal/metrics"
	"github.com/Brownie44l1/skincheck-api/internal/model"
	"github.com/Brownie44l1/skincheck-api/internal/weather"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "skincheck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("loading model", zap.String("path", cfg.ModelPath))
	classifier, err := model.Load(cfg.ModelPath, model.LoadOptions{ONNXRuntimeLib: cfg.ONNXRuntimeLib})
	if err != nil {
		log.Error("failed to load model", zap.String("path", cfg.ModelPath), zap.Error(err))
		return err
	}
	defer model.DestroyRuntime()
	defer classifier.Close()
	log.Info("model loaded",
		zap.Strings("classes", classifier.Metadata.Classes),
		zap.Int("feature_size", classifier.Metadata.Backbone.FeatureSize),
		zap.Int("hidden_units", classifier.Metadata.Head.HiddenUnits))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	lookup := weather.NewClient(weather.ClientOptions{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherBaseURL,
		Units:   cfg.WeatherUnits,
		Timeout: cfg.WeatherTimeout,
	}, log)

	h := handlers.NewHandler(classifier, lookup, handlers.Options{
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		CoarseErrors:   cfg.CoarseErrors,
		Metrics:        m,
	}, log)

	gin.SetMode(cfg.GinMode)
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.NewRouter(h, handlers.RouterOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			Metrics:        m,
			Gatherer:       reg,
			Log:            log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("shutdown complete")
	return nil
}
