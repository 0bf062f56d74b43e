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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	ocrservice "github.com/xf0e/paddle-ocr-service"
	"github.com/xf0e/paddle-ocr-service/engines"
)

// To test it:
// curl -F "file=@receipt.png" http://localhost:5001/ocr

const shutdownTimeout = 30 * time.Second

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	// Default level is info, unless debug flag is present
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	cfg, err := ocrservice.DefaultConfigFlagsOverride(ocrservice.NoOpFlagFunction())
	if err != nil {
		log.Fatal().Err(err).Str("component", "OCR_HTTP").Msg("invalid configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	// 0 turns off lock timeout reports, lock order checks stay on
	deadlock.Opts.DeadlockTimeout = cfg.DeadlockTimeout
	log.Debug().Interface("config", cfg.Redacted()).Msg("parameter list of service config")

	metrics := ocrservice.NewMetrics(prometheus.DefaultRegisterer)
	artifacts := ocrservice.NewArtifactManager(cfg.TempDir)

	engine, err := engines.NewOcrEngine(cfg, artifacts, metrics)
	if err != nil {
		log.Fatal().Err(err).Str("component", "OCR_HTTP").Msg("could not create ocr engine")
	}
	log.Info().Str("component", "OCR_HTTP").Str("engine", engine.Name()).Msg("starting ocr engine")
	if err := engine.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Str("component", "OCR_HTTP").Msg("ocr engine failed to start")
	}

	pool := ocrservice.NewWorkerPool(cfg.Workers)
	pool.Start()

	extractor := ocrservice.NewExtractor(engine, pool, metrics)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HttpPort),
		Handler:           ocrservice.NewRouter(cfg, extractor, metrics, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	shutdownDone := make(chan struct{})
	go func() {
		sig := <-signals
		log.Info().Str("component", "OCR_HTTP").Str("signal", sig.String()).
			Msg("Caught signal to terminate, will not accept new requests and exit once running requests are answered")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Str("component", "OCR_HTTP").Msg("http server did not shut down cleanly")
		}
		close(shutdownDone)
	}()

	log.Info().Str("component", "OCR_HTTP").Str("listenAddr", server.Addr).
		Str("service", cfg.ServiceName).Msg("Starting listener...")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Str("component", "CLI_HTTP").Caller().Msg("cli_http has failed to start")
	}
	<-shutdownDone

	if err := pool.Stop(); err != nil {
		log.Error().Err(err).Str("component", "OCR_HTTP").Msg("worker pool stopped with error")
	}
	if err := engine.Close(); err != nil {
		log.Error().Err(err).Str("component", "OCR_HTTP").Msg("ocr engine did not close cleanly")
	}
	log.Info().Str("component", "OCR_HTTP").Msg("http daemon stopped")
}
