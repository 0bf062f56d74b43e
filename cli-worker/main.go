package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	ocrservice "github.com/xf0e/paddle-ocr-service"
	"github.com/xf0e/paddle-ocr-service/engines"
)

// This assumes that there is a rabbit mq running and an http daemon started with
// -engine rpc publishing to it.

func init() {
	zerolog.TimeFieldFormat = time.StampMilli
	// Default level is info, unless debug flag is present
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	cfg, err := ocrservice.DefaultConfigFlagsOverride(ocrservice.NoOpFlagFunction())
	if err != nil {
		log.Panic().Str("component", "OCR_WORKER").Msgf("error getting arguments: %v ", err)
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	// 0 turns off lock timeout reports, lock order checks stay on
	deadlock.Opts.DeadlockTimeout = cfg.DeadlockTimeout

	log.Debug().Interface("workerConfig", cfg.Redacted()).Msg("parameter list of workerConfig")

	engineType, _ := cfg.EngineType()
	if engineType == ocrservice.EngineRpc {
		log.Panic().Str("component", "OCR_WORKER").Msg("the worker needs a local engine, not rpc")
	}

	engine, err := engines.NewOcrEngine(cfg, ocrservice.NewArtifactManager(cfg.TempDir), nil)
	if err != nil {
		log.Panic().Err(err).Str("component", "OCR_WORKER").Msg("could not create ocr engine")
	}
	if err := engine.Start(context.Background()); err != nil {
		log.Panic().Err(err).Str("component", "OCR_WORKER").Msg("ocr engine failed to start")
	}

	// infinite loop, since sometimes worker <-> rabbitmq connection
	// gets broken.  see https://github.com/tleyden/open-ocr/issues/4
	for {
		log.Info().Str("component", "OCR_WORKER").Str("engine", engine.Name()).Msg("Creating new OCR Worker")

		ocrWorker := ocrservice.NewOcrRpcWorker(cfg.RabbitConfig, engine)
		if err := ocrWorker.Run(); err != nil {
			log.Error().Err(err).Str("component", "OCR_WORKER").Msg("Error running worker, retrying")
			time.Sleep(5 * time.Second)
			continue
		}

		// this happens when connection is closed
		err = <-ocrWorker.Done
		log.Error().Str("component", "OCR_WORKER").Err(err).Msg("OCR Worker failed with error")
	}
}
