// Command geocaptured serves the caption and query endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"geocapture-desktop/internal/caption"
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/config"
	"geocapture-desktop/internal/httpapi"
	"geocapture-desktop/internal/llm"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/queryproc"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "listen address")
	geosearch := flag.String("geosearch", cfg.GeoSearchURL, "geosearch /tiles/search URL (empty serves placeholder results)")
	flag.Parse()

	logger, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	log := logging.Component(logger, "geocaptured")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var captioner capture.Captioner = caption.Placeholder{}
	var parser queryproc.Parser
	client, err := llm.New(ctx, llm.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, logging.Component(logger, "llm"))
	switch {
	case err == nil:
		captioner = caption.NewGemini(client)
		parser = queryproc.NewGeminiParser(client)
		log.Info("Gemini captioning and query parsing enabled")
	case errors.Is(err, llm.ErrNoKey):
		log.Info("No GEMINI_API_KEY; using placeholder captions and raw queries")
	default:
		log.WithError(err).Warn("Gemini unavailable; using placeholder captions and raw queries")
	}

	var tiles queryproc.TileSearcher
	if *geosearch != "" {
		tiles = queryproc.NewGeoSearch(*geosearch, cfg.GeoSearchTimeout, logging.Component(logger, "geosearch"))
	} else {
		log.Info("No geosearch URL; serving placeholder query results")
	}

	server := httpapi.New(captioner, queryproc.NewService(parser, tiles, logging.Component(logger, "query")), logging.Component(logger, "http"))
	srv := &http.Server{
		Addr: *addr,
		Handler: server.Router(httpapi.Options{
			CORSOrigins: cfg.CORSOrigins,
			RateLimit:   rate.Limit(cfg.RateLimit),
			RateBurst:   cfg.RateBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Shutdown incomplete")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":      *addr,
		"geosearch": *geosearch,
		"rate":      cfg.RateLimit,
	}).Info("Server is starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("Server failed")
	}
}
