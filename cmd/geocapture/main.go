// Command geocapture runs search, select and capture against the embedded map
// page in headless Chrome.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/frontend"
	"geocapture-desktop/internal/caption"
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/config"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/handlers/pageserver"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/mapview/headless"
	"geocapture-desktop/internal/markers"
	"geocapture-desktop/internal/navigator"
	"geocapture-desktop/internal/orchestrator"
	"geocapture-desktop/internal/ratelimit"
	"geocapture-desktop/internal/remote"
	"geocapture-desktop/internal/search"
)

type flags struct {
	query     string
	pick      string
	mode      string
	out       string
	lat, lng  float64
	zoom      float64
	upload    bool
	noSandbox bool
	headful   bool
	timeout   time.Duration
}

func main() {
	config.LoadEnv()
	settings, err := config.LoadSettings()
	if err != nil {
		logrus.Warnf("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	config.ApplyEnv(settings)

	var f flags
	flag.StringVar(&f.query, "query", "", "location query to search before capturing")
	flag.StringVar(&f.pick, "select", "1", "result to select: 1-based index or result ID (empty selects none)")
	flag.StringVar(&f.mode, "mode", "capture", "capture or caption")
	flag.StringVar(&f.out, "out", settings.DownloadPath, "directory for saved captures")
	flag.Float64Var(&f.lat, "lat", settings.DefaultCenterLat, "initial latitude")
	flag.Float64Var(&f.lng, "lng", settings.DefaultCenterLon, "initial longitude")
	flag.Float64Var(&f.zoom, "zoom", settings.DefaultZoom, "initial zoom")
	flag.BoolVar(&f.upload, "upload", false, "send captures to the upload endpoint")
	flag.BoolVar(&f.noSandbox, "no-sandbox", false, "run Chrome without its sandbox (containers)")
	flag.BoolVar(&f.headful, "headful", false, "show the browser window")
	flag.DurationVar(&f.timeout, "timeout", 2*time.Minute, "overall run timeout")
	flag.Parse()

	logger, err := logging.New(settings.Log)
	if err != nil {
		logrus.Fatalf("Failed to set up logging: %v", err)
	}
	log := logging.Component(logger, "geocapture")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := run(ctx, f, settings, logger); err != nil {
		log.WithError(err).Error("Run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, settings *config.UserSettings, logger *logrus.Logger) error {
	log := logging.Component(logger, "geocapture")

	pages := pageserver.NewServer(frontend.Dist(), logging.Component(logger, "pageserver"))
	if err := pages.Start(); err != nil {
		return err
	}
	defer pages.Close(context.Background())

	opts := headless.DefaultOptions()
	opts.Headless = !f.headful
	opts.NoSandbox = f.noSandbox
	browser, err := headless.Launch(opts, logging.Component(logger, "browser"))
	if err != nil {
		return err
	}
	defer browser.Close()

	view, err := browser.Open(ctx, pages.PageURL(f.lat, f.lng, f.zoom))
	if err != nil {
		return err
	}
	session := mapview.NewSession(view)
	defer session.Detach()

	limiter := ratelimit.NewHandler(nil, logging.Component(logger, "ratelimit"))
	defer limiter.Close()
	rc := remote.NewClient(settings.RequestTimeout(), limiter, logging.Component(logger, "remote"))

	notifier := orchestrator.NotifierFunc(func(event string, payload interface{}) {
		switch event {
		case orchestrator.EventCaption:
			fmt.Println("caption:", payload)
		case orchestrator.EventStatus:
			log.WithField("status", payload).Debug("status")
		}
	})

	m := markers.New(session, logging.Component(logger, "markers"))
	deps := capture.Deps{
		Session:   session,
		Results:   m,
		Sink:      orchestrator.NewSink(notifier),
		Captioner: caption.FromSettings(ctx, settings, rc, logging.Component(logger, "caption")),
		Saver:     capture.DirSaver{Dir: f.out},
		Log:       logging.Component(logger, "capture"),
	}
	if f.upload && settings.Endpoints.Upload != "" {
		deps.Uploader = remote.NewUploader(rc, settings.Endpoints.Upload)
	}
	pipeline := capture.NewPipeline(deps, capture.Options{
		Quality:  settings.ScreenshotQuality,
		Upload:   deps.Uploader != nil,
		Caption:  true,
		Download: true,
	})

	client := search.NewClient(rc, settings.Endpoints.Query, 0, logging.Component(logger, "search"))
	orch := orchestrator.New(orchestrator.Deps{
		Capturer: pipeline,
		Searcher: search.NewController(client, session, m, settings.Framing, logging.Component(logger, "search")),
		Selector: navigator.New(session, m, settings.Navigation, logging.Component(logger, "navigator")),
		Results:  m,
		Notifier: notifier,
		Log:      logging.Component(logger, "orchestrator"),
	})

	if f.query != "" {
		results, err := orch.SubmitSearch(ctx, f.query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		for i, r := range results {
			fmt.Printf("%d\t%s\t%s\t%.6f,%.6f\n", i+1, r.ID, r.Name, r.Lat, r.Lng)
		}
		if id, ok := pick(results, f.pick); ok {
			if _, err := orch.SelectResult(ctx, id); err != nil {
				return fmt.Errorf("select failed: %w", err)
			}
		} else if f.pick != "" {
			log.WithField("select", f.pick).Warn("No matching result to select")
		}
	}

	switch f.mode {
	case "caption":
		report, err := orch.RequestCaption(ctx)
		if err != nil {
			return err
		}
		if report.Err != nil {
			log.WithError(report.Err).Warn("Caption failed")
		}
	case "capture":
		report, err := orch.Capture(ctx)
		if err != nil {
			return err
		}
		if report.SavedPath != "" {
			fmt.Println("saved:", report.SavedPath)
		}
		if failed := report.Failed(); len(failed) > 0 {
			log.WithField("failed", failed).Warn("Some capture steps failed")
		}
	default:
		return fmt.Errorf("unknown mode %q", f.mode)
	}
	return nil
}

// pick resolves a 1-based index or a result ID
func pick(results []geo.Result, sel string) (string, bool) {
	if sel == "" || len(results) == 0 {
		return "", false
	}
	if n, err := strconv.Atoi(sel); err == nil {
		if n < 1 || n > len(results) {
			return "", false
		}
		return results[n-1].ID, true
	}
	for _, r := range results {
		if r.ID == sel {
			return r.ID, true
		}
	}
	return "", false
}
