package main

import (
	"context"
	goruntime "runtime"
	"sync"

	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"geocapture-desktop/internal/caption"
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/config"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/mapview/bridge"
	"geocapture-desktop/internal/mapview/rpc"
	"geocapture-desktop/internal/markers"
	"geocapture-desktop/internal/navigator"
	"geocapture-desktop/internal/orchestrator"
	"geocapture-desktop/internal/ratelimit"
	"geocapture-desktop/internal/remote"
	"geocapture-desktop/internal/search"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// App struct
type App struct {
	ctx      context.Context
	settings *config.UserSettings
	mu       sync.Mutex
	devMode  bool // Enable verbose logging in dev mode only
	phClient posthog.Client
	logger   *logrus.Logger
	log      *logrus.Entry

	bridge           *bridge.Bridge
	session          *mapview.Session
	markers          *markers.Manager
	pipeline         *capture.Pipeline
	searchClient     *search.Client
	rateLimitHandler *ratelimit.Handler
	orch             *orchestrator.Orchestrator
}

// NewApp creates a new App application struct
func NewApp() *App {
	config.LoadEnv()

	settings, err := config.LoadSettings()
	if err != nil {
		logrus.Warnf("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}
	config.ApplyEnv(settings)

	logger, err := logging.New(settings.Log)
	if err != nil {
		logrus.Warnf("Failed to set up logging, using stderr: %v", err)
		logger = logrus.New()
	}
	log := logging.Component(logger, "app")
	log.WithField("path", config.GetSettingsPath()).Info("Settings loaded")

	var phClient posthog.Client
	if PostHogKey != "" {
		client, err := posthog.NewWithConfig(PostHogKey, posthog.Config{Endpoint: PostHogHost})
		if err != nil {
			log.WithError(err).Warn("Failed to initialize PostHog")
		} else {
			phClient = client
		}
	}

	return &App{
		settings: settings,
		phClient: phClient,
		logger:   logger,
		log:      log,
		session:  mapview.NewSession(nil),
	}
}

// startup is called when the app starts. The map view stays detached until
// the page reports ready through MapReady.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if a.devMode {
		a.logger.SetLevel(logrus.DebugLevel)
	}

	a.bridge = bridge.New(bridge.WailsEmitter(ctx), 0, logging.Component(a.logger, "bridge"))

	a.rateLimitHandler = ratelimit.NewHandler(nil, logging.Component(a.logger, "ratelimit"))
	a.rateLimitHandler.SetCallbacks(
		func(event ratelimit.RateLimitEvent) {
			wailsRuntime.EventsEmit(ctx, "ratelimit", event)
		},
		func(event ratelimit.RateLimitEvent) {
			wailsRuntime.EventsEmit(ctx, "ratelimit", event)
		},
		func(service string) {
			wailsRuntime.EventsEmit(ctx, "ratelimit", map[string]interface{}{
				"service":   service,
				"recovered": true,
				"message":   service + " service available again",
			})
		},
	)

	a.mu.Lock()
	s := *a.settings
	a.mu.Unlock()

	rc := remote.NewClient(s.RequestTimeout(), a.rateLimitHandler, logging.Component(a.logger, "remote"))
	notifier := orchestrator.NotifierFunc(func(event string, payload interface{}) {
		wailsRuntime.EventsEmit(ctx, event, payload)
	})

	a.markers = markers.New(a.session, logging.Component(a.logger, "markers"))

	deps := capture.Deps{
		Session:   a.session,
		Results:   a.markers,
		Sink:      orchestrator.NewSink(notifier),
		Captioner: caption.FromSettings(ctx, &s, rc, logging.Component(a.logger, "caption")),
		Saver:     a.newSaver(&s),
		Log:       logging.Component(a.logger, "capture"),
	}
	if s.Endpoints.Upload != "" {
		deps.Uploader = remote.NewUploader(rc, s.Endpoints.Upload)
	}
	a.pipeline = capture.NewPipeline(deps, capture.Options{
		Quality:  s.ScreenshotQuality,
		Upload:   s.UploadOnCapture,
		Caption:  s.CaptionOnCapture,
		Download: s.SaveOnCapture,
	})

	a.searchClient = search.NewClient(rc, s.Endpoints.Query, s.SearchCacheTTL(), logging.Component(a.logger, "search"))
	controller := search.NewController(a.searchClient, a.session, a.markers, s.Framing, logging.Component(a.logger, "search"))
	nav := navigator.New(a.session, a.markers, s.Navigation, logging.Component(a.logger, "navigator"))

	a.orch = orchestrator.New(orchestrator.Deps{
		Capturer: a.pipeline,
		Searcher: controller,
		Selector: nav,
		Results:  a.markers,
		Notifier: notifier,
		Tracker:  posthogTracker{client: a.phClient},
		Log:      logging.Component(a.logger, "orchestrator"),
	})

	a.TrackEvent("app_started", map[string]interface{}{
		"version": a.GetAppVersion(),
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
	})
}

func (a *App) newSaver(s *config.UserSettings) capture.Saver {
	if s.PromptOnSave {
		return dialogSaver{app: a}
	}
	return capture.DirSaver{Dir: s.DownloadPath}
}

// posthogTracker sends orchestrator analytics to PostHog
type posthogTracker struct {
	client posthog.Client
}

func (t posthogTracker) Track(event string, props map[string]interface{}) {
	if t.client == nil {
		return
	}
	t.client.Enqueue(posthog.Capture{
		DistinctId: "backend_user",
		Event:      event,
		Properties: props,
	})
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	posthogTracker{client: a.phClient}.Track(event, props)
}

// MapReady attaches the page's map view. The page calls it on every load, so
// a reload replaces the previous view.
func (a *App) MapReady() {
	a.session.Attach(rpc.New(a.bridge))
	a.log.WithField("generation", a.session.Generation()).Info("Map view attached")
}

// ResolveMapCall completes a map call the page has finished
func (a *App) ResolveMapCall(id, result, errMsg string) {
	if err := a.bridge.Resolve(id, result, errMsg); err != nil {
		a.log.WithError(err).Debug("Late map call reply")
	}
}

// Capture screenshots the map and runs upload, caption and save. Outcomes
// are reported through status events.
func (a *App) Capture() {
	if _, err := a.orch.Capture(a.ctx); err != nil {
		a.log.WithError(err).Debug("Capture ended with error")
	}
}

// RequestCaption screenshots the map and captions it
func (a *App) RequestCaption() {
	if _, err := a.orch.RequestCaption(a.ctx); err != nil {
		a.log.WithError(err).Debug("Caption ended with error")
	}
}

// SubmitSearch runs a location query and returns its results
func (a *App) SubmitSearch(query string) []geo.Result {
	results, err := a.orch.SubmitSearch(a.ctx, query)
	if err != nil {
		a.log.WithError(err).Debug("Search ended with error")
		return []geo.Result{}
	}
	return results
}

// SelectResult flies to a result and shows its overlay
func (a *App) SelectResult(id string) {
	if _, err := a.orch.SelectResult(a.ctx, id); err != nil {
		a.log.WithError(err).Debug("Select ended with error")
	}
}

// shutdown detaches the map view and releases resources
func (a *App) shutdown(ctx context.Context) {
	a.session.Detach()
	if a.bridge != nil {
		a.bridge.Close()
	}
	if a.rateLimitHandler != nil {
		a.rateLimitHandler.Close()
	}
	if a.phClient != nil {
		a.phClient.Close()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := config.SaveSettings(a.settings); err != nil {
		a.log.WithError(err).Warn("Failed to save settings on exit")
	}
}

// GetAppVersion returns the current application version
func (a *App) GetAppVersion() string {
	return AppVersion
}
