// Package pageserver serves the embedded map page on a loopback port so a
// headless browser can load it outside the desktop shell.
package pageserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/logging"
)

// Server manages the page HTTP server
type Server struct {
	assets  fs.FS
	log     *logrus.Entry
	srv     *http.Server
	pageURL string
}

// NewServer creates a page server for assets, which must contain index.html
func NewServer(assets fs.FS, log *logrus.Entry) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{assets: assets, log: log}
}

// URL returns the server root, empty before Start
func (s *Server) URL() string {
	return s.pageURL
}

// PageURL returns the page URL with the initial camera in the query string
func (s *Server) PageURL(lat, lng, zoom float64) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("zoom", strconv.FormatFloat(zoom, 'f', -1, 64))
	return s.pageURL + "/?" + q.Encode()
}

// corsMiddleware lets the page fetch its own assets from any origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the asset handler without a listener
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(s.assets)))
	return corsMiddleware(mux)
}

// Start listens on a random loopback port and serves in the background
func (s *Server) Start() error {
	if _, err := fs.Stat(s.assets, "index.html"); err != nil {
		return fmt.Errorf("page assets missing index.html: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start page server: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	s.pageURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	s.log.WithField("url", s.pageURL).Info("Page server started")

	s.srv = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Warn("Page server stopped")
		}
	}()

	return nil
}

// Close stops the server
func (s *Server) Close(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
