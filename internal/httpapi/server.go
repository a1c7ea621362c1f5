// Package httpapi serves the caption and query endpoints the desktop app
// calls.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/queryproc"
)

// Options configures the router
type Options struct {
	CORSOrigins []string
	RateLimit   rate.Limit // per client IP; zero disables limiting
	RateBurst   int
}

// QueryProcessor answers location queries
type QueryProcessor interface {
	Process(ctx context.Context, req queryproc.Request) (*queryproc.Response, error)
}

// Server holds the endpoint dependencies
type Server struct {
	captioner capture.Captioner
	queries   QueryProcessor
	validate  *validator.Validate
	log       *logrus.Entry
}

// New creates a server
func New(captioner capture.Captioner, queries QueryProcessor, log *logrus.Entry) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		captioner: captioner,
		queries:   queries,
		validate:  validator.New(),
		log:       log,
	}
}

// Router builds the gin engine
func (s *Server) Router(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.log))

	config := cors.DefaultConfig()
	config.AllowOrigins = opts.CORSOrigins
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept"}
	config.AllowCredentials = true
	if len(opts.CORSOrigins) == 0 {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	}
	router.Use(cors.New(config))

	if opts.RateLimit > 0 {
		router.Use(NewIPRateLimiter(opts.RateLimit, opts.RateBurst, s.log).RateLimit())
	}

	router.GET("/health", s.health)
	router.POST("/process_caption", s.processCaption)
	router.POST("/process_query", s.processQuery)
	return router
}

// RequestLogger logs each request with its latency
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
			"client":  c.ClientIP(),
		}).Info("request")
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: detail})
}

// statusOf maps service errors to HTTP statuses
func statusOf(err error) int {
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
