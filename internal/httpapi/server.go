// Package httpapi serves the run trigger, run status and listing workflow
// endpoints over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amishk599/jobinbox/internal/model"
	"github.com/amishk599/jobinbox/internal/status"
	"github.com/amishk599/jobinbox/internal/store"
)

const corsMaxAge = 12 * time.Hour

// Runner starts runs and reports their progress.
type Runner interface {
	Start(req model.RunRequest) error
	Status() status.Snapshot
	Sources() []model.Source
}

// Repository is the read and workflow side of the store.
type Repository interface {
	ListRuns(ctx context.Context, owner string, limit int) ([]model.Run, error)
	ListListings(ctx context.Context, owner string, f store.ListFilter) ([]model.Listing, error)
	UpdateStatus(ctx context.Context, owner string, id int64, to model.Status, now time.Time) (model.Listing, error)
	ResetApplicationDate(ctx context.Context, owner string, id int64) error
	CountByStatus(ctx context.Context, owner string) (map[model.Status]int, error)
}

// Options configures the router.
type Options struct {
	Owner       string
	CORSOrigins []string // empty allows any origin
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	runner Runner
	repo   Repository
	owner  string
	logger *slog.Logger
	now    func() time.Time
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(runner Runner, repo Repository, opts Options) *gin.Engine {
	s := &Server{
		runner: runner,
		repo:   repo,
		owner:  opts.Owner,
		logger: opts.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	router := gin.New()
	router.Use(cors.New(corsConfig(opts.CORSOrigins)))
	router.Use(requestLogger(opts.Logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	api.POST("/runs", s.startRun)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/status", s.runStatus)
	api.GET("/sources", s.listSources)
	api.GET("/listings", s.listListings)
	api.PATCH("/listings/:id/status", s.updateStatus)
	api.DELETE("/listings/:id/application-date", s.resetApplicationDate)
	api.GET("/stats", s.stats)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        corsMaxAge,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
