// Package collector hosts the local HTTP server that the runner reports
// to during `evalsight serve`. It persists everything it receives to the
// local run store.
package collector

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/evalsight-go/internal/env"
	"github.com/stellarlinkco/evalsight-go/internal/runstore"
)

// DefaultAddress is where the collector listens when no address is
// configured.
const DefaultAddress = "localhost:5555"

// Server collects run telemetry from local test suite runs.
type Server struct {
	router *gin.Engine
	store  *runstore.Store
}

// NewServer builds a collector over the given store. When
// EVALSIGHT_CLI_SERVER_TOKEN is set, all routes require it as a bearer
// token.
func NewServer(st *runstore.Store) (*Server, error) {
	if st == nil {
		return nil, errors.New("collector: nil store")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	s := &Server{router: r, store: st}
	if token := env.CLIServerToken.Get(); token != "" {
		r.Use(bearerAuthMiddleware(token))
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/grids", s.handleGrids)
	s.router.POST("/start", s.handleStart)
	s.router.POST("/results", s.handleResult)
	s.router.POST("/evals", s.handleEval)
	s.router.POST("/errors", s.handleError)
	s.router.POST("/end", s.handleEnd)
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("collector: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = DefaultAddress
	}
	return s.router.Run(addr)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// logRunSummary prints one line per finished run with its result, eval,
// and error counts. Read failures only degrade the log line.
func (s *Server) logRunSummary(ctx context.Context, suiteID, runID string) {
	log := clog.FromContext(ctx)
	results, err := s.store.ResultsForRun(ctx, runID)
	if err != nil {
		log.Warnf("collector: summarize run %s: %v", runID, err)
		return
	}
	evals, err := s.store.EvaluationsForRun(ctx, runID)
	if err != nil {
		log.Warnf("collector: summarize run %s: %v", runID, err)
		return
	}
	errs, err := s.store.ErrorsForRun(ctx, runID)
	if err != nil {
		log.Warnf("collector: summarize run %s: %v", runID, err)
		return
	}
	log.Infof("collector: suite %s run %s finished: %d results, %d evals, %d errors",
		suiteID, runID, len(results), len(evals), len(errs))
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
