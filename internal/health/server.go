package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Checker is anything that can report whether a dependency is reachable,
// such as the Postgres backend or the Redis trigger registry.
type Checker interface {
	Ping(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Server provides a simple HTTP server for health checks.
// /healthz returns 200 when every registered dependency answers, 503 otherwise.
type Server struct {
	port    int
	checks  map[string]Checker
	timeout time.Duration
	server  *http.Server
}

// New creates a new health server on the specified port.
func New(port int, checks map[string]Checker) *Server {
	if checks == nil {
		checks = map[string]Checker{}
	}
	return &Server{
		port:    port,
		checks:  checks,
		timeout: 3 * time.Second,
	}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		res := report{Status: "OK", Checks: make(map[string]string, len(names))}
		code := http.StatusOK
		for _, name := range names {
			if err := s.checks[name].Ping(ctx); err != nil {
				res.Checks[name] = err.Error()
				res.Status = "UNAVAILABLE"
				code = http.StatusServiceUnavailable
				continue
			}
			res.Checks[name] = "OK"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(res)
	})
	return mux
}

// Start starts the health server and blocks until the context is cancelled.
// It gracefully shuts down when the context is done.
func (s *Server) Start(ctx context.Context, logger *logrus.Logger) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("health server shutdown error: %v", err)
		}
	}()

	logger.Infof("health probe server listening on :%d", s.port)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server failed: %w", err)
	}

	return nil
}
