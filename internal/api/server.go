package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/logging"
	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/service"
)

type Config struct {
	Host  string `mapstructure:"host" json:"host,omitempty"`
	Port  int64  `mapstructure:"port" json:"port,omitempty"`
	Token string `mapstructure:"token" json:"token,omitempty"`
}

type Server struct {
	cfg         Config
	planService service.Plan
	logger      *logrus.Logger
	echo        *echo.Echo
}

// NewServer returns a new server.
func NewServer(cfg Config, planService service.Plan, logger *logrus.Logger, withMetrics bool) *Server {
	s := &Server{
		cfg:         cfg,
		planService: planService,
		logger:      logger.WithField("service", "sip-api").Logger,
	}
	s.echo = s.routes(withMetrics)
	return s
}

func (s *Server) routes(withMetrics bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(logging.LoggerMiddleware(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	if withMetrics {
		e.Use(metrics.HTTPMiddleware())
	}
	e.Use(middleware.CORS())
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.Validator = &RequestValidator{Validator: validator.New()}

	e.GET("/ping", s.Ping)

	sipGroup := e.Group("/sip")
	if s.cfg.Token != "" {
		sipGroup.Use(s.tokenAuthMiddleware)
	}
	sipGroup.POST("", s.CreatePlan)
	sipGroup.GET("/:wallet_id", s.GetWalletPlans)
	sipGroup.GET("/plan/:sip_id", s.GetPlan)
	sipGroup.GET("/plan/:sip_id/executions", s.GetPlanExecutions)
	sipGroup.PUT("/:wallet_id/:sip_id/status", s.UpdatePlanStatus)
	sipGroup.PUT("/:wallet_id/:sip_id", s.UpdatePlan)
	sipGroup.POST("/:sip_id/execute", s.ExecutePlan)
	sipGroup.DELETE("/:wallet_id/:sip_id", s.DeletePlan)

	return e
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("api server shutdown error: %v", err)
		}
	}()

	s.logger.Infof("api server listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "SIP server is running")
}
