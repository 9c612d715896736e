package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/telemetry/internal/cache"
	"github.com/smallbiznis/telemetry/internal/config"
	"github.com/smallbiznis/telemetry/internal/event"
	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
	"github.com/smallbiznis/telemetry/internal/metering"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	"github.com/smallbiznis/telemetry/internal/observability"
	obslogger "github.com/smallbiznis/telemetry/internal/observability/logger"
	obstracing "github.com/smallbiznis/telemetry/internal/observability/tracing"
	"github.com/smallbiznis/telemetry/internal/uniquename"
	"github.com/smallbiznis/telemetry/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxBatchSize = 1000

var Module = fx.Module("http.server",
	cache.Module,
	uniquename.Module,
	event.Module,
	metering.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, promMetrics *telemetry.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(promMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	eventSvc    eventdomain.Service
	meteringSvc meteringdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	EventSvc    eventdomain.Service
	MeteringSvc meteringdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		eventSvc:    p.EventSvc,
		meteringSvc: p.MeteringSvc,
	}

	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/events", s.RecordEvents)
	v1.GET("/events", s.ListEvents)

	v1.POST("/samples", s.RecordSample)
	v1.GET("/samples", s.ListSamples)
	v1.GET("/users", s.ListUsers)
	v1.GET("/projects", s.ListProjects)
	v1.GET("/resources", s.ListResources)
	v1.GET("/meters", s.ListMeters)
}
