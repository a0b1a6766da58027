package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/orderfeed/internal/config"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/internal/observability"
	obsmiddleware "github.com/smallbiznis/orderfeed/internal/observability/logger"
	obstracing "github.com/smallbiznis/orderfeed/internal/observability/tracing"
	"github.com/smallbiznis/orderfeed/internal/order/service"
	"github.com/smallbiznis/orderfeed/internal/order/session"
	"github.com/smallbiznis/orderfeed/internal/ratelimit"
	"github.com/smallbiznis/orderfeed/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
		QuietRoutes:     []string{"/health", "/metrics", "/v1/orders/stream"},
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(MetricsMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger, metrics *telemetry.Metrics) *gin.Engine {
	return NewEngine(obsCfg, log, metrics)
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
	engine   *gin.Engine
	cfg      config.Config
	log      *zap.Logger
	orders   *service.Service
	identity *session.Identity
	docs     *docstore.Store
	metrics  *telemetry.Metrics
	genID    *snowflake.Node
	limiter  *ratelimit.WriteLimiter

	heartbeat time.Duration
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Log      *zap.Logger
	Orders   *service.Service
	Identity *session.Identity
	Docs     *docstore.Store
	Metrics  *telemetry.Metrics
	GenID    *snowflake.Node
	Limiter  *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		log:       p.Log.Named("http"),
		orders:    p.Orders,
		identity:  p.Identity,
		docs:      p.Docs,
		metrics:   p.Metrics,
		genID:     p.GenID,
		limiter:   p.Limiter,
		heartbeat: 15 * time.Second,
	}
	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/session", s.SignIn)
	v1.DELETE("/session", s.SignOut)
	v1.GET("/session", s.GetSession)

	orders := v1.Group("/orders")
	orders.GET("", s.RequireSession(), s.ListOrders)
	orders.GET("/counts", s.RequireSession(), s.OrderCounts)
	orders.GET("/stream", s.RequireSession(), s.StreamOrders)
	orders.PUT("/filter", s.RequireSession(), s.SetFilter)

	orders.POST("", s.ThrottleWrites(), s.CreateOrder)
	orders.PUT("/:id", s.ThrottleWrites(), s.PutOrder)
	orders.DELETE("/:id", s.ThrottleWrites(), s.DeleteOrder)
	v1.PUT("/profiles/:owner/orders", s.ThrottleWrites(), s.ReplaceProfileOrders)
}
