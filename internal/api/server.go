// Package api административный REST-интерфейс сервиса зон.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/shopzones/internal/app"
	"github.com/annel0/shopzones/internal/auth"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/middleware"
)

// Server REST API сервиса зон
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server
	app     *app.App
	tokens  *auth.Tokens
	ops     *auth.Operators
	ttl     time.Duration
	host    *HostMetrics
	logger  *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      int                  // порт для запуска сервера
	App       *app.App             // собранный сервис зон
	Tokens    *auth.Tokens         // nil отключает проверку токенов
	Operators *auth.Operators      // учетные записи для /api/auth/login
	TokenTTL  time.Duration        // срок жизни выданного токена
	Registry  *prometheus.Registry // метрики HTTP и /metrics
	Logger    *logging.Logger
}

// NewServer создает REST API сервер
func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = 8088
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 12 * time.Hour
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New() // без стандартного logger/recovery
	router.Use(gin.Recovery())

	// === Observability middleware ===
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	router.Use(otelgin.Middleware("zones_api"))

	promMw := middleware.NewPrometheusMiddleware("zones_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Registry)

	router.Use(corsMiddleware())

	s := &Server{
		router: router,
		app:    config.App,
		tokens: config.Tokens,
		ops:    config.Operators,
		ttl:    config.TokenTTL,
		host:   NewHostMetrics(),
		logger: logging.OrDefault(config.Logger).With("api"),
	}
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes настраивает маршруты REST API
func (s *Server) setupRoutes() {
	s.router.POST("/api/auth/login", s.handleLogin)

	api := s.router.Group("/api")
	api.Use(s.jwtMiddleware())
	{
		api.GET("/worlds/:world/zones", s.handleWorldZones)
		api.GET("/zones/:id", s.handleGetZone)
		api.GET("/locate", s.handleLocate)
		api.GET("/nearby", s.handleNearby)
		api.GET("/validate", s.handleValidate)
		api.GET("/stats", s.handleStats)
		api.GET("/backups", s.handleListBackups)
		api.GET("/zones/:id/backup", s.handleBackupInfo)

		// Изменяющие операции
		admin := api.Group("/")
		admin.Use(s.adminMiddleware())
		{
			admin.POST("/worlds/:world/scan", s.handleScan)
			admin.DELETE("/zones/:id", s.handleDeleteZone)
			admin.PUT("/zones/:id/teleport", s.handleSetTeleport)
			admin.DELETE("/zones/:id/teleport", s.handleClearTeleport)
			admin.PUT("/zones/:id/columns", s.handleAddColumn)
			admin.DELETE("/zones/:id/columns", s.handleRemoveColumn)
			admin.POST("/zones/:id/backup", s.handleBackup)
			admin.DELETE("/zones/:id/backup", s.handleDeleteBackup)
			admin.POST("/zones/:id/restore", s.handleRestore)
			admin.POST("/backups", s.handleBackupAll)
			admin.POST("/index/optimize", s.handleOptimizeIndex)
			admin.DELETE("/index/cache", s.handleClearCache)
		}
	}

	s.router.GET("/health", s.handleHealth)
}

// Handler возвращает http.Handler (тесты, встраивание)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start запускает REST сервер; блокируется до остановки
func (s *Server) Start() error {
	s.logger.Info("📡 REST API слушает %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop дожидается завершения активных запросов
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleHealth проверка состояния сервера
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"time":     time.Now().Unix(),
		"node":     s.app.NodeID(),
		"scanning": s.app.Scanner.IsScanning(),
	})
}
