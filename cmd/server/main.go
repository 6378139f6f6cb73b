package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/shopzones/internal/api"
	"github.com/annel0/shopzones/internal/app"
	"github.com/annel0/shopzones/internal/auth"
	"github.com/annel0/shopzones/internal/config"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/observability"
	"github.com/annel0/shopzones/internal/scanner"
	"github.com/annel0/shopzones/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию ZONES_CONFIG)")
	flag.Parse()

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		os.Exit(1)
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logging.Warn("Неизвестный уровень логирования %q, используется INFO", cfg.Logging.Level)
		level = logging.INFO
	}
	logging.Default().SetLevels(level, logging.DEBUG)

	logging.Info("🎮 Запуск сервиса торговых зон...")
	if err := run(cfg, level); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервис успешно остановлен")
}

func run(cfg *config.Config, level logging.LogLevel) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.Default()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logging.Warn("Остановка телеметрии: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === МИРЫ ===
	access := world.NewMemoryAccess()
	devWorld := ""
	if cfg.DevWorld.Enabled {
		w, _, err := app.DevWorld(cfg.DevWorld, logger)
		if err != nil {
			return err
		}
		access.Put(w)
		devWorld = w.Name()
	}

	// === СЕРВИС ЗОН ===
	svc, err := app.New(app.Options{
		Config:   cfg,
		Access:   access,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logging.Warn("Остановка сервиса зон: %v", err)
		}
	}()
	if err := svc.Start(ctx); err != nil {
		return err
	}

	var tokens *auth.Tokens
	if secret := cfg.Server.GetJWTSecret(); secret != "" {
		tokens, err = auth.NewTokens(secret)
		if err != nil {
			return fmt.Errorf("секрет токенов: %w", err)
		}
		logging.Info("🔐 Проверка токенов операторов включена")
	} else {
		logging.Warn("Секрет токенов не задан, API доступен без авторизации")
	}

	operators, err := loadOperators(cfg.Server.Operators)
	if err != nil {
		return err
	}
	if operators.Len() > 0 && tokens == nil {
		logging.Warn("Операторы заданы, но без секрета токенов вход отключен")
	}

	// REST API пишет в собственный файл логов
	manager := logging.GetLoggerManager()
	manager.SetDefaultLevels(level, logging.DEBUG)
	defer func() {
		if err := manager.CloseAll(); err != nil {
			logging.Warn("Закрытие логов: %v", err)
		}
	}()
	apiLogger := logging.GetAPILogger()

	restServer := api.NewServer(api.Config{
		Port:      cfg.Server.GetRESTPort(),
		App:       svc,
		Tokens:    tokens,
		Operators: operators,
		TokenTTL:  cfg.Server.GetTokenTTL(),
		Registry:  registry,
		Logger:    apiLogger,
	})

	// Отдельный порт только для /metrics
	metricsRouter := gin.New()
	metricsRouter.Use(gin.Recovery())
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           metricsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if devWorld != "" {
		// сервер принимает запросы, пока идет первое сканирование
		svc.Scanner.Scan(ctx, devWorld).Then(func(res scanner.Result, err error) {
			if err != nil {
				logging.Error("❌ Сканирование мира %s: %v", devWorld, err)
				return
			}
			logging.Info("🔍 %s", res.Message())
		})
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost:%d", cfg.Server.GetRESTPort())
	logging.Info("   📡 Метрики: http://localhost:%d/metrics", cfg.Server.GetMetricsPort())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(restServer.Start)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("сервер метрик: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("📡 Завершение работы...")

		// === GRACEFUL SHUTDOWN ===
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := restServer.Stop(sctx); err != nil {
			logging.Error("❌ Ошибка остановки REST API: %v", err)
		}
		return metricsServer.Shutdown(sctx)
	})
	return g.Wait()
}

func loadOperators(list []config.OperatorConfig) (*auth.Operators, error) {
	ops := make([]auth.Operator, 0, len(list))
	for _, o := range list {
		ops = append(ops, auth.Operator{Name: o.Name, PasswordHash: o.PasswordHash, Role: o.Role})
	}
	operators, err := auth.NewOperators(ops)
	if err != nil {
		return nil, fmt.Errorf("операторы: %w", err)
	}
	return operators, nil
}
