// Package app собирает сервис зон из конфигурации: хранилище, индекс,
// сканер, резервное копирование, шину событий и инвалидацию кэша.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/shopzones/internal/backup"
	"github.com/annel0/shopzones/internal/cache"
	"github.com/annel0/shopzones/internal/config"
	"github.com/annel0/shopzones/internal/eventbus"
	"github.com/annel0/shopzones/internal/index"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/metrics"
	"github.com/annel0/shopzones/internal/scanner"
	"github.com/annel0/shopzones/internal/scheduler"
	"github.com/annel0/shopzones/internal/snapshot"
	"github.com/annel0/shopzones/internal/storage"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
)

// Options зависимости, которые можно подменить (тесты, встраивание).
// Пустые поля создаются из конфигурации.
type Options struct {
	Config   *config.Config
	Access   world.Access
	Store    storage.DocumentStore
	Bus      eventbus.EventBus
	Registry prometheus.Registerer
	Logger   *logging.Logger
}

// App корень сервиса зон
type App struct {
	cfg    *config.Config
	nodeID string
	logger *logging.Logger

	Access    world.Access
	Index     *index.ZoneIndex
	Scheduler *scheduler.Scheduler
	Scanner   *scanner.Scanner
	Zones     *storage.ZoneRepository
	Backups   map[string]*backup.Service
	Bus       eventbus.EventBus
	Metrics   *metrics.Collectors

	store       storage.DocumentStore
	invalidator *cache.NATSInvalidator
	exporter    *eventbus.MetricsExporter
	listener    eventbus.Subscription
	started     bool

	optimizeMu    sync.Mutex
	optimizeTimer *time.Timer
	closing       bool
}

// New собирает сервис. При ошибке уже открытые ресурсы закрываются.
func New(opts Options) (_ *App, err error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Access == nil {
		return nil, errors.New("не задан доступ к мирам")
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	a := &App{
		cfg:     cfg,
		nodeID:  cfg.Cache.NodeID,
		logger:  logging.OrDefault(opts.Logger),
		Access:  opts.Access,
		Backups: make(map[string]*backup.Service),
		store:   opts.Store,
		Bus:     opts.Bus,
	}
	if a.nodeID == "" {
		a.nodeID = uuid.NewString()
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store == nil {
		inner, err := storage.Open(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("хранилище: %w", err)
		}
		framed, err := storage.NewFramed(inner)
		if err != nil {
			inner.Close()
			return nil, fmt.Errorf("сжатие документов: %w", err)
		}
		a.store = framed
	}

	if a.Bus == nil {
		if cfg.EventBus.URL != "" {
			retention := time.Duration(cfg.EventBus.Retention) * time.Hour
			bus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
			if err != nil {
				return nil, fmt.Errorf("шина событий: %w", err)
			}
			a.Bus = bus
		} else {
			a.Bus = eventbus.NewMemoryBus(cfg.EventBus.Capacity)
		}
	}

	a.Metrics = metrics.New(opts.Registry)
	a.exporter = eventbus.NewMetricsExporter(a.Bus, opts.Registry, 5*time.Second)

	a.Index = index.New(index.Options{
		MaxCacheEntries: cfg.Index.GetMaxCacheEntries(),
		Logger:          a.logger,
		Observer:        a.Metrics,
	})

	if cfg.Cache.NATSURL != "" {
		inv, err := cache.NewNATSInvalidator(&cache.InvalidatorConfig{
			NATSURL: cfg.Cache.NATSURL,
			Subject: cfg.Cache.Subject,
			NodeID:  a.nodeID,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("инвалидация кэша: %w", err)
		}
		ix := a.Index
		if err := inv.Subscribe(func(zoneID string) error {
			ix.DropZoneCache(zoneID)
			return nil
		}); err != nil {
			inv.Close()
			return nil, fmt.Errorf("подписка на инвалидацию: %w", err)
		}
		a.invalidator = inv
		a.Index.SetInvalidator(inv)
	}

	a.Scheduler = scheduler.New(cfg.Scan.GetWorkers(), a.logger)
	a.Zones = storage.NewZoneRepository(a.store, a.logger)

	a.Scanner = scanner.New(a.Access, a.Index, a.Scheduler, scanner.Options{
		Radius:           cfg.Scan.GetRadius(),
		Workers:          cfg.Scan.GetWorkers(),
		ProgressInterval: cfg.Scan.ProgressInterval,
		Logger:           a.logger,
		Store:            a.Zones,
		OnComplete:       []func(scanner.Result){a.Metrics.ObserveScan, a.publishScan},
	})

	for _, layout := range []snapshot.Layout{snapshot.GeneralLayout(), snapshot.MarketLayout()} {
		a.Backups[layout.Name] = backup.New(a.Access, a.Index, a.Scheduler,
			storage.NewSnapshotRepository(a.store, layout),
			backup.Options{
				Logger:    a.logger,
				OnBackup:  []func(backup.BackupResult){a.Metrics.ObserveBackup, a.publishBackup},
				OnRestore: []func(backup.RestoreResult){a.Metrics.ObserveRestore, a.publishRestore},
			})
	}

	return a, nil
}

// NodeID идентификатор узла в событиях и инвалидациях
func (a *App) NodeID() string {
	return a.nodeID
}

// Start загружает сохраненные зоны в индекс и запускает фоновые компоненты
func (a *App) Start(ctx context.Context) error {
	sub, err := eventbus.StartLoggingListener(a.Bus, a.logger)
	if err != nil {
		return fmt.Errorf("подписка на события: %w", err)
	}
	a.listener = sub
	a.exporter.Start()
	a.started = true

	n, err := a.LoadZones(ctx)
	if err != nil {
		return err
	}
	if every := a.cfg.Index.GetOptimizeInterval(); every > 0 {
		a.scheduleOptimize(every)
	}
	a.logger.Info("✅ Сервис зон запущен: узел %s, загружено зон %d", a.nodeID, n)
	return nil
}

// scheduleOptimize ставит следующую чистку кэша локаций в эксклюзивный контекст.
// Каждый запуск планирует следующий, пока сервис не закрыт.
func (a *App) scheduleOptimize(every time.Duration) {
	a.optimizeMu.Lock()
	defer a.optimizeMu.Unlock()
	if a.closing {
		return
	}
	a.optimizeTimer = a.Scheduler.RunLaterExclusive(every, func() {
		n := a.Index.Optimize()
		a.Metrics.CacheMaintenance("optimize", n)
		if n > 0 {
			a.logger.Info("🧹 Кэш локаций: удалено устаревших записей %d", n)
		}
		a.scheduleOptimize(every)
	})
}

// OptimizeIndex удаляет записи кэша, указывающие на исчезнувшие зоны
func (a *App) OptimizeIndex(ctx context.Context) (int, error) {
	return scheduler.Exclusive(a.Scheduler, func() (int, error) {
		n := a.Index.Optimize()
		a.Metrics.CacheMaintenance("optimize", n)
		return n, nil
	}).Await(ctx)
}

// ClearIndexCache полностью очищает кэш локаций; возвращает число сброшенных записей
func (a *App) ClearIndexCache(ctx context.Context) (int, error) {
	return scheduler.Exclusive(a.Scheduler, func() (int, error) {
		n := a.Index.Stats().CacheSize
		a.Index.ClearCache()
		a.Metrics.CacheMaintenance("clear", n)
		a.logger.Info("Кэш локаций очищен: %d записей", n)
		return n, nil
	}).Await(ctx)
}

// LoadZones читает все зоны из хранилища и добавляет их в индекс в эксклюзивном контексте
func (a *App) LoadZones(ctx context.Context) (int, error) {
	zones, err := a.Zones.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("загрузка зон: %w", err)
	}
	return scheduler.Exclusive(a.Scheduler, func() (int, error) {
		for _, z := range zones {
			a.Index.Add(z)
		}
		return len(zones), nil
	}).Await(ctx)
}

// Backup возвращает сервис раскладки; пустое имя означает общую раскладку
func (a *App) Backup(layout string) (*backup.Service, error) {
	l, err := snapshot.LayoutByName(layout)
	if err != nil {
		return nil, err
	}
	return a.Backups[l.Name], nil
}

// RemoveZone удаляет зону из индекса и хранилища и публикует zone.removed
func (a *App) RemoveZone(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)
	z, err := scheduler.Exclusive(a.Scheduler, func() (*zone.Zone, error) {
		z, ok := a.Index.Get(id)
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, zone.ErrZoneNotFound)
		}
		a.Index.Remove(id)
		return z, nil
	}).Await(ctx)
	if err != nil {
		return err
	}

	if err := a.Zones.Delete(ctx, id); err != nil && !errors.Is(err, zone.ErrNotFound) {
		return fmt.Errorf("удаление документа зоны %s: %w", id, err)
	}
	a.publish(ctx, eventbus.TypeZoneRemoved, eventbus.ZoneRemoved{ZoneID: id, World: z.World()})
	a.logger.Info("Зона %s удалена", id)
	return nil
}

// SetTeleport задает точку прибытия зоны и сохраняет зону
func (a *App) SetTeleport(ctx context.Context, id string, tp zone.TeleportPoint) error {
	return a.mutateAndSave(ctx, id, nil, func(z *zone.Zone) error {
		z.SetTeleport(tp)
		return nil
	})
}

// ClearTeleport убирает точку прибытия зоны и сохраняет зону
func (a *App) ClearTeleport(ctx context.Context, id string) error {
	return a.mutateAndSave(ctx, id, nil, func(z *zone.Zone) error {
		z.ClearTeleport()
		return nil
	})
}

// AddColumn добавляет зоне колонну с якорем anchor. Колонна должна быть
// свободна во всем мире и примыкать к зоне гранью.
func (a *App) AddColumn(ctx context.Context, id string, anchor vec.Vec3) error {
	check := func(z *zone.Zone) error {
		for _, other := range a.Index.InWorld(z.World()) {
			if other.ID() == id {
				continue
			}
			if col, ok := other.Column(anchor.Column()); ok {
				return fmt.Errorf("%s принадлежит зоне %s (якорь y=%d): %w",
					anchor.Column(), other.ID(), col.Anchor.Y, zone.ErrColumnClaimed)
			}
		}
		return nil
	}
	return a.mutateAndSave(ctx, id, check, func(z *zone.Zone) error {
		if _, ok := z.Column(anchor.Column()); ok {
			return z.AddColumn(anchor)
		}
		if err := z.AddColumn(anchor); err != nil {
			return err
		}
		if !z.IsConnected() {
			z.RemoveColumn(anchor.X, anchor.Z)
			return fmt.Errorf("якорь %s не примыкает к зоне %s: %w", anchor, id, zone.ErrDisconnected)
		}
		return nil
	})
}

// RemoveColumn удаляет колонну (x, z) зоны. Последнюю колонну и колонну,
// без которой зона распадается, удалить нельзя.
func (a *App) RemoveColumn(ctx context.Context, id string, x, zc int) error {
	return a.mutateAndSave(ctx, id, nil, func(z *zone.Zone) error {
		key := vec.Vec2{X: x, Z: zc}
		col, ok := z.Column(key)
		if !ok {
			return fmt.Errorf("%s в зоне %s: %w", key, id, zone.ErrColumnNotFound)
		}
		if z.ColumnCount() == 1 {
			return fmt.Errorf("%s последняя колонна зоны %s, удалите зону: %w", key, id, zone.ErrConflict)
		}
		z.RemoveColumn(x, zc)
		if !z.IsConnected() {
			if err := z.AddColumn(col.Anchor); err != nil {
				return err
			}
			return fmt.Errorf("без %s зона %s распадается: %w", key, id, zone.ErrDisconnected)
		}
		return nil
	})
}

// mutateAndSave изменяет зону в эксклюзивном контексте и сохраняет ее.
// check выполняется там же до изменения, пока индекс не заблокирован.
// Отмена ctx не прерывает уже поставленное изменение и его сохранение.
func (a *App) mutateAndSave(ctx context.Context, id string, check, fn func(z *zone.Zone) error) error {
	ctx = context.WithoutCancel(ctx)
	z, err := scheduler.Exclusive(a.Scheduler, func() (*zone.Zone, error) {
		if check != nil {
			cur, ok := a.Index.Get(id)
			if !ok {
				return nil, fmt.Errorf("%s: %w", id, zone.ErrZoneNotFound)
			}
			if err := check(cur); err != nil {
				return nil, err
			}
		}
		if err := a.Index.MutateZone(id, fn); err != nil {
			return nil, err
		}
		z, _ := a.Index.Get(id)
		return z, nil
	}).Await(ctx)
	if err != nil {
		return err
	}
	return a.Zones.Save(ctx, z)
}

// Close останавливает компоненты в обратном порядке запуска
func (a *App) Close() error {
	var errs []error
	a.optimizeMu.Lock()
	a.closing = true
	if a.optimizeTimer != nil {
		a.optimizeTimer.Stop()
	}
	a.optimizeMu.Unlock()
	if a.listener != nil {
		a.listener.Unsubscribe()
	}
	if a.started {
		a.exporter.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.invalidator != nil {
		errs = append(errs, a.invalidator.Close())
	}
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func (a *App) publish(ctx context.Context, eventType string, payload any) {
	ev, err := eventbus.NewEnvelope(a.nodeID, eventType, payload)
	if err != nil {
		a.logger.Warn("Событие %s не создано: %v", eventType, err)
		return
	}
	if err := a.Bus.Publish(ctx, ev); err != nil {
		a.logger.Warn("Событие %s не опубликовано: %v", eventType, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (a *App) publishScan(r scanner.Result) {
	a.publish(context.Background(), eventbus.TypeScanCompleted, eventbus.ScanCompleted{
		World:             r.World,
		Success:           r.Success(),
		MarkersFound:      r.MarkersFound,
		ZonesCreated:      r.ZonesCreated,
		ZonesWithTeleport: r.ZonesWithTeleport,
		DurationMs:        r.Duration.Milliseconds(),
		Error:             errString(r.Err),
	})
}

func (a *App) publishBackup(r backup.BackupResult) {
	a.publish(context.Background(), eventbus.TypeBackupCompleted, eventbus.BackupCompleted{
		ZoneID:           r.ZoneID,
		Layout:           r.Layout,
		Success:          r.Success,
		BlocksSaved:      r.BlocksSaved,
		CompressionRatio: r.CompressionRatio,
		Error:            errString(r.Err),
	})
}

func (a *App) publishRestore(r backup.RestoreResult) {
	a.publish(context.Background(), eventbus.TypeRestoreCompleted, eventbus.RestoreCompleted{
		ZoneID:         r.ZoneID,
		Layout:         r.Layout,
		Success:        r.Success,
		BlocksRestored: r.BlocksRestored,
		FailedWrites:   r.FailedWrites,
		Error:          errString(r.Err),
	})
}

// DevWorld строит генерируемый мир для локальной разработки
func DevWorld(cfg config.DevWorldConfig, logger *logging.Logger) (*world.MemoryWorld, []world.Plot, error) {
	name := cfg.Name
	if name == "" {
		name = "world"
	}
	w := world.NewMemoryWorld(name, 0, 255)
	plots, err := world.NewGenerator(cfg.Seed, cfg.Size).Generate(w)
	if err != nil {
		return nil, nil, fmt.Errorf("генерация мира %s: %w", name, err)
	}
	logging.OrDefault(logger).Info("📦 Мир разработки %s: блоков %d, площадок %d", name, w.BlockCount(), len(plots))
	return w, plots, nil
}
