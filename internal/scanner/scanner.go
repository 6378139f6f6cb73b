// Package scanner находит маяки в мире и собирает из них зоны.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/shopzones/internal/index"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/scheduler"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
)

// DefaultRadius полуразмер области сканирования по x/z
const DefaultRadius = 300

// ZoneStore сохраняет набор зон мира после сканирования
type ZoneStore interface {
	ReplaceWorld(ctx context.Context, world string, zones []*zone.Zone, removed []string) error
}

// Result итог сканирования мира
type Result struct {
	World             string
	MarkersFound      int
	TeleportsFound    int
	DuplicateColumns  int
	ZonesCreated      int
	ZonesWithTeleport int
	Duration          time.Duration
	Err               error
}

// Success сообщает об успехе сканирования
func (r Result) Success() bool { return r.Err == nil }

// Message краткое описание результата
func (r Result) Message() string {
	if r.Err != nil {
		return fmt.Sprintf("сканирование мира %s не выполнено: %v", r.World, r.Err)
	}
	return fmt.Sprintf("мир %s: маяков %d, телепортов %d, зон %d (с телепортом %d) за %.1fs",
		r.World, r.MarkersFound, r.TeleportsFound, r.ZonesCreated, r.ZonesWithTeleport, r.Duration.Seconds())
}

// Options параметры сканера
type Options struct {
	Radius           int
	Workers          int
	ProgressInterval time.Duration
	Logger           *logging.Logger
	Store            ZoneStore
	// OnComplete вызывается с каждым завершенным результатом (метрики, события)
	OnComplete []func(Result)
}

// Scanner обнаружение зон. Одновременно выполняется не более одного сканирования.
type Scanner struct {
	access  world.Access
	index   *index.ZoneIndex
	sched   *scheduler.Scheduler
	opts    Options
	logger  *logging.Logger
	running atomic.Bool
}

// New создает сканер
func New(access world.Access, ix *index.ZoneIndex, sched *scheduler.Scheduler, opts Options) *Scanner {
	if opts.Radius <= 0 {
		opts.Radius = DefaultRadius
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5 * time.Second
	}
	return &Scanner{
		access: access,
		index:  ix,
		sched:  sched,
		opts:   opts,
		logger: logging.OrDefault(opts.Logger).With("scanner"),
	}
}

// IsScanning сообщает, выполняется ли сканирование
func (s *Scanner) IsScanning() bool {
	return s.running.Load()
}

// Scan запускает сканирование мира. Повторный вызов во время работы
// сразу завершается результатом с ErrScanInProgress.
func (s *Scanner) Scan(ctx context.Context, worldName string) *scheduler.Future[Result] {
	if !s.running.CompareAndSwap(false, true) {
		return scheduler.Completed(Result{World: worldName, Err: zone.ErrScanInProgress})
	}

	return scheduler.Async(func() (res Result, err error) {
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				res = Result{World: worldName, Err: fmt.Errorf("паника при сканировании: %v: %w", r, zone.ErrFatal)}
			}
			for _, fn := range s.opts.OnComplete {
				fn(res)
			}
		}()
		return s.run(ctx, worldName), nil
	})
}

// run доводит сканирование до конца независимо от отмены ctx: частично
// примененная замена оставила бы индекс и хранилище рассинхронизированными.
// Отмена ограничивает только ожидание результата вызывающим.
func (s *Scanner) run(ctx context.Context, worldName string) Result {
	ctx = context.WithoutCancel(ctx)
	ctx, span := otel.Tracer("shopzones/scanner").Start(ctx, "zones.scan")
	defer span.End()
	span.SetAttributes(attribute.String("world", worldName), attribute.Int("radius", s.opts.Radius))

	start := time.Now()
	res := Result{World: worldName}
	fail := func(err error) Result {
		res.Err = err
		res.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("❌ %s", res.Message())
		return res
	}

	view, ok := s.access.World(worldName)
	if !ok {
		return fail(fmt.Errorf("%s: %w", worldName, zone.ErrWorldNotFound))
	}

	s.logger.Info("🔍 Сканирование мира %s (радиус %d)", worldName, s.opts.Radius)
	markers, teleports, err := s.collect(ctx, view)
	if err != nil {
		return fail(fmt.Errorf("поиск маркеров: %w", err))
	}
	res.MarkersFound = len(markers)
	res.TeleportsFound = len(teleports)
	s.logger.Info("Фаза 1: найдено маяков %d, телепортов %d", len(markers), len(teleports))

	accepted, dups := s.dedupeColumns(markers)
	zones := s.buildZones(worldName, Cluster(accepted))
	res.DuplicateColumns = dups
	res.ZonesWithTeleport = assignTeleports(zones, teleports)
	res.ZonesCreated = len(zones)
	s.logger.Info("Фаза 2: зон %d, с телепортом %d, дубликатов колонн %d", len(zones), res.ZonesWithTeleport, dups)

	// индекс меняется только в эксклюзивном контексте
	removed, err := scheduler.Exclusive(s.sched, func() ([]string, error) {
		return s.index.ReplaceWorld(worldName, zones)
	}).Await(ctx)
	if err != nil {
		return fail(fmt.Errorf("замена зон мира: %w", err))
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.ReplaceWorld(ctx, worldName, zones, removed); err != nil {
			return fail(fmt.Errorf("сохранение зон: %w", err))
		}
	}

	res.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("markers", res.MarkersFound), attribute.Int("zones", res.ZonesCreated))
	s.logger.Info("✅ %s", res.Message())
	return res
}

// collect собирает маркеры зон и телепортов в кубоиде сканирования
func (s *Scanner) collect(ctx context.Context, view world.View) (markers, teleports []vec.Vec3, err error) {
	r := s.opts.Radius
	min := vec.Vec3{X: -r, Y: view.MinY(), Z: -r}
	max := vec.Vec3{X: r, Y: view.MaxY(), Z: r}

	if bulk, ok := view.(world.MaterialScanner); ok {
		type found struct{ markers, teleports []vec.Vec3 }
		f, err := scheduler.Background(s.sched, func() (found, error) {
			var out found
			err := bulk.ScanMaterials(min, max, []world.Material{world.MarkerZone, world.MarkerTeleport},
				func(pos vec.Vec3, m world.Material) {
					if m == world.MarkerZone {
						out.markers = append(out.markers, pos)
					} else {
						out.teleports = append(out.teleports, pos)
					}
				})
			return out, err
		}).Await(ctx)
		return f.markers, f.teleports, err
	}
	return s.collectSlabs(ctx, view, min, max)
}

// slab маркеры одного слоя
type slab struct{ markers, teleports []vec.Vec3 }

// collectSlabs читает кубоид поклеточно, разбив его на слои по x.
// Слои выполняются в фоновом пуле, errgroup только ограничивает их число.
func (s *Scanner) collectSlabs(ctx context.Context, view world.View, min, max vec.Vec3) (markers, teleports []vec.Vec3, err error) {
	width := max.X - min.X + 1
	slabs := s.opts.Workers * 4
	if slabs > width {
		slabs = width
	}
	slabWidth := (width + slabs - 1) / slabs
	totalColumns := int64(width) * int64(max.Z-min.Z+1)

	var (
		mu      sync.Mutex
		columns atomic.Int64
	)

	stopProgress := make(chan struct{})
	defer close(stopProgress)
	go func() {
		ticker := time.NewTicker(s.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopProgress:
				return
			case <-ticker.C:
				done := columns.Load()
				s.logger.Info("Прогресс сканирования %s: %d / %d колонн (%.1f%%)",
					view.Name(), done, totalColumns, float64(done)*100/float64(totalColumns))
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for x0 := min.X; x0 <= max.X; x0 += slabWidth {
		x0 := x0
		x1 := x0 + slabWidth - 1
		if x1 > max.X {
			x1 = max.X
		}
		g.Go(func() error {
			// сам слой читается воркером фонового пула планировщика
			found, err := scheduler.Background(s.sched, func() (slab, error) {
				var out slab
				for x := x0; x <= x1; x++ {
					if err := gctx.Err(); err != nil {
						return out, err
					}
					for z := min.Z; z <= max.Z; z++ {
						for y := min.Y; y <= max.Y; y++ {
							pos := vec.Vec3{X: x, Y: y, Z: z}
							b, err := view.BlockAt(pos)
							if err != nil {
								return out, fmt.Errorf("чтение %s: %w", pos, err)
							}
							switch b.Material {
							case world.MarkerZone:
								out.markers = append(out.markers, pos)
							case world.MarkerTeleport:
								out.teleports = append(out.teleports, pos)
							}
						}
						columns.Add(1)
					}
				}
				return out, nil
			}).Await(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			markers = append(markers, found.markers...)
			teleports = append(teleports, found.teleports...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return markers, teleports, nil
}
