// Package backup снимает и восстанавливает содержимое колонн зон.
// Общая и рыночная резервные копии являются экземплярами одного Service с разными раскладками.
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/shopzones/internal/index"
	"github.com/annel0/shopzones/internal/logging"
	"github.com/annel0/shopzones/internal/scheduler"
	"github.com/annel0/shopzones/internal/snapshot"
	"github.com/annel0/shopzones/internal/vec"
	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
)

// Repository хранилище снимков одной раскладки
type Repository interface {
	Layout() snapshot.Layout
	Save(ctx context.Context, s snapshot.Snapshot) error
	// Load возвращает zone.ErrSnapshotNotFound или zone.ErrCorruptSnapshot
	Load(ctx context.Context, zoneID string) (snapshot.Snapshot, error)
	Has(ctx context.Context, zoneID string) (bool, error)
	Timestamp(ctx context.Context, zoneID string) (time.Time, error)
	Delete(ctx context.Context, zoneID string) error
	IDs(ctx context.Context) ([]string, error)
}

// Options параметры сервиса
type Options struct {
	Logger *logging.Logger
	// Now источник времени снимков
	Now       func() time.Time
	OnBackup  []func(BackupResult)
	OnRestore []func(RestoreResult)
}

// Service резервное копирование и восстановление зон
type Service struct {
	access world.Access
	index  *index.ZoneIndex
	sched  *scheduler.Scheduler
	repo   Repository
	layout snapshot.Layout
	opts   Options
	logger *logging.Logger
	tracer trace.Tracer
}

// New создает сервис для раскладки репозитория
func New(access world.Access, ix *index.ZoneIndex, sched *scheduler.Scheduler, repo Repository, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	layout := repo.Layout()
	return &Service{
		access: access,
		index:  ix,
		sched:  sched,
		repo:   repo,
		layout: layout,
		opts:   opts,
		logger: logging.OrDefault(opts.Logger).With("backup/" + layout.Name),
		tracer: otel.Tracer("shopzones/backup"),
	}
}

// Layout раскладка сервиса
func (s *Service) Layout() snapshot.Layout {
	return s.layout
}

// resolve находит зону и ее мир
func (s *Service) resolve(zoneID string) (*zone.Zone, world.View, error) {
	z, ok := s.index.Get(zoneID)
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", zoneID, zone.ErrZoneNotFound)
	}
	view, ok := s.access.World(z.World())
	if !ok {
		return nil, nil, fmt.Errorf("мир %s зоны %s недоступен: %w", z.World(), zoneID, zone.ErrFatal)
	}
	return z, view, nil
}

func (s *Service) finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Backup снимает содержимое колонн зоны и сохраняет документ.
// Кодирование выполняется в фоне, удаление сущностей и запись документа в эксклюзивном контексте.
func (s *Service) Backup(ctx context.Context, zoneID string) *scheduler.Future[BackupResult] {
	return scheduler.Async(func() (res BackupResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				res = BackupResult{ZoneID: zoneID, Layout: s.layout.Name, Err: fmt.Errorf("паника при копировании: %v: %w", r, zone.ErrFatal)}
			}
			res.Success = res.Err == nil
			for _, fn := range s.opts.OnBackup {
				fn(res)
			}
		}()
		return s.backup(ctx, zoneID), nil
	})
}

// backup, как и restore, доводится до конца после запуска: удаление
// сущностей и запись снимка идут одной эксклюзивной задачей.
func (s *Service) backup(ctx context.Context, zoneID string) BackupResult {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "zones.backup")
	span.SetAttributes(attribute.String("zone", zoneID), attribute.String("layout", s.layout.Name))

	start := time.Now()
	res := BackupResult{ZoneID: zoneID, Layout: s.layout.Name}
	fail := func(err error) BackupResult {
		res.Err = err
		res.Duration = time.Since(start)
		s.finishSpan(span, err)
		s.logger.Error("❌ %s", res.Message())
		return res
	}

	z, view, err := s.resolve(zoneID)
	if err != nil {
		return fail(err)
	}

	snap, err := scheduler.Background(s.sched, func() (snapshot.Snapshot, error) {
		return s.encode(z, view)
	}).Await(ctx)
	if err != nil {
		return fail(fmt.Errorf("кодирование колонн: %w", err))
	}

	removed, err := scheduler.Exclusive(s.sched, func() (int, error) {
		n := s.removeEntities(z, view)
		return n, s.repo.Save(ctx, snap)
	}).Await(ctx)
	res.EntitiesRemoved = removed
	if err != nil {
		return fail(fmt.Errorf("сохранение снимка: %w", err))
	}

	res.UnitsSaved = snap.Units()
	res.BlocksSaved = snap.TotalBlocks
	res.CompressionRatio = snap.CompressionRatio(len(s.layout.Offsets))
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("blocks", res.BlocksSaved), attribute.Int("units", res.UnitsSaved))
	s.finishSpan(span, nil)
	s.logger.Info("✅ %s", res.Message())
	return res
}

// encode читает клетки раскладки каждой колонны
func (s *Service) encode(z *zone.Zone, view world.View) (snapshot.Snapshot, error) {
	cols := z.Columns()
	snap := snapshot.Snapshot{
		ZoneID:    z.ID(),
		Timestamp: s.opts.Now(),
		Format:    s.layout.Format,
		Layered:   s.layout.Layered,
		Anchors:   make([]vec.Vec3, 0, len(cols)),
		Columns:   make(map[vec.Vec2]snapshot.ColumnSnapshot, len(cols)),
	}

	for _, col := range cols {
		anchor := col.Anchor
		runs, err := s.layout.EncodeColumn(anchor.Y, func(y int) (world.Block, error) {
			b, err := view.BlockAt(vec.Vec3{X: anchor.X, Y: y, Z: anchor.Z})
			if errors.Is(err, world.ErrOutOfRange) {
				return world.Empty(), nil
			}
			return b, err
		})
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("колонна %s: %w", col.Key(), err)
		}

		snap.Anchors = append(snap.Anchors, anchor)
		snap.Columns[col.Key()] = snapshot.ColumnSnapshot{AnchorY: anchor.Y, Runs: runs}
		for _, r := range runs {
			snap.TotalBlocks += r.Len()
		}
	}
	return snap, nil
}

// removeEntities удаляет все сущности кроме игроков, стоящие в клетках зоны.
// Вызывается только из эксклюзивного контекста.
func (s *Service) removeEntities(z *zone.Zone, view world.View) int {
	box, ok := z.BoundingBox()
	if !ok {
		return 0
	}
	removed := 0
	for _, e := range view.EntitiesWithin(box.Min, box.Max) {
		if e.IsPlayer() || !z.ContainsCell(e.Position.Cell()) {
			continue
		}
		if err := view.RemoveEntity(e.ID); err != nil {
			if !errors.Is(err, world.ErrEntityNotFound) {
				s.logger.Warn("Не удалось удалить сущность %d в зоне %s: %v", e.ID, z.ID(), err)
			}
			continue
		}
		removed++
	}
	return removed
}

// Restore возвращает колонны зоны к сохраненному снимку.
// Отсутствующий или неразборчивый снимок не меняет мир.
func (s *Service) Restore(ctx context.Context, zoneID string) *scheduler.Future[RestoreResult] {
	return scheduler.Async(func() (res RestoreResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				res = RestoreResult{ZoneID: zoneID, Layout: s.layout.Name, Err: fmt.Errorf("паника при восстановлении: %v: %w", r, zone.ErrFatal)}
			}
			res.Success = res.Err == nil
			for _, fn := range s.opts.OnRestore {
				fn(res)
			}
		}()
		return s.restore(ctx, zoneID), nil
	})
}

// restore не прерывается отменой ctx: мир, уже очищенный в эксклюзивном
// контексте, должен получить и запись снимка. Отмена ограничивает только ожидание.
func (s *Service) restore(ctx context.Context, zoneID string) RestoreResult {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "zones.restore")
	span.SetAttributes(attribute.String("zone", zoneID), attribute.String("layout", s.layout.Name))

	start := time.Now()
	res := RestoreResult{ZoneID: zoneID, Layout: s.layout.Name}
	fail := func(err error) RestoreResult {
		res.Err = err
		res.Duration = time.Since(start)
		s.finishSpan(span, err)
		s.logger.Error("❌ %s", res.Message())
		return res
	}

	z, view, err := s.resolve(zoneID)
	if err != nil {
		return fail(err)
	}

	snap, err := scheduler.Background(s.sched, func() (snapshot.Snapshot, error) {
		return s.repo.Load(ctx, zoneID)
	}).Await(ctx)
	if err != nil {
		return fail(err)
	}
	res.SkippedRuns = snap.SkippedRuns
	if snap.SkippedRuns > 0 {
		s.logger.Warn("Снимок %s: пропущено поврежденных отрезков %d", zoneID, snap.SkippedRuns)
	}

	applied, err := scheduler.Exclusive(s.sched, func() (RestoreResult, error) {
		out := res
		out.EntitiesRemoved = s.removeEntities(z, view)
		s.apply(z, view, snap, &out)
		return out, nil
	}).Await(ctx)
	if err != nil {
		return fail(fmt.Errorf("применение снимка: %w", err))
	}

	res = applied
	res.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("blocks", res.BlocksRestored), attribute.Int("failed_writes", res.FailedWrites))
	s.finishSpan(span, nil)
	if res.Partial() {
		s.logger.Warn("⚠️ %s", res.Message())
	} else {
		s.logger.Info("✅ %s", res.Message())
	}
	return res
}

// apply очищает клетки раскладки живых колонн и записывает отрезки снимка.
// Клетка якоря не очищается и не перезаписывается, остальные маяки стираются как любой блок.
// Ошибка записи отдельной клетки учитывается и не прерывает восстановление.
func (s *Service) apply(z *zone.Zone, view world.View, snap snapshot.Snapshot, res *RestoreResult) {
	write := func(pos vec.Vec3, b world.Block) bool {
		if err := view.SetBlock(pos, b); err != nil {
			res.FailedWrites++
			s.logger.Warn("Запись %s в зоне %s: %v", pos, z.ID(), err)
			return false
		}
		return true
	}

	for _, col := range z.Columns() {
		for _, off := range s.layout.Offsets {
			if !s.layout.Writable(off) {
				continue
			}
			pos := vec.Vec3{X: col.Anchor.X, Y: col.Anchor.Y + off, Z: col.Anchor.Z}
			b, err := view.BlockAt(pos)
			if err != nil || b.IsEmpty() {
				continue
			}
			write(pos, world.Empty())
		}
	}

	for _, key := range snap.SortedKeys() {
		live, ok := z.Column(key)
		if !ok {
			res.SkippedColumns++
			s.logger.Warn("Колонна %s отсутствует в зоне %s, пропуск", key, z.ID())
			continue
		}
		stored := snap.Columns[key]
		delta := live.Anchor.Y - stored.AnchorY
		for _, r := range stored.Runs {
			r = r.Shift(delta)
			b := r.Block()
			for y := r.StartY; y <= r.EndY; y++ {
				if !s.layout.Writable(y - live.Anchor.Y) {
					continue
				}
				if write(vec.Vec3{X: key.X, Y: y, Z: key.Z}, b) {
					res.BlocksRestored++
				}
			}
		}
	}
}

// BackupAll копирует все зоны строго по очереди: следующая зона начинается
// после завершения всего конвейера предыдущей. progress вызывается после каждой зоны.
func (s *Service) BackupAll(ctx context.Context, progress func(done, total int)) *scheduler.Future[[]BackupResult] {
	return scheduler.Async(func() ([]BackupResult, error) {
		zones := s.index.All()
		results := make([]BackupResult, 0, len(zones))
		s.logger.Info("📦 Резервное копирование зон: %d", len(zones))

		for i, z := range zones {
			res, err := s.Backup(ctx, z.ID()).Await(ctx)
			if err != nil {
				return results, err
			}
			results = append(results, res)
			if progress != nil {
				progress(i+1, len(zones))
			}
		}

		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		s.logger.Info("✅ Копирование завершено: успешно %d, ошибок %d", len(results)-failed, failed)
		return results, nil
	})
}

// HasSnapshot проверяет наличие снимка зоны
func (s *Service) HasSnapshot(ctx context.Context, zoneID string) (bool, error) {
	return s.repo.Has(ctx, zoneID)
}

// SnapshotTimestamp время снимка зоны
func (s *Service) SnapshotTimestamp(ctx context.Context, zoneID string) (time.Time, error) {
	return s.repo.Timestamp(ctx, zoneID)
}

// DeleteSnapshot удаляет снимок зоны
func (s *Service) DeleteSnapshot(ctx context.Context, zoneID string) error {
	return s.repo.Delete(ctx, zoneID)
}

// SnapshotIDs перечисляет зоны со снимками
func (s *Service) SnapshotIDs(ctx context.Context) ([]string, error) {
	return s.repo.IDs(ctx)
}
