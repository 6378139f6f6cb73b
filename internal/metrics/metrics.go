// Package metrics Prometheus-метрики сервиса зон.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/shopzones/internal/backup"
	"github.com/annel0/shopzones/internal/scanner"
	"github.com/annel0/shopzones/internal/zone"
)

// Collectors метрики сканирования, копирования и кэша локаций.
// Реализует index.Observer; Observe* подключаются как хуки OnComplete.
//
// Метрики:
// * zones_scan_duration_seconds: histogram
// * zones_scans_total{result}
// * zones_backup_total{layout,result}
// * zones_restore_total{layout,result}
// * zones_blocks_restored_total, zones_restore_failed_writes_total
// * zones_cache_lookups_total{result}
// * zones_cache_maintenance_total{op}, zones_cache_pruned_total
// * zones_indexed: gauge
type Collectors struct {
	scanDuration   prometheus.Histogram
	scans          *prometheus.CounterVec
	backups        *prometheus.CounterVec
	restores       *prometheus.CounterVec
	blocksRestored prometheus.Counter
	failedWrites   prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	maintenance    *prometheus.CounterVec
	pruned         prometheus.Counter
	indexed        prometheus.Gauge
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zones",
			Name:      "scan_duration_seconds",
			Help:      "Длительность сканирования мира.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "scans_total",
			Help:      "Завершенные сканирования по классу результата.",
		}, []string{"result"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "backup_total",
			Help:      "Резервные копии зон по раскладке и результату.",
		}, []string{"layout", "result"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "restore_total",
			Help:      "Восстановления зон по раскладке и результату.",
		}, []string{"layout", "result"}),
		blocksRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "blocks_restored_total",
			Help:      "Клетки, записанные при восстановлении.",
		}),
		failedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "restore_failed_writes_total",
			Help:      "Клетки, запись которых при восстановлении завершилась ошибкой.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "cache_lookups_total",
			Help:      "Обращения к кэшу локаций.",
		}, []string{"result"}),
		maintenance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "cache_maintenance_total",
			Help:      "Запуски обслуживания кэша локаций (optimize, clear).",
		}, []string{"op"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zones",
			Name:      "cache_pruned_total",
			Help:      "Записи, удаленные из кэша локаций при обслуживании.",
		}),
		indexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zones",
			Name:      "indexed",
			Help:      "Число зон в индексе.",
		}),
	}

	reg.MustRegister(c.scanDuration, c.scans, c.backups, c.restores,
		c.blocksRestored, c.failedWrites, c.cacheLookups, c.maintenance, c.pruned, c.indexed)
	return c
}

// CacheLookup учитывает попадание или промах кэша локаций
func (c *Collectors) CacheLookup(hit bool) {
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// CacheMaintenance учитывает чистку кэша op, удалившую entries записей
func (c *Collectors) CacheMaintenance(op string, entries int) {
	c.maintenance.WithLabelValues(op).Inc()
	c.pruned.Add(float64(entries))
}

// ZonesIndexed обновляет размер индекса
func (c *Collectors) ZonesIndexed(n int) {
	c.indexed.Set(float64(n))
}

// ObserveScan учитывает результат сканирования
func (c *Collectors) ObserveScan(r scanner.Result) {
	c.scans.WithLabelValues(zone.Kind(r.Err)).Inc()
	if r.Err == nil {
		c.scanDuration.Observe(r.Duration.Seconds())
	}
}

// ObserveBackup учитывает результат резервного копирования
func (c *Collectors) ObserveBackup(r backup.BackupResult) {
	c.backups.WithLabelValues(r.Layout, zone.Kind(r.Err)).Inc()
}

// ObserveRestore учитывает результат восстановления.
// Восстановление с ошибками записи отдельных клеток помечается как partial.
func (c *Collectors) ObserveRestore(r backup.RestoreResult) {
	result := zone.Kind(r.Err)
	if r.Partial() {
		result = "partial"
	}
	c.restores.WithLabelValues(r.Layout, result).Inc()
	c.blocksRestored.Add(float64(r.BlocksRestored))
	c.failedWrites.Add(float64(r.FailedWrites))
}
