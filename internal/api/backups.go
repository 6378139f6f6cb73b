package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annel0/shopzones/internal/backup"
	"github.com/annel0/shopzones/internal/zone"
)

type backupView struct {
	ZoneID           string  `json:"zone_id"`
	Layout           string  `json:"layout"`
	Success          bool    `json:"success"`
	UnitsSaved       int     `json:"units_saved"`
	BlocksSaved      int     `json:"blocks_saved"`
	EntitiesRemoved  int     `json:"entities_removed"`
	CompressionRatio float64 `json:"compression_ratio"`
	DurationSeconds  float64 `json:"duration_seconds"`
	Error            string  `json:"error,omitempty"`
}

func newBackupView(r backup.BackupResult) backupView {
	v := backupView{
		ZoneID:           r.ZoneID,
		Layout:           r.Layout,
		Success:          r.Success,
		UnitsSaved:       r.UnitsSaved,
		BlocksSaved:      r.BlocksSaved,
		EntitiesRemoved:  r.EntitiesRemoved,
		CompressionRatio: r.CompressionRatio,
		DurationSeconds:  r.Duration.Seconds(),
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

type restoreView struct {
	ZoneID          string  `json:"zone_id"`
	Layout          string  `json:"layout"`
	Success         bool    `json:"success"`
	Partial         bool    `json:"partial"`
	BlocksRestored  int     `json:"blocks_restored"`
	EntitiesRemoved int     `json:"entities_removed"`
	FailedWrites    int     `json:"failed_writes"`
	SkippedRuns     int     `json:"skipped_runs"`
	SkippedColumns  int     `json:"skipped_columns"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// service выбирает сервис по ?layout=; пустой означает general
func (s *Server) service(c *gin.Context) (*backup.Service, error) {
	svc, err := s.app.Backup(c.Query("layout"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return svc, nil
}

// handleBackup снимает резервную копию зоны
func (s *Server) handleBackup(c *gin.Context) {
	svc, err := s.service(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	res, err := svc.Backup(ctx, c.Param("id")).Await(ctx)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if res.Err != nil {
		respondError(c, res.Err, newBackupView(res))
		return
	}
	respondOK(c, res.Message(), newBackupView(res))
}

// handleRestore восстанавливает зону из резервной копии.
// Ошибки записи отдельных клеток не делают ответ неуспешным, они видны в partial/failed_writes.
func (s *Server) handleRestore(c *gin.Context) {
	svc, err := s.service(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	res, err := svc.Restore(ctx, c.Param("id")).Await(ctx)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	view := restoreView{
		ZoneID:          res.ZoneID,
		Layout:          res.Layout,
		Success:         res.Success,
		Partial:         res.Partial(),
		BlocksRestored:  res.BlocksRestored,
		EntitiesRemoved: res.EntitiesRemoved,
		FailedWrites:    res.FailedWrites,
		SkippedRuns:     res.SkippedRuns,
		SkippedColumns:  res.SkippedColumns,
		DurationSeconds: res.Duration.Seconds(),
	}
	if res.Err != nil {
		respondError(c, res.Err, view)
		return
	}
	respondOK(c, res.Message(), view)
}

type backupAllView struct {
	Layout    string       `json:"layout"`
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []backupView `json:"results"`
}

// handleBackupAll копирует все зоны по очереди и возвращает сводку
func (s *Server) handleBackupAll(c *gin.Context) {
	svc, err := s.service(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	progress := func(done, total int) {
		if done == total || done%10 == 0 {
			s.logger.Info("📦 Копирование %s: %d/%d", svc.Layout().Name, done, total)
		}
	}
	results, err := svc.BackupAll(ctx, progress).Await(ctx)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	view := backupAllView{Layout: svc.Layout().Name, Total: len(results), Results: make([]backupView, 0, len(results))}
	for _, r := range results {
		if r.Success {
			view.Succeeded++
		} else {
			view.Failed++
		}
		view.Results = append(view.Results, newBackupView(r))
	}
	respondOK(c, fmt.Sprintf("Скопировано зон: %d из %d", view.Succeeded, view.Total), view)
}

// handleListBackups перечисляет зоны, у которых есть копия раскладки
func (s *Server) handleListBackups(c *gin.Context) {
	svc, err := s.service(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ids, err := svc.SnapshotIDs(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, fmt.Sprintf("Копий: %d", len(ids)), gin.H{"layout": svc.Layout().Name, "zones": ids})
}

// handleBackupInfo время копии зоны
func (s *Server) handleBackupInfo(c *gin.Context) {
	svc, err := s.service(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	id := c.Param("id")
	ts, err := svc.SnapshotTimestamp(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Копия найдена", gin.H{
		"zone_id":   id,
		"layout":    svc.Layout().Name,
		"timestamp": ts.UTC().Format(time.RFC3339),
	})
}

// handleDeleteBackup удаляет копию зоны
func (s *Server) handleDeleteBackup(c *gin.Context) {
	svc, err := s.service(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	has, err := svc.HasSnapshot(ctx, id)
	if err == nil && !has {
		err = fmt.Errorf("%s: %w", id, zone.ErrSnapshotNotFound)
	}
	if err == nil {
		err = svc.DeleteSnapshot(ctx, id)
	}
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respondOK(c, "Копия удалена", gin.H{"zone_id": id, "layout": svc.Layout().Name})
}
