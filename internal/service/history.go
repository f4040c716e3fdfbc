package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sshcollectorpro/versionboard/internal/database"
	"github.com/sshcollectorpro/versionboard/internal/model"
)

// ErrRunNotFound 扫描记录不存在
var ErrRunNotFound = errors.New("scan run not found")

// HistoryService 扫描历史的持久化与查询（仅用于审计）
type HistoryService struct {
	db          *gorm.DB
	collectorID string
}

// NewHistoryService 创建历史服务
func NewHistoryService(db *gorm.DB, collectorID string) *HistoryService {
	return &HistoryService{db: db, collectorID: collectorID}
}

// Save 保存一轮扫描及其结果，结果按完成顺序编号
func (h *HistoryService) Save(ctx context.Context, report *Report) error {
	run := model.ScanRun{
		ID:            report.RunID,
		CollectorID:   h.collectorID,
		InventoryPath: report.InventoryPath,
		Status:        report.Status(),
		Total:         report.Total,
		Failed:        report.Failed,
		StartTime:     report.StartedAt,
		EndTime:       report.StartedAt.Add(report.Duration),
		Duration:      report.Duration.Milliseconds(),
	}
	if len(report.Archives) > 0 {
		run.ArchiveKey = report.Archives[0].URI
	}

	rows := make([]model.ScanResult, 0, len(report.Results))
	for i, r := range report.Results {
		rows = append(rows, model.ScanResult{
			RunID:    report.RunID,
			Seq:      i + 1,
			IP:       r.IP,
			Hostname: r.Hostname,
			Version:  r.Version,
			Failed:   r.Failed,
			ErrorMsg: r.Error,
		})
	}

	return database.TransactionWithRetry(h.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("failed to save scan run: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("failed to save scan results: %w", err)
		}
		return nil
	}, 3, 50*time.Millisecond)
}

// SaveFailure 记录因清单错误而中止的扫描
func (h *HistoryService) SaveFailure(ctx context.Context, runID, inventoryPath string, started time.Time, cause error) error {
	end := time.Now()
	run := model.ScanRun{
		ID:            runID,
		CollectorID:   h.collectorID,
		InventoryPath: inventoryPath,
		Status:        model.ScanStatusFailed,
		ErrorMsg:      cause.Error(),
		StartTime:     started,
		EndTime:       end,
		Duration:      end.Sub(started).Milliseconds(),
	}
	if err := h.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to save scan run: %w", err)
	}
	return nil
}

// ListRuns 按开始时间倒序分页列出扫描记录（不含明细）
func (h *HistoryService) ListRuns(ctx context.Context, limit, offset int) ([]model.ScanRun, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	q := h.db.WithContext(ctx).Model(&model.ScanRun{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count scan runs: %w", err)
	}

	var runs []model.ScanRun
	if err := h.db.WithContext(ctx).
		Order("start_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list scan runs: %w", err)
	}
	return runs, total, nil
}

// GetRun 获取单次扫描及其按完成顺序排列的结果
func (h *HistoryService) GetRun(ctx context.Context, id string) (*model.ScanRun, error) {
	var run model.ScanRun
	err := h.db.WithContext(ctx).
		Preload("Results", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq ASC") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan run: %w", err)
	}
	return &run, nil
}
