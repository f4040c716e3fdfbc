package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
)

// InventoryLoader 读取设备清单
type InventoryLoader interface {
	Load(path string) ([]model.DeviceRecord, error)
}

// ScanService 完成一轮 读取清单 → 并行查询 → 记录历史 → 归档 的流程
type ScanService struct {
	loader   InventoryLoader
	query    *QueryService
	history  *HistoryService
	archiver *ReportArchiver

	mu            sync.RWMutex
	inventoryPath string
}

// ScanOption 可选组件
type ScanOption func(*ScanService)

// WithHistory 启用扫描历史
func WithHistory(h *HistoryService) ScanOption {
	return func(s *ScanService) { s.history = h }
}

// WithArchiver 启用报告归档
func WithArchiver(a *ReportArchiver) ScanOption {
	return func(s *ScanService) { s.archiver = a }
}

// NewScanService 创建扫描服务
func NewScanService(loader InventoryLoader, query *QueryService, inventoryPath string, opts ...ScanOption) *ScanService {
	s := &ScanService{
		loader:        loader,
		query:         query,
		inventoryPath: inventoryPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InventoryPath 当前清单路径
func (s *ScanService) InventoryPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inventoryPath
}

// SetInventoryPath 配置热更新时替换清单路径，下一轮扫描生效
func (s *ScanService) SetInventoryPath(path string) {
	s.mu.Lock()
	s.inventoryPath = path
	s.mu.Unlock()
}

// Run 执行一轮扫描。清单错误直接返回；设备级错误体现在结果中。
// 历史与归档失败只记录日志，不影响返回的报告。
func (s *ScanService) Run(ctx context.Context) (*Report, error) {
	path := s.InventoryPath()
	runID := uuid.New().String()
	started := time.Now()
	log := logger.WithFields(logrus.Fields{"run_id": runID, "inventory": path})

	records, err := s.loader.Load(path)
	if err != nil {
		log.WithError(err).Error("Failed to load inventory")
		if s.history != nil {
			if herr := s.history.SaveFailure(ctx, runID, path, started, err); herr != nil {
				log.WithError(herr).Warn("Failed to record aborted scan")
			}
		}
		return nil, err
	}

	log.WithFields(logrus.Fields{"devices": len(records), "concurrent": s.query.Concurrent()}).Info("Scan started")
	results := s.query.Query(ctx, records)

	report := &Report{
		RunID:         runID,
		InventoryPath: path,
		StartedAt:     started,
		Duration:      time.Since(started),
		Results:       results,
		Total:         len(results),
		Failed:        model.CountFailed(results),
	}

	if s.archiver != nil {
		objs, aerr := s.archiver.Archive(ctx, report)
		if aerr != nil {
			log.WithError(aerr).Warn("Report archive incomplete")
		}
		report.Archives = objs
	}
	if s.history != nil {
		if herr := s.history.Save(ctx, report); herr != nil {
			log.WithError(herr).Warn("Failed to save scan history")
		}
	}

	log.WithFields(logrus.Fields{
		"total":    report.Total,
		"failed":   report.Failed,
		"duration": report.Duration.String(),
	}).Info("Scan finished")
	return report, nil
}
