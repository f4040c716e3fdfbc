package service

import (
	"time"

	"github.com/sshcollectorpro/versionboard/internal/model"
)

// Report 一轮扫描的汇总
type Report struct {
	RunID         string              `json:"run_id"`
	InventoryPath string              `json:"inventory_path"`
	StartedAt     time.Time           `json:"started_at"`
	Duration      time.Duration       `json:"duration"`
	Results       []model.QueryResult `json:"results"`
	Total         int                 `json:"total"`
	Failed        int                 `json:"failed"`
	Archives      []StoredObject      `json:"archives,omitempty"`
}

// Status 扫描状态：全部成功、部分失败或全部失败
func (r *Report) Status() string {
	switch {
	case r.Failed == 0:
		return model.ScanStatusSuccess
	case r.Failed < r.Total:
		return model.ScanStatusPartial
	default:
		return model.ScanStatusFailed
	}
}

// StoredObject 存储的对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}
