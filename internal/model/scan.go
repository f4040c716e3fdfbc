package model

import (
	"time"
)

// ScanRun 一轮扫描的审计记录
type ScanRun struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	CollectorID   string    `json:"collector_id" gorm:"type:varchar(64);index"`
	InventoryPath string    `json:"inventory_path" gorm:"type:varchar(512)"`
	Status        string    `json:"status" gorm:"type:varchar(16);not null;default:'success'"`
	Total         int       `json:"total"`
	Failed        int       `json:"failed"`
	ErrorMsg      string    `json:"error_msg" gorm:"type:text"`
	ArchiveKey    string    `json:"archive_key" gorm:"type:varchar(512)"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Duration      int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`

	Results []ScanResult `json:"results,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName 表名
func (ScanRun) TableName() string {
	return "scan_runs"
}

// ScanRunStatus 扫描状态枚举
const (
	ScanStatusSuccess = "success"
	ScanStatusPartial = "partial"
	ScanStatusFailed  = "failed"
)

// ScanResult 单台设备在某轮扫描中的结果
type ScanResult struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID     string    `json:"run_id" gorm:"type:varchar(64);not null;index"`
	Seq       int       `json:"seq"` // 完成顺序
	IP        string    `json:"ip" gorm:"type:varchar(64);not null;index"`
	Hostname  string    `json:"hostname" gorm:"type:varchar(255)"`
	Version   string    `json:"version" gorm:"type:text"`
	Failed    bool      `json:"failed"`
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (ScanResult) TableName() string {
	return "scan_results"
}

// ToQueryResult 还原为查询结果
func (r ScanResult) ToQueryResult() QueryResult {
	return QueryResult{
		IP:       r.IP,
		Hostname: r.Hostname,
		Version:  r.Version,
		Failed:   r.Failed,
		Error:    r.ErrorMsg,
	}
}
