package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/versionboard/internal/config"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
)

// ArchiveWriter 抽象归档写入器
type ArchiveWriter interface {
	Write(ctx context.Context, meta ArchiveMeta, data []byte, contentType string) (StoredObject, error)
}

// ArchiveMeta 写入元数据
type ArchiveMeta struct {
	RunID    string
	Started  time.Time
	Filename string
	Backend  string // local|minio
}

// objectPath 归档相对路径：prefix / YYYYMMDD_HHMMSS / runID / filename
func (m ArchiveMeta) objectPath(prefix string) []string {
	parts := []string{}
	if p := strings.TrimSpace(prefix); p != "" {
		parts = append(parts, p)
	}
	started := m.Started
	if started.IsZero() {
		started = time.Now()
	}
	parts = append(parts, started.Format("20060102_150405"))
	if id := strings.TrimSpace(m.RunID); id != "" {
		parts = append(parts, id)
	}
	return append(parts, m.Filename)
}

// NewArchiveWriter 根据配置创建写入器（委派到本地或 MinIO）
func NewArchiveWriter(cfg *config.Config) ArchiveWriter {
	dw := &DelegatingArchiveWriter{local: &LocalArchiveWriter{cfg: cfg}}
	if cfg.Report.Backend == "minio" {
		dw.minio = initMinioWriter(cfg)
	}
	return dw
}

// DelegatingArchiveWriter 按后端路由写入，MinIO 失败时回退到本地
type DelegatingArchiveWriter struct {
	local *LocalArchiveWriter
	minio *MinioArchiveWriter
}

func (w *DelegatingArchiveWriter) Write(ctx context.Context, meta ArchiveMeta, data []byte, contentType string) (StoredObject, error) {
	if strings.ToLower(strings.TrimSpace(meta.Backend)) != "minio" {
		return w.local.Write(ctx, meta, data, contentType)
	}
	if w.minio == nil {
		logger.Warn("MinIO backend selected but client not initialized; falling back to local")
		obj, lerr := w.local.Write(ctx, meta, data, contentType)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio client not initialized; local fallback failed: %w", lerr)
		}
		// 返回对象并附带预警错误，上层记录但不中断
		return obj, fmt.Errorf("minio client not initialized; wrote to local instead")
	}
	obj, err := w.minio.Write(ctx, meta, data, contentType)
	if err != nil {
		logger.WithError(err).Warn("MinIO write failed; falling back to local")
		objLocal, lerr := w.local.Write(ctx, meta, data, contentType)
		if lerr != nil {
			return StoredObject{}, fmt.Errorf("minio write failed: %v; local fallback failed: %w", err, lerr)
		}
		return objLocal, fmt.Errorf("minio write failed: %w; fell back to local successfully", err)
	}
	return obj, nil
}

// LocalArchiveWriter 本地文件写入
type LocalArchiveWriter struct {
	cfg *config.Config
}

func (w *LocalArchiveWriter) Write(ctx context.Context, meta ArchiveMeta, data []byte, contentType string) (StoredObject, error) {
	baseDir := strings.TrimSpace(w.cfg.Report.Local.BaseDir)
	if baseDir == "" {
		baseDir = "./data"
	}
	fullPath := filepath.Join(append([]string{baseDir}, meta.objectPath(w.cfg.Report.Prefix)...)...)

	dir := filepath.Dir(fullPath)
	if w.cfg.Report.Local.MkdirIfMissing {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
		}
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}

	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}

// MinioArchiveWriter MinIO 对象存储写入
type MinioArchiveWriter struct {
	cfg           *config.Config
	client        *minio.Client
	endpoint      string

	// bucketMu 保护 bucketEnsured，写入器在并发扫描间共享
	bucketMu      sync.Mutex
	bucketEnsured bool
}

// initMinioWriter 初始化 MinIO 写入器，配置不完整或初始化失败时返回 nil
func initMinioWriter(cfg *config.Config) *MinioArchiveWriter {
	host := strings.TrimSpace(cfg.Storage.Minio.Host)
	port := cfg.Storage.Minio.Port
	if host == "" || port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := net.JoinHostPort(host, fmt.Sprint(port))

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.Storage.Minio.AccessKey, cfg.Storage.Minio.SecretKey, ""),
		Secure:    cfg.Storage.Minio.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.WithError(err).Error("MinIO client initialization failed")
		return nil
	}
	return &MinioArchiveWriter{cfg: cfg, client: client, endpoint: endpoint}
}

// Write 将内容写入 MinIO
func (w *MinioArchiveWriter) Write(ctx context.Context, meta ArchiveMeta, data []byte, contentType string) (StoredObject, error) {
	if w == nil || w.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}
	bucket := strings.TrimSpace(w.cfg.Storage.Minio.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}

	if err := w.ensureBucketOnce(ctx, bucket); err != nil {
		return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
	}

	objectName := path.Join(meta.objectPath(w.cfg.Report.Prefix)...)
	putCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := w.client.PutObject(putCtx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return StoredObject{}, fmt.Errorf("minio put object to %s failed: %w", w.endpoint, err)
	}

	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: contentType,
	}, nil
}

// ensureBucketOnce 成功一次后不再检查；失败时下次写入重试
func (w *MinioArchiveWriter) ensureBucketOnce(ctx context.Context, bucket string) error {
	w.bucketMu.Lock()
	defer w.bucketMu.Unlock()
	if w.bucketEnsured {
		return nil
	}
	if err := w.ensureBucket(ctx, bucket); err != nil {
		return err
	}
	w.bucketEnsured = true
	return nil
}

// ensureBucket 校验并创建 bucket
func (w *MinioArchiveWriter) ensureBucket(parent context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	exists, err := w.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return w.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ReportArchiver 将扫描报告写成 JSON 与 CSV 两份快照
type ReportArchiver struct {
	writer  ArchiveWriter
	backend string
}

// NewReportArchiver 创建报告归档器
func NewReportArchiver(writer ArchiveWriter, backend string) *ReportArchiver {
	return &ReportArchiver{writer: writer, backend: backend}
}

// Archive 写入 report.json 与 report.csv；回退写入成功时同时返回对象与预警错误
func (a *ReportArchiver) Archive(ctx context.Context, report *Report) ([]StoredObject, error) {
	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report json: %w", err)
	}
	csvData, err := gocsv.MarshalBytes(report.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report csv: %w", err)
	}

	files := []struct {
		name        string
		data        []byte
		contentType string
	}{
		{"report.json", jsonData, "application/json"},
		{"report.csv", csvData, "text/csv; charset=utf-8"},
	}

	var objects []StoredObject
	var warn error
	for _, f := range files {
		meta := ArchiveMeta{RunID: report.RunID, Started: report.StartedAt, Filename: f.name, Backend: a.backend}
		obj, err := a.writer.Write(ctx, meta, f.data, f.contentType)
		if obj.URI == "" {
			return objects, fmt.Errorf("failed to archive %s: %w", f.name, err)
		}
		if err != nil {
			warn = err
		}
		objects = append(objects, obj)
		logger.WithFields(logrus.Fields{"run_id": report.RunID, "uri": obj.URI, "size": obj.Size}).Debug("Report archived")
	}
	return objects, warn
}
