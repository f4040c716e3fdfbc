package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/versionboard/internal/inventory"
	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/pkg/ssh"
)

func newScanner(t *testing.T, inventoryPath string, opts ...ScanOption) *ScanService {
	t.Helper()
	dialer := ssh.NewDialer(&ssh.Config{ConnectTimeout: 3 * time.Second, CommandTimeout: 3 * time.Second})
	return NewScanService(&inventory.Loader{}, NewQueryService(dialer, 4), inventoryPath, opts...)
}

// TestScanAgainstLab 对模拟设备完整执行一轮扫描
func TestScanAgainstLab(t *testing.T) {
	addr := startLab(t)

	// 一个无人监听的端口
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	path := writeInventory(t,
		row(addr, "core-sw-1", "cisco", "enable123"),
		row(addr, "access-sw-2", "cisco", "enable123"),
		row(addr, "lab-noname", "cisco", "enable123"),
		row(addr, "core-sw-1", "cisco", "wrong-secret"),
		row(addr, "core-sw-1", "bad-password", "enable123"),
		row(closedAddr, "core-sw-1", "cisco", "enable123"),
	)

	db := openTestDB(t)
	history := NewHistoryService(db, "test-collector")
	archiveDir := t.TempDir()
	cfg := testConfig(archiveDir)
	archiver := NewReportArchiver(NewArchiveWriter(cfg), "local")

	scanner := newScanner(t, path, WithHistory(history), WithArchiver(archiver))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	report, err := scanner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 6, "每条记录恰好一个结果")
	assert.Equal(t, 6, report.Total)
	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, model.ScanStatusPartial, report.Status())

	var successes, failures []model.QueryResult
	for _, r := range report.Results {
		if r.Failed {
			failures = append(failures, r)
		} else {
			successes = append(successes, r)
		}
	}

	hostnames := map[string]string{}
	for _, r := range successes {
		hostnames[r.Hostname] = r.Version
	}
	assert.Equal(t, map[string]string{
		"CORE-SW-1":          "15.2(4)E7",
		"ACCESS-SW-2":        "12.2(55)SE12",
		"Hostname not found": "15.0(2)SE11",
	}, hostnames)

	for _, r := range failures {
		assert.Equal(t, "Error", r.Hostname)
		assert.True(t, strings.HasPrefix(r.Version, "Error: "), r.Version)
	}

	// 归档
	require.Len(t, report.Archives, 2)
	for _, obj := range report.Archives {
		p := strings.TrimPrefix(obj.URI, "file://")
		assert.FileExists(t, p)
		assert.True(t, strings.HasPrefix(p, archiveDir))
	}
	csvPath := strings.TrimPrefix(report.Archives[1].URI, "file://")
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CORE-SW-1")

	// 历史
	run, err := history.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanStatusPartial, run.Status)
	assert.Equal(t, report.Archives[0].URI, run.ArchiveKey)
	require.Len(t, run.Results, 6)
	for i, r := range run.Results {
		assert.Equal(t, report.Results[i], r.ToQueryResult(), "历史记录保持完成顺序")
	}
}

// TestScanHeaderOnly 仅有表头的清单得到空结果
func TestScanHeaderOnly(t *testing.T) {
	path := writeInventory(t)
	report, err := newScanner(t, path).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, model.ScanStatusSuccess, report.Status())
}

// TestScanInventoryErrors 清单错误中止整轮扫描并记录失败
func TestScanInventoryErrors(t *testing.T) {
	db := openTestDB(t)
	history := NewHistoryService(db, "test-collector")
	ctx := context.Background()

	missing := filepath.Join(t.TempDir(), "nope.csv")
	_, err := newScanner(t, missing, WithHistory(history)).Run(ctx)
	var fileErr *inventory.FileAccessError
	require.True(t, errors.As(err, &fileErr), "应返回 FileAccessError，实际: %v", err)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("ip,username\n10.0.0.1,admin\n"), 0o644))
	_, err = newScanner(t, bad, WithHistory(history)).Run(ctx)
	var formatErr *inventory.FormatError
	require.True(t, errors.As(err, &formatErr), "应返回 FormatError，实际: %v", err)
	assert.Equal(t, []string{"password", "enable_password"}, formatErr.Missing)

	runs, total, err := history.ListRuns(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, r := range runs {
		assert.Equal(t, model.ScanStatusFailed, r.Status)
		assert.NotEmpty(t, r.ErrorMsg)
	}
}

// TestScanInventoryPathReload 更换清单路径后下一轮生效
func TestScanInventoryPathReload(t *testing.T) {
	first := writeInventory(t)
	scanner := newScanner(t, first)
	assert.Equal(t, first, scanner.InventoryPath())

	second := filepath.Join(t.TempDir(), "missing.csv")
	scanner.SetInventoryPath(second)
	assert.Equal(t, second, scanner.InventoryPath())

	_, err := scanner.Run(context.Background())
	var fileErr *inventory.FileAccessError
	assert.True(t, errors.As(err, &fileErr))
}

// TestScanRepeatable 设备不变时重复扫描得到相同的 (地址, 主机名, 版本) 集合
func TestScanRepeatable(t *testing.T) {
	addr := startLab(t)
	path := writeInventory(t,
		row(addr, "core-sw-1", "cisco", "enable123"),
		row(addr, "access-sw-2", "cisco", "enable123"),
		row(addr, "lab-noname", "cisco", "enable123"),
		row(addr, "core-sw-1", "cisco", "wrong-secret"),
	)
	scanner := newScanner(t, path)

	type triple struct{ ip, hostname, version string }
	collect := func() []triple {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		report, err := scanner.Run(ctx)
		require.NoError(t, err)
		out := make([]triple, 0, len(report.Results))
		for _, r := range report.Results {
			out = append(out, triple{r.IP, r.Hostname, r.Version})
		}
		return out
	}

	first := collect()
	second := collect()
	require.Len(t, first, 4)
	assert.ElementsMatch(t, first, second)
	assert.Contains(t, first, triple{addr, "CORE-SW-1", "15.2(4)E7"})
	assert.Contains(t, first, triple{addr, "Hostname not found", "15.0(2)SE11"})
}
