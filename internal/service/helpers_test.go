package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sshcollectorpro/versionboard/internal/config"
	"github.com/sshcollectorpro/versionboard/internal/database"
	"github.com/sshcollectorpro/versionboard/simulate"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := database.Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

func startLab(t *testing.T) string {
	t.Helper()
	srv, err := simulate.Start(&simulate.Config{
		Listen: "127.0.0.1:0",
		Devices: map[string]simulate.DeviceConfig{
			"core-sw-1":   {Hostname: "CORE-SW-1", Password: "cisco", Secret: "enable123", Version: "15.2(4)E7"},
			"access-sw-2": {Hostname: "ACCESS-SW-2", Password: "cisco", Secret: "enable123", Version: "12.2(55)SE12"},
			"lab-noname":  {Hostname: "LAB-NONAME", Password: "cisco", Secret: "enable123", Version: "15.0(2)SE11", OmitHostname: true},
		},
	})
	require.NoError(t, err)
	t.Cleanup(srv.Stop)
	return srv.Addr()
}

// writeInventory 写入临时清单，rows 为不含表头的数据行
func writeInventory(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.csv")
	content := "ip,username,password,enable_password\n" + strings.Join(rows, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func row(addr, user, password, secret string) string {
	return fmt.Sprintf("%s,%s,%s,%s", addr, user, password, secret)
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Report.Enabled = true
	cfg.Report.Local.BaseDir = dir
	cfg.SSH.ConnectTimeout = 3 * time.Second
	cfg.SSH.CommandTimeout = 3 * time.Second
	return cfg
}
