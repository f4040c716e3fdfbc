package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sshcollectorpro/versionboard/internal/config"
	"github.com/sshcollectorpro/versionboard/internal/inventory"
	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/internal/parse"
	"github.com/sshcollectorpro/versionboard/internal/service"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
	"github.com/sshcollectorpro/versionboard/pkg/ssh"
	"github.com/sshcollectorpro/versionboard/simulate"
)

// autoIsPortOpen tries to connect to host:port
func autoIsPortOpen(host string, port int) bool {
	if host == "" {
		host = "127.0.0.1"
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 300*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// autoWaitForPortReady polls until the port is ready or timeout
func autoWaitForPortReady(host string, port int, timeoutSec int) error {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	deadline := time.Now().Add(time.Duration(timeoutSec) * time.Second)
	for time.Now().Before(deadline) {
		if autoIsPortOpen(host, port) {
			return nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	return fmt.Errorf("port %d not ready within %ds", port, timeoutSec)
}

// 启动实验室模拟器，对清单执行一轮扫描，并按模拟器配置核对结果
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	startTimeout := flag.Int("start_timeout", 10, "Seconds to wait for lab port ready")
	keepRunning := flag.Bool("keep", false, "Keep lab running after the self-test until interrupted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[AUTO] 读取配置失败: %v\n", err)
		os.Exit(1)
	}
	_ = logger.Init(logger.Config{Level: "warn", Format: cfg.Log.Format, Output: "console"})

	simCfg, err := simulate.LoadConfig(cfg.Simulate.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[AUTO] 读取模拟器配置失败: %v\n", err)
		os.Exit(1)
	}
	if addr := strings.TrimSpace(cfg.Simulate.Addr); addr != "" {
		simCfg.Listen = addr
	}
	lab, err := simulate.Start(simCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[AUTO] 模拟器启动失败: %v\n", err)
		os.Exit(1)
	}
	defer lab.Stop()

	host, portStr, _ := net.SplitHostPort(lab.Addr())
	port, _ := strconv.Atoi(portStr)
	if err := autoWaitForPortReady(host, port, *startTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "[AUTO] %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("[AUTO] 模拟端口已监听: %s\n", lab.Addr())

	dialer := ssh.NewDialer(&ssh.Config{ConnectTimeout: cfg.SSH.ConnectTimeout, CommandTimeout: cfg.SSH.CommandTimeout})
	scanner := service.NewScanService(
		&inventory.Loader{DefaultDeviceType: cfg.Inventory.DeviceType},
		service.NewQueryService(dialer, cfg.Collector.Concurrent),
		cfg.Inventory.Path,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	report, err := scanner.Run(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[AUTO] 扫描中止: %v\n", err)
		os.Exit(1)
	}

	records, _ := inventory.Load(cfg.Inventory.Path)
	expected := expectations(simCfg, records)

	allPass := true
	for _, r := range report.Results {
		status := "INFO"
		if want, ok := expected[r.IP+"|"+r.Hostname]; ok {
			status = "PASS"
			if r.Version != want {
				status = "FAIL"
				allPass = false
			}
		} else if !r.Failed && parse.Found(r.Hostname) {
			status = "FAIL"
			allPass = false
		}
		fmt.Printf("[AUTO] %-4s %-22s %-20s %s\n", status, r.IP, r.Hostname, r.Version)
	}
	fmt.Printf("[AUTO] %d devices, %d failed, %s\n", report.Total, report.Failed, report.Duration.Round(time.Millisecond))

	if *keepRunning {
		fmt.Println("[AUTO] 模拟器保持运行，Ctrl+C 退出")
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
	}
	if !allPass {
		lab.Stop()
		os.Exit(3)
	}
}

// expectations 清单中指向模拟器的设备应得到的 主机名 → 版本
func expectations(simCfg *simulate.Config, records []model.DeviceRecord) map[string]string {
	out := make(map[string]string)
	for _, rec := range records {
		dev, ok := simCfg.Devices[strings.ToLower(rec.Username)]
		if !ok || dev.Password != rec.Password {
			continue
		}
		hostname := dev.Hostname
		if dev.OmitHostname {
			hostname = parse.HostnameNotFound
		}
		out[rec.IP+"|"+hostname] = dev.Version
	}
	return out
}
