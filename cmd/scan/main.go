package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/sshcollectorpro/versionboard/internal/config"
	"github.com/sshcollectorpro/versionboard/internal/inventory"
	"github.com/sshcollectorpro/versionboard/internal/service"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
	"github.com/sshcollectorpro/versionboard/pkg/ssh"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（为空时使用默认配置）")
	inventoryPath := flag.String("inventory", "", "设备清单路径，覆盖配置")
	concurrent := flag.Int("concurrent", 0, "并发数，覆盖配置")
	format := flag.String("format", "table", "输出格式：table | json")
	logLevel := flag.String("log-level", "warn", "日志级别")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *inventoryPath != "" {
		cfg.Inventory.Path = *inventoryPath
	}
	if *concurrent > 0 {
		cfg.Collector.Concurrent = *concurrent
	}

	// stdout 留给扫描结果
	if err := logger.Init(logger.Config{Level: *logLevel, Format: cfg.Log.Format, Output: "console"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.GetLogger().SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := ssh.NewDialer(&ssh.Config{
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		CommandTimeout: cfg.SSH.CommandTimeout,
	})
	scanner := service.NewScanService(
		&inventory.Loader{DefaultDeviceType: cfg.Inventory.DeviceType},
		service.NewQueryService(dialer, cfg.Collector.Concurrent),
		cfg.Inventory.Path,
	)

	report, err := scanner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan aborted: %v\n", err)
		os.Exit(exitCode(err))
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(report)
	default:
		err = printTable(os.Stdout, report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

// exitCode 清单不可读为 2，格式错误为 3
func exitCode(err error) int {
	var fileErr *inventory.FileAccessError
	var formatErr *inventory.FormatError
	switch {
	case errors.As(err, &fileErr):
		return 2
	case errors.As(err, &formatErr):
		return 3
	default:
		return 1
	}
}

func printTable(w io.Writer, report *service.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tHOSTNAME\tVERSION")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.IP, r.Hostname, r.Version)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d devices, %d failed, %s\n", report.Total, report.Failed, report.Duration.Round(1e6))
	return err
}
