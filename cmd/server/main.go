package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/versionboard/api/router"
	"github.com/sshcollectorpro/versionboard/internal/config"
	"github.com/sshcollectorpro/versionboard/internal/database"
	"github.com/sshcollectorpro/versionboard/internal/inventory"
	"github.com/sshcollectorpro/versionboard/internal/service"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
	"github.com/sshcollectorpro/versionboard/pkg/ssh"
	"github.com/sshcollectorpro/versionboard/simulate"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()
	os.Exit(run(*configPath))
}

// run 启动服务并阻塞到退出信号，返回进程退出码
func run(configPath string) int {
	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return 1
	}

	// 初始化日志
	if err := logger.Init(logConfig(cfg)); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return 1
	}
	logger.WithFields(logrus.Fields{
		"inventory":  cfg.Inventory.Path,
		"concurrent": cfg.Collector.Concurrent,
	}).Info("Starting Version Board Server")

	// 初始化数据库（路径为空时不记录历史）
	var history *service.HistoryService
	var dbHealth func() error
	if strings.TrimSpace(cfg.Database.SQLite.Path) != "" {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			logger.WithError(err).Error("Failed to initialize database")
			return 1
		}
		defer database.Close()
		history = service.NewHistoryService(database.GetDB(), cfg.Collector.ID)
		dbHealth = database.Health
	} else {
		logger.Info("Database path empty; scan history disabled")
	}

	// 启动实验室模拟器（可选）
	var sim *simulate.Server
	if cfg.Server.SimulateEnable {
		sim = startSimulator(cfg)
	}
	defer func() {
		if sim != nil {
			sim.Stop()
		}
	}()

	// 设备会话
	tracker := ssh.NewTracker(ssh.NewDialer(&ssh.Config{
		ConnectTimeout: cfg.SSH.ConnectTimeout,
		CommandTimeout: cfg.SSH.CommandTimeout,
		KeepAlive:      cfg.SSH.KeepAliveInterval,
	}))
	defer func() {
		if err := tracker.CloseAll(); err != nil {
			logger.WithError(err).Warn("Failed to close leftover sessions")
		}
	}()

	query := service.NewQueryService(tracker, cfg.Collector.Concurrent)

	var opts []service.ScanOption
	if history != nil {
		opts = append(opts, service.WithHistory(history))
	}
	if cfg.Report.Enabled {
		archiver := service.NewReportArchiver(service.NewArchiveWriter(cfg), cfg.Report.Backend)
		opts = append(opts, service.WithArchiver(archiver))
	}
	loader := &inventory.Loader{DefaultDeviceType: cfg.Inventory.DeviceType}
	scanner := service.NewScanService(loader, query, cfg.Inventory.Path, opts...)

	// 设置路由
	deps := router.Dependencies{
		Scanner:        scanner,
		Sessions:       tracker,
		DatabaseHealth: dbHealth,
		Mode:           cfg.Server.Mode,
	}
	if history != nil {
		deps.History = history
	}
	r, err := router.SetupRouter(deps)
	if err != nil {
		logger.WithError(err).Error("Failed to set up router")
		return 1
	}

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": server.Addr, "mode": cfg.Server.Mode}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	go watchConfig(configPath, scanner)

	// 等待中断信号或监听失败
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
	case err := <-serveErr:
		logger.WithError(err).Error("Failed to start server")
		return 1
	}

	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return 1
	}
	logger.Info("Server shutdown complete")
	return 0
}

func logConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

func startSimulator(cfg *config.Config) *simulate.Server {
	sc, err := simulate.LoadConfig(cfg.Simulate.Path)
	if err != nil {
		logger.WithError(err).Warn("Simulate: failed to load config, skip starting lab")
		return nil
	}
	if addr := strings.TrimSpace(cfg.Simulate.Addr); addr != "" {
		sc.Listen = addr
	}
	sim, err := simulate.Start(sc)
	if err != nil {
		logger.WithError(err).Warn("Simulate: failed to start")
		return nil
	}
	return sim
}

// watchConfig 监听配置文件，变更后刷新日志配置与清单路径
func watchConfig(path string, scanner *service.ScanService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("Config watch init failed")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.WithError(err).Warn("Config watch add failed")
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.WithError(err).Warn("Config reload failed")
			return
		}
		_ = logger.Init(logConfig(newCfg))
		scanner.SetInventoryPath(newCfg.Inventory.Path)
		logger.WithField("inventory", newCfg.Inventory.Path).Info("Config reloaded")
	}
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("Config watch error")
		}
	}
}
