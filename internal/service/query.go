package service

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sshcollectorpro/versionboard/internal/config"
	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/internal/parse"
	"github.com/sshcollectorpro/versionboard/internal/platform"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
	"github.com/sshcollectorpro/versionboard/pkg/ssh"
)

// excerptLines 未匹配时调试日志中保留的输出行数
const excerptLines = 5

// QueryService 并行查询设备主机名与版本
type QueryService struct {
	dialer     ssh.Dialer
	concurrent int
}

// NewQueryService 创建查询服务；concurrent <= 0 时使用默认容量 50
func NewQueryService(dialer ssh.Dialer, concurrent int) *QueryService {
	if concurrent <= 0 {
		concurrent = config.DefaultConcurrent
	}
	return &QueryService{dialer: dialer, concurrent: concurrent}
}

// Concurrent 返回工作池容量
func (s *QueryService) Concurrent() int {
	return s.concurrent
}

// Query 为每条记录返回恰好一个结果，按完成顺序排列。
// 单台设备的失败不会影响其他设备，也不会提前结束本轮查询。
func (s *QueryService) Query(ctx context.Context, records []model.DeviceRecord) []model.QueryResult {
	results := make(chan model.QueryResult, len(records))

	var g errgroup.Group
	g.SetLimit(s.concurrent)
	for i := range records {
		rec := records[i]
		g.Go(func() error {
			results <- s.queryDevice(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	out := make([]model.QueryResult, 0, len(records))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// queryDevice 单台设备的完整查询流程，panic 也转换为失败结果
func (s *QueryService) queryDevice(ctx context.Context, rec model.DeviceRecord) (result model.QueryResult) {
	log := logger.WithFields(logrus.Fields{"ip": rec.IP, "device_type": rec.DeviceType})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("Device query panicked: %v", r)
			result = model.Failure(rec.IP, fmt.Errorf("internal error: %v", r))
		}
	}()

	hostname, version, err := s.collect(ctx, rec, log)
	if err != nil {
		log.WithError(err).Warn("Device query failed")
		return model.Failure(rec.IP, err)
	}
	log.WithFields(logrus.Fields{"hostname": hostname, "version": version}).Debug("Device query finished")
	return model.Success(rec.IP, hostname, version)
}

func (s *QueryService) collect(ctx context.Context, rec model.DeviceRecord, log *logrus.Entry) (string, string, error) {
	profile, err := platform.Get(rec.DeviceType)
	if err != nil {
		return "", "", err
	}

	host, port := rec.Endpoint()
	sess, err := s.dialer.Open(ctx, &ssh.ConnectionInfo{
		Host:          host,
		Port:          port,
		Username:      rec.Username,
		Password:      rec.Password,
		Prepare:       profile.SessionPrep,
		EnableCommand: profile.EnableCommand,
	})
	if err != nil {
		return "", "", err
	}
	defer func() {
		// 关闭失败不影响结果
		if cerr := sess.Close(); cerr != nil {
			log.WithError(cerr).Debug("Failed to close session")
		}
	}()

	if err := sess.Enable(ctx, rec.Secret); err != nil {
		return "", "", err
	}

	runOut, err := sess.SendCommand(ctx, profile.HostnameCommand)
	if err != nil {
		return "", "", err
	}
	hostname := profile.ParseHostname(runOut)
	if hostname == parse.HostnameNotFound {
		logUnmatched(log, profile.HostnameCommand, runOut)
	}

	verOut, err := sess.SendCommand(ctx, profile.VersionCommand)
	if err != nil {
		return "", "", err
	}
	version := profile.ParseVersion(verOut)
	if version == parse.VersionNotFound {
		logUnmatched(log, profile.VersionCommand, verOut)
	}

	return hostname, version, nil
}

func logUnmatched(log *logrus.Entry, command, output string) {
	ex := logger.Excerpt(output, excerptLines)
	log.WithFields(logrus.Fields{
		"command": command,
		"lines":   ex.Total,
		"head":    ex.HeadLines,
		"tail":    ex.TailLines,
	}).Debug("Pattern not found in command output")
}
