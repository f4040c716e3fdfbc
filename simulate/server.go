// Package simulate 提供进程内的 Cisco IOS SSH 实验室，用于联调与测试
package simulate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/versionboard/pkg/logger"
)

// Server 模拟 SSH 服务
type Server struct {
	cfg      *Config
	srvCfg   *ssh.ServerConfig
	listener net.Listener
	mu       sync.Mutex
	// conns 当前连接，Stop 时统一断开
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   chan struct{}
}

// Start 启动模拟服务
func Start(cfg *Config) (*Server, error) {
	signer, err := hostKey(cfg.HostKeyPath)
	if err != nil {
		return nil, err
	}

	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	s := &Server{cfg: cfg, listener: ln, conns: make(map[net.Conn]struct{}), closed: make(chan struct{})}
	s.srvCfg = &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return nil, s.authenticate(meta.User(), string(password))
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(meta.User(), "Authentication", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 0 {
				return nil, errors.New("access denied")
			}
			return nil, s.authenticate(meta.User(), answers[0])
		},
	}
	s.srvCfg.AddHostKey(signer)

	go s.acceptLoop()
	logger.WithFields(logrus.Fields{"addr": ln.Addr().String(), "devices": len(cfg.Devices)}).Info("Simulate: lab server started")
	return s, nil
}

// Addr 实际监听地址
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop 停止服务并等待所有连接结束
func (s *Server) Stop() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
	_ = s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	logger.Info("Simulate: lab server stopped")
}

func (s *Server) authenticate(user, password string) error {
	dev, ok := s.cfg.device(user)
	if !ok || dev.Password != password {
		logger.WithField("user", user).Debug("Simulate: auth failed")
		return errors.New("access denied")
	}
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}

		s.mu.Lock()
		select {
		case <-s.closed:
			s.mu.Unlock()
			_ = conn.Close()
			return
		default:
		}
		if s.cfg.MaxConn > 0 && len(s.conns) >= s.cfg.MaxConn {
			s.mu.Unlock()
			_ = conn.Close()
			logger.Warn("Simulate: reject connection, max_conn exceeded")
			continue
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
			_ = c.Close()
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}(conn)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, s.srvCfg)
	if err != nil {
		logger.WithError(err).Debug("Simulate: SSH handshake failed")
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	dev, _ := s.cfg.device(conn.User())
	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests, dev)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request, dev DeviceConfig) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			newTerminal(channel, dev, time.Duration(s.cfg.IdleSeconds)*time.Second).run()
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// terminal 单个 Shell 会话的 IOS 命令行状态
type terminal struct {
	ch      ssh.Channel
	dev     DeviceConfig
	reader  *bufio.Reader
	enabled bool
	idle    time.Duration
	lastCR  bool
}

func newTerminal(ch ssh.Channel, dev DeviceConfig, idle time.Duration) *terminal {
	return &terminal{ch: ch, dev: dev, reader: bufio.NewReader(ch), enabled: dev.StartEnabled, idle: idle}
}

func (t *terminal) prompt() string {
	if t.enabled {
		return t.dev.Hostname + "#"
	}
	return t.dev.Hostname + ">"
}

func (t *terminal) write(s string) {
	_, _ = t.ch.Write([]byte(s))
}

// readLine 读取一行输入，\r、\n 与 \r\n 均视为行结束
func (t *terminal) readLine(echo bool) (string, error) {
	var sb strings.Builder
	for {
		b, err := t.reader.ReadByte()
		if err != nil {
			return sb.String(), err
		}
		if b == '\n' && t.lastCR {
			t.lastCR = false
			continue
		}
		t.lastCR = b == '\r'
		if b == '\r' || b == '\n' {
			if echo {
				t.write(sb.String() + "\r\n")
			} else {
				t.write("\r\n")
			}
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

func (t *terminal) run() {
	var idleTimer *time.Timer
	if t.idle > 0 {
		idleTimer = time.AfterFunc(t.idle, func() {
			t.write("\r\nSession closed due to idle timeout.\r\n")
			_ = t.ch.Close()
		})
		defer idleTimer.Stop()
	}

	t.write("\r\n" + t.prompt())
	for {
		line, err := t.readLine(true)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.WithError(err).Debug("Simulate: session read error")
			}
			return
		}
		if idleTimer != nil {
			idleTimer.Reset(t.idle)
		}
		if t.dev.DelayMS > 0 {
			time.Sleep(time.Duration(t.dev.DelayMS) * time.Millisecond)
		}

		cmd := strings.Join(strings.Fields(line), " ")
		lower := strings.ToLower(cmd)
		switch {
		case cmd == "":
		case lower == "exit" || lower == "quit" || lower == "logout":
			return
		case lower == "enable" || lower == "en":
			if !t.enable() {
				return
			}
		case lower == "disable":
			t.enabled = false
		case strings.HasPrefix(lower, "terminal "):
		case strings.HasPrefix(lower, "show running-config") || strings.HasPrefix(lower, "show run"):
			if !t.enabled {
				t.invalid()
				break
			}
			t.write(t.runningConfig(cmd))
		case lower == "show version" || lower == "show ver":
			t.write(t.showVersion())
		default:
			t.invalid()
		}
		t.write(t.prompt())
	}
}

// enable 处理特权模式切换；读取失败时返回 false
func (t *terminal) enable() bool {
	if t.enabled {
		return true
	}
	if t.dev.Secret == "" {
		t.enabled = true
		return true
	}
	t.write("Password: ")
	pwd, err := t.readLine(false)
	if err != nil {
		return false
	}
	if pwd == t.dev.Secret {
		t.enabled = true
		return true
	}
	t.write("% Access denied\r\n\r\n")
	return true
}

func (t *terminal) invalid() {
	t.write("                    ^\r\n% Invalid input detected at '^' marker.\r\n\r\n")
}

func (t *terminal) runningConfig(cmd string) string {
	lines := []string{
		"Building configuration...",
		"",
		"Current configuration : 4096 bytes",
		"!",
		"version " + shortVersion(t.dev.Version),
		"service timestamps debug datetime msec",
		"!",
	}
	if !t.dev.OmitHostname {
		lines = append(lines, "hostname "+t.dev.Hostname)
	}
	lines = append(lines, "!", "boot-start-marker", "boot-end-marker", "!", "end")

	// 仅支持 "| include <pattern>" 过滤
	if idx := strings.Index(cmd, "|"); idx >= 0 {
		filter := strings.Fields(cmd[idx+1:])
		if len(filter) >= 2 && strings.HasPrefix("include", strings.ToLower(filter[0])) {
			pattern := strings.Join(filter[1:], " ")
			var matched []string
			for _, ln := range lines {
				if strings.Contains(ln, pattern) {
					matched = append(matched, ln)
				}
			}
			lines = matched
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func (t *terminal) showVersion() string {
	if t.dev.VersionOutput != "" {
		return ensureCRLF(t.dev.VersionOutput)
	}
	model := t.dev.Model
	if model == "" {
		model = "WS-C2960X-48FPD-L"
	}
	out := fmt.Sprintf(`Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version %s, RELEASE SOFTWARE (fc2)
Technical Support: http://www.cisco.com/techsupport
Copyright (c) 1986-2019 by Cisco Systems, Inc.

ROM: Bootstrap program is C2960X boot loader

%s uptime is 12 weeks, 3 days, 4 hours, 51 minutes
System returned to ROM by power-on
System image file is "flash:c2960x-universalk9-mz.bin"

cisco %s (APM86XXX) processor (revision A0) with 524288K bytes of memory.
Configuration register is 0xF
`, t.dev.Version, t.dev.Hostname, model)
	return ensureCRLF(out)
}

func shortVersion(v string) string {
	if i := strings.Index(v, "("); i > 0 {
		return v[:i]
	}
	return v
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}
