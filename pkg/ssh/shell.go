package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sshcollectorpro/versionboard/internal/util"
	"golang.org/x/crypto/ssh"
)

var (
	// 首次识别提示符：<base>[(mode)]> 或 #
	anyPromptPattern = regexp.MustCompile(`^(\S+?)(\(.*\))?[>#]$`)
	passwordPattern  = regexp.MustCompile(`(?i)password:?$`)

	errRemoteClosed = errors.New("session closed by remote")
)

// promptDiscoveryInterval 识别提示符时重发回车的间隔
const promptDiscoveryInterval = 2 * time.Second

// ShellSession 基于 PTY Shell 的设备会话
type ShellSession struct {
	host           string
	client         *Client
	session        *ssh.Session
	stdin          io.WriteCloser
	commandTimeout time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	notify chan struct{}
	done   chan struct{}

	promptRe      *regexp.Regexp
	prompt        string
	enableCommand string

	closeOnce sync.Once
	closeErr  error
}

func startShell(ctx context.Context, client *Client, conn *ssh.Client, host string, commandTimeout time.Duration) (*ShellSession, error) {
	session, err := conn.NewSession()
	if err != nil {
		return nil, &SessionError{Host: host, Op: "session", Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	// 终端类型回退，优先 vt100
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 24, 511, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, &SessionError{Host: host, Op: "pty", Err: ptyErr}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, &SessionError{Host: host, Op: "shell", Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, &SessionError{Host: host, Op: "shell", Err: err}
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, &SessionError{Host: host, Op: "shell", Err: err}
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, &SessionError{Host: host, Op: "shell", Err: err}
	}

	s := &ShellSession{
		host:           host,
		client:         client,
		session:        session,
		stdin:          stdin,
		commandTimeout: commandTimeout,
		enableCommand:  "enable",
		notify:         make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	go s.pump(stdout, true)
	go s.pump(stderr, false)

	if err := s.findPrompt(ctx); err != nil {
		_ = s.Close()
		return nil, &SessionError{Host: host, Op: "prompt", Err: err}
	}
	return s, nil
}

// pump 持续读取输出到缓冲区；主输出流结束时关闭 done
func (s *ShellSession) pump(r io.Reader, primary bool) {
	if primary {
		defer close(s.done)
	}
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(buf[:n])
			s.mu.Unlock()
			select {
			case s.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

// snapshot 返回规范化后的缓冲区内容，匹配成功时清空缓冲区
func (s *ShellSession) snapshot(match func(string) bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := util.NormalizeOutput(util.DecodeOutput(s.buf.Bytes()))
	if match(text) {
		s.buf.Reset()
		return text, true
	}
	return text, false
}

func (s *ShellSession) discard() {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}

// expect 等待缓冲区内容满足 match；timeout 为 0 时仅受 ctx 约束
func (s *ShellSession) expect(ctx context.Context, timeout time.Duration, match func(string) bool) (string, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		if text, ok := s.snapshot(match); ok {
			return text, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			text, ok := s.snapshot(match)
			if ok {
				return text, nil
			}
			return text, errRemoteClosed
		case <-ctx.Done():
			text, _ := s.snapshot(func(string) bool { return false })
			return text, ctx.Err()
		case <-timer:
			text, _ := s.snapshot(func(string) bool { return false })
			return text, fmt.Errorf("timed out after %s waiting for prompt", timeout)
		}
	}
}

func (s *ShellSession) write(line string) error {
	_, err := s.stdin.Write([]byte(line + "\n"))
	return err
}

// findPrompt 诱发并识别首个提示符，记录主机名前缀
func (s *ShellSession) findPrompt(ctx context.Context) error {
	budget := s.commandTimeout
	if budget <= 0 {
		budget = 10 * time.Second
	}
	deadline := time.Now().Add(budget)

	var lastErr error
	for time.Now().Before(deadline) {
		if err := s.write(""); err != nil {
			return err
		}
		wait := time.Until(deadline)
		if wait > promptDiscoveryInterval {
			wait = promptDiscoveryInterval
		}
		text, err := s.expect(ctx, wait, func(t string) bool {
			return anyPromptPattern.MatchString(util.LastLine(t)) && endsAtPrompt(t)
		})
		if err == nil {
			last := util.LastLine(text)
			base := anyPromptPattern.FindStringSubmatch(last)[1]
			s.promptRe = regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(\(.*\))?[>#]$`)
			s.prompt = last
			// 丢弃多次回车诱发的残留提示符
			time.Sleep(50 * time.Millisecond)
			s.discard()
			return nil
		}
		if errors.Is(err, errRemoteClosed) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no prompt within %s", budget)
	}
	return lastErr
}

// endsAtPrompt 最后一行为未换行的提示符
func endsAtPrompt(text string) bool {
	idx := strings.LastIndex(text, "\n")
	return strings.TrimSpace(text[idx+1:]) != ""
}

func (s *ShellSession) isPrompt(line string) bool {
	return s.promptRe != nil && s.promptRe.MatchString(strings.TrimSpace(line))
}

// commandDone 命令回显之后出现提示符
func (s *ShellSession) commandDone(text string) bool {
	lines := strings.Split(text, "\n")
	if !s.isPrompt(lines[len(lines)-1]) {
		return false
	}
	for _, ln := range lines[:len(lines)-1] {
		if strings.TrimSpace(ln) != "" {
			return true
		}
	}
	return false
}

// SendCommand 发送命令并返回到下一个提示符为止的输出
func (s *ShellSession) SendCommand(ctx context.Context, command string) (string, error) {
	s.discard()
	if err := s.write(command); err != nil {
		return "", &CommandError{Host: s.host, Command: command, Err: err}
	}
	text, err := s.expect(ctx, s.commandTimeout, s.commandDone)
	if err != nil {
		return "", &CommandError{Host: s.host, Command: command, Err: err}
	}
	s.prompt = util.LastLine(text)
	return stripEchoAndPrompt(text, command), nil
}

// Enable 进入特权模式；已处于特权模式时直接返回
func (s *ShellSession) Enable(ctx context.Context, secret string) error {
	if strings.HasSuffix(s.prompt, "#") {
		return nil
	}

	promptOrPassword := func(t string) bool {
		last := strings.TrimSpace(t[strings.LastIndex(t, "\n")+1:])
		return s.isPrompt(last) || passwordPattern.MatchString(last)
	}

	s.discard()
	if err := s.write(s.enableCommand); err != nil {
		return &PrivilegeError{Host: s.host, Err: err}
	}
	text, err := s.expect(ctx, s.commandTimeout, promptOrPassword)
	if err != nil {
		return &PrivilegeError{Host: s.host, Err: err}
	}
	if passwordPattern.MatchString(util.LastLine(text)) {
		if err := s.write(secret); err != nil {
			return &PrivilegeError{Host: s.host, Err: err}
		}
		text, err = s.expect(ctx, s.commandTimeout, promptOrPassword)
		if err != nil {
			return &PrivilegeError{Host: s.host, Err: err}
		}
		if passwordPattern.MatchString(util.LastLine(text)) {
			return &PrivilegeError{Host: s.host, Err: errors.New("enable secret rejected")}
		}
	}

	s.prompt = util.LastLine(text)
	if !strings.HasSuffix(s.prompt, "#") {
		return &PrivilegeError{Host: s.host, Prompt: s.prompt}
	}
	return nil
}

// Prompt 返回最近一次识别到的提示符
func (s *ShellSession) Prompt() string {
	return s.prompt
}

// Close 发送 exit 后关闭会话与连接，可重复调用
func (s *ShellSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.write("exit")
		select {
		case <-s.done:
		case <-time.After(200 * time.Millisecond):
		}
		_ = s.stdin.Close()
		_ = s.session.Close()
		if s.client != nil {
			s.closeErr = s.client.Close()
		}
	})
	return s.closeErr
}

// stripEchoAndPrompt 去掉命令回显行与结尾提示符
func stripEchoAndPrompt(text, command string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	cmd := strings.TrimSpace(command)
	for len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if first == "" {
			lines = lines[1:]
			continue
		}
		if cmd != "" && strings.HasSuffix(first, cmd) {
			lines = lines[1:]
		}
		break
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n ")
}
