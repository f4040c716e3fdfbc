package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH配置
type Config struct {
	// ConnectTimeout 拨号与握手超时；0 表示不限制
	ConnectTimeout time.Duration
	// CommandTimeout 单条命令等待提示符的超时；0 表示不限制
	CommandTimeout time.Duration
	KeepAlive      time.Duration
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	// Prepare 打开 Shell 后依次执行的会话准备命令（如关闭分页）
	Prepare []string `json:"prepare,omitempty"`
	// EnableCommand 进入特权模式的命令，默认 enable
	EnableCommand string `json:"enable_command,omitempty"`
}

// Address 返回 host:port
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(port))
}

// Client SSH客户端，一个实例对应一条到设备的连接
type Client struct {
	config     *Config
	connection *ssh.Client
	mutex      sync.RWMutex
	info       *ConnectionInfo
	stop       chan struct{}
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	return &Client{config: config}
}

// clientConfig 构建兼容老旧网络设备的握手参数
func (c *Client) clientConfig(info *ConnectionInfo) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.ConnectTimeout,
		Config: ssh.Config{
			// 不受支持的算法会在握手前被过滤
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group-exchange-sha1",
				"diffie-hellman-group1-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"rsa-sha2-512",
			"rsa-sha2-256",
			"ssh-rsa",
		},
	}

	// 同时尝试 password 与 keyboard-interactive
	cfg.Auth = []ssh.AuthMethod{
		ssh.Password(info.Password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = info.Password
			}
			return answers, nil
		}),
	}
	return cfg
}

// Connect 连接SSH服务器，失败时返回 *SessionError
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.info = info
	address := info.Address()

	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &SessionError{Host: address, Op: "dial", Err: err}
	}

	// ssh.NewClientConn 不读取 ClientConfig.Timeout，握手期间用连接截止时间兜底
	if deadline, ok := handshakeDeadline(ctx, c.config.ConnectTimeout); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, c.clientConfig(info))
	if err != nil {
		conn.Close()
		return &SessionError{Host: address, Op: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)
	c.stop = make(chan struct{})

	go c.keepAlive(c.stop)

	return nil
}

func handshakeDeadline(ctx context.Context, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline, !deadline.IsZero()
}

// OpenShell 在已建立的连接上打开交互式 Shell 并识别提示符
func (c *Client) OpenShell(ctx context.Context) (*ShellSession, error) {
	c.mutex.RLock()
	conn := c.connection
	info := c.info
	c.mutex.RUnlock()
	if conn == nil || info == nil {
		return nil, &SessionError{Op: "shell", Err: errors.New("SSH connection not established")}
	}

	sh, err := startShell(ctx, c, conn, info.Address(), c.config.CommandTimeout)
	if err != nil {
		return nil, err
	}
	if info.EnableCommand != "" {
		sh.enableCommand = info.EnableCommand
	}
	for _, cmd := range info.Prepare {
		if _, err := sh.SendCommand(ctx, cmd); err != nil {
			_ = sh.Close()
			return nil, &SessionError{Host: info.Address(), Op: "prepare", Err: err}
		}
	}
	return sh, nil
}

// Close 关闭SSH连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return false
	}
	// 发送 keepalive 请求而不创建会话
	_, _, err := conn.SendRequest("keepalive@openssh.com", false, nil)
	return err == nil
}

// keepAlive 保持连接活跃
func (c *Client) keepAlive(stop <-chan struct{}) {
	if c.config.KeepAlive <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}
		}
	}
}

// ShellDialer 为每次调用建立独立连接与 Shell 的 Dialer 实现
type ShellDialer struct {
	config *Config
}

// NewDialer 创建 ShellDialer
func NewDialer(config *Config) *ShellDialer {
	if config == nil {
		config = &Config{}
	}
	return &ShellDialer{config: config}
}

// Open 连接设备、打开 Shell 并执行准备命令
func (d *ShellDialer) Open(ctx context.Context, info *ConnectionInfo) (Session, error) {
	client := NewClient(d.config)
	if err := client.Connect(ctx, info); err != nil {
		return nil, err
	}
	sh, err := client.OpenShell(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return sh, nil
}
