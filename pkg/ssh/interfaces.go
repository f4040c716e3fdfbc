package ssh

import (
	"context"
)

//go:generate mockgen -destination=mock_ssh.go -package=ssh github.com/sshcollectorpro/versionboard/pkg/ssh Dialer,Session

// Dialer 打开到设备的交互式会话
type Dialer interface {
	Open(ctx context.Context, info *ConnectionInfo) (Session, error)
}

// Session 设备 CLI 会话，由单个调用方独占使用
type Session interface {
	// Enable 使用 secret 进入特权模式
	Enable(ctx context.Context, secret string) error
	// SendCommand 发送命令并返回到下一个提示符为止的输出（不含回显与提示符）
	SendCommand(ctx context.Context, command string) (string, error)
	Close() error
}
