package ssh

import (
	"fmt"
)

// SessionError 建立会话失败（拨号、握手、认证、打开 Shell 或识别提示符）
type SessionError struct {
	Host string
	Op   string
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("failed to open session to %s (%s): %v", e.Host, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// PrivilegeError 无法进入特权模式
type PrivilegeError struct {
	Host   string
	Prompt string
	Err    error
}

func (e *PrivilegeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to enter enable mode on %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("failed to enter enable mode on %s: prompt is %q", e.Host, e.Prompt)
}

func (e *PrivilegeError) Unwrap() error { return e.Err }

// CommandError 命令执行失败或未在超时内返回提示符
type CommandError struct {
	Host    string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q on %s failed: %v", e.Command, e.Host, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
