package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sshcollectorpro/versionboard/internal/platform"
	sshc "github.com/sshcollectorpro/versionboard/pkg/ssh"
)

// 对单台设备（通常是实验室模拟器）走一遍会话流程并打印原始输出
func main() {
	host := flag.String("host", "127.0.0.1", "设备地址")
	port := flag.Int("port", 22001, "SSH端口")
	user := flag.String("user", "core-sw-1", "用户名（模拟器中即设备名）")
	password := flag.String("password", "cisco", "登录密码")
	secret := flag.String("secret", "enable123", "enable 密码")
	lines := flag.Int("lines", 10, "每条命令打印的行数")
	flag.Parse()

	cfg := &sshc.Config{
		ConnectTimeout: 3 * time.Second,
		CommandTimeout: 5 * time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profile := platform.CiscoIOS
	sess, err := sshc.NewDialer(cfg).Open(ctx, &sshc.ConnectionInfo{
		Host:     *host,
		Port:     *port,
		Username: *user,
		Password: *password,
		Prepare:  profile.SessionPrep,
	})
	if err != nil {
		fmt.Println("open error:", err)
		os.Exit(1)
	}
	defer sess.Close()

	if err := sess.Enable(ctx, *secret); err != nil {
		fmt.Println("enable error:", err)
		os.Exit(1)
	}

	outputs := map[string]string{}
	for _, cmd := range []string{profile.HostnameCommand, profile.VersionCommand} {
		out, err := sess.SendCommand(ctx, cmd)
		if err != nil {
			fmt.Printf("%s error: %v\n", cmd, err)
			continue
		}
		outputs[cmd] = out
		fmt.Printf("%s output (head):\n%s\n", cmd, headLines(out, *lines))
	}
	fmt.Println("hostname:", profile.ParseHostname(outputs[profile.HostnameCommand]))
	fmt.Println("version: ", profile.ParseVersion(outputs[profile.VersionCommand]))
}

func headLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]string, 0, n)
	for _, ln := range strings.Split(s, "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		out = append(out, ln)
		if len(out) >= n {
			break
		}
	}
	return strings.Join(out, "\n")
}
