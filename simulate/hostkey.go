package simulate

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/versionboard/pkg/logger"
)

// hostKey 加载或生成 ed25519 host key；path 为空时仅保存在内存
func hostKey(path string) (ssh.Signer, error) {
	if path != "" {
		if bs, err := os.ReadFile(path); err == nil {
			signer, perr := ssh.ParsePrivateKey(bs)
			if perr == nil {
				return signer, nil
			}
			logger.WithError(perr).Warn("Simulate: host key parse failed, regenerating")
		}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to create host key signer: %w", err)
	}
	if path == "" {
		return signer, nil
	}

	blk, err := ssh.MarshalPrivateKey(priv, "versionboard simulate")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal host key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure host key dir: %w", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(blk), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}
	logger.WithField("file", path).Info("Simulate: host key generated")
	return signer, nil
}
