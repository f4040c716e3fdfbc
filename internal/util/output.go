package util

import (
	"regexp"
	"strings"
)

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	pagerPattern = regexp.MustCompile(`(?i)\s*-+\s*more\s*-+\s*`)
)

// NormalizeOutput 统一换行、去除 ANSI 控制序列与分页提示，并剥离退格
func NormalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = ansiPattern.ReplaceAllString(s, "")
	s = pagerPattern.ReplaceAllString(s, "\n")
	if strings.ContainsRune(s, '\b') {
		s = applyBackspaces(s)
	}
	return s
}

// LastLine 返回最后一个非空行（去除首尾空白）
func LastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}

func applyBackspaces(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\b' {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
