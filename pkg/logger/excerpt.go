package logger

import "strings"

// OutputLines 命令输出的首尾摘要，用于日志中定位匹配失败的原始回显
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
	Total     int      `json:"total"`
}

// Excerpt 提取输出首尾各 maxLines 行（去除空行）；行数不足 2*maxLines 时尾部为空
func Excerpt(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}

	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.ReplaceAll(output, "\r", "\n")

	lines := make([]string, 0, 16)
	for _, ln := range strings.Split(output, "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		lines = append(lines, ln)
	}

	ex := OutputLines{Total: len(lines)}
	if len(lines) <= 2*maxLines {
		ex.HeadLines = lines
		return ex
	}
	ex.HeadLines = lines[:maxLines]
	ex.TailLines = lines[len(lines)-maxLines:]
	return ex
}
