package inventory

import (
	"fmt"
	"strings"
)

// FileAccessError 清单文件不存在或无法读取
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("inventory file %s is not accessible: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// FormatError 清单内容不符合预期格式（缺少列、无表头或行格式错误）
type FormatError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("inventory file %s is missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("inventory file %s is malformed: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }
