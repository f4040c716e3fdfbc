package util

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// 设备终端常见的非 UTF-8 编码，按尝试顺序排列
var legacyEncodings = []encoding.Encoding{
	simplifiedchinese.GB18030,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// DecodeOutput 将设备输出转换为 UTF-8；已是 UTF-8 时原样返回
func DecodeOutput(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	for _, enc := range legacyEncodings {
		decoded, err := enc.NewDecoder().Bytes(b)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return string(b)
}
