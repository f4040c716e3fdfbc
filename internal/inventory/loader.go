// Package inventory 读取 CSV 设备清单
package inventory

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sshcollectorpro/versionboard/internal/model"
)

// RequiredColumns 清单必须包含的表头列
var RequiredColumns = []string{"ip", "username", "password", "enable_password"}

// Loader 设备清单加载器
type Loader struct {
	// DefaultDeviceType 行内未指定 device_type 时使用
	DefaultDeviceType string
}

// Load 使用默认平台 cisco_ios 加载清单
func Load(path string) ([]model.DeviceRecord, error) {
	return (&Loader{}).Load(path)
}

// Load 按文件顺序返回设备记录；仅有表头时返回空切片
func (l *Loader) Load(path string) ([]model.DeviceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}

	rows, err := readRows(data)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	if len(rows) == 0 {
		return nil, &FormatError{Path: path, Missing: append([]string(nil), RequiredColumns...), Err: gocsv.ErrEmptyCSVFile}
	}

	rows[0] = normalizeHeader(rows[0])
	if missing := missingColumns(rows[0]); len(missing) > 0 {
		return nil, &FormatError{Path: path, Missing: missing}
	}
	if len(rows) == 1 {
		return []model.DeviceRecord{}, nil
	}
	for i := 1; i < len(rows); i++ {
		rows[i] = fitRow(rows[i], len(rows[0]))
	}

	var parsed []*model.DeviceRecord
	if err := gocsv.UnmarshalCSV(&rowReader{rows: rows}, &parsed); err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	defaultType := strings.TrimSpace(l.DefaultDeviceType)
	if defaultType == "" {
		defaultType = model.DeviceTypeCiscoIOS
	}

	records := make([]model.DeviceRecord, 0, len(parsed))
	for _, rec := range parsed {
		if rec == nil {
			continue
		}
		r := model.DeviceRecord{
			DeviceType: strings.ToLower(strings.TrimSpace(rec.DeviceType)),
			IP:         strings.TrimSpace(rec.IP),
			Username:   strings.TrimSpace(rec.Username),
			Password:   strings.TrimSpace(rec.Password),
			Secret:     strings.TrimSpace(rec.Secret),
		}
		if r.DeviceType == "" {
			r.DeviceType = defaultType
		}
		records = append(records, r)
	}
	return records, nil
}

func readRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, perr
		}
		return nil, err
	}
	return rows, nil
}

// normalizeHeader 去除 BOM 与空白并转为小写
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

// fitRow 按表头宽度补齐或截断数据行；缺失的单元格视为空值
func fitRow(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// rowReader 将已解析的行交给 gocsv
type rowReader struct {
	rows [][]string
	pos  int
}

func (r *rowReader) Read() ([]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *rowReader) ReadAll() ([][]string, error) {
	rest := r.rows[r.pos:]
	r.pos = len(r.rows)
	return rest, nil
}
