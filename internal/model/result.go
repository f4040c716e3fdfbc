package model

// 失败记录的标记值
const (
	ErrorHostname = "Error"
	ErrorPrefix   = "Error: "
)

// QueryResult 单台设备的查询结果，每条记录每轮恰好一个
type QueryResult struct {
	IP       string `json:"ip" csv:"ip"`
	Hostname string `json:"hostname" csv:"hostname"`
	Version  string `json:"version" csv:"version"`
	Failed   bool   `json:"failed" csv:"failed"`
	Error    string `json:"error,omitempty" csv:"error"`
}

// Success 构造成功结果（主机名或版本可能为未找到的哨兵值）
func Success(ip, hostname, version string) QueryResult {
	return QueryResult{IP: ip, Hostname: hostname, Version: version}
}

// Failure 构造失败结果，hostname 固定为 "Error"，version 携带错误描述
func Failure(ip string, err error) QueryResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return QueryResult{
		IP:       ip,
		Hostname: ErrorHostname,
		Version:  ErrorPrefix + msg,
		Failed:   true,
		Error:    msg,
	}
}

// CountFailed 统计失败数量
func CountFailed(results []QueryResult) int {
	n := 0
	for _, r := range results {
		if r.Failed {
			n++
		}
	}
	return n
}
