package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/versionboard/internal/inventory"
	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/internal/service"
)

type stubScanner struct {
	report *service.Report
	err    error
	calls  int
}

func (s *stubScanner) Run(context.Context) (*service.Report, error) {
	s.calls++
	return s.report, s.err
}

type stubHistory struct {
	runs []model.ScanRun
}

func (h *stubHistory) ListRuns(_ context.Context, limit, offset int) ([]model.ScanRun, int64, error) {
	return h.runs, int64(len(h.runs)), nil
}

func (h *stubHistory) GetRun(_ context.Context, id string) (*model.ScanRun, error) {
	for i := range h.runs {
		if h.runs[i].ID == id {
			return &h.runs[i], nil
		}
	}
	return nil, service.ErrRunNotFound
}

type stubStats struct{}

func (stubStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"active_sessions": 0}
}

func sampleReport(results ...model.QueryResult) *service.Report {
	return &service.Report{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local),
		Duration:  1234 * time.Millisecond,
		Results:   results,
		Total:     len(results),
		Failed:    model.CountFailed(results),
	}
}

func newRouter(t *testing.T, deps Dependencies) *gin.Engine {
	t.Helper()
	deps.Mode = gin.TestMode
	r, err := SetupRouter(deps)
	require.NoError(t, err)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

// TestIndexRendersTable 首页渲染三列表格
func TestIndexRendersTable(t *testing.T) {
	scanner := &stubScanner{report: sampleReport(
		model.Success("10.0.0.1", "CORE-SW-1", "15.2(4)E7"),
		model.Success("10.0.0.2", "Hostname not found", "Version not found"),
		model.Failure("10.0.0.3", errors.New("connection refused")),
	)}
	r := newRouter(t, Dependencies{Scanner: scanner})

	w := get(r, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	assert.Contains(t, body, "<title>设备版本信息</title>")
	assert.Contains(t, body, "<th>IP</th><th>Hostname</th><th>Version</th>")
	assert.Contains(t, body, "<td>10.0.0.1</td><td>CORE-SW-1</td><td>15.2(4)E7</td>")
	assert.Contains(t, body, "<td>Hostname not found</td><td>Version not found</td>")
	assert.Contains(t, body, `<tr class="failed"><td>10.0.0.3</td><td>Error</td><td>Error: connection refused</td>`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	// 每次请求都重新扫描
	get(r, "/")
	assert.Equal(t, 2, scanner.calls)
}

// TestIndexEmptyInventory 空清单渲染空表
func TestIndexEmptyInventory(t *testing.T) {
	r := newRouter(t, Dependencies{Scanner: &stubScanner{report: sampleReport()}})
	w := get(r, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "设备清单为空。")
	assert.NotContains(t, w.Body.String(), "<table>")
}

// TestIndexInventoryError 清单错误返回 500
func TestIndexInventoryError(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{&inventory.FileAccessError{Path: "devices.csv", Err: errors.New("no such file")}, "INVENTORY_UNAVAILABLE"},
		{&inventory.FormatError{Path: "devices.csv", Missing: []string{"ip"}}, "INVENTORY_INVALID"},
		{errors.New("boom"), "SCAN_FAILED"},
	}
	for _, tc := range cases {
		r := newRouter(t, Dependencies{Scanner: &stubScanner{err: tc.err}})

		w := get(r, "/")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), tc.code)

		w = get(r, "/api/v1/results")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.code, resp["code"])
	}
}

// TestResultsJSON 结果接口
func TestResultsJSON(t *testing.T) {
	r := newRouter(t, Dependencies{Scanner: &stubScanner{report: sampleReport(
		model.Success("10.0.0.1", "R1", "15.2(4)E7"),
	)}})

	w := get(r, "/api/v1/results")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code string         `json:"code"`
		Data service.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SUCCESS", resp.Code)
	assert.Equal(t, "run-1", resp.Data.RunID)
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "R1", resp.Data.Results[0].Hostname)
}

// TestRunsDisabled 未启用数据库时历史接口返回 503
func TestRunsDisabled(t *testing.T) {
	r := newRouter(t, Dependencies{Scanner: &stubScanner{}})
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/v1/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/v1/runs/abc").Code)
}

// TestRuns 历史列表与详情
func TestRuns(t *testing.T) {
	history := &stubHistory{runs: []model.ScanRun{{
		ID:     "r1",
		Status: model.ScanStatusPartial,
		Total:  2,
		Failed: 1,
		Results: []model.ScanResult{
			{ID: 7, RunID: "r1", Seq: 0, IP: "10.0.0.1", Hostname: "R1", Version: "15.2(4)E7"},
			{ID: 8, RunID: "r1", Seq: 1, IP: "10.0.0.2", Hostname: "Error", Version: "Error: auth failed", Failed: true, ErrorMsg: "auth failed"},
		},
	}}}
	r := newRouter(t, Dependencies{Scanner: &stubScanner{}, History: history})

	w := get(r, "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = get(r, "/api/v1/runs/r1")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			ID      string              `json:"id"`
			Status  string              `json:"status"`
			Results []model.QueryResult `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "r1", body.Data.ID)
	assert.Equal(t, model.ScanStatusPartial, body.Data.Status)
	assert.Equal(t, []model.QueryResult{
		{IP: "10.0.0.1", Hostname: "R1", Version: "15.2(4)E7"},
		{IP: "10.0.0.2", Hostname: "Error", Version: "Error: auth failed", Failed: true, Error: "auth failed"},
	}, body.Data.Results)
	assert.NotContains(t, w.Body.String(), `"run_id"`)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/runs/r2").Code)
}

// TestHealth 健康检查
func TestHealth(t *testing.T) {
	r := newRouter(t, Dependencies{Scanner: &stubScanner{}, Sessions: stubStats{}})
	w := get(r, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"disabled"`)
	assert.Contains(t, w.Body.String(), `"active_sessions":0`)

	r = newRouter(t, Dependencies{Scanner: &stubScanner{}, DatabaseHealth: func() error { return errors.New("locked") }})
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/v1/health").Code)
}

// TestNoRoute 未注册路由
func TestNoRoute(t *testing.T) {
	r := newRouter(t, Dependencies{Scanner: &stubScanner{}})
	w := get(r, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
