package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/versionboard/internal/model"
	"github.com/sshcollectorpro/versionboard/internal/service"
)

// HistoryReader 扫描历史查询
type HistoryReader interface {
	ListRuns(ctx context.Context, limit, offset int) ([]model.ScanRun, int64, error)
	GetRun(ctx context.Context, id string) (*model.ScanRun, error)
}

// RunDetail 单次扫描详情，结果与 /api/v1/results 同形
type RunDetail struct {
	model.ScanRun
	Results []model.QueryResult `json:"results"`
}

func newRunDetail(run *model.ScanRun) RunDetail {
	detail := RunDetail{ScanRun: *run, Results: make([]model.QueryResult, 0, len(run.Results))}
	for _, r := range run.Results {
		detail.Results = append(detail.Results, r.ToQueryResult())
	}
	detail.ScanRun.Results = nil
	return detail
}

// HistoryHandler 扫描历史处理器
type HistoryHandler struct {
	history HistoryReader
}

// NewHistoryHandler 创建历史处理器；history 为 nil 表示未启用
func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) disabled(c *gin.Context) bool {
	if h.history != nil {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Code:    "HISTORY_DISABLED",
		Message: "未配置数据库，扫描历史不可用",
	})
	return true
}

// ListRuns 分页列出扫描记录
func (h *HistoryHandler) ListRuns(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, total, err := h.history.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "查询扫描历史失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "查询成功",
		Data: gin.H{
			"total": total,
			"items": runs,
		},
	})
}

// GetRun 获取单次扫描详情
func (h *HistoryHandler) GetRun(c *gin.Context) {
	if h.disabled(c) {
		return
	}
	run, err := h.history.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "扫描记录不存在",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "查询扫描记录失败: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "查询成功",
		Data:    newRunDetail(run),
	})
}
