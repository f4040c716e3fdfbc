package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/versionboard/internal/inventory"
	"github.com/sshcollectorpro/versionboard/internal/service"
)

// Scanner 执行一轮完整扫描
type Scanner interface {
	Run(ctx context.Context) (*service.Report, error)
}

// ReportHandler 设备版本报告处理器
type ReportHandler struct {
	scanner Scanner
}

// NewReportHandler 创建报告处理器
func NewReportHandler(scanner Scanner) *ReportHandler {
	return &ReportHandler{scanner: scanner}
}

// Index 每次请求完整执行一轮扫描并渲染 HTML 页面
func (h *ReportHandler) Index(c *gin.Context) {
	report, err := h.scanner.Run(c.Request.Context())
	if err != nil {
		status, resp := scanErrorResponse(err)
		c.HTML(status, "error.html", resp)
		return
	}
	c.HTML(http.StatusOK, "index.html", report)
}

// Results 与首页相同的扫描流程，以 JSON 返回
func (h *ReportHandler) Results(c *gin.Context) {
	report, err := h.scanner.Run(c.Request.Context())
	if err != nil {
		status, resp := scanErrorResponse(err)
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "扫描完成",
		Data:    report,
	})
}

// scanErrorResponse 清单错误中止整轮请求，统一返回 500
func scanErrorResponse(err error) (int, ErrorResponse) {
	var fileErr *inventory.FileAccessError
	var formatErr *inventory.FormatError
	switch {
	case errors.As(err, &fileErr):
		return http.StatusInternalServerError, ErrorResponse{Code: "INVENTORY_UNAVAILABLE", Message: "设备清单无法读取: " + err.Error()}
	case errors.As(err, &formatErr):
		return http.StatusInternalServerError, ErrorResponse{Code: "INVENTORY_INVALID", Message: "设备清单格式错误: " + err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "SCAN_FAILED", Message: "扫描失败: " + err.Error()}
	}
}
