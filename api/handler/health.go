package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatsProvider 提供运行统计
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	sessions StatsProvider
	database func() error
}

// NewHealthHandler 创建健康检查处理器；database 为 nil 表示未启用数据库
func NewHealthHandler(sessions StatsProvider, database func() error) *HealthHandler {
	return &HealthHandler{sessions: sessions, database: database}
}

// Health 健康检查
func (h *HealthHandler) Health(c *gin.Context) {
	data := gin.H{"database": "disabled"}
	if h.sessions != nil {
		data["sessions"] = h.sessions.GetStats()
	}
	if h.database != nil {
		if err := h.database(); err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "数据库不可用: " + err.Error(),
			})
			return
		}
		data["database"] = "ok"
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "服务正常",
		Data:    data,
	})
}
