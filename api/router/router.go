package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/versionboard/api/handler"
	"github.com/sshcollectorpro/versionboard/pkg/logger"
	"github.com/sshcollectorpro/versionboard/web"
)

// Dependencies 路由依赖
type Dependencies struct {
	Scanner handler.Scanner
	// History 为 nil 时历史接口返回 503
	History  handler.HistoryReader
	Sessions handler.StatsProvider
	// DatabaseHealth 为 nil 表示未启用数据库
	DatabaseHealth func() error
	// Mode gin 运行模式，默认 release
	Mode string
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	switch deps.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(deps.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	reportHandler := handler.NewReportHandler(deps.Scanner)
	historyHandler := handler.NewHistoryHandler(deps.History)
	healthHandler := handler.NewHealthHandler(deps.Sessions, deps.DatabaseHealth)

	// 首页：每次请求完整执行一轮扫描
	r.GET("/", reportHandler.Index)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)
		v1.GET("/results", reportHandler.Results)

		runs := v1.Group("/runs")
		{
			runs.GET("", historyHandler.ListRuns)
			runs.GET("/:id", historyHandler.GetRun)
		}
	}

	// 404处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r, nil
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     statusCode,
			"duration":   time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if statusCode >= 500 {
			entry.Error("HTTP Request")
			return
		}
		entry.Info("HTTP Request")
	}
}
