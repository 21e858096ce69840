// internal/api/router.go
package api

import (
	"fmt"

	"github.com/Corphon/ScreenplayStudio/internal/config"
	"github.com/Corphon/ScreenplayStudio/internal/di"
	"github.com/Corphon/ScreenplayStudio/internal/services"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
	"github.com/gin-gonic/gin"
)

// 容器中的服务名称
const (
	ServiceBackend   = "backend"
	ServiceSession   = "session"
	ServiceLayout    = "layout"
	ServiceExport    = "export"
	ServiceConfig    = "config"
	ServiceMetrics   = "metrics"
	ServiceWebSocket = "websocket"
)

// HandlerFromContainer 从容器中取出服务并创建处理器
func HandlerFromContainer(container *di.Container) (*Handler, error) {
	backend, err := di.Resolve[*services.BackendService](container, ServiceBackend)
	if err != nil {
		return nil, fmt.Errorf("后端服务未正确初始化: %w", err)
	}
	sessions, err := di.Resolve[*services.SessionService](container, ServiceSession)
	if err != nil {
		return nil, fmt.Errorf("会话服务未正确初始化: %w", err)
	}
	layout, err := di.Resolve[*services.LayoutService](container, ServiceLayout)
	if err != nil {
		return nil, fmt.Errorf("版式服务未正确初始化: %w", err)
	}
	export, err := di.Resolve[*services.ExportService](container, ServiceExport)
	if err != nil {
		return nil, fmt.Errorf("导出服务未正确初始化: %w", err)
	}
	configService, err := di.Resolve[*services.ConfigService](container, ServiceConfig)
	if err != nil {
		return nil, fmt.Errorf("配置服务未正确初始化: %w", err)
	}
	metrics, err := di.Resolve[*utils.StudioMetrics](container, ServiceMetrics)
	if err != nil {
		return nil, fmt.Errorf("指标服务未正确初始化: %w", err)
	}
	hub, err := di.Resolve[*WebSocketManager](container, ServiceWebSocket)
	if err != nil {
		return nil, fmt.Errorf("WebSocket 管理器未正确初始化: %w", err)
	}

	return NewHandler(backend, sessions, layout, export, configService, metrics, hub), nil
}

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	handler, err := HandlerFromContainer(di.GetContainer())
	if err != nil {
		return nil, err
	}
	return NewRouter(handler, config.GetCurrentConfig().RateLimitPerMinute), nil
}

// NewRouter 注册全部路由。rateLimitPerMinute <= 0 时不限流。
func NewRouter(handler *Handler, rateLimitPerMinute int) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if config.GetCurrentConfig().DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(RequestIDMiddleware())
	r.Use(corsMiddleware())
	r.Use(MetricsMiddleware(handler.Metrics))

	// WebSocket 不参与限流
	r.GET("/ws/scripts/:id", handler.ScriptWebSocket)

	api := r.Group("/api")
	api.Use(RateLimitByIP(NewRateLimiter(rateLimitPerMinute)))
	{
		api.GET("/health", handler.HealthCheck)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/ws/status", handler.GetWebSocketStatus)

		scriptsGroup := api.Group("/scripts")
		{
			scriptsGroup.GET("", handler.ListScripts)
			scriptsGroup.POST("", handler.CreateScript)
			scriptsGroup.GET("/:id", handler.GetScript)
			scriptsGroup.DELETE("/:id", handler.DeleteScript)
			scriptsGroup.GET("/:id/beats", handler.GetBeats)
			scriptsGroup.GET("/:id/scenes", handler.ListScenes)

			sessionGroup := scriptsGroup.Group("/:id/session")
			{
				sessionGroup.POST("", handler.OpenSession)
				sessionGroup.GET("", handler.GetSession)
				sessionGroup.DELETE("", handler.CloseSession)
				sessionGroup.POST("/actions/:action", handler.PerformAction)
			}

			scriptsGroup.GET("/:id/pagination", handler.GetPagination)
			scriptsGroup.POST("/:id/pagination", handler.RecomputePagination)
		}

		api.PATCH("/beats/:script_id/:beat_id", handler.UpdateBeat)
		api.PATCH("/scenes/:script_id/:scene_id", handler.UpdateScene)

		layoutGroup := api.Group("/layout")
		{
			layoutGroup.GET("/default", handler.GetDefaultLayout)
			layoutGroup.PUT("/default", handler.UpdateDefaultLayout)
			layoutGroup.GET("/history", handler.GetLayoutHistory)
		}

		api.GET("/elements/next", handler.NextElement)
		api.POST("/export/fountain", handler.ExportFountain)
	}

	return r
}
