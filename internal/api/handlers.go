// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/lifecycle"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/services"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	BackendService *services.BackendService // 剧本后端
	SessionService *services.SessionService // 生命周期会话
	LayoutService  *services.LayoutService  // 分页
	ExportService  *services.ExportService  // Fountain 导出
	ConfigService  *services.ConfigService  // 排版设置
	Metrics        *utils.StudioMetrics     // 指标
	Hub            *WebSocketManager        // WebSocket 推送
	Response       *ResponseHelper          // 响应助手

	logger    *utils.Logger
	startedAt time.Time
}

// NewHandler 创建API处理器
func NewHandler(
	backend *services.BackendService,
	sessions *services.SessionService,
	layout *services.LayoutService,
	export *services.ExportService,
	configService *services.ConfigService,
	metrics *utils.StudioMetrics,
	hub *WebSocketManager,
) *Handler {
	return &Handler{
		BackendService: backend,
		SessionService: sessions,
		LayoutService:  layout,
		ExportService:  export,
		ConfigService:  configService,
		Metrics:        metrics,
		Hub:            hub,
		Response:       NewResponseHelper(),
		logger:         utils.GetLogger().Named("api"),
		startedAt:      time.Now(),
	}
}

// UpdateSceneRequest 修改场景描述
type UpdateSceneRequest struct {
	Description string `json:"description"`
}

// PaginationRequest 重新分页的输入；Layout 为空时沿用当前版式
type PaginationRequest struct {
	Elements []models.RenderedElement `json:"elements"`
	Layout   *models.PageLayout       `json:"layout,omitempty"`
}

// bindOptionalJSON 绑定请求体，允许请求体为空
func bindOptionalJSON(c *gin.Context, target interface{}) error {
	if err := c.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ========================================
// 系统
// ========================================

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"status":          "ok",
		"uptime_seconds":  int(time.Since(h.startedAt).Seconds()),
		"active_sessions": h.SessionService.ActiveSessions(),
		"websocket":       h.Hub.GetStatus(),
	})
}

// GetMetrics 当前指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.Metrics.Collector().Snapshot())
}

// ========================================
// 剧本
// ========================================

// CreateScript 创建剧本
func (h *Handler) CreateScript(c *gin.Context) {
	var input services.CreateScriptInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	record, err := h.BackendService.CreateScript(c.Request.Context(), input)
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.Response.Created(c, record, "剧本创建成功")
}

// ListScripts 列出所有剧本
func (h *Handler) ListScripts(c *gin.Context) {
	records, err := h.BackendService.ListScripts(c.Request.Context())
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.Response.Success(c, records)
}

// GetScript 获取剧本
func (h *Handler) GetScript(c *gin.Context) {
	record, err := h.BackendService.GetScript(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.Response.Success(c, record)
}

// DeleteScript 删除剧本及其会话和分页状态
func (h *Handler) DeleteScript(c *gin.Context) {
	scriptID := c.Param("id")
	if err := h.BackendService.DeleteScript(c.Request.Context(), scriptID); err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.SessionService.Close(scriptID)
	h.LayoutService.Forget(scriptID)
	h.Response.Success(c, gin.H{"script_id": scriptID}, "剧本已删除")
}

// ========================================
// 节拍与场景
// ========================================

// GetBeats 获取剧本的节拍
func (h *Handler) GetBeats(c *gin.Context) {
	beats, err := h.BackendService.GetBeats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.Response.Success(c, beats)
}

// UpdateBeat 修改节拍
func (h *Handler) UpdateBeat(c *gin.Context) {
	var update models.BeatUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	beat, err := h.BackendService.UpdateBeat(c.Request.Context(), c.Param("script_id"), c.Param("beat_id"), update)
	if err != nil {
		h.Response.HandleError(c, err, "beat")
		return
	}
	h.Response.Success(c, beat, "节拍已更新")
}

// ListScenes 获取剧本的场景片段
func (h *Handler) ListScenes(c *gin.Context) {
	scenes, err := h.BackendService.ListScenes(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.Response.Success(c, scenes)
}

// UpdateScene 修改场景描述
func (h *Handler) UpdateScene(c *gin.Context) {
	var req UpdateSceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	scene, err := h.BackendService.UpdateSceneDescription(c.Request.Context(), c.Param("script_id"), c.Param("scene_id"), req.Description)
	if err != nil {
		h.Response.HandleError(c, err, "scene")
		return
	}
	h.Response.Success(c, scene, "场景已更新")
}

// ========================================
// 生命周期会话
// ========================================

// OpenSession 打开剧本会话并返回初始状态
func (h *Handler) OpenSession(c *gin.Context) {
	view, err := h.SessionService.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}
	h.Response.Success(c, view)
}

// GetSession 当前会话状态
func (h *Handler) GetSession(c *gin.Context) {
	view, err := h.SessionService.Get(c.Param("id"))
	if err != nil {
		h.Response.HandleError(c, err, "session")
		return
	}
	h.Response.Success(c, view)
}

// CloseSession 关闭会话
func (h *Handler) CloseSession(c *gin.Context) {
	scriptID := c.Param("id")
	if err := h.SessionService.Close(scriptID); err != nil {
		h.Response.HandleError(c, err, "session")
		return
	}
	h.Response.Success(c, gin.H{"script_id": scriptID}, "会话已关闭")
}

// PerformAction 执行生命周期操作。前置条件不满足时返回 200 且 applied=false。
func (h *Handler) PerformAction(c *gin.Context) {
	action, err := lifecycle.ParseAction(c.Param("action"))
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorUnknownAction, "未知的操作", err.Error())
		return
	}

	var req services.ActionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	result, err := h.SessionService.Perform(c.Request.Context(), c.Param("id"), action, req)
	if err != nil {
		h.Response.HandleError(c, err, "script")
		return
	}

	if !result.Outcome.Applied {
		h.Response.Success(c, result, result.Outcome.Reason)
		return
	}
	h.Response.Success(c, result)
}

// ========================================
// 分页与版式
// ========================================

// RecomputePagination 根据元素高度重新分页
func (h *Handler) RecomputePagination(c *gin.Context) {
	var req PaginationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	var layout models.PageLayout
	if req.Layout != nil {
		if req.Layout.Height <= 0 {
			h.Response.Error(c, http.StatusBadRequest, ErrorLayoutInvalid, "页面高度必须大于0")
			return
		}
		layout = *req.Layout
	}

	scriptID, ok := h.requireScript(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.LayoutService.Recompute(scriptID, req.Elements, layout))
}

// GetPagination 最近一次分页结果
func (h *Handler) GetPagination(c *gin.Context) {
	scriptID, ok := h.requireScript(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.LayoutService.Latest(scriptID))
}

// requireScript 确认路径中的剧本存在，不存在时写入错误响应
func (h *Handler) requireScript(c *gin.Context) (string, bool) {
	scriptID := c.Param("id")
	if _, err := h.BackendService.GetScript(c.Request.Context(), scriptID); err != nil {
		h.Response.HandleError(c, err, "script")
		return "", false
	}
	return scriptID, true
}

// GetDefaultLayout 默认排版设置
func (h *Handler) GetDefaultLayout(c *gin.Context) {
	h.Response.Success(c, h.ConfigService.GetFormatSettings())
}

// UpdateDefaultLayout 修改默认排版设置，跟随默认版式的剧本会重新分页
func (h *Handler) UpdateDefaultLayout(c *gin.Context) {
	var settings models.FormatSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	changedBy := c.GetHeader("X-Changed-By")
	if changedBy == "" {
		changedBy = "api"
	}

	updated, err := h.ConfigService.UpdateFormatSettings(settings, changedBy)
	if err != nil {
		h.Response.HandleError(c, err, "layout")
		return
	}
	h.Response.Success(c, updated, "排版设置已更新")
}

// GetLayoutHistory 排版设置变更记录
func (h *Handler) GetLayoutHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	h.Response.Success(c, h.ConfigService.GetChangeHistory(limit))
}

// ========================================
// 编辑与导出
// ========================================

// NextElement 编辑器中下一个元素的类型。on=enter 时按回车规则计算。
func (h *Handler) NextElement(c *gin.Context) {
	current := models.ElementType(strings.TrimSpace(c.Query("type")))
	if !current.IsValid() {
		h.Response.BadRequest(c, "未知的元素类型", string(current))
		return
	}

	next := services.NextElementType(current)
	if c.Query("on") == "enter" {
		next = services.NextElementOnEnter(current)
	}
	h.Response.Success(c, gin.H{"current": current, "next": next})
}

// ExportFountain 导出 Fountain 文本。format=json 时返回 JSON，否则作为附件下载。
func (h *Handler) ExportFountain(c *gin.Context) {
	var req services.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求参数", err.Error())
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "fountain"))
	if format != "fountain" && format != "json" {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportFormatInvalid, "不支持的导出格式", format)
		return
	}

	result, err := h.ExportService.ExportFountain(c.Request.Context(), req)
	if err != nil {
		h.Response.HandleError(c, err, "export")
		return
	}
	h.Response.ExportResponse(c, result, format == "fountain")
}
