package api

import (
	"github.com/studysphere/studysphere/cmd/server/internal/models"
	"github.com/studysphere/studysphere/cmd/server/internal/services"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RoadmapHandler Roadmap API处理器
type RoadmapHandler struct {
	service *services.RoadmapService
}

// NewRoadmapHandler 创建RoadmapHandler实例
func NewRoadmapHandler(service *services.RoadmapService) *RoadmapHandler {
	return &RoadmapHandler{
		service: service,
	}
}

// RegisterRoutes 注册路线图路由
func (h *RoadmapHandler) RegisterRoutes(rg *gin.RouterGroup) {
	roadmap := rg.Group("/roadmap")
	roadmap.POST("", h.HandleCreate)
	roadmap.GET("", h.HandleGetActive)
	roadmap.GET("/history", h.HandleHistory)
	roadmap.POST("/complete", h.HandleComplete)
	roadmap.POST("/backlog/clear", h.HandleClearBacklog)
}

// HandleCreate 生成并保存新路线图
// POST /api/roadmap
func (h *RoadmapHandler) HandleCreate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		unauthorizedResponse(c)
		return
	}

	var req models.CreateRoadmapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, "invalid request body", err.Error())
		return
	}

	roadmap, err := h.service.CreateRoadmap(c.Request.Context(), userID, req.Topic, req.Duration, req.Level)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, h.service.View(roadmap))
}

// HandleGetActive 获取当前活跃路线图，没有时 data 为 null
// GET /api/roadmap
func (h *RoadmapHandler) HandleGetActive(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		unauthorizedResponse(c)
		return
	}

	roadmap, err := h.service.GetActiveRoadmap(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if roadmap == nil {
		successResponse(c, http.StatusOK, nil)
		return
	}
	successResponse(c, http.StatusOK, h.service.View(roadmap))
}

// HandleHistory 获取用户全部路线图
// GET /api/roadmap/history
func (h *RoadmapHandler) HandleHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		unauthorizedResponse(c)
		return
	}

	list, err := h.service.ListRoadmaps(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]*models.RoadmapView, 0, len(list))
	for _, r := range list {
		views = append(views, h.service.View(r))
	}
	successResponse(c, http.StatusOK, views)
}

// HandleComplete 完成任务
// POST /api/roadmap/complete
func (h *RoadmapHandler) HandleComplete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		unauthorizedResponse(c)
		return
	}

	var req models.CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequestResponse(c, "invalid request body", err.Error())
		return
	}
	roadmap, err := h.service.CompleteTask(c.Request.Context(), userID, services.CompleteTaskInput{
		RoadmapID:  req.RoadmapID,
		DayOrdinal: req.DayID,
		TaskIndex:  *req.TaskID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, h.service.View(roadmap))
}

// HandleClearBacklog 清除过去未完成天的积压提示
// POST /api/roadmap/backlog/clear
func (h *RoadmapHandler) HandleClearBacklog(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		unauthorizedResponse(c)
		return
	}

	roadmap, err := h.service.ClearBacklog(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, h.service.View(roadmap))
}
