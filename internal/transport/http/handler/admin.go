package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"leftear-ai/internal/app"
	"leftear-ai/internal/model"
	"leftear-ai/internal/transport/http/response"
)

// AdminHandler exposes preset management and usage stats. Routes are mounted
// behind the AdminOnly middleware; preset payloads here include API keys.
type AdminHandler struct {
	presetService *app.PresetService
}

func NewAdminHandler(presetService *app.PresetService) *AdminHandler {
	return &AdminHandler{presetService: presetService}
}

type SavePresetRequest struct {
	ID           uint   `json:"id"`
	Name         string `json:"name" binding:"required,max=64"`
	Description  string `json:"description" binding:"max=128"`
	Icon         string `json:"icon" binding:"max=512"`
	BaseURL      string `json:"base_url" binding:"required,max=512"`
	APIKey       string `json:"api_key" binding:"required,max=512"`
	ModelID      string `json:"model_id" binding:"required,max=128"`
	SystemPrompt string `json:"system_prompt"`
}

// Data returns full presets and resolved usage counters in one call.
func (h *AdminHandler) Data(c *gin.Context) {
	presets, err := h.presetService.ListFull()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list presets failed")
		return
	}
	stats, err := h.presetService.UsageStats()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "load usage stats failed")
		return
	}

	response.OK(c, gin.H{
		"presets": presets,
		"usage":   stats,
	})
}

func (h *AdminHandler) SavePreset(c *gin.Context) {
	var req SavePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	preset := &model.Preset{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		Icon:         req.Icon,
		BaseURL:      req.BaseURL,
		APIKey:       req.APIKey,
		ModelID:      req.ModelID,
		SystemPrompt: req.SystemPrompt,
	}
	if err := h.presetService.Save(c.Request.Context(), preset); err != nil {
		switch {
		case errors.Is(err, app.ErrPresetIncomplete):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "save preset failed")
		}
		return
	}

	response.OK(c, preset)
}

func (h *AdminHandler) DeletePreset(c *gin.Context) {
	presetID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || presetID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid preset id")
		return
	}

	if err := h.presetService.Delete(c.Request.Context(), uint(presetID64)); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete preset failed")
		return
	}

	response.OK(c, gin.H{"deleted_preset_id": uint(presetID64)})
}
