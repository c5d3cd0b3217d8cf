package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beobridge/halo-bridge-go/internal/halo"
	"github.com/beobridge/halo-bridge-go/pkg/utils"
)

// GetConfiguration dumps the configuration currently mirrored on the
// device.
func (h *Handlers) GetConfiguration(c *gin.Context) {
	utils.SendSuccess(c, h.client.Snapshot())
}

// SetConfiguration replaces the configuration and pushes it to the
// device.
func (h *Handlers) SetConfiguration(c *gin.Context) {
	var cfg halo.Configuration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid configuration payload: "+err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	sent := h.client.SetConfiguration(&cfg, true)
	utils.SendSuccess(c, gin.H{"sent": sent})
}

type notificationRequest struct {
	Title    string `json:"title" binding:"required"`
	Subtitle string `json:"subtitle"`
}

// PostNotification shows a notification on the remote.
func (h *Handlers) PostNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "title is required")
		return
	}

	update := halo.NewUpdateNotification(req.Title, req.Subtitle)
	if !h.client.Update(update) {
		utils.SendError(c, http.StatusServiceUnavailable, "Halo transport is not active")
		return
	}
	utils.SendSuccess(c, gin.H{"id": update.ID})
}

type displayPageRequest struct {
	PageID   string `json:"page_id" binding:"required"`
	ButtonID string `json:"button_id"`
}

// PostDisplayPage switches the page shown on the remote.
func (h *Handlers) PostDisplayPage(c *gin.Context) {
	var req displayPageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "page_id is required")
		return
	}

	found := false
	_ = h.client.WithConfiguration(func(cfg *halo.Configuration) error {
		if _, err := halo.GetPage(cfg, req.PageID); err == nil {
			found = true
		}
		return nil
	})
	if !found {
		utils.SendError(c, http.StatusNotFound, "Page not found")
		return
	}

	if !h.client.Update(halo.NewUpdateDisplayPage(req.PageID, req.ButtonID)) {
		utils.SendError(c, http.StatusServiceUnavailable, "Halo transport is not active")
		return
	}
	utils.SendSuccess(c, gin.H{"page_id": req.PageID})
}
