package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beobridge/halo-bridge-go/internal/core/halosync"
	"github.com/beobridge/halo-bridge-go/internal/database"
	"github.com/beobridge/halo-bridge-go/internal/halo"
	"github.com/beobridge/halo-bridge-go/pkg/utils"
)

// ListBindings returns all persisted button bindings.
func (h *Handlers) ListBindings(c *gin.Context) {
	bindings, err := h.bindings.List(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list bindings")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list bindings")
		return
	}
	utils.SendSuccess(c, bindings)
}

// PutBinding creates or replaces one binding and applies the new set
// to the running synchronizer.
func (h *Handlers) PutBinding(c *gin.Context) {
	var binding halosync.Binding
	if err := c.ShouldBindJSON(&binding); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid binding payload: "+err.Error())
		return
	}
	binding.ButtonID = c.Param("button_id")
	if binding.EntityID == "" {
		utils.SendError(c, http.StatusBadRequest, "entity_id is required")
		return
	}

	exists := false
	_ = h.client.WithConfiguration(func(cfg *halo.Configuration) error {
		if _, err := halo.GetButton(cfg, binding.ButtonID); err == nil {
			exists = true
		}
		return nil
	})
	if !exists {
		utils.SendError(c, http.StatusNotFound, "Button not in configuration")
		return
	}

	if err := h.bindings.Upsert(c.Request.Context(), binding); err != nil {
		h.logger.WithError(err).Error("Failed to save binding")
		utils.SendError(c, http.StatusInternalServerError, "Failed to save binding")
		return
	}

	h.applyBindings(c.Request.Context())
	utils.SendSuccess(c, binding)
}

// DeleteBinding removes one binding.
func (h *Handlers) DeleteBinding(c *gin.Context) {
	buttonID := c.Param("button_id")
	if _, err := h.bindings.Get(c.Request.Context(), buttonID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			utils.SendError(c, http.StatusNotFound, "Binding not found")
			return
		}
		h.logger.WithError(err).Error("Failed to look up binding")
		utils.SendError(c, http.StatusInternalServerError, "Failed to delete binding")
		return
	}

	if err := h.bindings.Delete(c.Request.Context(), buttonID); err != nil {
		h.logger.WithError(err).Error("Failed to delete binding")
		utils.SendError(c, http.StatusInternalServerError, "Failed to delete binding")
		return
	}

	h.applyBindings(c.Request.Context())
	utils.SendSuccess(c, gin.H{"deleted": buttonID})
}

// applyBindings reloads the persisted set into the synchronizer and
// refreshes the affected buttons.
func (h *Handlers) applyBindings(ctx context.Context) {
	bindings, err := h.bindings.List(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to reload bindings")
		return
	}
	h.sync.ReplaceBindings(bindings)

	go func() {
		resyncCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.sync.Resync(resyncCtx)
	}()
}
