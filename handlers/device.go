package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/services"
)

type DeviceStore interface {
	UpsertDevice(ctx context.Context, d *db.PushDevice) error
	DeactivateDevice(ctx context.Context, userID, deviceID string) error
}

type PushSender interface {
	SendToUser(ctx context.Context, userID string, msg services.PushMessage, platform string) (services.PushResult, error)
}

// DeviceHandler manages the caller's push devices
type DeviceHandler struct {
	Store  DeviceStore
	Pusher PushSender
}

func NewDeviceHandler(store DeviceStore, pusher PushSender) *DeviceHandler {
	return &DeviceHandler{Store: store, Pusher: pusher}
}

type RegisterDeviceRequest struct {
	Token      string `json:"token" binding:"required"`
	Platform   string `json:"platform" binding:"required,oneof=ios android web"`
	AppVersion string `json:"app_version"`
}

// RegisterDevice stores or reactivates a push token for the caller
// POST /api/devices
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := &db.PushDevice{
		UserID:     c.GetString("user_id"),
		Token:      req.Token,
		Platform:   req.Platform,
		AppVersion: req.AppVersion,
	}
	if err := h.Store.UpsertDevice(c.Request.Context(), device); err != nil {
		log.Printf("Error registering device for user %s: %v", device.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device"})
		return
	}

	c.JSON(http.StatusCreated, device)
}

// DeactivateDevice turns off one of the caller's devices
// DELETE /api/devices/:id
func (h *DeviceHandler) DeactivateDevice(c *gin.Context) {
	deviceID := c.Param("id")
	if _, err := uuid.Parse(deviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id"})
		return
	}

	err := h.Store.DeactivateDevice(c.Request.Context(), c.GetString("user_id"), deviceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
		log.Printf("Error deactivating device %s: %v", deviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate device"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type TestPushRequest struct {
	Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// SendTestPush pushes a test message to the caller's own devices
// POST /api/devices/test
func (h *DeviceHandler) SendTestPush(c *gin.Context) {
	var req TestPushRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.Pusher.SendToUser(c.Request.Context(), c.GetString("user_id"), services.PushMessage{
		Title:    "Notificación de prueba",
		Body:     "Las notificaciones push del CRM están activas.",
		Priority: db.PriorityLow,
		Data:     map[string]string{"type": "test"},
	}, req.Platform)
	if err != nil {
		log.Printf("Error sending test push: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to send push notification"})
		return
	}
	c.JSON(http.StatusOK, result)
}
