package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/travelhub/crm-escalation/db"
)

type NotificationStore interface {
	ListNotifications(ctx context.Context, filter db.NotificationFilter, page db.Page) ([]db.Notification, int, error)
	MarkRead(ctx context.Context, tenantID, id string) error
	MarkAllRead(ctx context.Context, tenantID string) (int64, error)
	Dismiss(ctx context.Context, tenantID, id string) error
}

// NotificationHandler serves the tenant's CRM notification inbox
type NotificationHandler struct {
	Store NotificationStore
}

func NewNotificationHandler(store NotificationStore) *NotificationHandler {
	return &NotificationHandler{Store: store}
}

// ListNotifications returns a page of undismissed notifications
// GET /api/notifications?page=1&page_size=20&unread_only=true
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	pageNum, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(db.DefaultPageSize)))
	page := db.NewPage(pageNum, pageSize)
	unreadOnly := c.Query("unread_only") == "true"

	notifications, total, err := h.Store.ListNotifications(c.Request.Context(), db.NotificationFilter{
		TenantID:   tenantID,
		UnreadOnly: unreadOnly,
	}, page)
	if err != nil {
		log.Printf("Error listing notifications for tenant %s: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         total,
		"page":          page.Page,
		"page_size":     page.PageSize,
		"total_pages":   page.TotalPages(total),
	})
}

// MarkRead marks one notification as read
// PUT /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateOne(c, h.Store.MarkRead)
}

// Dismiss hides one notification
// PUT /api/notifications/:id/dismiss
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	h.updateOne(c, h.Store.Dismiss)
}

func (h *NotificationHandler) updateOne(c *gin.Context, update func(ctx context.Context, tenantID, id string) error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification id"})
		return
	}
	if err := update(c.Request.Context(), c.GetString("tenant_id"), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		log.Printf("Error updating notification %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// MarkAllRead marks every unread notification of the tenant as read
// PUT /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.Store.MarkAllRead(c.Request.Context(), c.GetString("tenant_id"))
	if err != nil {
		log.Printf("Error marking notifications read: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notifications read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}
