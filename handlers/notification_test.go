package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/travelhub/crm-escalation/db"
)

type MockNotificationStore struct {
	mock.Mock
}

func (m *MockNotificationStore) ListNotifications(ctx context.Context, filter db.NotificationFilter, page db.Page) ([]db.Notification, int, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).([]db.Notification), args.Int(1), args.Error(2)
}

func (m *MockNotificationStore) MarkRead(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *MockNotificationStore) MarkAllRead(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationStore) Dismiss(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

// withIdentity stands in for RequireAuth in handler tests.
func withIdentity(userID, tenantID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("tenant_id", tenantID)
		c.Set("user_role", role)
		c.Next()
	}
}

func setupNotificationRouter(store NotificationStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewNotificationHandler(store)
	g := r.Group("/api/notifications", withIdentity("user-1", "tenant-1", "agent"))
	g.GET("", h.ListNotifications)
	g.PUT("/read-all", h.MarkAllRead)
	g.PUT("/:id/read", h.MarkRead)
	g.PUT("/:id/dismiss", h.Dismiss)
	return r
}

func TestNotificationHandler_List(t *testing.T) {
	store := new(MockNotificationStore)
	store.On("ListNotifications", mock.Anything,
		db.NotificationFilter{TenantID: "tenant-1", UnreadOnly: true},
		db.Page{Page: 2, PageSize: 10},
	).Return([]db.Notification{{ID: "n-1", Title: "Hola"}}, 11, nil)

	r := setupNotificationRouter(store)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications?page=2&page_size=10&unread_only=true", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Notifications []db.Notification `json:"notifications"`
		Total         int               `json:"total"`
		TotalPages    int               `json:"total_pages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Notifications, 1)
	assert.Equal(t, 11, body.Total)
	assert.Equal(t, 2, body.TotalPages)
	store.AssertExpectations(t)
}

func TestNotificationHandler_ListDefaultsAndError(t *testing.T) {
	store := new(MockNotificationStore)
	store.On("ListNotifications", mock.Anything,
		db.NotificationFilter{TenantID: "tenant-1"},
		db.Page{Page: 1, PageSize: db.DefaultPageSize},
	).Return([]db.Notification(nil), 0, errors.New("db down"))

	r := setupNotificationRouter(store)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications?page=abc", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to list notifications")
}

const notificationID = "0b6f3c1e-8d1a-4c47-9a55-2f0c6e9d7b10"

func TestNotificationHandler_UpdateOne(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		err        error
		wantStatus int
	}{
		{"mark read", "MarkRead", "/api/notifications/" + notificationID + "/read", nil, http.StatusOK},
		{"mark read missing", "MarkRead", "/api/notifications/" + notificationID + "/read", db.ErrNotFound, http.StatusNotFound},
		{"dismiss", "Dismiss", "/api/notifications/" + notificationID + "/dismiss", nil, http.StatusOK},
		{"dismiss failure", "Dismiss", "/api/notifications/" + notificationID + "/dismiss", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockNotificationStore)
			store.On(tt.method, mock.Anything, "tenant-1", notificationID).Return(tt.err)

			r := setupNotificationRouter(store)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			store.AssertExpectations(t)
		})
	}
}

func TestNotificationHandler_RejectsMalformedID(t *testing.T) {
	for _, path := range []string{"/api/notifications/not-a-uuid/read", "/api/notifications/42/dismiss"} {
		t.Run(path, func(t *testing.T) {
			store := new(MockNotificationStore)

			r := setupNotificationRouter(store)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, path, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "Invalid notification id")
			store.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "Dismiss", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestNotificationHandler_MarkAllRead(t *testing.T) {
	store := new(MockNotificationStore)
	store.On("MarkAllRead", mock.Anything, "tenant-1").Return(int64(7), nil)

	r := setupNotificationRouter(store)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/notifications/read-all", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"updated":7}`, w.Body.String())
}
