package db

import "time"

// ===========================
// NOTIFICATION MODELS
// ===========================

type NotificationPriority string

const (
	PriorityLow      NotificationPriority = "low"
	PriorityMedium   NotificationPriority = "medium"
	PriorityHigh     NotificationPriority = "high"
	PriorityUrgent   NotificationPriority = "urgent"
	PriorityCritical NotificationPriority = "critical"
)

type NotificationType string

const (
	NotificationTypeEscalation NotificationType = "escalation"
	NotificationTypeSystem     NotificationType = "system"
	NotificationTypeReminder   NotificationType = "reminder"
)

// EscalationType identifies the condition that produced an escalation row.
// Cool-down guards and dedup keys are scoped by it.
type EscalationType string

const (
	EscalationTypeNotification EscalationType = "notification_escalation"
	EscalationTypeHotLead      EscalationType = "hot_lead_unattended"
	EscalationTypeStaleContact EscalationType = "stale_contact"
	EscalationTypeOverdueTask  EscalationType = "overdue_task"
)

// Notification is a row of crm_notifications.
type Notification struct {
	ID                   string                 `json:"id"`
	TenantID             string                 `json:"tenant_id"`
	ContactID            string                 `json:"contact_id,omitempty"`
	TaskID               string                 `json:"task_id,omitempty"`
	ParentNotificationID string                 `json:"parent_notification_id,omitempty"`
	AssignedAgentID      string                 `json:"assigned_agent_id,omitempty"` // tenant_users.id
	NotificationType     NotificationType       `json:"notification_type"`
	EscalationType       EscalationType         `json:"escalation_type,omitempty"`
	Priority             NotificationPriority   `json:"priority"`
	Title                string                 `json:"title"`
	Message              string                 `json:"message"`
	ActionURL            string                 `json:"action_url,omitempty"`
	ActionLabel          string                 `json:"action_label,omitempty"`
	IsRead               bool                   `json:"is_read"`
	IsDismissed          bool                   `json:"is_dismissed"`
	EscalationLevel      int                    `json:"escalation_level"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	DedupKey             string                 `json:"-"`
	CreatedAt            time.Time              `json:"created_at"`
	ExpiresAt            *time.Time             `json:"expires_at,omitempty"`
	LastEscalatedAt      *time.Time             `json:"last_escalated_at,omitempty"`
}

// ===========================
// CRM MODELS
// ===========================

const (
	ContactStatusActive = "active"

	StageWon  = "won"
	StageLost = "lost"

	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// Contact is a CRM lead or client. The escalation engine only reads it.
type Contact struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	FullName          string     `json:"full_name"`
	LeadScore         int        `json:"lead_score"`
	IsHotLead         bool       `json:"is_hot_lead"`
	PipelineStage     string     `json:"pipeline_stage"`
	DaysInStage       int        `json:"days_in_stage"`
	AssignedAgentID   string     `json:"assigned_agent_id,omitempty"` // tenant_users.id
	Status            string     `json:"status"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}

// Task is a CRM follow-up task. AssignedTo holds a users.id.
type Task struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Title      string    `json:"title"`
	ContactID  string    `json:"contact_id,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	Priority   string    `json:"priority"`
	DueDate    time.Time `json:"due_date"`
	Status     string    `json:"status"`
}

// ===========================
// TENANT / USER MODELS
// ===========================

const (
	RoleAgent       = "agent"
	RoleAgencyAdmin = "agency_admin"
	RoleAdmin       = "admin"
	RoleSuperAdmin  = "super_admin"
)

// TenantUser is a user's membership in an agency.
type TenantUser struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Recipient is the minimal user projection needed for email delivery.
type Recipient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// ===========================
// PUSH DEVICE MODELS
// ===========================

const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

type PushDevice struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Token      string    `json:"-"`
	Platform   string    `json:"platform"`
	AppVersion string    `json:"app_version,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
