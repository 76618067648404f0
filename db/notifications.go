package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errLevelNotAdvanced = errors.New("escalation level not advanced")

// nextRungDelaySQL maps escalation_level to the delay in minutes of the rung above it.
var nextRungDelaySQL = func() string {
	var b strings.Builder
	b.WriteString("CASE n.escalation_level")
	for _, rule := range EscalationRules {
		if delay, ok := NextRungDelay(rule.Level); ok {
			fmt.Fprintf(&b, " WHEN %d THEN %d", rule.Level, delay)
		}
	}
	b.WriteString(" END")
	return b.String()
}()

// ListEscalationCandidates returns unread, undismissed high/urgent notifications created at or
// after createdAfter whose next rung is already due at now. Rows still waiting on a later
// threshold are filtered in SQL so they cannot fill the batch ahead of due rows. Rows emitted by
// the ladder itself are excluded so escalations never escalate. The agent reference falls back
// to the contact's assigned agent.
func (s *Store) ListEscalationCandidates(ctx context.Context, createdAfter, now time.Time, limit int) ([]Notification, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT n.id, n.tenant_id, n.contact_id, n.task_id,
		       COALESCE(n.assigned_agent_id, c.assigned_agent_id),
		       n.notification_type, n.escalation_type, n.priority,
		       n.title, n.message, COALESCE(n.action_url, ''),
		       n.escalation_level, n.created_at, n.last_escalated_at
		FROM crm_notifications n
		LEFT JOIN crm_contacts c ON c.id = n.contact_id
		WHERE n.priority IN ($1, $2)
		AND n.is_read = false
		AND n.is_dismissed = false
		AND n.created_at >= $3
		AND n.escalation_level < $4
		AND (n.escalation_type IS NULL OR n.escalation_type <> $5)
		AND n.created_at <= $6::timestamptz - make_interval(mins => `+nextRungDelaySQL+`)
		ORDER BY n.created_at ASC
		LIMIT $7
	`, PriorityHigh, PriorityUrgent, createdAfter, MaxEscalationLevel(), EscalationTypeNotification, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation candidates: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var contactID, taskID, agentID, escalationType sql.NullString
		var lastEscalatedAt sql.NullTime
		if err := rows.Scan(
			&n.ID, &n.TenantID, &contactID, &taskID, &agentID,
			&n.NotificationType, &escalationType, &n.Priority,
			&n.Title, &n.Message, &n.ActionURL,
			&n.EscalationLevel, &n.CreatedAt, &lastEscalatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan escalation candidate: %w", err)
		}
		n.ContactID = contactID.String
		n.TaskID = taskID.String
		n.AssignedAgentID = agentID.String
		n.EscalationType = EscalationType(escalationType.String)
		n.LastEscalatedAt = timePtr(lastEscalatedAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// InsertNotification stores n. It reports false when a row with the same dedup key already
// exists, in which case nothing is written.
func (s *Store) InsertNotification(ctx context.Context, n *Notification) (bool, error) {
	return insertNotification(ctx, s.PG, n)
}

func insertNotification(ctx context.Context, q querier, n *Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.NotificationType == "" {
		n.NotificationType = NotificationTypeSystem
	}

	var metadata interface{}
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return false, fmt.Errorf("failed to marshal notification metadata: %w", err)
		}
		metadata = string(b)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO crm_notifications (
			id, tenant_id, contact_id, task_id, parent_notification_id, assigned_agent_id,
			notification_type, escalation_type, priority, title, message, action_url, action_label,
			is_read, is_dismissed, escalation_level, metadata, dedup_key, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, false, $14, $15, $16, $17, $18)
		ON CONFLICT (dedup_key) DO NOTHING
	`,
		n.ID, n.TenantID, nullString(n.ContactID), nullString(n.TaskID),
		nullString(n.ParentNotificationID), nullString(n.AssignedAgentID),
		n.NotificationType, nullString(string(n.EscalationType)), n.Priority,
		n.Title, n.Message, nullString(n.ActionURL), nullString(n.ActionLabel),
		n.EscalationLevel, metadata, nullString(n.DedupKey), n.CreatedAt, nullTime(n.ExpiresAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read inserted rows: %w", err)
	}
	return affected == 1, nil
}

// RecordEscalation advances the source notification to level and, when row is non-nil, stores
// the escalation row, in one transaction. The level only moves upwards; if another run already
// reached level it reports false and writes nothing.
func (s *Store) RecordEscalation(ctx context.Context, sourceID string, level int, row *Notification, at time.Time) (bool, error) {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE crm_notifications
			SET escalation_level = $1,
			    last_escalated_at = $2
			WHERE id = $3
			AND escalation_level < $1
		`, level, at, sourceID)
		if err != nil {
			return fmt.Errorf("failed to update escalation level: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read updated rows: %w", err)
		}
		if affected == 0 {
			return errLevelNotAdvanced
		}

		if row != nil {
			if _, err := insertNotification(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errLevelNotAdvanced) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NotificationFilter narrows the inbox listing.
type NotificationFilter struct {
	TenantID   string
	UnreadOnly bool
}

// ListNotifications returns one page of a tenant's undismissed notifications, newest first,
// together with the total number of matching rows.
func (s *Store) ListNotifications(ctx context.Context, filter NotificationFilter, page Page) ([]Notification, int, error) {
	where := `WHERE tenant_id = $1 AND is_dismissed = false`
	if filter.UnreadOnly {
		where += ` AND is_read = false`
	}

	var total int
	if err := s.PG.QueryRowContext(ctx, `SELECT COUNT(*) FROM crm_notifications `+where, filter.TenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, tenant_id, contact_id, task_id, parent_notification_id, assigned_agent_id,
		       notification_type, escalation_type, priority, title, message,
		       COALESCE(action_url, ''), COALESCE(action_label, ''),
		       is_read, is_dismissed, escalation_level, metadata,
		       created_at, expires_at, last_escalated_at
		FROM crm_notifications
		`+where+`
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, filter.TenantID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		var contactID, taskID, parentID, agentID, escalationType sql.NullString
		var metadata []byte
		var expiresAt, lastEscalatedAt sql.NullTime
		if err := rows.Scan(
			&n.ID, &n.TenantID, &contactID, &taskID, &parentID, &agentID,
			&n.NotificationType, &escalationType, &n.Priority, &n.Title, &n.Message,
			&n.ActionURL, &n.ActionLabel,
			&n.IsRead, &n.IsDismissed, &n.EscalationLevel, &metadata,
			&n.CreatedAt, &expiresAt, &lastEscalatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ContactID = contactID.String
		n.TaskID = taskID.String
		n.ParentNotificationID = parentID.String
		n.AssignedAgentID = agentID.String
		n.EscalationType = EscalationType(escalationType.String)
		n.ExpiresAt = timePtr(expiresAt)
		n.LastEscalatedAt = timePtr(lastEscalatedAt)
		if len(metadata) > 0 {
			// Metadata is an opaque caller bag; a malformed one is dropped rather than failing the page.
			_ = json.Unmarshal(metadata, &n.Metadata)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkRead flags one notification as read.
func (s *Store) MarkRead(ctx context.Context, tenantID, id string) error {
	return s.updateFlag(ctx, `UPDATE crm_notifications SET is_read = true WHERE id = $1 AND tenant_id = $2`, id, tenantID)
}

// Dismiss hides a notification. Rows are never deleted.
func (s *Store) Dismiss(ctx context.Context, tenantID, id string) error {
	return s.updateFlag(ctx, `UPDATE crm_notifications SET is_dismissed = true WHERE id = $1 AND tenant_id = $2`, id, tenantID)
}

func (s *Store) updateFlag(ctx context.Context, query, id, tenantID string) error {
	result, err := s.PG.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of a tenant as read and returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context, tenantID string) (int64, error) {
	result, err := s.PG.ExecContext(ctx, `
		UPDATE crm_notifications
		SET is_read = true
		WHERE tenant_id = $1 AND is_read = false AND is_dismissed = false
	`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}
