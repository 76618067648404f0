package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ListOverdueTasks returns pending tasks due before dueBefore with no overdue-task escalation
// created after cooldownSince for the same contact, or for the task itself when it has no
// contact.
func (s *Store) ListOverdueTasks(ctx context.Context, dueBefore, cooldownSince time.Time, limit int) ([]Task, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT t.id, t.tenant_id, t.title, t.contact_id, t.assigned_to,
		       COALESCE(t.priority, ''), t.due_date, t.status
		FROM crm_tasks t
		WHERE t.status = $1
		AND t.due_date < $2
		AND NOT EXISTS (
			SELECT 1 FROM crm_notifications n
			WHERE n.escalation_type = $3
			AND n.created_at > $4
			AND (
				(t.contact_id IS NOT NULL AND n.contact_id = t.contact_id)
				OR (t.contact_id IS NULL AND n.task_id = t.id)
			)
		)
		ORDER BY t.due_date ASC
		LIMIT $5
	`, TaskStatusPending, dueBefore, EscalationTypeOverdueTask, cooldownSince, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var contactID, assignedTo sql.NullString
		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.Title, &contactID, &assignedTo,
			&t.Priority, &t.DueDate, &t.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.ContactID = contactID.String
		t.AssignedTo = assignedTo.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
