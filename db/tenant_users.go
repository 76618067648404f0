package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// GetAgentUserID resolves a tenant-user id to its users.id.
func (s *Store) GetAgentUserID(ctx context.Context, tenantUserID string) (string, error) {
	var userID string
	err := s.PG.QueryRowContext(ctx, `
		SELECT user_id FROM tenant_users
		WHERE id = $1 AND is_active = true
	`, tenantUserID).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get agent user: %w", err)
	}
	return userID, nil
}

// ListUserIDsByRoles returns at most limit distinct active users of a tenant holding any of roles.
func (s *Store) ListUserIDsByRoles(ctx context.Context, tenantID string, roles []string, limit int) ([]string, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT DISTINCT tu.user_id
		FROM tenant_users tu
		WHERE tu.tenant_id = $1
		AND tu.is_active = true
		AND tu.role = ANY($2)
		LIMIT $3
	`, tenantID, pq.Array(roles), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant users by role: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant user: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// ListRecipients returns name and email for the given users, skipping users without email.
func (s *Store) ListRecipients(ctx context.Context, userIDs []string) ([]Recipient, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), email
		FROM users
		WHERE id = ANY($1)
		AND email IS NOT NULL AND email <> ''
	`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.UserID, &r.Name, &r.Email); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}
