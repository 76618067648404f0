package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ListActiveDevices returns a user's active push devices, optionally restricted to one platform.
func (s *Store) ListActiveDevices(ctx context.Context, userID, platform string) ([]PushDevice, error) {
	query := `
		SELECT id, user_id, token, platform, COALESCE(app_version, ''), is_active, created_at, last_seen_at
		FROM push_devices
		WHERE user_id = $1 AND is_active = true`
	args := []interface{}{userID}
	if platform != "" {
		query += ` AND platform = $2`
		args = append(args, platform)
	}
	query += ` ORDER BY last_seen_at DESC`

	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list push devices: %w", err)
	}
	defer rows.Close()

	var devices []PushDevice
	for rows.Next() {
		var d PushDevice
		if err := rows.Scan(&d.ID, &d.UserID, &d.Token, &d.Platform, &d.AppVersion, &d.IsActive, &d.CreatedAt, &d.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan push device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpsertDevice registers a token for a user. A token already known (possibly for another user)
// is moved to this user and reactivated.
func (s *Store) UpsertDevice(ctx context.Context, d *PushDevice) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.IsActive = true
	d.CreatedAt = now
	d.LastSeenAt = now

	err := s.PG.QueryRowContext(ctx, `
		INSERT INTO push_devices (id, user_id, token, platform, app_version, is_active, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, $6)
		ON CONFLICT (token) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    platform = EXCLUDED.platform,
		    app_version = EXCLUDED.app_version,
		    is_active = true,
		    last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, created_at
	`, d.ID, d.UserID, d.Token, d.Platform, nullString(d.AppVersion), now).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert push device: %w", err)
	}
	return nil
}

// DeactivateDevice turns off one of the user's devices.
func (s *Store) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	result, err := s.PG.ExecContext(ctx, `
		UPDATE push_devices SET is_active = false
		WHERE id = $1 AND user_id = $2 AND is_active = true
	`, deviceID, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate push device: %w", err)
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

// DeactivateTokens turns off every device holding one of tokens. Used when the push provider
// reports tokens as unregistered.
func (s *Store) DeactivateTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.PG.ExecContext(ctx, `UPDATE push_devices SET is_active = false WHERE token = ANY($1)`, pq.Array(tokens))
	if err != nil {
		return fmt.Errorf("failed to deactivate push tokens: %w", err)
	}
	return nil
}
