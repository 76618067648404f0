package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const contactColumns = `
	c.id, c.tenant_id, c.full_name, c.lead_score, c.is_hot_lead,
	c.pipeline_stage, c.days_in_stage, c.assigned_agent_id, c.status, c.last_interaction_at`

// ListUnattendedHotLeads returns active hot leads outside terminal stages with no interaction
// since interactionBefore and no hot-lead escalation created after cooldownSince.
func (s *Store) ListUnattendedHotLeads(ctx context.Context, interactionBefore, cooldownSince time.Time, limit int) ([]Contact, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT`+contactColumns+`
		FROM crm_contacts c
		WHERE c.is_hot_lead = true
		AND c.status = $1
		AND c.pipeline_stage NOT IN ($2, $3)
		AND (c.last_interaction_at IS NULL OR c.last_interaction_at < $4)
		AND NOT EXISTS (
			SELECT 1 FROM crm_notifications n
			WHERE n.contact_id = c.id
			AND n.escalation_type = $5
			AND n.created_at > $6
		)
		ORDER BY c.lead_score DESC
		LIMIT $7
	`, ContactStatusActive, StageWon, StageLost, interactionBefore, EscalationTypeHotLead, cooldownSince, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unattended hot leads: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// ListStaleContacts returns active contacts outside terminal stages that have sat in their
// stage for more than minDays with no stale-contact escalation created after cooldownSince.
func (s *Store) ListStaleContacts(ctx context.Context, minDays int, cooldownSince time.Time, limit int) ([]Contact, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT`+contactColumns+`
		FROM crm_contacts c
		WHERE c.status = $1
		AND c.pipeline_stage NOT IN ($2, $3)
		AND c.days_in_stage > $4
		AND NOT EXISTS (
			SELECT 1 FROM crm_notifications n
			WHERE n.contact_id = c.id
			AND n.escalation_type = $5
			AND n.created_at > $6
		)
		ORDER BY c.days_in_stage DESC
		LIMIT $7
	`, ContactStatusActive, StageWon, StageLost, minDays, EscalationTypeStaleContact, cooldownSince, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale contacts: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

func scanContacts(rows *sql.Rows) ([]Contact, error) {
	var contacts []Contact
	for rows.Next() {
		var c Contact
		var agentID sql.NullString
		var lastInteraction sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.FullName, &c.LeadScore, &c.IsHotLead,
			&c.PipelineStage, &c.DaysInStage, &agentID, &c.Status, &lastInteraction,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.AssignedAgentID = agentID.String
		c.LastInteractionAt = timePtr(lastInteraction)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
