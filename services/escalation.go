package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/travelhub/crm-escalation/db"
)

const (
	// Sweep 1: only notifications this young are walked up the ladder.
	candidateWindow = 12 * time.Hour

	// Sweep 2
	hotLeadIdle     = time.Hour
	hotLeadCooldown = 2 * time.Hour

	// Sweep 3
	staleMinDays       = 14
	staleContactWindow = 72 * time.Hour

	// Sweep 4: tasks become escalatable this long after due, and re-escalate at most once per window.
	overdueGrace    = 24 * time.Hour
	overdueCooldown = 24 * time.Hour

	MaxSupervisorTargets = 5
	MaxAdminTargets      = 10

	DefaultBatchSize = 500
)

const (
	sweepNotifications = "notifications"
	sweepHotLeads      = "hot_leads"
	sweepStaleContacts = "stale_contacts"
	sweepOverdueTasks  = "overdue_tasks"
)

var (
	supervisorRoles = []string{db.RoleAgencyAdmin}
	adminRoles      = []string{db.RoleAdmin, db.RoleSuperAdmin}
)

// Repository is everything the engine reads and writes. *db.Store implements it.
type Repository interface {
	ListEscalationCandidates(ctx context.Context, createdAfter, now time.Time, limit int) ([]db.Notification, error)
	RecordEscalation(ctx context.Context, sourceID string, level int, row *db.Notification, at time.Time) (bool, error)
	InsertNotification(ctx context.Context, n *db.Notification) (bool, error)
	ListUnattendedHotLeads(ctx context.Context, interactionBefore, cooldownSince time.Time, limit int) ([]db.Contact, error)
	ListStaleContacts(ctx context.Context, minDays int, cooldownSince time.Time, limit int) ([]db.Contact, error)
	ListOverdueTasks(ctx context.Context, dueBefore, cooldownSince time.Time, limit int) ([]db.Task, error)
	GetAgentUserID(ctx context.Context, tenantUserID string) (string, error)
	ListUserIDsByRoles(ctx context.Context, tenantID string, roles []string, limit int) ([]string, error)
	ListRecipients(ctx context.Context, userIDs []string) ([]db.Recipient, error)
}

// Pusher is the push adapter as seen by the engine. *PushService implements it.
type Pusher interface {
	SendToUser(ctx context.Context, userID string, msg PushMessage, platform string) (PushResult, error)
	SendToMultipleUsers(ctx context.Context, userIDs []string, msg PushMessage) MultiPushResult
}

type EscalationOptions struct {
	// CatchUp executes the highest level the elapsed time qualifies for instead of one step.
	CatchUp   bool
	BatchSize int
	Lock      Locker
	Email     EmailSender
	Metrics   *Metrics
	Now       func() time.Time
}

type EscalationEngine struct {
	repo      Repository
	pusher    Pusher
	email     EmailSender
	lock      Locker
	metrics   *Metrics
	now       func() time.Time
	catchUp   bool
	batchSize int
}

func NewEscalationEngine(repo Repository, pusher Pusher, opts EscalationOptions) *EscalationEngine {
	e := &EscalationEngine{
		repo:      repo,
		pusher:    pusher,
		email:     opts.Email,
		lock:      opts.Lock,
		metrics:   opts.Metrics,
		now:       opts.Now,
		catchUp:   opts.CatchUp,
		batchSize: opts.BatchSize,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	return e
}

// CycleSummary reports what one cycle did. Errors collects per-sweep and per-row failures; a
// failure never stops the remaining sweeps.
type CycleSummary struct {
	Escalated             int         `json:"escalated"`
	ByLevel               map[int]int `json:"by_level"`
	HotLeadsNotified      int         `json:"hot_leads_notified"`
	StaleContactsFlagged  int         `json:"stale_contacts_flagged"`
	OverdueTasksEscalated int         `json:"overdue_tasks_escalated"`
	Errors                []string    `json:"errors,omitempty"`
	StartedAt             time.Time   `json:"started_at"`
	DurationMS            int64       `json:"duration_ms"`
}

func (s *CycleSummary) addError(sweep string, err error) {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", sweep, err))
}

// RunEscalationCycle runs the four sweeps sequentially against a single clock reading.
// It only fails when the cycle lock is held or cannot be taken.
func (e *EscalationEngine) RunEscalationCycle(ctx context.Context) (*CycleSummary, error) {
	if e.lock != nil {
		release, err := e.lock.Acquire(ctx)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				e.metrics.cycle("skipped", 0)
			} else {
				e.metrics.cycle("error", 0)
			}
			return nil, err
		}
		defer release()
	}

	now := e.now().UTC()
	summary := &CycleSummary{ByLevel: map[int]int{}, StartedAt: now}
	started := time.Now()

	sweeps := []struct {
		name string
		run  func(context.Context, time.Time, *CycleSummary) (int, error)
	}{
		{sweepNotifications, e.escalateNotifications},
		{sweepHotLeads, e.notifyUnattendedHotLeads},
		{sweepStaleContacts, e.flagStaleContacts},
		{sweepOverdueTasks, e.escalateOverdueTasks},
	}

	for _, sweep := range sweeps {
		emitted, err := e.runSweep(ctx, sweep.name, now, summary, sweep.run)
		e.metrics.emittedBy(sweep.name, emitted)
		if err != nil {
			log.Printf("Escalation: %s sweep failed: %v", sweep.name, err)
			summary.addError(sweep.name, err)
			e.metrics.sweepError(sweep.name)
		}
	}

	elapsed := time.Since(started)
	summary.DurationMS = elapsed.Milliseconds()
	e.metrics.cycle("ok", elapsed)

	log.Printf("Escalation: cycle done in %v (escalated=%d, hot_leads=%d, stale=%d, overdue=%d, errors=%d)",
		elapsed, summary.Escalated, summary.HotLeadsNotified, summary.StaleContactsFlagged,
		summary.OverdueTasksEscalated, len(summary.Errors))
	return summary, nil
}

func (e *EscalationEngine) runSweep(ctx context.Context, name string, now time.Time, summary *CycleSummary,
	run func(context.Context, time.Time, *CycleSummary) (int, error)) (emitted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return run(ctx, now, summary)
}

// ============================================================================
// SWEEP 1: UNREAD NOTIFICATIONS
// ============================================================================

func (e *EscalationEngine) escalateNotifications(ctx context.Context, now time.Time, summary *CycleSummary) (int, error) {
	candidates, err := e.repo.ListEscalationCandidates(ctx, now.Add(-candidateWindow), now, e.batchSize)
	if err != nil {
		return 0, err
	}

	for _, n := range candidates {
		minutesUnread := int(now.Sub(n.CreatedAt).Minutes())
		rule, ok := e.nextRule(n.EscalationLevel, minutesUnread)
		if !ok {
			continue
		}

		executed, err := e.executeEscalation(ctx, n, rule, minutesUnread, now)
		if err != nil {
			log.Printf("Escalation: failed to escalate notification %s to level %d: %v", n.ID, rule.Level, err)
			summary.addError(sweepNotifications, fmt.Errorf("notification %s: %w", n.ID, err))
			continue
		}
		if executed {
			summary.Escalated++
			summary.ByLevel[rule.Level]++
		}
	}
	return summary.Escalated, nil
}

// nextRule picks the rule to execute for a notification at current that has been unread for
// minutesUnread. In strict mode only the rung directly above current is considered, so a
// notification climbs at most one level per cycle.
func (e *EscalationEngine) nextRule(current, minutesUnread int) (db.EscalationRule, bool) {
	var picked db.EscalationRule
	found := false
	for _, rule := range db.EscalationRules {
		if rule.Level <= current {
			continue
		}
		if minutesUnread < rule.DelayMinutes {
			break
		}
		picked, found = rule, true
		if !e.catchUp {
			break
		}
	}
	return picked, found
}

// executeEscalation fans a notification out per rule. The level is persisted first; channels only
// fire when this run actually advanced it, and their failures are logged, never returned.
func (e *EscalationEngine) executeEscalation(ctx context.Context, n db.Notification, rule db.EscalationRule, minutesUnread int, now time.Time) (bool, error) {
	userIDs, err := e.ResolveTargets(ctx, n.TenantID, n.AssignedAgentID, rule.Target)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", rule.Target, err)
	}

	var row *db.Notification
	if rule.HasChannel(db.ChannelNotification) {
		row = escalationRow(n, rule, userIDs, minutesUnread, now)
	}

	recorded, err := e.repo.RecordEscalation(ctx, n.ID, rule.Level, row, now)
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}

	log.Printf("Escalation: notification %s escalated to level %d (%s), %d recipients", n.ID, rule.Level, rule.Label, len(userIDs))

	if rule.HasChannel(db.ChannelPush) && len(userIDs) > 0 {
		result := e.pusher.SendToMultipleUsers(ctx, userIDs, PushMessage{
			Title:    fmt.Sprintf("[%s] %s", rule.Label, n.Title),
			Body:     n.Message,
			Priority: rule.Priority,
			Data: map[string]string{
				"type":             string(db.EscalationTypeNotification),
				"notification_id":  n.ID,
				"escalation_level": fmt.Sprint(rule.Level),
				"action_url":       n.ActionURL,
			},
		})
		if result.Failed > 0 {
			log.Printf("Escalation: push for notification %s: %d/%d failed", n.ID, result.Failed, result.Total)
		}
	}

	if rule.HasChannel(db.ChannelEmail) && e.email != nil && len(userIDs) > 0 {
		e.sendEscalationEmail(ctx, n, rule, userIDs, minutesUnread)
	}
	return true, nil
}

func escalationRow(n db.Notification, rule db.EscalationRule, userIDs []string, minutesUnread int, now time.Time) *db.Notification {
	return &db.Notification{
		TenantID:             n.TenantID,
		ContactID:            n.ContactID,
		TaskID:               n.TaskID,
		ParentNotificationID: n.ID,
		AssignedAgentID:      n.AssignedAgentID,
		NotificationType:     db.NotificationTypeEscalation,
		EscalationType:       db.EscalationTypeNotification,
		Priority:             rule.Priority,
		Title:                fmt.Sprintf("[%s] %s", rule.Label, n.Title),
		Message:              fmt.Sprintf("Sin leer desde hace %d minutos. %s", minutesUnread, n.Message),
		ActionURL:            n.ActionURL,
		ActionLabel:          "Ver notificación",
		EscalationLevel:      rule.Level,
		Metadata: map[string]interface{}{
			"source_notification_id": n.ID,
			"target":                 string(rule.Target),
			"recipients":             userIDs,
		},
		DedupKey:  fmt.Sprintf("%s:%s:L%d", db.EscalationTypeNotification, n.ID, rule.Level),
		CreatedAt: now,
	}
}

func (e *EscalationEngine) sendEscalationEmail(ctx context.Context, n db.Notification, rule db.EscalationRule, userIDs []string, minutesUnread int) {
	recipients, err := e.repo.ListRecipients(ctx, userIDs)
	if err != nil {
		log.Printf("Escalation: failed to resolve email recipients for notification %s: %v", n.ID, err)
		return
	}

	err = e.email.Send(ctx, EmailMessage{
		To:      recipients,
		Subject: fmt.Sprintf("[%s] %s", rule.Label, n.Title),
		TextContent: fmt.Sprintf("%s\n\nEsta notificación lleva %d minutos sin leer y fue escalada al nivel %d (%s).\n%s",
			n.Message, minutesUnread, rule.Level, rule.Label, n.ActionURL),
	})
	if err != nil {
		log.Printf("Escalation: email for notification %s failed: %v", n.ID, err)
	}
}

// ResolveTargets maps a rule target to user ids. Supervisors and admins are capped at
// MaxSupervisorTargets and MaxAdminTargets. A missing assigned agent resolves to nobody.
func (e *EscalationEngine) ResolveTargets(ctx context.Context, tenantID, agentRef string, target db.EscalationTarget) ([]string, error) {
	switch target {
	case db.TargetAssignedAgent:
		if agentRef == "" {
			return nil, nil
		}
		userID, err := e.repo.GetAgentUserID(ctx, agentRef)
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []string{userID}, nil

	case db.TargetSupervisors:
		return e.usersByRoles(ctx, tenantID, supervisorRoles, MaxSupervisorTargets)

	case db.TargetAllAdmins, db.TargetAllAdminsPush:
		return e.usersByRoles(ctx, tenantID, adminRoles, MaxAdminTargets)

	default:
		return nil, fmt.Errorf("unknown escalation target %q", target)
	}
}

func (e *EscalationEngine) usersByRoles(ctx context.Context, tenantID string, roles []string, limit int) ([]string, error) {
	ids, err := e.repo.ListUserIDsByRoles(ctx, tenantID, roles, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ============================================================================
// SWEEP 2: UNATTENDED HOT LEADS
// ============================================================================

func (e *EscalationEngine) notifyUnattendedHotLeads(ctx context.Context, now time.Time, summary *CycleSummary) (int, error) {
	contacts, err := e.repo.ListUnattendedHotLeads(ctx, now.Add(-hotLeadIdle), now.Add(-hotLeadCooldown), e.batchSize)
	if err != nil {
		return 0, err
	}

	for _, c := range contacts {
		n := &db.Notification{
			TenantID:         c.TenantID,
			ContactID:        c.ID,
			AssignedAgentID:  c.AssignedAgentID,
			NotificationType: db.NotificationTypeEscalation,
			EscalationType:   db.EscalationTypeHotLead,
			Priority:         db.PriorityUrgent,
			Title:            fmt.Sprintf("🔥 Hot lead sin atender: %s", c.FullName),
			Message: fmt.Sprintf("%s (score %d, etapa %s) no tiene interacciones en la última hora.",
				c.FullName, c.LeadScore, c.PipelineStage),
			ActionURL:   "/crm/contacts/" + c.ID,
			ActionLabel: "Contactar ahora",
			Metadata: map[string]interface{}{
				"lead_score":     c.LeadScore,
				"pipeline_stage": c.PipelineStage,
			},
			DedupKey:  dedupKey(db.EscalationTypeHotLead, c.ID, now, hotLeadCooldown),
			CreatedAt: now,
		}

		inserted, err := e.repo.InsertNotification(ctx, n)
		if err != nil {
			summary.addError(sweepHotLeads, fmt.Errorf("contact %s: %w", c.ID, err))
			continue
		}
		if !inserted {
			continue
		}
		summary.HotLeadsNotified++

		if c.AssignedAgentID == "" {
			continue
		}
		userID, err := e.repo.GetAgentUserID(ctx, c.AssignedAgentID)
		if err != nil {
			log.Printf("Escalation: cannot resolve agent %s for hot lead %s: %v", c.AssignedAgentID, c.ID, err)
			continue
		}
		e.pushDirect(ctx, userID, n)
	}
	return summary.HotLeadsNotified, nil
}

// ============================================================================
// SWEEP 3: STALE CONTACTS
// ============================================================================

func (e *EscalationEngine) flagStaleContacts(ctx context.Context, now time.Time, summary *CycleSummary) (int, error) {
	contacts, err := e.repo.ListStaleContacts(ctx, staleMinDays, now.Add(-staleContactWindow), e.batchSize)
	if err != nil {
		return 0, err
	}

	for _, c := range contacts {
		n := &db.Notification{
			TenantID:         c.TenantID,
			ContactID:        c.ID,
			AssignedAgentID:  c.AssignedAgentID,
			NotificationType: db.NotificationTypeEscalation,
			EscalationType:   db.EscalationTypeStaleContact,
			Priority:         db.PriorityMedium,
			Title:            fmt.Sprintf("Contacto estancado: %s", c.FullName),
			Message:          fmt.Sprintf("%s lleva %d días en la etapa %s sin avanzar.", c.FullName, c.DaysInStage, c.PipelineStage),
			ActionURL:        "/crm/contacts/" + c.ID,
			ActionLabel:      "Revisar contacto",
			Metadata: map[string]interface{}{
				"days_in_stage":  c.DaysInStage,
				"pipeline_stage": c.PipelineStage,
			},
			DedupKey:  dedupKey(db.EscalationTypeStaleContact, c.ID, now, staleContactWindow),
			CreatedAt: now,
		}

		inserted, err := e.repo.InsertNotification(ctx, n)
		if err != nil {
			summary.addError(sweepStaleContacts, fmt.Errorf("contact %s: %w", c.ID, err))
			continue
		}
		if inserted {
			summary.StaleContactsFlagged++
		}
	}
	return summary.StaleContactsFlagged, nil
}

// ============================================================================
// SWEEP 4: OVERDUE TASKS
// ============================================================================

func (e *EscalationEngine) escalateOverdueTasks(ctx context.Context, now time.Time, summary *CycleSummary) (int, error) {
	tasks, err := e.repo.ListOverdueTasks(ctx, now.Add(-overdueGrace), now.Add(-overdueCooldown), e.batchSize)
	if err != nil {
		return 0, err
	}

	for _, t := range tasks {
		hoursOverdue := int(math.Round(now.Sub(t.DueDate).Hours()))

		// Suppression is per contact; tasks without one are suppressed on their own.
		subject := t.ContactID
		if subject == "" {
			subject = t.ID
		}

		n := &db.Notification{
			TenantID:         t.TenantID,
			ContactID:        t.ContactID,
			TaskID:           t.ID,
			NotificationType: db.NotificationTypeEscalation,
			EscalationType:   db.EscalationTypeOverdueTask,
			Priority:         db.PriorityHigh,
			Title:            fmt.Sprintf("⏰ Tarea vencida: %s", t.Title),
			Message:          fmt.Sprintf("La tarea \"%s\" lleva %d horas vencida.", t.Title, hoursOverdue),
			ActionURL:        "/crm/tasks/" + t.ID,
			ActionLabel:      "Ver tarea",
			Metadata: map[string]interface{}{
				"hours_overdue": hoursOverdue,
				"task_priority": t.Priority,
			},
			DedupKey:  dedupKey(db.EscalationTypeOverdueTask, subject, now, overdueCooldown),
			CreatedAt: now,
		}

		inserted, err := e.repo.InsertNotification(ctx, n)
		if err != nil {
			summary.addError(sweepOverdueTasks, fmt.Errorf("task %s: %w", t.ID, err))
			continue
		}
		if !inserted {
			continue
		}
		summary.OverdueTasksEscalated++

		if t.AssignedTo != "" {
			e.pushDirect(ctx, t.AssignedTo, n)
		}
	}
	return summary.OverdueTasksEscalated, nil
}

// pushDirect sends n to one user. Failures are logged only.
func (e *EscalationEngine) pushDirect(ctx context.Context, userID string, n *db.Notification) {
	result, err := e.pusher.SendToUser(ctx, userID, PushMessage{
		Title:    n.Title,
		Body:     n.Message,
		Priority: n.Priority,
		Data: map[string]string{
			"type":            string(n.EscalationType),
			"notification_id": n.ID,
			"action_url":      n.ActionURL,
		},
	}, "")
	if err != nil {
		log.Printf("Escalation: push to user %s for %s failed: %v", userID, n.EscalationType, err)
		return
	}
	if !result.Success {
		log.Printf("Escalation: push to user %s skipped: %s", userID, result.Message)
	}
}

// dedupKey buckets now into windows of the cool-down length so two writers racing on the same
// condition in the same window collide on the unique index.
func dedupKey(kind db.EscalationType, subjectID string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("%s:%s:%d", kind, subjectID, now.Unix()/int64(window.Seconds()))
}
