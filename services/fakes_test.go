package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/travelhub/crm-escalation/db"
)

// memRepo emulates the SQL guards of db.Store in memory: monotonic levels, dedup keys and the
// per-kind cool-down NOT EXISTS checks.
type memRepo struct {
	mu sync.Mutex

	notifications []*db.Notification
	dedup         map[string]bool
	contacts      []db.Contact
	tasks         []db.Task
	agents        map[string]string   // tenant_users.id -> users.id
	roles         map[string][]string // role -> users.id
	recipients    map[string]db.Recipient

	failOn map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		dedup:      map[string]bool{},
		agents:     map[string]string{},
		roles:      map[string][]string{},
		recipients: map[string]db.Recipient{},
		failOn:     map[string]error{},
	}
}

func (r *memRepo) addSource(n db.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, &n)
}

func (r *memRepo) level(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id {
			return n.EscalationLevel
		}
	}
	return -1
}

func (r *memRepo) byType(kind db.EscalationType) []db.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.Notification
	for _, n := range r.notifications {
		if n.EscalationType == kind {
			out = append(out, *n)
		}
	}
	return out
}

func (r *memRepo) ListEscalationCandidates(ctx context.Context, createdAfter, now time.Time, limit int) ([]db.Notification, error) {
	if err := r.failOn["ListEscalationCandidates"]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []db.Notification
	for _, n := range r.notifications {
		if n.Priority != db.PriorityHigh && n.Priority != db.PriorityUrgent {
			continue
		}
		if n.IsRead || n.IsDismissed || n.CreatedAt.Before(createdAfter) {
			continue
		}
		if n.EscalationLevel >= db.MaxEscalationLevel() || n.EscalationType == db.EscalationTypeNotification {
			continue
		}
		delay, ok := db.NextRungDelay(n.EscalationLevel)
		if !ok || n.CreatedAt.After(now.Add(-time.Duration(delay)*time.Minute)) {
			continue
		}
		out = append(out, *n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) RecordEscalation(ctx context.Context, sourceID string, level int, row *db.Notification, at time.Time) (bool, error) {
	if err := r.failOn["RecordEscalation"]; err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.notifications {
		if n.ID != sourceID {
			continue
		}
		if n.EscalationLevel >= level {
			return false, nil
		}
		n.EscalationLevel = level
		n.LastEscalatedAt = &at
		if row != nil {
			r.insertLocked(row)
		}
		return true, nil
	}
	return false, nil
}

func (r *memRepo) InsertNotification(ctx context.Context, n *db.Notification) (bool, error) {
	if err := r.failOn["InsertNotification"]; err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(n), nil
}

func (r *memRepo) insertLocked(n *db.Notification) bool {
	if n.DedupKey != "" && r.dedup[n.DedupKey] {
		return false
	}
	if n.ID == "" {
		n.ID = fmt.Sprintf("gen-%d", len(r.notifications)+1)
	}
	r.dedup[n.DedupKey] = true
	cp := *n
	r.notifications = append(r.notifications, &cp)
	return true
}

func (r *memRepo) recentExists(kind db.EscalationType, match func(*db.Notification) bool, since time.Time) bool {
	for _, n := range r.notifications {
		if n.EscalationType == kind && match(n) && !n.CreatedAt.Before(since) {
			return true
		}
	}
	return false
}

func (r *memRepo) ListUnattendedHotLeads(ctx context.Context, interactionBefore, cooldownSince time.Time, limit int) ([]db.Contact, error) {
	if err := r.failOn["ListUnattendedHotLeads"]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []db.Contact
	for _, c := range r.contacts {
		if !c.IsHotLead || c.Status != db.ContactStatusActive || c.PipelineStage == db.StageWon || c.PipelineStage == db.StageLost {
			continue
		}
		if c.LastInteractionAt != nil && !c.LastInteractionAt.Before(interactionBefore) {
			continue
		}
		id := c.ID
		if r.recentExists(db.EscalationTypeHotLead, func(n *db.Notification) bool { return n.ContactID == id }, cooldownSince) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memRepo) ListStaleContacts(ctx context.Context, minDays int, cooldownSince time.Time, limit int) ([]db.Contact, error) {
	if err := r.failOn["ListStaleContacts"]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []db.Contact
	for _, c := range r.contacts {
		if c.Status != db.ContactStatusActive || c.PipelineStage == db.StageWon || c.PipelineStage == db.StageLost {
			continue
		}
		if c.DaysInStage <= minDays {
			continue
		}
		id := c.ID
		if r.recentExists(db.EscalationTypeStaleContact, func(n *db.Notification) bool { return n.ContactID == id }, cooldownSince) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memRepo) ListOverdueTasks(ctx context.Context, dueBefore, cooldownSince time.Time, limit int) ([]db.Task, error) {
	if err := r.failOn["ListOverdueTasks"]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []db.Task
	for _, t := range r.tasks {
		if t.Status != db.TaskStatusPending || !t.DueDate.Before(dueBefore) {
			continue
		}
		task := t
		match := func(n *db.Notification) bool {
			if task.ContactID != "" {
				return n.ContactID == task.ContactID
			}
			return n.TaskID == task.ID
		}
		if r.recentExists(db.EscalationTypeOverdueTask, match, cooldownSince) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) GetAgentUserID(ctx context.Context, tenantUserID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.agents[tenantUserID]
	if !ok {
		return "", db.ErrNotFound
	}
	return id, nil
}

// ListUserIDsByRoles deliberately ignores limit so callers' own caps are exercised.
func (r *memRepo) ListUserIDsByRoles(ctx context.Context, tenantID string, roles []string, limit int) ([]string, error) {
	if err := r.failOn["ListUserIDsByRoles"]; err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, role := range roles {
		out = append(out, r.roles[role]...)
	}
	return out, nil
}

func (r *memRepo) ListRecipients(ctx context.Context, userIDs []string) ([]db.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []db.Recipient
	for _, id := range userIDs {
		if rc, ok := r.recipients[id]; ok {
			out = append(out, rc)
		}
	}
	return out, nil
}

type pushCall struct {
	UserIDs []string
	Msg     PushMessage
}

type fakePusher struct {
	mu      sync.Mutex
	direct  []pushCall
	multi   []pushCall
	userErr error
}

func (p *fakePusher) SendToUser(ctx context.Context, userID string, msg PushMessage, platform string) (PushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.direct = append(p.direct, pushCall{UserIDs: []string{userID}, Msg: msg})
	if p.userErr != nil {
		return PushResult{}, p.userErr
	}
	return PushResult{Success: true, DeviceCount: 1}, nil
}

func (p *fakePusher) SendToMultipleUsers(ctx context.Context, userIDs []string, msg PushMessage) MultiPushResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.multi = append(p.multi, pushCall{UserIDs: userIDs, Msg: msg})
	return MultiPushResult{Total: len(userIDs), Successful: len(userIDs)}
}

type fakeEmail struct {
	sent []EmailMessage
}

func (f *fakeEmail) Send(ctx context.Context, msg EmailMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *clock) Ago(d time.Duration) time.Time { return c.t.Add(-d) }
