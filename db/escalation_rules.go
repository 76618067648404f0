package db

// EscalationTarget names the audience a rule fans out to.
type EscalationTarget string

const (
	TargetAssignedAgent EscalationTarget = "assigned_agent"
	TargetSupervisors   EscalationTarget = "supervisors"
	// TargetAllAdmins and TargetAllAdminsPush resolve to the same audience; delivery is decided
	// by the rule's Channels. The built-in ladder only uses TargetAllAdminsPush.
	TargetAllAdmins     EscalationTarget = "all_admins"
	TargetAllAdminsPush EscalationTarget = "all_admins_push"
)

type Channel string

const (
	ChannelNotification Channel = "notification"
	ChannelPush         Channel = "push"
	ChannelEmail        Channel = "email"
)

// EscalationRule is one rung of the escalation ladder.
type EscalationRule struct {
	Level        int                  `json:"level"`
	Label        string               `json:"label"`
	DelayMinutes int                  `json:"delay_minutes"`
	Target       EscalationTarget     `json:"target"`
	Channels     []Channel            `json:"channels"`
	Priority     NotificationPriority `json:"priority"`
}

// HasChannel reports whether the rule delivers through ch.
func (r EscalationRule) HasChannel(ch Channel) bool {
	for _, c := range r.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// EscalationRules is ordered by Level with strictly increasing DelayMinutes.
// Level 0 is the state of every freshly created notification and is never executed.
var EscalationRules = []EscalationRule{
	{Level: 0, Label: "Inicial", DelayMinutes: 0, Target: TargetAssignedAgent, Channels: []Channel{ChannelNotification}, Priority: PriorityHigh},
	{Level: 1, Label: "Recordatorio", DelayMinutes: 30, Target: TargetAssignedAgent, Channels: []Channel{ChannelNotification, ChannelPush}, Priority: PriorityHigh},
	{Level: 2, Label: "Supervisor", DelayMinutes: 120, Target: TargetSupervisors, Channels: []Channel{ChannelNotification, ChannelPush}, Priority: PriorityUrgent},
	{Level: 3, Label: "Administración", DelayMinutes: 240, Target: TargetAllAdminsPush, Channels: []Channel{ChannelNotification, ChannelPush, ChannelEmail}, Priority: PriorityCritical},
}

// MaxEscalationLevel is the highest level of the ladder.
func MaxEscalationLevel() int {
	return EscalationRules[len(EscalationRules)-1].Level
}

// RuleForLevel returns the rule at the given level.
func RuleForLevel(level int) (EscalationRule, bool) {
	for _, rule := range EscalationRules {
		if rule.Level == level {
			return rule, true
		}
	}
	return EscalationRule{}, false
}

// NextRungDelay returns the delay of the first rung above level.
func NextRungDelay(level int) (int, bool) {
	for _, rule := range EscalationRules {
		if rule.Level > level {
			return rule.DelayMinutes, true
		}
	}
	return 0, false
}
