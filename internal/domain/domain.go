package domain

// Proposal statuses. The four non-terminal statuses participate in the
// dedupe uniqueness constraint; terminal statuses do not block regeneration
// of the same dedupe key.
const (
	StatusProposed  = "proposed"
	StatusAccepted  = "accepted"
	StatusExecuting = "executing"
	StatusSnoozed   = "snoozed"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusExpired   = "expired"
	StatusFailed    = "failed"
)

// NonTerminalStatuses in the order used by the partial unique index.
var NonTerminalStatuses = []string{StatusProposed, StatusAccepted, StatusExecuting, StatusSnoozed}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusDeclined, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Engine generations.
const (
	GenerationAutopilot = "autopilot"
	GenerationLuna      = "luna"
)

// Proposal types.
const (
	TypeNewMeetingResearch   = "new-meeting-research"
	TypePrepOnly             = "prep-only"
	TypePostMeetingFollowup  = "post-meeting-followup"
	TypeReactivation         = "reactivation"
	TypeResumeIncompleteFlow = "resume-incomplete-flow"
)

// Trigger types.
const (
	TriggerCalendarNewOrg        = "calendar-new-org"
	TriggerCalendarKnownProspect = "calendar-known-prospect"
	TriggerMeetingEnded          = "meeting-ended"
	TriggerTranscriptReady       = "transcript-ready"
	TriggerProspectSilent        = "prospect-silent"
	TriggerFlowIncomplete        = "flow-incomplete"
	TriggerManual                = "manual"
)

// Action types.
const (
	ActionNavigate   = "navigate"
	ActionExecInline = "execute-inline"
	ActionExecAsync  = "execute-async"
)

type Proposal struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	OrgID        string `json:"org_id"`
	Generation   string `json:"generation" enum:"autopilot,luna"`
	ProposalType string `json:"proposal_type" enum:"new-meeting-research,prep-only,post-meeting-followup,reactivation,resume-incomplete-flow"`
	TriggerType  string `json:"trigger_type" enum:"calendar-new-org,calendar-known-prospect,meeting-ended,transcript-ready,prospect-silent,flow-incomplete,manual"`
	DedupeKey    string `json:"dedupe_key"`

	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	AssistantMessage string  `json:"assistant_message,omitempty"`
	ActionType       string  `json:"action_type" enum:"navigate,execute-inline,execute-async"`
	ActionRoute      string  `json:"action_route,omitempty"`
	ActionPayload    *string `json:"action_payload_json,omitempty"`

	Priority       int     `json:"priority"`
	PriorityInputs *string `json:"priority_inputs_json,omitempty"`

	Status         string  `json:"status" enum:"proposed,accepted,executing,snoozed,completed,declined,expired,failed"`
	DecisionReason *string `json:"decision_reason,omitempty"`
	ExpiredReason  *string `json:"expired_reason,omitempty"`

	ExecutionJobID  *string `json:"execution_job_id,omitempty"`
	ExecutionResult *string `json:"execution_result_json,omitempty"`
	ExecutionError  *string `json:"execution_error,omitempty"`
	Retryable       bool    `json:"retryable"`

	// False while the owning generation runs in shadow mode; such proposals
	// are persisted but hidden from end-user surfaces.
	VisibleToUser bool `json:"visible_to_user"`

	CreatedAt            string  `json:"created_at" format:"date-time"`
	UpdatedAt            string  `json:"updated_at" format:"date-time"`
	ExpiresAt            *string `json:"expires_at,omitempty" format:"date-time"`
	SnoozedUntil         *string `json:"snoozed_until,omitempty" format:"date-time"`
	DecidedAt            *string `json:"decided_at,omitempty" format:"date-time"`
	ShownAt              *string `json:"shown_at,omitempty" format:"date-time"`
	ShownSurface         *string `json:"shown_surface,omitempty"`
	ViewedAt             *string `json:"viewed_at,omitempty" format:"date-time"`
	ExecutionStartedAt   *string `json:"execution_started_at,omitempty" format:"date-time"`
	ExecutionCompletedAt *string `json:"execution_completed_at,omitempty" format:"date-time"`

	// Linkage to the target entities the proposal concerns. At most one
	// non-nil per concern area; used for fingerprinting and rendering.
	ProspectID *string `json:"prospect_id,omitempty"`
	ContactID  *string `json:"contact_id,omitempty"`
	MeetingID  *string `json:"meeting_id,omitempty"`
	ResearchID *string `json:"research_id,omitempty"`
	PrepID     *string `json:"prep_id,omitempty"`
	FollowupID *string `json:"followup_id,omitempty"`
	DraftID    *string `json:"draft_id,omitempty"`
}

// Settings is the per-user engine configuration. Created lazily with
// defaults on first access, reset to defaults rather than deleted.
type Settings struct {
	UserID            string   `json:"user_id"`
	Enabled           bool     `json:"enabled"`
	CalendarTriggers  bool     `json:"calendar_triggers"`
	MeetingTriggers   bool     `json:"meeting_triggers"`
	SilenceTriggers   bool     `json:"silence_triggers"`
	FlowTriggers      bool     `json:"flow_triggers"`
	ReactivationDays  int      `json:"reactivation_days"`
	PrepLeadHours     int      `json:"prep_lead_hours"`
	NotificationStyle string   `json:"notification_style" enum:"eager,balanced,minimal"`
	ExcludedKeywords  []string `json:"excluded_keywords,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

// DefaultSettings returns the lazily-seeded defaults for a user.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:            userID,
		Enabled:           true,
		CalendarTriggers:  true,
		MeetingTriggers:   true,
		SilenceTriggers:   true,
		FlowTriggers:      true,
		ReactivationDays:  14,
		PrepLeadHours:     24,
		NotificationStyle: "balanced",
	}
}

// Outcome is an append-only analytics record linking a finished proposal to
// a human-rated or inferred result. Never mutated after creation.
type Outcome struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	UserID     string `json:"user_id"`
	Generation string `json:"generation" enum:"autopilot,luna"`
	Rating     string `json:"rating" enum:"positive,neutral,negative"`
	Source     string `json:"source" enum:"human,inferred"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
