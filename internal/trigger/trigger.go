package trigger

import (
	"errors"
	"fmt"
	"strings"

	"nudgeline/internal/domain"
)

// ErrUnrecognized marks raw events that map to no known trigger type.
var ErrUnrecognized = errors.New("unrecognized trigger")

// RawEvent is an inbound signal before normalization. Source and Type use
// the emitting system's vocabulary; Payload carries its loose fields.
type RawEvent struct {
	Source     string         `json:"source"`
	Type       string         `json:"type"`
	UserID     string         `json:"user_id"`
	OrgID      string         `json:"org_id"`
	OccurredAt string         `json:"occurred_at,omitempty" format:"date-time"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Trigger is the canonical form every raw event is reduced to before it
// reaches the proposal engine.
type Trigger struct {
	Type         string
	UserID       string
	OrgID        string
	ProposalType string
	TargetID     string
	OccurredAt   string

	MeetingID    *string
	ProspectID   *string
	ContactID    *string
	FlowID       *string
	MeetingTitle string
	ProspectName string
	FlowName     string

	MeetingStartsAt *string
	DaysSilent      int
	FlowAgeHours    float64
	ProspectEngaged bool
}

// Fingerprint is the dedupe key: one live proposal per user, trigger type,
// proposal type and target entity.
func (t Trigger) Fingerprint() string {
	return strings.Join([]string{t.UserID, t.Type, t.ProposalType, t.TargetID}, "|")
}

// Normalize reduces a raw event to a canonical trigger. Events from unknown
// sources or with unknown types return ErrUnrecognized; structurally broken
// events return plain errors.
func Normalize(raw RawEvent) (Trigger, error) {
	if raw.UserID == "" {
		return Trigger{}, fmt.Errorf("raw event user_id required")
	}
	if raw.OrgID == "" {
		return Trigger{}, fmt.Errorf("raw event org_id required")
	}
	t := Trigger{
		UserID:     raw.UserID,
		OrgID:      raw.OrgID,
		OccurredAt: raw.OccurredAt,
	}
	switch raw.Source {
	case "calendar":
		if raw.Type != "meeting.scheduled" {
			return Trigger{}, fmt.Errorf("%w: calendar/%s", ErrUnrecognized, raw.Type)
		}
		meetingID := payloadString(raw.Payload, "meeting_id")
		if meetingID == "" {
			return Trigger{}, fmt.Errorf("calendar event missing meeting_id")
		}
		t.MeetingID = &meetingID
		t.TargetID = meetingID
		t.MeetingTitle = payloadString(raw.Payload, "meeting_title")
		if startsAt := payloadString(raw.Payload, "starts_at"); startsAt != "" {
			t.MeetingStartsAt = &startsAt
		}
		if prospectID := payloadString(raw.Payload, "prospect_id"); prospectID != "" {
			t.ProspectID = &prospectID
			t.ProspectName = payloadString(raw.Payload, "prospect_name")
			t.ProspectEngaged = payloadBool(raw.Payload, "prospect_engaged")
			t.Type = domain.TriggerCalendarKnownProspect
			t.ProposalType = domain.TypePrepOnly
		} else {
			t.Type = domain.TriggerCalendarNewOrg
			t.ProposalType = domain.TypeNewMeetingResearch
		}
	case "meetings":
		meetingID := payloadString(raw.Payload, "meeting_id")
		if meetingID == "" {
			return Trigger{}, fmt.Errorf("meeting event missing meeting_id")
		}
		t.MeetingID = &meetingID
		t.TargetID = meetingID
		t.MeetingTitle = payloadString(raw.Payload, "meeting_title")
		t.ProposalType = domain.TypePostMeetingFollowup
		switch raw.Type {
		case "meeting.ended":
			t.Type = domain.TriggerMeetingEnded
		case "transcript.ready":
			t.Type = domain.TriggerTranscriptReady
		default:
			return Trigger{}, fmt.Errorf("%w: meetings/%s", ErrUnrecognized, raw.Type)
		}
		if prospectID := payloadString(raw.Payload, "prospect_id"); prospectID != "" {
			t.ProspectID = &prospectID
		}
	case "crm":
		if raw.Type != "prospect.silent" {
			return Trigger{}, fmt.Errorf("%w: crm/%s", ErrUnrecognized, raw.Type)
		}
		prospectID := payloadString(raw.Payload, "prospect_id")
		if prospectID == "" {
			return Trigger{}, fmt.Errorf("crm event missing prospect_id")
		}
		t.ProspectID = &prospectID
		t.TargetID = prospectID
		t.ProspectName = payloadString(raw.Payload, "prospect_name")
		t.DaysSilent = payloadInt(raw.Payload, "days_silent")
		if contactID := payloadString(raw.Payload, "contact_id"); contactID != "" {
			t.ContactID = &contactID
		}
		t.Type = domain.TriggerProspectSilent
		t.ProposalType = domain.TypeReactivation
	case "flows":
		if raw.Type != "flow.abandoned" {
			return Trigger{}, fmt.Errorf("%w: flows/%s", ErrUnrecognized, raw.Type)
		}
		flowID := payloadString(raw.Payload, "flow_id")
		if flowID == "" {
			return Trigger{}, fmt.Errorf("flow event missing flow_id")
		}
		t.FlowID = &flowID
		t.TargetID = flowID
		t.FlowName = payloadString(raw.Payload, "flow_name")
		t.FlowAgeHours = payloadFloat(raw.Payload, "age_hours")
		t.Type = domain.TriggerFlowIncomplete
		t.ProposalType = domain.TypeResumeIncompleteFlow
	case "manual":
		proposalType := payloadString(raw.Payload, "proposal_type")
		if !validProposalType(proposalType) {
			return Trigger{}, fmt.Errorf("manual event has invalid proposal_type %q", proposalType)
		}
		targetID := payloadString(raw.Payload, "target_id")
		if targetID == "" {
			return Trigger{}, fmt.Errorf("manual event missing target_id")
		}
		t.Type = domain.TriggerManual
		t.ProposalType = proposalType
		t.TargetID = targetID
		if prospectID := payloadString(raw.Payload, "prospect_id"); prospectID != "" {
			t.ProspectID = &prospectID
		}
		if meetingID := payloadString(raw.Payload, "meeting_id"); meetingID != "" {
			t.MeetingID = &meetingID
		}
	default:
		return Trigger{}, fmt.Errorf("%w: source %s", ErrUnrecognized, raw.Source)
	}
	return t, nil
}

func validProposalType(pt string) bool {
	switch pt {
	case domain.TypeNewMeetingResearch, domain.TypePrepOnly, domain.TypePostMeetingFollowup,
		domain.TypeReactivation, domain.TypeResumeIncompleteFlow:
		return true
	}
	return false
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func payloadBool(payload map[string]any, key string) bool {
	if payload == nil {
		return false
	}
	v, _ := payload[key].(bool)
	return v
}

func payloadInt(payload map[string]any, key string) int {
	return int(payloadFloat(payload, key))
}

func payloadFloat(payload map[string]any, key string) float64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
