package engine

import (
	"encoding/json"
	"fmt"

	"nudgeline/internal/domain"
	"nudgeline/internal/trigger"
)

// Draft is the renderable content a generation produces for a trigger.
type Draft struct {
	Title            string
	Description      string
	AssistantMessage string
	ActionType       string
	ActionRoute      string
	ActionPayload    *string
}

// ProposalEngine turns a canonical trigger into proposal content. Returning
// ok=false means this generation has nothing to offer for the trigger.
type ProposalEngine interface {
	Name() string
	Generate(trg trigger.Trigger, settings domain.Settings) (Draft, bool)
}

// Autopilot is the first-generation rule engine: fixed templates, navigate
// actions, no conversational framing.
type Autopilot struct{}

func (Autopilot) Name() string { return domain.GenerationAutopilot }

func (Autopilot) Generate(trg trigger.Trigger, settings domain.Settings) (Draft, bool) {
	switch trg.ProposalType {
	case domain.TypeNewMeetingResearch:
		return Draft{
			Title:       "Research " + orFallback(trg.MeetingTitle, "upcoming meeting"),
			Description: "A meeting with a new organization is on your calendar. Run research before it starts.",
			ActionType:  domain.ActionNavigate,
			ActionRoute: "/research/new?meeting=" + trg.TargetID,
		}, true
	case domain.TypePrepOnly:
		return Draft{
			Title:       "Prep for " + orFallback(trg.MeetingTitle, "your meeting"),
			Description: "Known prospect meeting coming up. Generate a prep brief.",
			ActionType:  domain.ActionExecAsync,
			ActionRoute: "/prep/generate",
			ActionPayload: jsonPayload(map[string]any{
				"meeting_id":  trg.TargetID,
				"prospect_id": deref(trg.ProspectID),
			}),
		}, true
	case domain.TypePostMeetingFollowup:
		return Draft{
			Title:       "Send follow-up for " + orFallback(trg.MeetingTitle, "your last meeting"),
			Description: "The meeting ended. Draft and send a follow-up while it is fresh.",
			ActionType:  domain.ActionExecAsync,
			ActionRoute: "/followups/draft",
			ActionPayload: jsonPayload(map[string]any{
				"meeting_id": trg.TargetID,
			}),
		}, true
	case domain.TypeReactivation:
		return Draft{
			Title:       "Re-engage " + orFallback(trg.ProspectName, "a quiet prospect"),
			Description: fmt.Sprintf("No activity for %d days. Send a reactivation nudge.", trg.DaysSilent),
			ActionType:  domain.ActionNavigate,
			ActionRoute: "/prospects/" + trg.TargetID + "/reactivate",
		}, true
	case domain.TypeResumeIncompleteFlow:
		return Draft{
			Title:       "Resume " + orFallback(trg.FlowName, "an unfinished flow"),
			Description: "You left a flow unfinished. Pick it back up.",
			ActionType:  domain.ActionNavigate,
			ActionRoute: "/flows/" + trg.TargetID,
		}, true
	}
	return Draft{}, false
}

// Luna is the second-generation engine: same trigger coverage plus a
// conversational assistant message tuned to the user's notification style.
type Luna struct{}

func (Luna) Name() string { return domain.GenerationLuna }

func (Luna) Generate(trg trigger.Trigger, settings domain.Settings) (Draft, bool) {
	draft, ok := Autopilot{}.Generate(trg, settings)
	if !ok {
		return Draft{}, false
	}
	draft.AssistantMessage = lunaMessage(trg, settings.NotificationStyle)
	// Luna prefers inline execution for followups so the user reviews the
	// draft in place instead of waiting on a background job.
	if trg.ProposalType == domain.TypePostMeetingFollowup {
		draft.ActionType = domain.ActionExecInline
	}
	return draft, true
}

func lunaMessage(trg trigger.Trigger, style string) string {
	var msg string
	switch trg.ProposalType {
	case domain.TypeNewMeetingResearch:
		msg = fmt.Sprintf("I noticed %s on your calendar with an organization we haven't met before. Want me to pull together research?", orFallback(trg.MeetingTitle, "a new meeting"))
	case domain.TypePrepOnly:
		msg = fmt.Sprintf("Your meeting %s is coming up. I can have a prep brief ready before you join.", orFallback(trg.MeetingTitle, "with a known prospect"))
	case domain.TypePostMeetingFollowup:
		msg = "That meeting just wrapped. I can draft the follow-up now so nothing slips."
	case domain.TypeReactivation:
		msg = fmt.Sprintf("%s has gone quiet for %d days. A short check-in usually works well here.", orFallback(trg.ProspectName, "A prospect"), trg.DaysSilent)
	case domain.TypeResumeIncompleteFlow:
		msg = fmt.Sprintf("You have an unfinished flow (%s). Want to pick it back up?", orFallback(trg.FlowName, trg.TargetID))
	}
	if style == "minimal" {
		return ""
	}
	return msg
}

func orFallback(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func jsonPayload(m map[string]any) *string {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}
