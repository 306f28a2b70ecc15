// Package score turns a trigger into a 0..100 priority. Scoring is pure and
// deterministic: same trigger type and inputs, same score.
package score

import "nudgeline/internal/domain"

// Inputs are the signals that adjust the base weight of a trigger type.
type Inputs struct {
	HoursUntilMeeting *float64 `json:"hours_until_meeting,omitempty"`
	DaysSilent        int      `json:"days_silent,omitempty"`
	FlowAgeHours      float64  `json:"flow_age_hours,omitempty"`
	ProspectEngaged   bool     `json:"prospect_engaged,omitempty"`
}

var baseWeights = map[string]int{
	domain.TriggerMeetingEnded:          80,
	domain.TriggerTranscriptReady:       75,
	domain.TriggerCalendarKnownProspect: 70,
	domain.TriggerCalendarNewOrg:        60,
	domain.TriggerManual:                50,
	domain.TriggerFlowIncomplete:        40,
	domain.TriggerProspectSilent:        30,
}

// Score computes the priority for a trigger type. Unknown types score zero.
func Score(triggerType string, in Inputs) int {
	s, ok := baseWeights[triggerType]
	if !ok {
		return 0
	}
	if in.HoursUntilMeeting != nil {
		h := *in.HoursUntilMeeting
		switch {
		case h <= 4:
			s += 15
		case h <= 24:
			s += 10
		case h > 72:
			s -= 10
		}
	}
	switch {
	case in.DaysSilent >= 30:
		s += 10
	case in.DaysSilent >= 14:
		s += 5
	}
	if in.ProspectEngaged {
		s += 5
	}
	if in.FlowAgeHours > 168 {
		s -= 10
	}
	return clamp(s)
}

func clamp(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
