package score

import (
	"testing"

	"nudgeline/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestBaseWeightsOrdering(t *testing.T) {
	order := []string{
		domain.TriggerMeetingEnded,
		domain.TriggerTranscriptReady,
		domain.TriggerCalendarKnownProspect,
		domain.TriggerCalendarNewOrg,
		domain.TriggerManual,
		domain.TriggerFlowIncomplete,
		domain.TriggerProspectSilent,
	}
	for i := 1; i < len(order); i++ {
		if Score(order[i-1], Inputs{}) <= Score(order[i], Inputs{}) {
			t.Fatalf("%s should outrank %s", order[i-1], order[i])
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := Inputs{HoursUntilMeeting: f(3), ProspectEngaged: true}
	a := Score(domain.TriggerCalendarKnownProspect, in)
	b := Score(domain.TriggerCalendarKnownProspect, in)
	if a != b {
		t.Fatalf("score not deterministic: %d vs %d", a, b)
	}
}

func TestImminentMeetingBoost(t *testing.T) {
	base := Score(domain.TriggerCalendarKnownProspect, Inputs{})
	soon := Score(domain.TriggerCalendarKnownProspect, Inputs{HoursUntilMeeting: f(2)})
	today := Score(domain.TriggerCalendarKnownProspect, Inputs{HoursUntilMeeting: f(20)})
	far := Score(domain.TriggerCalendarKnownProspect, Inputs{HoursUntilMeeting: f(100)})
	if soon != base+15 {
		t.Fatalf("expected +15 for imminent meeting, got %d vs base %d", soon, base)
	}
	if today != base+10 {
		t.Fatalf("expected +10 for same-day meeting, got %d vs base %d", today, base)
	}
	if far != base-10 {
		t.Fatalf("expected -10 for distant meeting, got %d vs base %d", far, base)
	}
}

func TestSilenceAdjustment(t *testing.T) {
	base := Score(domain.TriggerProspectSilent, Inputs{})
	if got := Score(domain.TriggerProspectSilent, Inputs{DaysSilent: 14}); got != base+5 {
		t.Fatalf("expected +5 at 14 days, got %d", got)
	}
	if got := Score(domain.TriggerProspectSilent, Inputs{DaysSilent: 45}); got != base+10 {
		t.Fatalf("expected +10 at 45 days, got %d", got)
	}
}

func TestScoreClamped(t *testing.T) {
	high := Score(domain.TriggerMeetingEnded, Inputs{HoursUntilMeeting: f(1), DaysSilent: 60, ProspectEngaged: true})
	if high > 100 {
		t.Fatalf("score above 100: %d", high)
	}
	if got := Score("nonsense", Inputs{}); got != 0 {
		t.Fatalf("unknown trigger type should score 0, got %d", got)
	}
	low := Score(domain.TriggerProspectSilent, Inputs{HoursUntilMeeting: f(200), FlowAgeHours: 400})
	if low < 0 {
		t.Fatalf("score below 0: %d", low)
	}
}
