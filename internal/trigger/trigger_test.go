package trigger

import (
	"errors"
	"testing"

	"nudgeline/internal/domain"
)

func TestNormalizeCalendarKnownProspect(t *testing.T) {
	trg, err := Normalize(RawEvent{
		Source: "calendar",
		Type:   "meeting.scheduled",
		UserID: "u1",
		OrgID:  "org1",
		Payload: map[string]any{
			"meeting_id":       "m1",
			"meeting_title":    "Intro call",
			"starts_at":        "2026-09-01T10:00:00Z",
			"prospect_id":      "p1",
			"prospect_name":    "Acme",
			"prospect_engaged": true,
		},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if trg.Type != domain.TriggerCalendarKnownProspect {
		t.Fatalf("expected calendar-known-prospect, got %s", trg.Type)
	}
	if trg.ProposalType != domain.TypePrepOnly {
		t.Fatalf("expected prep-only, got %s", trg.ProposalType)
	}
	if trg.TargetID != "m1" {
		t.Fatalf("expected target m1, got %s", trg.TargetID)
	}
	if !trg.ProspectEngaged {
		t.Fatalf("expected prospect_engaged carried over")
	}
	if trg.MeetingStartsAt == nil || *trg.MeetingStartsAt != "2026-09-01T10:00:00Z" {
		t.Fatalf("expected starts_at carried over")
	}
}

func TestNormalizeCalendarNewOrg(t *testing.T) {
	trg, err := Normalize(RawEvent{
		Source:  "calendar",
		Type:    "meeting.scheduled",
		UserID:  "u1",
		OrgID:   "org1",
		Payload: map[string]any{"meeting_id": "m2"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if trg.Type != domain.TriggerCalendarNewOrg {
		t.Fatalf("expected calendar-new-org, got %s", trg.Type)
	}
	if trg.ProposalType != domain.TypeNewMeetingResearch {
		t.Fatalf("expected new-meeting-research, got %s", trg.ProposalType)
	}
}

func TestNormalizeMeetingEvents(t *testing.T) {
	cases := []struct {
		rawType string
		want    string
	}{
		{"meeting.ended", domain.TriggerMeetingEnded},
		{"transcript.ready", domain.TriggerTranscriptReady},
	}
	for _, c := range cases {
		trg, err := Normalize(RawEvent{
			Source:  "meetings",
			Type:    c.rawType,
			UserID:  "u1",
			OrgID:   "org1",
			Payload: map[string]any{"meeting_id": "m1"},
		})
		if err != nil {
			t.Fatalf("%s: %v", c.rawType, err)
		}
		if trg.Type != c.want {
			t.Fatalf("%s: expected %s, got %s", c.rawType, c.want, trg.Type)
		}
		if trg.ProposalType != domain.TypePostMeetingFollowup {
			t.Fatalf("%s: expected post-meeting-followup, got %s", c.rawType, trg.ProposalType)
		}
	}
}

func TestNormalizeProspectSilent(t *testing.T) {
	trg, err := Normalize(RawEvent{
		Source: "crm",
		Type:   "prospect.silent",
		UserID: "u1",
		OrgID:  "org1",
		Payload: map[string]any{
			"prospect_id": "p9",
			"days_silent": float64(21),
		},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if trg.Type != domain.TriggerProspectSilent || trg.ProposalType != domain.TypeReactivation {
		t.Fatalf("unexpected mapping: %s/%s", trg.Type, trg.ProposalType)
	}
	if trg.DaysSilent != 21 {
		t.Fatalf("expected days_silent 21, got %d", trg.DaysSilent)
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	_, err := Normalize(RawEvent{Source: "telemetry", Type: "ping", UserID: "u1", OrgID: "org1"})
	if !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
	_, err = Normalize(RawEvent{Source: "calendar", Type: "meeting.cancelled", UserID: "u1", OrgID: "org1"})
	if !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized for unknown calendar type, got %v", err)
	}
}

func TestNormalizeMissingIdentity(t *testing.T) {
	_, err := Normalize(RawEvent{Source: "calendar", Type: "meeting.scheduled", OrgID: "org1"})
	if err == nil || errors.Is(err, ErrUnrecognized) {
		t.Fatalf("expected plain validation error, got %v", err)
	}
}

func TestNormalizeManualRequiresValidProposalType(t *testing.T) {
	_, err := Normalize(RawEvent{
		Source:  "manual",
		Type:    "user.request",
		UserID:  "u1",
		OrgID:   "org1",
		Payload: map[string]any{"proposal_type": "make-coffee", "target_id": "x"},
	})
	if err == nil {
		t.Fatalf("expected error for invalid proposal_type")
	}
	trg, err := Normalize(RawEvent{
		Source:  "manual",
		Type:    "user.request",
		UserID:  "u1",
		OrgID:   "org1",
		Payload: map[string]any{"proposal_type": "reactivation", "target_id": "p1"},
	})
	if err != nil {
		t.Fatalf("normalize manual: %v", err)
	}
	if trg.Type != domain.TriggerManual {
		t.Fatalf("expected manual trigger, got %s", trg.Type)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Trigger{UserID: "u1", Type: domain.TriggerMeetingEnded, ProposalType: domain.TypePostMeetingFollowup, TargetID: "m1"}
	b := Trigger{UserID: "u1", Type: domain.TriggerMeetingEnded, ProposalType: domain.TypePostMeetingFollowup, TargetID: "m1"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprints differ for identical triggers")
	}
	if a.Fingerprint() != "u1|meeting-ended|post-meeting-followup|m1" {
		t.Fatalf("unexpected fingerprint %s", a.Fingerprint())
	}
	c := Trigger{UserID: "u2", Type: domain.TriggerMeetingEnded, ProposalType: domain.TypePostMeetingFollowup, TargetID: "m1"}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("fingerprints collide across users")
	}
}
