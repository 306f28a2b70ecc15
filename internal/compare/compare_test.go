package compare_test

import (
	"context"
	"testing"
	"time"

	"nudgeline/internal/compare"
	"nudgeline/internal/config"
	"nudgeline/internal/db"
	"nudgeline/internal/domain"
	"nudgeline/internal/engine"
	"nudgeline/internal/migrate"
	"nudgeline/internal/trigger"
)

func newEnv(t *testing.T) (engine.Engine, compare.Comparator, context.Context) {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.Gate.Load(ctx); err != nil {
		t.Fatalf("load flags: %v", err)
	}
	return eng, compare.Comparator{Repo: eng.Repo}, ctx
}

func TestEmptyReportHasZeroRates(t *testing.T) {
	_, cmp, ctx := newEnv(t)
	report, err := cmp.Build(ctx, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.Generations) != 2 {
		t.Fatalf("expected both generations in the report, got %d", len(report.Generations))
	}
	for _, g := range report.Generations {
		if g.AcceptanceRate != 0 {
			t.Fatalf("%s: zero-volume acceptance rate must be 0, got %f", g.Generation, g.AcceptanceRate)
		}
		if g.Total != 0 || g.Decided != 0 {
			t.Fatalf("%s: expected empty stats, got %+v", g.Generation, g)
		}
	}
}

func TestReportCountsBothGenerations(t *testing.T) {
	eng, cmp, ctx := newEnv(t)
	if _, err := eng.Gate.Set(ctx, "generation.luna.mode", "shadow", "admin"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	meetings := []string{"m1", "m2", "m3"}
	var byMeeting []domain.Proposal
	for _, m := range meetings {
		created, err := eng.Propose(ctx, trigger.RawEvent{
			Source: "meetings", Type: "meeting.ended", UserID: "u1", OrgID: "org1",
			Payload: map[string]any{"meeting_id": m},
		}, "tester")
		if err != nil {
			t.Fatalf("propose %s: %v", m, err)
		}
		for _, p := range created {
			if p.Generation == domain.GenerationAutopilot {
				byMeeting = append(byMeeting, p)
			}
		}
	}
	// decide two of the three autopilot proposals
	if _, err := eng.Accept(ctx, byMeeting[0].ID, "u1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := eng.Decline(ctx, byMeeting[1].ID, "", "u1"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	report, err := cmp.Build(ctx, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	stats := map[string]compare.GenerationStats{}
	for _, g := range report.Generations {
		stats[g.Generation] = g
	}
	auto := stats[domain.GenerationAutopilot]
	if auto.Total != 3 {
		t.Fatalf("expected 3 autopilot proposals, got %d", auto.Total)
	}
	if auto.Decided != 2 {
		t.Fatalf("expected 2 decided, got %d", auto.Decided)
	}
	if auto.AcceptanceRate != 0.5 {
		t.Fatalf("expected 0.5 acceptance rate, got %f", auto.AcceptanceRate)
	}
	if auto.ByType[domain.TypePostMeetingFollowup] != 3 {
		t.Fatalf("expected 3 followup proposals by type, got %v", auto.ByType)
	}
	if auto.ActiveUsers != 1 {
		t.Fatalf("expected 1 active user, got %d", auto.ActiveUsers)
	}
	luna := stats[domain.GenerationLuna]
	if luna.Total != 3 {
		t.Fatalf("expected 3 shadow luna proposals, got %d", luna.Total)
	}
	if luna.Decided != 0 || luna.AcceptanceRate != 0 {
		t.Fatalf("undecided shadow stats should be zero, got %+v", luna)
	}
	if luna.ActiveUsers != 1 {
		t.Fatalf("expected shadow activity for the same user, got %d", luna.ActiveUsers)
	}
}
