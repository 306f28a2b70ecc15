package sweeper_test

import (
	"context"
	"testing"
	"time"

	"nudgeline/internal/config"
	"nudgeline/internal/db"
	"nudgeline/internal/domain"
	"nudgeline/internal/engine"
	"nudgeline/internal/migrate"
	"nudgeline/internal/sweeper"
	"nudgeline/internal/trigger"
)

var baseNow = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine  *engine.Engine
	Sweeper *sweeper.Sweeper
	Ctx     context.Context
	Clock   *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := baseNow
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return clock }
	ctx := context.Background()
	if err := eng.Gate.Load(ctx); err != nil {
		t.Fatalf("load flags: %v", err)
	}
	return testEnv{Engine: &eng, Sweeper: sweeper.New(eng), Ctx: ctx, Clock: &clock}
}

func (env *testEnv) advance(d time.Duration) {
	*env.Clock = env.Clock.Add(d)
}

func propose(t *testing.T, env testEnv, meetingID string) domain.Proposal {
	t.Helper()
	created, err := env.Engine.Propose(env.Ctx, trigger.RawEvent{
		Source: "meetings",
		Type:   "meeting.ended",
		UserID: "u1",
		OrgID:  "org1",
		Payload: map[string]any{
			"meeting_id": meetingID,
		},
	}, "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(created))
	}
	return created[0]
}

func TestSweepExpiresPastDeadline(t *testing.T) {
	env := newTestEnv(t)
	p := propose(t, env, "m1")

	// one hour in: nothing to do
	env.advance(time.Hour)
	res, err := env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 0 {
		t.Fatalf("nothing should expire before the deadline")
	}

	// past the 72h followup TTL
	env.advance(72 * time.Hour)
	res, err = env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 1 || res.Expired[0] != p.ID {
		t.Fatalf("expected %s expired, got %v", p.ID, res.Expired)
	}
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	if got.ExpiredReason == nil || *got.ExpiredReason != engine.ExpiredReasonTimeout {
		t.Fatalf("expected timeout reason, got %v", got.ExpiredReason)
	}
}

func TestSweepWakesElapsedSnooze(t *testing.T) {
	env := newTestEnv(t)
	p := propose(t, env, "m1")
	if _, err := env.Engine.Snooze(env.Ctx, p.ID, baseNow.Add(30*time.Minute), "u1"); err != nil {
		t.Fatalf("snooze: %v", err)
	}

	// ten minutes in: still asleep
	env.advance(10 * time.Minute)
	res, err := env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Woken) != 0 {
		t.Fatalf("snooze should still hold at +10m")
	}

	// past the wake time
	env.advance(21 * time.Minute)
	res, err = env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Woken) != 1 || res.Woken[0] != p.ID {
		t.Fatalf("expected %s woken, got %v", p.ID, res.Woken)
	}
	got, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusProposed || got.SnoozedUntil != nil {
		t.Fatalf("expected proposed with cleared snooze, got %+v", got)
	}
}

func TestExpiryBeatsWakeWhenBothElapsed(t *testing.T) {
	env := newTestEnv(t)
	p := propose(t, env, "m1")
	if _, err := env.Engine.Snooze(env.Ctx, p.ID, baseNow.Add(time.Hour), "u1"); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	// jump past both the wake time and the TTL in one step
	env.advance(80 * time.Hour)
	res, err := env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Expired) != 1 || len(res.Woken) != 0 {
		t.Fatalf("expected expiry to win, got expired=%v woken=%v", res.Expired, res.Woken)
	}
	got, _ := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if got.Status != domain.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	propose(t, env, "m1")
	env.advance(80 * time.Hour)
	first, err := env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if len(first.Expired) != 1 {
		t.Fatalf("expected one expiry, got %v", first.Expired)
	}
	second, err := env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(second.Expired) != 0 || len(second.Woken) != 0 || second.Resolved != 0 {
		t.Fatalf("second sweep should be a no-op, got %+v", second)
	}
}

func TestSweepResolvesFinishedExecutions(t *testing.T) {
	env := newTestEnv(t)
	p := propose(t, env, "m1")
	accepted, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	env.Engine.Executor.(*engine.MemoryExecutor).Complete(*accepted.ExecutionJobID, `{}`)
	res, err := env.Sweeper.SweepOnce(env.Ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Resolved != 1 {
		t.Fatalf("expected 1 resolved execution, got %d", res.Resolved)
	}
	got, _ := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}
