package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nudgeline/internal/config"
	"nudgeline/internal/db"
	"nudgeline/internal/domain"
	"nudgeline/internal/engine"
	"nudgeline/internal/migrate"
	"nudgeline/internal/trigger"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var testNow = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

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
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testNow }
	eng.Gate.Now = eng.Now
	ctx := context.Background()
	if err := eng.Gate.Load(ctx); err != nil {
		t.Fatalf("load flags: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func meetingEndedEvent(meetingID string) trigger.RawEvent {
	return trigger.RawEvent{
		Source: "meetings",
		Type:   "meeting.ended",
		UserID: "u1",
		OrgID:  "org1",
		Payload: map[string]any{
			"meeting_id":    meetingID,
			"meeting_title": "Demo call",
		},
	}
}

func proposeOne(t *testing.T, env testEnv, raw trigger.RawEvent) domain.Proposal {
	t.Helper()
	created, err := env.Engine.Propose(env.Ctx, raw, "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(created))
	}
	return created[0]
}

func TestProposeCreatesProposal(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	if p.Status != domain.StatusProposed {
		t.Fatalf("expected proposed, got %s", p.Status)
	}
	if p.Generation != domain.GenerationAutopilot {
		t.Fatalf("expected autopilot, got %s", p.Generation)
	}
	if p.ProposalType != domain.TypePostMeetingFollowup {
		t.Fatalf("expected post-meeting-followup, got %s", p.ProposalType)
	}
	if p.Priority != 80 {
		t.Fatalf("expected priority 80, got %d", p.Priority)
	}
	if !p.VisibleToUser {
		t.Fatalf("expected visible proposal")
	}
	if p.ExpiresAt == nil {
		t.Fatalf("expected expiry set")
	}
	want := testNow.Add(72 * time.Hour).Format(time.RFC3339)
	if *p.ExpiresAt != want {
		t.Fatalf("expected expiry %s, got %s", want, *p.ExpiresAt)
	}
}

func TestDuplicateFingerprintRejected(t *testing.T) {
	env := newTestEnv(t)
	proposeOne(t, env, meetingEndedEvent("m1"))
	_, err := env.Engine.Propose(env.Ctx, meetingEndedEvent("m1"), "tester")
	if !errors.Is(err, engine.ErrDuplicateFingerprint) {
		t.Fatalf("expected ErrDuplicateFingerprint, got %v", err)
	}
	// a different meeting is a different fingerprint
	proposeOne(t, env, meetingEndedEvent("m2"))
}

func TestDedupeReleasedAfterTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	if _, err := env.Engine.Decline(env.Ctx, p.ID, "not now", "u1"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	proposeOne(t, env, meetingEndedEvent("m1"))
}

func TestUserActionsNoOpOnTerminalProposal(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	if _, err := env.Engine.Decline(env.Ctx, p.ID, "not now", "u1"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	got, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("accept on a declined proposal should succeed as a no-op, got %v", err)
	}
	if got.Status != domain.StatusDeclined {
		t.Fatalf("no-op accept must leave the proposal declined, got %s", got.Status)
	}
	if balance := env.Engine.Credits.(*engine.MemoryCredits).Balance("u1"); balance != 100 {
		t.Fatalf("no-op accept must not reserve credits, balance %d", balance)
	}
	if got, err = env.Engine.Decline(env.Ctx, p.ID, "again", "u1"); err != nil || got.Status != domain.StatusDeclined {
		t.Fatalf("second decline should be a no-op, got %v %s", err, got.Status)
	}
	if got, err = env.Engine.Snooze(env.Ctx, p.ID, testNow.Add(time.Hour), "u1"); err != nil || got.Status != domain.StatusDeclined {
		t.Fatalf("snooze on a declined proposal should be a no-op, got %v %s", err, got.Status)
	}
	if got, err = env.Engine.Retry(env.Ctx, p.ID, "u1"); err != nil || got.Status != domain.StatusDeclined {
		t.Fatalf("retry on a declined proposal should be a no-op, got %v %s", err, got.Status)
	}
}

func TestDeclineOnFailedIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	accepted, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	exec := env.Engine.Executor.(*engine.MemoryExecutor)
	exec.Fail(*accepted.ExecutionJobID, "upstream rejected the draft", false)
	if _, err := env.Engine.PollExecutions(env.Ctx, "sweeper"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	got, err := env.Engine.Decline(env.Ctx, p.ID, "", "u1")
	if err != nil {
		t.Fatalf("decline on a failed proposal should succeed as a no-op, got %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("no-op decline must leave the proposal failed, got %s", got.Status)
	}
}

func TestDeclineAfterAcceptIsInvalid(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, trigger.RawEvent{
		Source: "crm", Type: "prospect.silent", UserID: "u1", OrgID: "org1",
		Payload: map[string]any{"prospect_id": "p1", "days_silent": float64(30)},
	})
	if _, err := env.Engine.Accept(env.Ctx, p.ID, "u1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err := env.Engine.Decline(env.Ctx, p.ID, "", "u1")
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSnoozeWakeFlow(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	snoozed, err := env.Engine.Snooze(env.Ctx, p.ID, testNow.Add(30*time.Minute), "u1")
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if snoozed.Status != domain.StatusSnoozed || snoozed.SnoozedUntil == nil {
		t.Fatalf("expected snoozed with wake time, got %+v", snoozed)
	}
	// snoozing again is not a valid edge
	if _, err := env.Engine.Snooze(env.Ctx, p.ID, testNow.Add(time.Hour), "u1"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double snooze, got %v", err)
	}
	woken, err := env.Engine.Wake(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("wake: %v", err)
	}
	if woken.Status != domain.StatusProposed || woken.SnoozedUntil != nil {
		t.Fatalf("expected proposed with cleared wake time, got %+v", woken)
	}
}

func TestSnoozeRequiresFutureTime(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	if _, err := env.Engine.Snooze(env.Ctx, p.ID, testNow.Add(-time.Minute), "u1"); err == nil {
		t.Fatalf("expected error for past snooze time")
	}
}

func TestAcceptExecutesAsyncAction(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	accepted, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.StatusExecuting {
		t.Fatalf("expected executing, got %s", accepted.Status)
	}
	if accepted.ExecutionJobID == nil {
		t.Fatalf("expected job id")
	}
	exec := env.Engine.Executor.(*engine.MemoryExecutor)
	exec.Complete(*accepted.ExecutionJobID, `{"followup_id":"f1"}`)
	resolved, err := env.Engine.PollExecutions(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", resolved)
	}
	final, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.ExecutionResult == nil {
		t.Fatalf("expected execution result stored")
	}
}

func TestFailedExecutionCanRetry(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	accepted, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	exec := env.Engine.Executor.(*engine.MemoryExecutor)
	exec.Fail(*accepted.ExecutionJobID, "upstream timeout", true)
	if _, err := env.Engine.PollExecutions(env.Ctx, "sweeper"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	failed, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed.Status != domain.StatusFailed || !failed.Retryable {
		t.Fatalf("expected retryable failed, got %+v", failed)
	}
	retried, err := env.Engine.Retry(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != domain.StatusExecuting {
		t.Fatalf("expected executing after retry, got %s", retried.Status)
	}
	if retried.ExecutionJobID == nil || *retried.ExecutionJobID == *accepted.ExecutionJobID {
		t.Fatalf("expected fresh job on retry")
	}
}

func TestNonRetryableFailureStaysFailed(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	accepted, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	exec := env.Engine.Executor.(*engine.MemoryExecutor)
	exec.Fail(*accepted.ExecutionJobID, "bad payload", false)
	if _, err := env.Engine.PollExecutions(env.Ctx, "sweeper"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if _, err := env.Engine.Retry(env.Ctx, p.ID, "u1"); err == nil {
		t.Fatalf("expected retry rejection for non-retryable failure")
	}
}

func TestInsufficientCreditsBlocksAccept(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Credits = engine.NewMemoryCredits(1)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	_, err := env.Engine.Accept(env.Ctx, p.ID, "u1")
	var ice *engine.InsufficientCreditsError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if ice.Required != 3 || ice.Available != 1 {
		t.Fatalf("unexpected credit detail: %+v", ice)
	}
	after, err := env.Engine.Repo.GetProposal(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != domain.StatusProposed {
		t.Fatalf("proposal should stay proposed, got %s", after.Status)
	}
}

func TestUserSettingsDisableTriggers(t *testing.T) {
	env := newTestEnv(t)
	off := false
	if _, err := env.Engine.UpdateSettings(env.Ctx, "u1", engine.SettingsUpdate{MeetingTriggers: &off}, "u1"); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	created, err := env.Engine.Propose(env.Ctx, meetingEndedEvent("m1"), "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no proposals with meeting triggers off, got %d", len(created))
	}
}

func TestExcludedKeywordsFilter(t *testing.T) {
	env := newTestEnv(t)
	kws := []string{"internal"}
	if _, err := env.Engine.UpdateSettings(env.Ctx, "u1", engine.SettingsUpdate{ExcludedKeywords: &kws}, "u1"); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	raw := meetingEndedEvent("m1")
	raw.Payload["meeting_title"] = "INTERNAL sync"
	created, err := env.Engine.Propose(env.Ctx, raw, "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected keyword-filtered event to produce nothing")
	}
}

func TestSilenceThresholdFromSettings(t *testing.T) {
	env := newTestEnv(t)
	raw := trigger.RawEvent{
		Source: "crm", Type: "prospect.silent", UserID: "u1", OrgID: "org1",
		Payload: map[string]any{"prospect_id": "p1", "days_silent": float64(7)},
	}
	created, err := env.Engine.Propose(env.Ctx, raw, "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("7 silent days is under the default 14-day threshold")
	}
}

func TestKillSwitchDropsEverything(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Gate.Set(env.Ctx, "engine.enabled", "false", "admin"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	created, err := env.Engine.Propose(env.Ctx, meetingEndedEvent("m1"), "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected kill switch to drop proposals")
	}
}

func TestShadowGenerationIsInvisible(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Gate.Set(env.Ctx, "generation.luna.mode", "shadow", "admin"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	created, err := env.Engine.Propose(env.Ctx, meetingEndedEvent("m1"), "tester")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected autopilot plus shadow luna, got %d", len(created))
	}
	byGen := map[string]domain.Proposal{}
	for _, p := range created {
		byGen[p.Generation] = p
	}
	if !byGen[domain.GenerationAutopilot].VisibleToUser {
		t.Fatalf("autopilot proposal should be visible")
	}
	luna, ok := byGen[domain.GenerationLuna]
	if !ok {
		t.Fatalf("expected a luna proposal")
	}
	if luna.VisibleToUser {
		t.Fatalf("shadow proposal must not be user visible")
	}
	if luna.AssistantMessage == "" {
		t.Fatalf("luna proposal should carry an assistant message")
	}
}

func TestConcurrentProposalsDedupeToOne(t *testing.T) {
	env := newTestEnv(t)
	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	counts := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := env.Engine.Propose(env.Ctx, meetingEndedEvent("m1"), "tester")
			results[i] = err
			counts[i] = len(created)
		}(i)
	}
	wg.Wait()
	winners, duplicates := 0, 0
	for i := 0; i < workers; i++ {
		switch {
		case results[i] == nil && counts[i] == 1:
			winners++
		case errors.Is(results[i], engine.ErrDuplicateFingerprint):
			duplicates++
		default:
			t.Fatalf("worker %d: unexpected result err=%v created=%d", i, results[i], counts[i])
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d (duplicates %d)", winners, duplicates)
	}
}

func TestMarkShownAndViewedIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	first, err := env.Engine.MarkShown(env.Ctx, p.ID, "inbox", "system")
	if err != nil {
		t.Fatalf("mark shown: %v", err)
	}
	if first.ShownAt == nil || first.ShownSurface == nil || *first.ShownSurface != "inbox" {
		t.Fatalf("expected shown metadata, got %+v", first)
	}
	second, err := env.Engine.MarkShown(env.Ctx, p.ID, "toast", "system")
	if err != nil {
		t.Fatalf("second mark shown: %v", err)
	}
	if *second.ShownSurface != "inbox" {
		t.Fatalf("first surface should win, got %s", *second.ShownSurface)
	}
	viewed, err := env.Engine.MarkViewed(env.Ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if viewed.ViewedAt == nil {
		t.Fatalf("expected viewed_at set")
	}
}

func TestRecordOutcomeRequiresTerminalProposal(t *testing.T) {
	env := newTestEnv(t)
	p := proposeOne(t, env, meetingEndedEvent("m1"))
	if _, err := env.Engine.RecordOutcome(env.Ctx, p.ID, "positive", "human", "", "u1"); err == nil {
		t.Fatalf("expected rejection for non-terminal proposal")
	}
	if _, err := env.Engine.Decline(env.Ctx, p.ID, "", "u1"); err != nil {
		t.Fatalf("decline: %v", err)
	}
	o, err := env.Engine.RecordOutcome(env.Ctx, p.ID, "negative", "human", "too noisy", "u1")
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if o.Generation != domain.GenerationAutopilot {
		t.Fatalf("outcome should inherit generation, got %s", o.Generation)
	}
}

func TestSettingsSeededLazilyAndReset(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.SettingsFor(env.Ctx, "fresh-user")
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !s.Enabled || s.ReactivationDays != 14 || s.NotificationStyle != "balanced" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	days := 30
	updated, err := env.Engine.UpdateSettings(env.Ctx, "fresh-user", engine.SettingsUpdate{ReactivationDays: &days}, "fresh-user")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ReactivationDays != 30 {
		t.Fatalf("expected 30 days, got %d", updated.ReactivationDays)
	}
	reset, err := env.Engine.ResetSettings(env.Ctx, "fresh-user", "fresh-user")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.ReactivationDays != 14 {
		t.Fatalf("expected defaults after reset, got %d", reset.ReactivationDays)
	}
	if reset.CreatedAt != s.CreatedAt {
		t.Fatalf("reset should keep created_at")
	}
}

func TestUnrecognizedTriggerSurfaces(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Propose(env.Ctx, trigger.RawEvent{Source: "telemetry", Type: "ping", UserID: "u1", OrgID: "org1"}, "tester")
	if !errors.Is(err, trigger.ErrUnrecognized) {
		t.Fatalf("expected ErrUnrecognized, got %v", err)
	}
}
