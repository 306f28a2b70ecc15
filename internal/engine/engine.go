package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nudgeline/internal/config"
	"nudgeline/internal/domain"
	"nudgeline/internal/events"
	"nudgeline/internal/flags"
	"nudgeline/internal/repo"
	"nudgeline/internal/score"
	"nudgeline/internal/trigger"
)

type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Config      *config.Config
	Gate        *flags.Gate
	Credits     CreditGate
	Executor    ActionExecutor
	Generations []ProposalEngine
	Now         func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	w := events.Writer{DB: db}
	return Engine{
		DB:          db,
		Repo:        r,
		Events:      w,
		Config:      cfg,
		Gate:        flags.New(r, w),
		Credits:     NewMemoryCredits(100),
		Executor:    NewMemoryExecutor(),
		Generations: []ProposalEngine{Autopilot{}, Luna{}},
		Now:         time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Propose normalizes a raw event and creates at most one proposal per
// admitted generation. A nil slice with nil error means the event was valid
// but filtered out by flags or user settings.
func (e Engine) Propose(ctx context.Context, raw trigger.RawEvent, actorID string) ([]domain.Proposal, error) {
	snap := e.Gate.Current()
	if !snap.Enabled() {
		return nil, nil
	}
	trg, err := trigger.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if !snap.TriggerEnabled(trg.Type) {
		return nil, nil
	}
	settings, err := e.SettingsFor(ctx, trg.UserID)
	if err != nil {
		return nil, err
	}
	if !settingsAdmit(settings, trg) {
		return nil, nil
	}
	inputs := e.scoreInputs(trg)
	priority := score.Score(trg.Type, inputs)
	if priority < e.Config.Priority.SurfaceThreshold {
		return nil, nil
	}
	inputsJSON, _ := json.Marshal(inputs)

	var created []domain.Proposal
	for _, gen := range e.Generations {
		mode := snap.GenerationMode(gen.Name())
		if mode == flags.ModeOff {
			continue
		}
		draft, ok := gen.Generate(trg, settings)
		if !ok {
			continue
		}
		p, err := e.insertProposal(ctx, trg, gen.Name(), mode == flags.ModeActive, draft, priority, string(inputsJSON), actorID)
		if errors.Is(err, ErrDuplicateFingerprint) {
			if mode == flags.ModeActive {
				return created, fmt.Errorf("%w: %s", ErrDuplicateFingerprint, trg.Fingerprint())
			}
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, p)
	}
	return created, nil
}

func settingsAdmit(s domain.Settings, trg trigger.Trigger) bool {
	if !s.Enabled {
		return false
	}
	switch trg.Type {
	case domain.TriggerCalendarNewOrg, domain.TriggerCalendarKnownProspect:
		if !s.CalendarTriggers {
			return false
		}
	case domain.TriggerMeetingEnded, domain.TriggerTranscriptReady:
		if !s.MeetingTriggers {
			return false
		}
	case domain.TriggerProspectSilent:
		if !s.SilenceTriggers {
			return false
		}
		if trg.DaysSilent > 0 && trg.DaysSilent < s.ReactivationDays {
			return false
		}
	case domain.TriggerFlowIncomplete:
		if !s.FlowTriggers {
			return false
		}
	}
	for _, kw := range s.ExcludedKeywords {
		if kw == "" {
			continue
		}
		if containsFold(trg.MeetingTitle, kw) || containsFold(trg.ProspectName, kw) || containsFold(trg.FlowName, kw) {
			return false
		}
	}
	return true
}

func (e Engine) scoreInputs(trg trigger.Trigger) score.Inputs {
	in := score.Inputs{
		DaysSilent:      trg.DaysSilent,
		FlowAgeHours:    trg.FlowAgeHours,
		ProspectEngaged: trg.ProspectEngaged,
	}
	if trg.MeetingStartsAt != nil {
		if starts, err := time.Parse(time.RFC3339, *trg.MeetingStartsAt); err == nil {
			h := starts.Sub(e.now()).Hours()
			in.HoursUntilMeeting = &h
		}
	}
	return in
}

func (e Engine) insertProposal(ctx context.Context, trg trigger.Trigger, generation string, visible bool, draft Draft, priority int, inputsJSON, actorID string) (domain.Proposal, error) {
	now := e.nowString()
	expiresAt := e.now().UTC().Add(time.Duration(e.Config.TTLHours(trg.ProposalType)) * time.Hour).Format(time.RFC3339)
	p := domain.Proposal{
		ID:               uuid.NewString(),
		UserID:           trg.UserID,
		OrgID:            trg.OrgID,
		Generation:       generation,
		ProposalType:     trg.ProposalType,
		TriggerType:      trg.Type,
		DedupeKey:        trg.Fingerprint() + "|" + generation,
		Title:            draft.Title,
		Description:      draft.Description,
		AssistantMessage: draft.AssistantMessage,
		ActionType:       draft.ActionType,
		ActionRoute:      draft.ActionRoute,
		ActionPayload:    draft.ActionPayload,
		Priority:         priority,
		PriorityInputs:   &inputsJSON,
		Status:           domain.StatusProposed,
		VisibleToUser:    visible,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        &expiresAt,
		ProspectID:       trg.ProspectID,
		ContactID:        trg.ContactID,
		MeetingID:        trg.MeetingID,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProposalTx(ctx, tx, p); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Proposal{}, ErrDuplicateFingerprint
		}
		return domain.Proposal{}, fmt.Errorf("insert proposal: %w", err)
	}
	err = e.Events.Append(ctx, tx, "proposal.created", p.UserID, "proposal", p.ID, actorID, events.EventPayload{
		"generation":    p.Generation,
		"proposal_type": p.ProposalType,
		"trigger_type":  p.TriggerType,
		"priority":      p.Priority,
		"visible":       p.VisibleToUser,
	})
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return p, nil
}

// ensureProposalTransition validates a lifecycle edge before any write.
func ensureProposalTransition(oldStatus, newStatus string) error {
	allowed := map[string][]string{
		domain.StatusProposed:  {domain.StatusAccepted, domain.StatusDeclined, domain.StatusSnoozed, domain.StatusExpired},
		domain.StatusSnoozed:   {domain.StatusProposed, domain.StatusDeclined, domain.StatusExpired},
		domain.StatusAccepted:  {domain.StatusExecuting, domain.StatusCompleted},
		domain.StatusExecuting: {domain.StatusCompleted, domain.StatusFailed},
		domain.StatusFailed:    {domain.StatusAccepted},
	}
	for _, s := range allowed[oldStatus] {
		if s == newStatus {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

// Accept moves a proposal from proposed to accepted, reserving credits for
// executable actions, then starts execution when the action calls for it.
// Accepting an already-terminal proposal is a no-op success.
func (e Engine) Accept(ctx context.Context, id, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if domain.IsTerminal(p.Status) {
		return p, nil
	}
	if err := ensureProposalTransition(p.Status, domain.StatusAccepted); err != nil {
		return domain.Proposal{}, err
	}
	if p.ActionType == domain.ActionExecInline || p.ActionType == domain.ActionExecAsync {
		cost := e.Config.Credits.Costs[p.ProposalType]
		if err := e.Credits.Reserve(ctx, p.UserID, cost); err != nil {
			return domain.Proposal{}, err
		}
	}
	now := e.nowString()
	if err := e.transition(ctx, p, domain.StatusAccepted, actorID, "proposal.accepted", map[string]any{
		"decided_at": now,
	}, nil); err != nil {
		return domain.Proposal{}, err
	}
	if p.ActionType == domain.ActionExecInline || p.ActionType == domain.ActionExecAsync {
		return e.startExecution(ctx, id, actorID)
	}
	return e.Repo.GetProposal(ctx, id)
}

func (e Engine) startExecution(ctx context.Context, id, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := ensureProposalTransition(p.Status, domain.StatusExecuting); err != nil {
		return domain.Proposal{}, err
	}
	jobID, err := e.Executor.Start(ctx, p)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("start execution: %w", err)
	}
	now := e.nowString()
	if err := e.transition(ctx, p, domain.StatusExecuting, actorID, "proposal.executing", map[string]any{
		"execution_job_id":     jobID,
		"execution_started_at": now,
	}, events.EventPayload{"job_id": jobID}); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// Decline moves a proposed or snoozed proposal to declined. Declining an
// already-terminal proposal is a no-op success.
func (e Engine) Decline(ctx context.Context, id, reason, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if domain.IsTerminal(p.Status) {
		return p, nil
	}
	if err := ensureProposalTransition(p.Status, domain.StatusDeclined); err != nil {
		return domain.Proposal{}, err
	}
	sets := map[string]any{"decided_at": e.nowString()}
	if reason != "" {
		sets["decision_reason"] = reason
	}
	if err := e.transition(ctx, p, domain.StatusDeclined, actorID, "proposal.declined", sets, events.EventPayload{"reason": reason}); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// Snooze parks a proposed proposal until the given wake time. The expiry
// deadline is untouched; a snooze that outlives it expires instead of waking.
func (e Engine) Snooze(ctx context.Context, id string, until time.Time, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if domain.IsTerminal(p.Status) {
		return p, nil
	}
	if err := ensureProposalTransition(p.Status, domain.StatusSnoozed); err != nil {
		return domain.Proposal{}, err
	}
	if !until.After(e.now()) {
		return domain.Proposal{}, fmt.Errorf("snooze time must be in the future")
	}
	untilStr := until.UTC().Format(time.RFC3339)
	if err := e.transition(ctx, p, domain.StatusSnoozed, actorID, "proposal.snoozed", map[string]any{
		"snoozed_until": untilStr,
	}, events.EventPayload{"until": untilStr}); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// Wake returns a snoozed proposal to proposed ahead of its wake time.
func (e Engine) Wake(ctx context.Context, id, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := ensureProposalTransition(p.Status, domain.StatusProposed); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.transition(ctx, p, domain.StatusProposed, actorID, "proposal.woken", map[string]any{
		"snoozed_until": nil,
	}, nil); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// Complete closes an accepted navigate proposal once the user finished the
// flow it pointed at.
func (e Engine) Complete(ctx context.Context, id, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if err := ensureProposalTransition(p.Status, domain.StatusCompleted); err != nil {
		return domain.Proposal{}, err
	}
	if err := e.transition(ctx, p, domain.StatusCompleted, actorID, "proposal.completed", map[string]any{
		"execution_completed_at": e.nowString(),
	}, nil); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// Retry re-queues a retryable failed proposal and starts a fresh execution.
// Retrying a terminal proposal other than a failed one is a no-op success.
func (e Engine) Retry(ctx context.Context, id, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	if domain.IsTerminal(p.Status) && p.Status != domain.StatusFailed {
		return p, nil
	}
	if err := ensureProposalTransition(p.Status, domain.StatusAccepted); err != nil {
		return domain.Proposal{}, err
	}
	if !p.Retryable {
		return domain.Proposal{}, fmt.Errorf("%w: proposal %s is not retryable", ErrInvalidTransition, id)
	}
	if err := e.transition(ctx, p, domain.StatusAccepted, actorID, "proposal.retried", map[string]any{
		"execution_error":  nil,
		"execution_job_id": nil,
	}, nil); err != nil {
		return domain.Proposal{}, err
	}
	return e.startExecution(ctx, id, actorID)
}

// ResolveExecution records the terminal result of an executing proposal.
func (e Engine) ResolveExecution(ctx context.Context, id string, st ExecutionStatus, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	now := e.nowString()
	switch st.State {
	case ExecSucceeded:
		if err := ensureProposalTransition(p.Status, domain.StatusCompleted); err != nil {
			return domain.Proposal{}, err
		}
		sets := map[string]any{"execution_completed_at": now}
		if st.Result != nil {
			sets["execution_result_json"] = *st.Result
		}
		if err := e.transition(ctx, p, domain.StatusCompleted, actorID, "proposal.completed", sets, nil); err != nil {
			return domain.Proposal{}, err
		}
	case ExecFailed:
		if err := ensureProposalTransition(p.Status, domain.StatusFailed); err != nil {
			return domain.Proposal{}, err
		}
		sets := map[string]any{
			"execution_completed_at": now,
			"retryable":              boolToInt(st.Retryable),
		}
		if st.Error != nil {
			sets["execution_error"] = *st.Error
		}
		payload := events.EventPayload{"retryable": st.Retryable}
		if st.Error != nil {
			payload["error"] = *st.Error
		}
		if err := e.transition(ctx, p, domain.StatusFailed, actorID, "proposal.failed", sets, payload); err != nil {
			return domain.Proposal{}, err
		}
	default:
		return domain.Proposal{}, fmt.Errorf("cannot resolve execution with state %q", st.State)
	}
	return e.Repo.GetProposal(ctx, id)
}

// transition applies one guarded status change plus its event in a single
// transaction. A lost race surfaces as ErrInvalidTransition.
func (e Engine) transition(ctx context.Context, p domain.Proposal, toStatus, actorID, eventType string, sets map[string]any, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := e.Repo.TransitionProposalTx(ctx, tx, p.ID, p.Status, toStatus, e.nowString(), sets)
	if err != nil {
		return err
	}
	if !ok {
		current, gerr := e.Repo.GetProposalTx(ctx, tx, p.ID)
		if gerr != nil {
			return gerr
		}
		return fmt.Errorf("%w: %s -> %s (now %s)", ErrInvalidTransition, p.Status, toStatus, current.Status)
	}
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["from"] = p.Status
	payload["to"] = toStatus
	if err := e.Events.Append(ctx, tx, eventType, p.UserID, "proposal", p.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkShown records first display on a surface. Idempotent.
func (e Engine) MarkShown(ctx context.Context, id, surface, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	wrote, err := e.Repo.MarkShownTx(ctx, tx, id, e.nowString(), surface)
	if err != nil {
		return domain.Proposal{}, err
	}
	if wrote {
		err = e.Events.Append(ctx, tx, "proposal.shown", p.UserID, "proposal", p.ID, actorID, events.EventPayload{"surface": surface})
		if err != nil {
			return domain.Proposal{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// MarkViewed records first open. Idempotent.
func (e Engine) MarkViewed(ctx context.Context, id, actorID string) (domain.Proposal, error) {
	p, err := e.Repo.GetProposal(ctx, id)
	if err != nil {
		return domain.Proposal{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Proposal{}, err
	}
	defer tx.Rollback()
	wrote, err := e.Repo.MarkViewedTx(ctx, tx, id, e.nowString())
	if err != nil {
		return domain.Proposal{}, err
	}
	if wrote {
		err = e.Events.Append(ctx, tx, "proposal.viewed", p.UserID, "proposal", p.ID, actorID, events.EventPayload{})
		if err != nil {
			return domain.Proposal{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Proposal{}, err
	}
	return e.Repo.GetProposal(ctx, id)
}

// SettingsFor returns the user's settings, seeding defaults on first access.
func (e Engine) SettingsFor(ctx context.Context, userID string) (domain.Settings, error) {
	s, err := e.Repo.GetSettings(ctx, userID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Settings{}, err
	}
	s = domain.DefaultSettings(userID)
	now := e.nowString()
	s.CreatedAt = now
	s.UpdatedAt = now
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertSettingsTx(ctx, tx, s); err != nil {
		return domain.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// SettingsUpdate carries partial settings changes; nil fields stay as-is.
type SettingsUpdate struct {
	Enabled           *bool
	CalendarTriggers  *bool
	MeetingTriggers   *bool
	SilenceTriggers   *bool
	FlowTriggers      *bool
	ReactivationDays  *int
	PrepLeadHours     *int
	NotificationStyle *string
	ExcludedKeywords  *[]string
}

// UpdateSettings applies a partial update and records a settings.updated event.
func (e Engine) UpdateSettings(ctx context.Context, userID string, upd SettingsUpdate, actorID string) (domain.Settings, error) {
	s, err := e.SettingsFor(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}
	if upd.Enabled != nil {
		s.Enabled = *upd.Enabled
	}
	if upd.CalendarTriggers != nil {
		s.CalendarTriggers = *upd.CalendarTriggers
	}
	if upd.MeetingTriggers != nil {
		s.MeetingTriggers = *upd.MeetingTriggers
	}
	if upd.SilenceTriggers != nil {
		s.SilenceTriggers = *upd.SilenceTriggers
	}
	if upd.FlowTriggers != nil {
		s.FlowTriggers = *upd.FlowTriggers
	}
	if upd.ReactivationDays != nil {
		if *upd.ReactivationDays < 1 {
			return domain.Settings{}, fmt.Errorf("reactivation_days must be at least 1")
		}
		s.ReactivationDays = *upd.ReactivationDays
	}
	if upd.PrepLeadHours != nil {
		if *upd.PrepLeadHours < 1 {
			return domain.Settings{}, fmt.Errorf("prep_lead_hours must be at least 1")
		}
		s.PrepLeadHours = *upd.PrepLeadHours
	}
	if upd.NotificationStyle != nil {
		switch *upd.NotificationStyle {
		case "eager", "balanced", "minimal":
		default:
			return domain.Settings{}, fmt.Errorf("notification_style must be eager, balanced or minimal")
		}
		s.NotificationStyle = *upd.NotificationStyle
	}
	if upd.ExcludedKeywords != nil {
		s.ExcludedKeywords = *upd.ExcludedKeywords
	}
	s.UpdatedAt = e.nowString()
	return e.saveSettings(ctx, s, actorID)
}

// ResetSettings restores a user's defaults, keeping the original created_at.
func (e Engine) ResetSettings(ctx context.Context, userID, actorID string) (domain.Settings, error) {
	existing, err := e.SettingsFor(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}
	s := domain.DefaultSettings(userID)
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = e.nowString()
	return e.saveSettings(ctx, s, actorID)
}

func (e Engine) saveSettings(ctx context.Context, s domain.Settings, actorID string) (domain.Settings, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertSettingsTx(ctx, tx, s); err != nil {
		return domain.Settings{}, err
	}
	if err := e.Events.Append(ctx, tx, "settings.updated", s.UserID, "settings", s.UserID, actorID, events.EventPayload{}); err != nil {
		return domain.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// RecordOutcome appends an outcome for a terminal proposal.
func (e Engine) RecordOutcome(ctx context.Context, proposalID, rating, source, note, actorID string) (domain.Outcome, error) {
	switch rating {
	case "positive", "neutral", "negative":
	default:
		return domain.Outcome{}, fmt.Errorf("rating must be positive, neutral or negative")
	}
	if source == "" {
		source = "human"
	}
	p, err := e.Repo.GetProposal(ctx, proposalID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if !domain.IsTerminal(p.Status) {
		return domain.Outcome{}, fmt.Errorf("proposal %s is still %s; outcomes attach to finished proposals", proposalID, p.Status)
	}
	o := domain.Outcome{
		ID:         uuid.NewString(),
		ProposalID: p.ID,
		UserID:     p.UserID,
		Generation: p.Generation,
		Rating:     rating,
		Source:     source,
		Note:       note,
		CreatedAt:  e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOutcomeTx(ctx, tx, o); err != nil {
		return domain.Outcome{}, err
	}
	err = e.Events.Append(ctx, tx, "outcome.recorded", p.UserID, "outcome", o.ID, actorID, events.EventPayload{
		"proposal_id": p.ID,
		"rating":      rating,
		"source":      source,
	})
	if err != nil {
		return domain.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Outcome{}, err
	}
	return o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func containsFold(haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
