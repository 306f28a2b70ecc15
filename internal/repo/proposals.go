package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"nudgeline/internal/domain"
)

const proposalColumns = `id,user_id,org_id,generation,proposal_type,trigger_type,dedupe_key,title,description,assistant_message,action_type,action_route,action_payload_json,priority,priority_inputs_json,status,decision_reason,expired_reason,execution_job_id,execution_result_json,execution_error,retryable,visible_to_user,created_at,updated_at,expires_at,snoozed_until,decided_at,shown_at,shown_surface,viewed_at,execution_started_at,execution_completed_at,prospect_id,contact_id,meeting_id,research_id,prep_id,followup_id,draft_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var p domain.Proposal
	var description, assistantMessage, actionRoute sql.NullString
	var actionPayload, priorityInputs, decisionReason, expiredReason sql.NullString
	var jobID, execResult, execError sql.NullString
	var retryable, visible int
	var expiresAt, snoozedUntil, decidedAt, shownAt, shownSurface, viewedAt, execStarted, execCompleted sql.NullString
	var prospectID, contactID, meetingID, researchID, prepID, followupID, draftID sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.OrgID, &p.Generation, &p.ProposalType, &p.TriggerType, &p.DedupeKey,
		&p.Title, &description, &assistantMessage, &p.ActionType, &actionRoute, &actionPayload,
		&p.Priority, &priorityInputs, &p.Status, &decisionReason, &expiredReason,
		&jobID, &execResult, &execError, &retryable, &visible,
		&p.CreatedAt, &p.UpdatedAt, &expiresAt, &snoozedUntil, &decidedAt, &shownAt, &shownSurface, &viewedAt, &execStarted, &execCompleted,
		&prospectID, &contactID, &meetingID, &researchID, &prepID, &followupID, &draftID)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if assistantMessage.Valid {
		p.AssistantMessage = assistantMessage.String
	}
	if actionRoute.Valid {
		p.ActionRoute = actionRoute.String
	}
	p.ActionPayload = ptrOf(actionPayload)
	p.PriorityInputs = ptrOf(priorityInputs)
	p.DecisionReason = ptrOf(decisionReason)
	p.ExpiredReason = ptrOf(expiredReason)
	p.ExecutionJobID = ptrOf(jobID)
	p.ExecutionResult = ptrOf(execResult)
	p.ExecutionError = ptrOf(execError)
	p.Retryable = retryable != 0
	p.VisibleToUser = visible != 0
	p.ExpiresAt = ptrOf(expiresAt)
	p.SnoozedUntil = ptrOf(snoozedUntil)
	p.DecidedAt = ptrOf(decidedAt)
	p.ShownAt = ptrOf(shownAt)
	p.ShownSurface = ptrOf(shownSurface)
	p.ViewedAt = ptrOf(viewedAt)
	p.ExecutionStartedAt = ptrOf(execStarted)
	p.ExecutionCompletedAt = ptrOf(execCompleted)
	p.ProspectID = ptrOf(prospectID)
	p.ContactID = ptrOf(contactID)
	p.MeetingID = ptrOf(meetingID)
	p.ResearchID = ptrOf(researchID)
	p.PrepID = ptrOf(prepID)
	p.FollowupID = ptrOf(followupID)
	p.DraftID = ptrOf(draftID)
	return p, nil
}

func ptrOf(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// InsertProposalTx inserts a proposal. A unique violation on the active
// dedupe index means another live proposal holds the same key; callers
// detect it with IsUniqueViolation.
func (r Repo) InsertProposalTx(ctx context.Context, tx *sql.Tx, p domain.Proposal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO proposals(`+proposalColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.OrgID, p.Generation, p.ProposalType, p.TriggerType, p.DedupeKey,
		p.Title, nullable(p.Description), nullable(p.AssistantMessage), p.ActionType, nullable(p.ActionRoute), nullableStringPtr(p.ActionPayload),
		p.Priority, nullableStringPtr(p.PriorityInputs), p.Status, nullableStringPtr(p.DecisionReason), nullableStringPtr(p.ExpiredReason),
		nullableStringPtr(p.ExecutionJobID), nullableStringPtr(p.ExecutionResult), nullableStringPtr(p.ExecutionError), boolToInt(p.Retryable), boolToInt(p.VisibleToUser),
		p.CreatedAt, p.UpdatedAt, nullableStringPtr(p.ExpiresAt), nullableStringPtr(p.SnoozedUntil), nullableStringPtr(p.DecidedAt),
		nullableStringPtr(p.ShownAt), nullableStringPtr(p.ShownSurface), nullableStringPtr(p.ViewedAt), nullableStringPtr(p.ExecutionStartedAt), nullableStringPtr(p.ExecutionCompletedAt),
		nullableStringPtr(p.ProspectID), nullableStringPtr(p.ContactID), nullableStringPtr(p.MeetingID), nullableStringPtr(p.ResearchID), nullableStringPtr(p.PrepID), nullableStringPtr(p.FollowupID), nullableStringPtr(p.DraftID))
	return err
}

func (r Repo) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return scanProposal(r.DB.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id))
}

func (r Repo) GetProposalTx(ctx context.Context, tx *sql.Tx, id string) (domain.Proposal, error) {
	return scanProposal(tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id))
}

// ActiveProposalByDedupeKey returns the live proposal holding a dedupe key.
func (r Repo) ActiveProposalByDedupeKey(ctx context.Context, userID, dedupeKey string) (domain.Proposal, error) {
	return scanProposal(r.DB.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE user_id=? AND dedupe_key=? AND status IN ('proposed','accepted','executing','snoozed')`,
		userID, dedupeKey))
}

type ProposalFilters struct {
	UserID          string
	OrgID           string
	Status          string
	Generation      string
	ProposalType    string
	VisibleOnly     bool
	MinPriority     int
	Limit           int
	CursorPriority  int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListProposals(ctx context.Context, f ProposalFilters) ([]domain.Proposal, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Generation != "" {
		clauses = append(clauses, "generation=?")
		args = append(args, f.Generation)
	}
	if f.ProposalType != "" {
		clauses = append(clauses, "proposal_type=?")
		args = append(args, f.ProposalType)
	}
	if f.VisibleOnly {
		clauses = append(clauses, "visible_to_user=1")
	}
	if f.MinPriority > 0 {
		clauses = append(clauses, "priority>=?")
		args = append(args, f.MinPriority)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(priority < ? OR (priority = ? AND (created_at < ? OR (created_at = ? AND id < ?))))")
		args = append(args, f.CursorPriority, f.CursorPriority, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + proposalColumns + ` FROM proposals ` + where + ` ORDER BY priority DESC, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// TransitionProposalTx applies a guarded status transition. The update only
// lands when the row still has fromStatus, so concurrent deciders and the
// sweeper cannot both win; the loser sees false.
func (r Repo) TransitionProposalTx(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus, updatedAt string, sets map[string]any) (bool, error) {
	fields := []string{"status=?", "updated_at=?"}
	args := []any{toStatus, updatedAt}
	for _, col := range sortedKeys(sets) {
		fields = append(fields, col+"=?")
		args = append(args, sets[col])
	}
	args = append(args, id, fromStatus)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE proposals SET %s WHERE id=? AND status=?`, strings.Join(fields, ", ")), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarkShownTx records first display. First write wins; later calls are no-ops.
func (r Repo) MarkShownTx(ctx context.Context, tx *sql.Tx, id, shownAt, surface string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET shown_at=?, shown_surface=?, updated_at=? WHERE id=? AND shown_at IS NULL`,
		shownAt, nullable(surface), shownAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkViewedTx records first open. First write wins; later calls are no-ops.
func (r Repo) MarkViewedTx(ctx context.Context, tx *sql.Tx, id, viewedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE proposals SET viewed_at=?, updated_at=? WHERE id=? AND viewed_at IS NULL`,
		viewedAt, viewedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpireDueTx returns IDs of proposals whose deadline passed, still holding a
// sweepable status. Selection and update run in the caller's transaction.
func (r Repo) ExpireDueTx(ctx context.Context, tx *sql.Tx, now string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM proposals WHERE status IN ('proposed','snoozed') AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WakeDueTx returns IDs of snoozed proposals whose snooze window elapsed.
func (r Repo) WakeDueTx(ctx context.Context, tx *sql.Tx, now string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM proposals WHERE status='snoozed' AND snoozed_until IS NOT NULL AND snoozed_until <= ? ORDER BY id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListExecuting returns proposals waiting on an executor job.
func (r Repo) ListExecuting(ctx context.Context) ([]domain.Proposal, error) {
	return r.ListProposals(ctx, ProposalFilters{Status: domain.StatusExecuting})
}

// GetProposalByJobID finds the proposal that owns an execution job.
func (r Repo) GetProposalByJobID(ctx context.Context, jobID string) (domain.Proposal, error) {
	return scanProposal(r.DB.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE execution_job_id=?`, jobID))
}

// UserStats summarizes one user's visible pipeline.
type UserStats struct {
	Pending        int `json:"pending"`
	Urgent         int `json:"urgent"`
	Snoozed        int `json:"snoozed"`
	Executing      int `json:"executing"`
	CompletedToday int `json:"completed_today"`
}

// CountUserStats aggregates visible proposals for one user. A pending
// proposal counts as urgent at or above urgentMin; dayStart bounds the
// completed-today tally.
func (r Repo) CountUserStats(ctx context.Context, userID string, urgentMin int, dayStart string) (UserStats, error) {
	var s UserStats
	row := r.DB.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN status='proposed' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status='proposed' AND priority>=? THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status='snoozed' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status='executing' THEN 1 ELSE 0 END),0),
		COALESCE(SUM(CASE WHEN status='completed' AND updated_at>=? THEN 1 ELSE 0 END),0)
		FROM proposals WHERE user_id=? AND visible_to_user=1`, urgentMin, dayStart, userID)
	err := row.Scan(&s.Pending, &s.Urgent, &s.Snoozed, &s.Executing, &s.CompletedToday)
	return s, err
}

// GenerationStatusCounts groups proposal counts by generation and status.
func (r Repo) GenerationStatusCounts(ctx context.Context, since string) (map[string]map[string]int, error) {
	query := `SELECT generation, status, count(*) FROM proposals`
	var args []any
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY generation, status`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]map[string]int{}
	for rows.Next() {
		var generation, status string
		var count int
		if err := rows.Scan(&generation, &status, &count); err != nil {
			return nil, err
		}
		if res[generation] == nil {
			res[generation] = map[string]int{}
		}
		res[generation][status] = count
	}
	return res, rows.Err()
}

// GenerationTypeCounts groups proposal counts by generation and proposal type.
func (r Repo) GenerationTypeCounts(ctx context.Context, since string) (map[string]map[string]int, error) {
	query := `SELECT generation, proposal_type, count(*) FROM proposals`
	var args []any
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY generation, proposal_type`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]map[string]int{}
	for rows.Next() {
		var generation, proposalType string
		var count int
		if err := rows.Scan(&generation, &proposalType, &count); err != nil {
			return nil, err
		}
		if res[generation] == nil {
			res[generation] = map[string]int{}
		}
		res[generation][proposalType] = count
	}
	return res, rows.Err()
}

// GenerationActiveUsers counts distinct users holding at least one proposal
// per generation.
func (r Repo) GenerationActiveUsers(ctx context.Context, since string) (map[string]int, error) {
	query := `SELECT generation, count(DISTINCT user_id) FROM proposals`
	var args []any
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY generation`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var generation string
		var count int
		if err := rows.Scan(&generation, &count); err != nil {
			return nil, err
		}
		res[generation] = count
	}
	return res, rows.Err()
}

// CountProposalsByStatus groups proposal counts by status for a user.
func (r Repo) CountProposalsByStatus(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM proposals WHERE user_id=? GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
