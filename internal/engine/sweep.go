package engine

import (
	"context"
	"errors"
	"log"

	"nudgeline/internal/domain"
	"nudgeline/internal/events"
)

// ExpiredReasonTimeout is recorded on proposals the sweeper expires.
const ExpiredReasonTimeout = "not acted upon in time"

// ExpireDueProposals moves every proposed or snoozed proposal past its
// deadline to expired. Safe to run concurrently; each row transitions at
// most once.
func (e Engine) ExpireDueProposals(ctx context.Context, actorID string) ([]string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	due, err := e.Repo.ExpireDueTx(ctx, tx, e.nowString())
	if err != nil {
		return nil, err
	}
	var expired []string
	for _, id := range due {
		p, err := e.Repo.GetProposalTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		ok, err := e.Repo.TransitionProposalTx(ctx, tx, id, p.Status, domain.StatusExpired, e.nowString(), map[string]any{
			"expired_reason": ExpiredReasonTimeout,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		err = e.Events.Append(ctx, tx, "proposal.expired", p.UserID, "proposal", id, actorID, events.EventPayload{
			"from":   p.Status,
			"reason": ExpiredReasonTimeout,
		})
		if err != nil {
			return nil, err
		}
		expired = append(expired, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return expired, nil
}

// WakeDueProposals returns snoozed proposals whose wake time elapsed to
// proposed. Rows that also passed their expiry deadline are left for
// ExpireDueProposals, which runs first in a sweep.
func (e Engine) WakeDueProposals(ctx context.Context, actorID string) ([]string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	due, err := e.Repo.WakeDueTx(ctx, tx, e.nowString())
	if err != nil {
		return nil, err
	}
	var woken []string
	for _, id := range due {
		ok, err := e.Repo.TransitionProposalTx(ctx, tx, id, domain.StatusSnoozed, domain.StatusProposed, e.nowString(), map[string]any{
			"snoozed_until": nil,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		p, err := e.Repo.GetProposalTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := e.Events.Append(ctx, tx, "proposal.woken", p.UserID, "proposal", id, actorID, events.EventPayload{}); err != nil {
			return nil, err
		}
		woken = append(woken, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return woken, nil
}

// PollExecutions asks the executor about every executing proposal and
// resolves the finished ones. Returns how many reached a terminal status.
func (e Engine) PollExecutions(ctx context.Context, actorID string) (int, error) {
	executing, err := e.Repo.ListExecuting(ctx)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, p := range executing {
		if p.ExecutionJobID == nil {
			continue
		}
		st, err := e.Executor.Status(ctx, *p.ExecutionJobID)
		if err != nil {
			log.Printf("execution status for proposal %s job %s: %v", p.ID, *p.ExecutionJobID, err)
			continue
		}
		if st.State == ExecRunning {
			continue
		}
		if _, err := e.ResolveExecution(ctx, p.ID, st, actorID); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
