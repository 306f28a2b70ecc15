// Package compare reports how the generations perform side by side, which
// is the readout for a shadow-mode rollout.
package compare

import (
	"context"

	"nudgeline/internal/domain"
	"nudgeline/internal/repo"
)

type GenerationStats struct {
	Generation     string         `json:"generation"`
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByType         map[string]int `json:"by_type"`
	ActiveUsers    int            `json:"active_users"`
	Decided        int            `json:"decided"`
	AcceptanceRate float64        `json:"acceptance_rate"`
	Outcomes       map[string]int `json:"outcomes"`
}

type Report struct {
	Since       string            `json:"since,omitempty"`
	Generations []GenerationStats `json:"generations"`
}

type Comparator struct {
	Repo repo.Repo
}

// Build assembles per-generation stats. Acceptance rate is accepted-or-later
// proposals over decided ones; a generation with nothing decided reports 0.
func (c Comparator) Build(ctx context.Context, since string) (Report, error) {
	counts, err := c.Repo.GenerationStatusCounts(ctx, since)
	if err != nil {
		return Report{}, err
	}
	typeCounts, err := c.Repo.GenerationTypeCounts(ctx, since)
	if err != nil {
		return Report{}, err
	}
	activeUsers, err := c.Repo.GenerationActiveUsers(ctx, since)
	if err != nil {
		return Report{}, err
	}
	report := Report{Since: since}
	for _, gen := range []string{domain.GenerationAutopilot, domain.GenerationLuna} {
		byStatus := counts[gen]
		if byStatus == nil {
			byStatus = map[string]int{}
		}
		byType := typeCounts[gen]
		if byType == nil {
			byType = map[string]int{}
		}
		total := 0
		for _, n := range byStatus {
			total += n
		}
		acceptedOrLater := byStatus[domain.StatusAccepted] + byStatus[domain.StatusExecuting] +
			byStatus[domain.StatusCompleted] + byStatus[domain.StatusFailed]
		decided := total - byStatus[domain.StatusProposed] - byStatus[domain.StatusSnoozed]
		rate := 0.0
		if decided > 0 {
			rate = float64(acceptedOrLater) / float64(decided)
		}
		outcomes, err := c.Repo.CountOutcomesByRating(ctx, gen)
		if err != nil {
			return Report{}, err
		}
		report.Generations = append(report.Generations, GenerationStats{
			Generation:     gen,
			Total:          total,
			ByStatus:       byStatus,
			ByType:         byType,
			ActiveUsers:    activeUsers[gen],
			Decided:        decided,
			AcceptanceRate: rate,
			Outcomes:       outcomes,
		})
	}
	return report, nil
}
