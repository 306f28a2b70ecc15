package server

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"nudgeline/internal/domain"
	"nudgeline/internal/repo"
)

const maxPageSize = 200

type ProposalListResponse struct {
	Items      []domain.Proposal `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

type FlagsResponse struct {
	Version int64             `json:"version"`
	Values  map[string]string `json:"values" jsonschema:"type=object,additionalProperties=true"`
}

type ExecutionCallbackRequest struct {
	State      string `json:"state" enum:"succeeded,failed"`
	ResultJSON string `json:"result_json,omitempty"`
	Error      string `json:"error,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

type UserStatsResponse struct {
	repo.UserStats
	Next *domain.Proposal `json:"next,omitempty"`
}

type RecordOutcomeRequest struct {
	Rating string `json:"rating" enum:"positive,neutral,negative"`
	Source string `json:"source,omitempty" enum:"human,inferred"`
	Note   string `json:"note,omitempty"`
}

type UpdateSettingsRequest struct {
	Enabled           *bool     `json:"enabled,omitempty"`
	CalendarTriggers  *bool     `json:"calendar_triggers,omitempty"`
	MeetingTriggers   *bool     `json:"meeting_triggers,omitempty"`
	SilenceTriggers   *bool     `json:"silence_triggers,omitempty"`
	FlowTriggers      *bool     `json:"flow_triggers,omitempty"`
	ReactivationDays  *int      `json:"reactivation_days,omitempty" minimum:"1"`
	PrepLeadHours     *int      `json:"prep_lead_hours,omitempty" minimum:"1"`
	NotificationStyle *string   `json:"notification_style,omitempty" enum:"eager,balanced,minimal"`
	ExcludedKeywords  *[]string `json:"excluded_keywords,omitempty"`
}

func mapProposals(items []domain.Proposal) []domain.Proposal {
	if items == nil {
		return []domain.Proposal{}
	}
	return items
}

func mapEvents(items []domain.Event) []domain.Event {
	if items == nil {
		return []domain.Event{}
	}
	return items
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// Cursors are base64("priority|created_at|id"), opaque to clients. The three
// parts mirror the list ordering so a page boundary never skips rows.
func composeCursor(p domain.Proposal) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%d|%s|%s", p.Priority, p.CreatedAt, p.ID)))
}

func parseCompositeCursor(cursor string) (priority int, createdAt, id string, err error) {
	if cursor == "" {
		return 0, "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, "", "", err
	}
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return 0, "", "", fmt.Errorf("malformed cursor")
	}
	priority, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("malformed cursor")
	}
	return priority, parts[1], parts[2], nil
}
