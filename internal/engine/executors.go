package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"nudgeline/internal/domain"
)

// CreditGate decides whether a user may spend credits on an execution.
type CreditGate interface {
	// Reserve debits cost from the user's balance, or returns
	// *InsufficientCreditsError without side effects.
	Reserve(ctx context.Context, userID string, cost int) error
}

// Execution states reported by an ActionExecutor.
const (
	ExecRunning   = "running"
	ExecSucceeded = "succeeded"
	ExecFailed    = "failed"
)

type ExecutionStatus struct {
	State     string
	Result    *string
	Error     *string
	Retryable bool
}

// ActionExecutor runs the work behind execute-inline and execute-async
// proposals. Start returns a job ID the sweeper polls via Status.
type ActionExecutor interface {
	Start(ctx context.Context, p domain.Proposal) (string, error)
	Status(ctx context.Context, jobID string) (ExecutionStatus, error)
}

// MemoryCredits is an in-process credit ledger. Balances start at
// DefaultBalance on first touch.
type MemoryCredits struct {
	mu             sync.Mutex
	balances       map[string]int
	DefaultBalance int
}

func NewMemoryCredits(defaultBalance int) *MemoryCredits {
	return &MemoryCredits{balances: map[string]int{}, DefaultBalance: defaultBalance}
}

func (m *MemoryCredits) Grant(userID string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = m.balance(userID) + amount
}

func (m *MemoryCredits) Balance(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(userID)
}

func (m *MemoryCredits) balance(userID string) int {
	if b, ok := m.balances[userID]; ok {
		return b
	}
	return m.DefaultBalance
}

func (m *MemoryCredits) Reserve(ctx context.Context, userID string, cost int) error {
	if cost <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balance(userID)
	if b < cost {
		return &InsufficientCreditsError{Required: cost, Available: b}
	}
	m.balances[userID] = b - cost
	return nil
}

// MemoryExecutor holds jobs in process. Jobs stay running until resolved
// with Complete or Fail, which is what the sweeper's status poll observes.
type MemoryExecutor struct {
	mu   sync.Mutex
	jobs map[string]ExecutionStatus
}

func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{jobs: map[string]ExecutionStatus{}}
}

func (m *MemoryExecutor) Start(ctx context.Context, p domain.Proposal) (string, error) {
	jobID := uuid.NewString()
	m.mu.Lock()
	m.jobs[jobID] = ExecutionStatus{State: ExecRunning}
	m.mu.Unlock()
	return jobID, nil
}

func (m *MemoryExecutor) Status(ctx context.Context, jobID string) (ExecutionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[jobID]
	if !ok {
		return ExecutionStatus{}, fmt.Errorf("unknown job %s", jobID)
	}
	return st, nil
}

func (m *MemoryExecutor) Complete(jobID, resultJSON string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = ExecutionStatus{State: ExecSucceeded, Result: &resultJSON}
}

func (m *MemoryExecutor) Fail(jobID, message string, retryable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = ExecutionStatus{State: ExecFailed, Error: &message, Retryable: retryable}
}
