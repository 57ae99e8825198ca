package scheduler

import (
	"fmt"
	"time"

	"chainforge/internal/executor"
)

// LinkState is the lifecycle state of one link within an execution. Pending,
// Ready and Running are transient; Succeeded, Failed and Blocked are terminal.
type LinkState string

const (
	StatePending   LinkState = "Pending"
	StateBlocked   LinkState = "Blocked"
	StateReady     LinkState = "Ready"
	StateRunning   LinkState = "Running"
	StateSucceeded LinkState = "Succeeded"
	StateFailed    LinkState = "Failed"
)

func (s LinkState) terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateBlocked
}

// Status summarizes a whole execution.
type Status string

const (
	// StatusCompleted means every link succeeded.
	StatusCompleted Status = "Completed"
	// StatusPartiallyFailed means at least one link failed or was blocked,
	// but the run itself finished before the global deadline.
	StatusPartiallyFailed Status = "PartiallyFailed"
	// StatusTimedOut means the global deadline cut the run short.
	StatusTimedOut Status = "TimedOut"
)

// LinkResult records the terminal state of one link.
type LinkResult struct {
	LinkID     string          `json:"linkId"`
	State      LinkState       `json:"state"`
	HTTPStatus int             `json:"httpStatus,omitempty"`
	Reason     executor.Reason `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Extracted  map[string]any  `json:"extractedVariables,omitempty"`
	StartedAt  time.Time       `json:"startedAt,omitempty"`
	FinishedAt time.Time       `json:"finishedAt,omitempty"`
}

// ExecutionResult is the full record of one chain execution. Links appear in
// the chain's declaration order regardless of execution order.
type ExecutionResult struct {
	ChainID        string         `json:"chainId"`
	ChainName      string         `json:"chainName,omitempty"`
	Status         Status         `json:"status"`
	Links          []LinkResult   `json:"links"`
	Variables      map[string]any `json:"variables,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	FinishedAt     time.Time      `json:"finishedAt"`
	DurationMillis int64          `json:"durationMs"`
}

// ChainDisabledError is returned when execution is requested for a chain whose
// definition is disabled. No execution record is produced.
type ChainDisabledError struct {
	ChainID string
}

func (e *ChainDisabledError) Error() string {
	return fmt.Sprintf("chain '%s' is disabled and cannot be executed", e.ChainID)
}
