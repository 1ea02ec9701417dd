package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TaskPhasePending   TaskPhase = "pending"
	TaskPhaseWaiting   TaskPhase = "waiting"
	TaskPhaseRunning   TaskPhase = "running"
	TaskPhaseCompleted TaskPhase = "completed"
	TaskPhaseFailed    TaskPhase = "failed"

	TaskResultSuccess TaskResultStatus = "success"
	TaskResultFailure TaskResultStatus = "failure"
)

type (
	TaskPhase        string
	TaskResultStatus string

	Task struct {
		ID        uuid.UUID       `json:"id"`
		Type      string          `json:"type"`
		UserID    string          `json:"userId"`
		Params    json.RawMessage `json:"params,omitempty"`
		Output    json.RawMessage `json:"output,omitempty"`
		Status    TaskStatus      `json:"status"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	TaskStatus struct {
		Phase        TaskPhase `json:"phase"`
		Progress     float64   `json:"progress,omitempty"`
		Step         string    `json:"step,omitempty"`
		Retries      int       `json:"retries,omitempty"`
		ErrorMessage string    `json:"errorMessage,omitempty"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// TaskResultMessage is consumed from the task results queue.
	TaskResultMessage struct {
		Task   TaskResultRef    `json:"task" validate:"required"`
		Status TaskResultStatus `json:"status" validate:"required,oneof=success failure"`
		Error  *TaskResultError `json:"error,omitempty" validate:"required_if=Status failure"`
		Output json.RawMessage  `json:"output,omitempty"`
	}

	TaskResultRef struct {
		ID   string `json:"id" validate:"required,uuid"`
		Type string `json:"type" validate:"required"`
	}

	TaskResultError struct {
		Message     string `json:"message" validate:"required"`
		Unretriable bool   `json:"unretriable,omitempty"`
	}

	// TaskTriggerMessage is published under task.trigger.<type>.<id> to start or retry a task.
	TaskTriggerMessage struct {
		Task   TaskTriggerRef  `json:"task"`
		Params json.RawMessage `json:"params,omitempty"`
	}

	TaskTriggerRef struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Retries int    `json:"retries"`
	}

	// TaskResultOutcome reports what processing a result did to the task.
	TaskResultOutcome struct {
		TaskID  uuid.UUID
		Phase   TaskPhase
		Retried bool
	}
)

func (p TaskPhase) IsTerminal() bool {
	return p == TaskPhaseCompleted || p == TaskPhaseFailed
}

// EventKey maps a phase change onto the webhook event it emits.
func (p TaskPhase) EventKey() EventKey {
	switch p {
	case TaskPhaseCompleted:
		return EventTaskCompleted
	case TaskPhaseFailed:
		return EventTaskFailed
	default:
		return EventTaskUpdated
	}
}

func (t *Task) CanRetry(maxRetries int) bool {
	return t.Status.Retries < maxRetries
}

func (t *Task) Complete(output json.RawMessage, now time.Time) error {
	if err := t.ensureActive(TaskPhaseCompleted); err != nil {
		return err
	}

	t.Output = output
	t.Status = TaskStatus{
		Phase:     TaskPhaseCompleted,
		Progress:  1,
		Retries:   t.Status.Retries,
		UpdatedAt: now,
	}

	return nil
}

// ScheduleRetry moves the task back to waiting and counts the attempt.
func (t *Task) ScheduleRetry(errorMessage string, now time.Time) error {
	if err := t.ensureActive(TaskPhaseWaiting); err != nil {
		return err
	}

	t.Status = TaskStatus{
		Phase:        TaskPhaseWaiting,
		Retries:      t.Status.Retries + 1,
		ErrorMessage: errorMessage,
		UpdatedAt:    now,
	}

	return nil
}

func (t *Task) Fail(errorMessage string, now time.Time) error {
	if err := t.ensureActive(TaskPhaseFailed); err != nil {
		return err
	}

	t.Status = TaskStatus{
		Phase:        TaskPhaseFailed,
		Retries:      t.Status.Retries,
		ErrorMessage: errorMessage,
		UpdatedAt:    now,
	}

	return nil
}

func (t *Task) TriggerMessage() TaskTriggerMessage {
	return TaskTriggerMessage{
		Task: TaskTriggerRef{
			ID:      t.ID.String(),
			Type:    t.Type,
			Retries: t.Status.Retries,
		},
		Params: t.Params,
	}
}

func (t *Task) ensureActive(to TaskPhase) error {
	if t.Status.Phase.IsTerminal() {
		return &InvalidStateTransitionError{
			From: string(t.Status.Phase),
			To:   string(to),
		}
	}

	return nil
}
