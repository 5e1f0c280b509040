package domain

import (
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is written into every persisted document.
const SchemaVersion = 1

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// rank orders the forward path. Cancelled sits outside of it.
var rank = map[Status]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

// ParseStatus normalizes s and reports whether it names a known status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, nil
	case "in_progress", "inprogress":
		return StatusInProgress, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a task may move from s to next.
// Setting the current status again is allowed and changes nothing.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, okFrom := rank[s]
	to, okTo := rank[next]
	return okFrom && okTo && to > from
}

// Priority expresses task urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority normalizes s. An empty value yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, s)
}

// Member is a representative snapshot stored inside a task.
type Member struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Skillset string `json:"skillset,omitempty"`
}

// CustomerRef is a customer snapshot stored inside a task.
type CustomerRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ProductDemand string `json:"productDemand"`
	Category      string `json:"category"`
	Email         string `json:"email"`
}

// Task is a unit of outreach work assigned to representatives against a set of customers.
// Customers and AssignedMembers are copies taken at assignment time.
type Task struct {
	SchemaVersion   int           `json:"schemaVersion"`
	TaskID          string        `json:"taskId"`
	Category        string        `json:"category,omitempty"`
	Customers       []CustomerRef `json:"customers"`
	CustomerName    string        `json:"customerName"`
	ProjectTitle    string        `json:"projectTitle"`
	Description     string        `json:"description"`
	Script          string        `json:"script"`
	Keywords        string        `json:"keywords,omitempty"`
	AssignedMembers []Member      `json:"assignedMembers"`
	Status          Status        `json:"status"`
	Priority        Priority      `json:"priority"`
	AssignedDate    time.Time     `json:"assignedDate"`
	DueDate         *time.Time    `json:"dueDate,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Version         int64         `json:"version"`
}

// ApplyStatus moves the task to next. Leaving pending for in-progress or
// completed requires at least one assigned member; cancellation does not.
func (t *Task) ApplyStatus(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	if t.Status == StatusPending && (next == StatusInProgress || next == StatusCompleted) && len(t.AssignedMembers) == 0 {
		return fmt.Errorf("%w: task %s has no assigned members", ErrInvalidTransition, t.TaskID)
	}
	t.Status = next
	return nil
}

// HasMember reports whether a member with the given name is assigned.
// Names are compared case-insensitively after trimming.
func (t *Task) HasMember(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, m := range t.AssignedMembers {
		if strings.EqualFold(strings.TrimSpace(m.Name), name) {
			return true
		}
	}
	return false
}
