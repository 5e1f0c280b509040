// Package workflow drives an admin through building and submitting a task.
package workflow

import (
	"fmt"
	"time"

	"sales-portal/domain"
)

// Stage is the furthest step a draft has reached.
type Stage string

const (
	StageSelectingCategory       Stage = "selecting-category"
	StageSelectingCustomers      Stage = "selecting-customers"
	StageDraftingContent         Stage = "drafting-content"
	StageAssigningRepresentative Stage = "assigning-representative"
	StageSubmitted               Stage = "submitted"
)

var stageRank = map[Stage]int{
	StageSelectingCategory:       0,
	StageSelectingCustomers:      1,
	StageDraftingContent:         2,
	StageAssigningRepresentative: 3,
	StageSubmitted:               4,
}

// Draft is an admin's in-progress task form.
type Draft struct {
	Stage          Stage                `json:"stage"`
	EditTaskID     string               `json:"editTaskId,omitempty"`
	Category       string               `json:"category,omitempty"`
	Customers      []domain.CustomerRef `json:"customers"`
	Title          string               `json:"title,omitempty"`
	Description    string               `json:"description,omitempty"`
	Script         string               `json:"script,omitempty"`
	Keywords       string               `json:"keywords,omitempty"`
	Priority       string               `json:"priority,omitempty"`
	DueDate        *time.Time           `json:"dueDate,omitempty"`
	Status         string               `json:"status,omitempty"`
	ScriptEdited   bool                 `json:"scriptEdited,omitempty"`
	KeywordsEdited bool                 `json:"keywordsEdited,omitempty"`
	Members        []domain.Member      `json:"members"`
	LastTaskID     string               `json:"lastTaskId,omitempty"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// NewDraft returns a draft in the initial stage.
func NewDraft() *Draft {
	return &Draft{
		Stage:     StageSelectingCategory,
		Customers: []domain.CustomerRef{},
		Members:   []domain.Member{},
	}
}

func (d *Draft) clone() Draft {
	c := *d
	c.Customers = append([]domain.CustomerRef{}, d.Customers...)
	c.Members = append([]domain.Member{}, d.Members...)
	if d.DueDate != nil {
		due := *d.DueDate
		c.DueDate = &due
	}
	return c
}

// advance moves the stage forward; it never moves it back.
func (d *Draft) advance(to Stage) {
	if stageRank[to] > stageRank[d.Stage] {
		d.Stage = to
	}
}

// StepError reports which workflow step failed. The draft passed to the step
// is left as it was, so the caller can retry.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}
