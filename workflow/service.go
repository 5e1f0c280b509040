package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"sales-portal/completion"
	"sales-portal/domain"
	"sales-portal/registry"
)

const (
	StepCategory        = "select-category"
	StepCustomers       = "select-customers"
	StepContent         = "edit-content"
	StepGenerate        = "generate"
	StepRepresentatives = "assign-representatives"
	StepLoad            = "load-task"
	StepSubmit          = "submit"
)

// CustomerSource supplies the candidate customers.
type CustomerSource interface {
	Categories(ctx context.Context) ([]string, error)
	ListByCategory(ctx context.Context, category string) ([]domain.Customer, error)
}

// Directory resolves representative emails into task member snapshots.
type Directory interface {
	Members(ctx context.Context, emails []string) ([]domain.Member, error)
}

// TaskWriter is the part of the task registry the workflow submits to.
type TaskWriter interface {
	Create(ctx context.Context, in registry.NewTask) (string, error)
	Get(ctx context.Context, taskID string) (domain.Task, error)
	Update(ctx context.Context, taskID string, in registry.TaskUpdate) (domain.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, error)
}

// Generator drafts scripts and keywords.
type Generator interface {
	GenerateScript(ctx context.Context, customerDescription, taskInstruction string) (string, error)
	GenerateKeywords(ctx context.Context, script, taskInstruction string) (completion.Keywords, error)
}

// Service runs workflow steps against a caller-owned Draft. A step either
// succeeds and updates the draft or fails with a *StepError and leaves it
// unchanged.
type Service struct {
	customers CustomerSource
	directory Directory
	tasks     TaskWriter
	generator Generator
	logger    *log.Logger
	now       func() time.Time
}

// NewService wires the workflow. generator may be nil when no completion
// service is configured.
func NewService(customers CustomerSource, directory Directory, tasks TaskWriter, generator Generator, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New()
	}
	return &Service{
		customers: customers,
		directory: directory,
		tasks:     tasks,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

// Categories lists the categories an admin can pick from.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.customers.Categories(ctx)
	return cats, stepErr(StepCategory, err)
}

// SelectCategory activates category. Switching to a different category
// clears the customer selection.
func (s *Service) SelectCategory(ctx context.Context, d *Draft, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return stepErr(StepCategory, fmt.Errorf("%w: category is required", domain.ErrValidation))
	}
	cats, err := s.customers.Categories(ctx)
	if err != nil {
		return stepErr(StepCategory, err)
	}
	canonical := ""
	for _, c := range cats {
		if strings.EqualFold(c, category) {
			canonical = c
			break
		}
	}
	if canonical == "" {
		return stepErr(StepCategory, fmt.Errorf("%w: unknown category %q", domain.ErrValidation, category))
	}

	next := d.clone()
	if !strings.EqualFold(next.Category, canonical) {
		next.Customers = []domain.CustomerRef{}
		next.Stage = StageSelectingCustomers
	}
	next.Category = canonical
	next.advance(StageSelectingCustomers)
	s.commit(d, next)
	return nil
}

// SelectCustomers picks customers from the active category. With all set,
// every candidate is selected and ids are ignored.
func (s *Service) SelectCustomers(ctx context.Context, d *Draft, ids []string, all bool) error {
	if d.Category == "" {
		return stepErr(StepCustomers, fmt.Errorf("%w: select a category first", domain.ErrValidation))
	}
	candidates, err := s.customers.ListByCategory(ctx, d.Category)
	if err != nil {
		return stepErr(StepCustomers, err)
	}

	var selected []domain.CustomerRef
	if all {
		for _, c := range candidates {
			selected = append(selected, c.Ref())
		}
	} else {
		byID := make(map[string]domain.Customer, len(candidates))
		for _, c := range candidates {
			byID[c.ID] = c
		}
		seen := make(map[string]bool, len(ids))
		var unknown []string
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			c, ok := byID[id]
			if !ok {
				unknown = append(unknown, id)
				continue
			}
			selected = append(selected, c.Ref())
		}
		if len(unknown) > 0 {
			return stepErr(StepCustomers, fmt.Errorf("%w: customers not in category %q: %s", domain.ErrValidation, d.Category, strings.Join(unknown, ", ")))
		}
	}
	if len(selected) == 0 {
		return stepErr(StepCustomers, fmt.Errorf("%w: select at least one customer", domain.ErrValidation))
	}

	next := d.clone()
	next.Customers = selected
	next.advance(StageDraftingContent)
	s.commit(d, next)
	return nil
}

// ContentInput carries manual edits. Nil fields are left alone.
type ContentInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Script      *string    `json:"script"`
	Keywords    *string    `json:"keywords"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Status      *string    `json:"status"`
}

// EditContent applies manual edits. Edited script and keywords are not
// overwritten by Generate unless forced.
func (s *Service) EditContent(d *Draft, in ContentInput) error {
	next := d.clone()
	if in.Priority != nil {
		if _, err := domain.ParsePriority(*in.Priority); err != nil {
			return stepErr(StepContent, err)
		}
		next.Priority = strings.TrimSpace(*in.Priority)
	}
	if in.Status != nil {
		if strings.TrimSpace(*in.Status) != "" {
			if next.EditTaskID == "" {
				return stepErr(StepContent, fmt.Errorf("%w: status can only be set when editing a task", domain.ErrValidation))
			}
			if _, err := domain.ParseStatus(*in.Status); err != nil {
				return stepErr(StepContent, err)
			}
		}
		next.Status = strings.TrimSpace(*in.Status)
	}
	if in.Title != nil {
		next.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Script != nil {
		next.Script = strings.TrimSpace(*in.Script)
		next.ScriptEdited = true
	}
	if in.Keywords != nil {
		next.Keywords = strings.TrimSpace(*in.Keywords)
		next.KeywordsEdited = true
	}
	if in.DueDate != nil {
		due := *in.DueDate
		next.DueDate = &due
	}
	next.advance(StageDraftingContent)
	s.commit(d, next)
	return nil
}

// Generate fills script and keywords from the description through the
// completion service. Manually edited fields are kept unless force is set.
func (s *Service) Generate(ctx context.Context, d *Draft, force bool) error {
	if s.generator == nil {
		return stepErr(StepGenerate, fmt.Errorf("%w: completion service is not configured", domain.ErrUpstream))
	}
	if d.Description == "" {
		return stepErr(StepGenerate, fmt.Errorf("%w: description is required", domain.ErrValidation))
	}
	next := d.clone()
	if force || !next.ScriptEdited || next.Script == "" {
		script, err := s.generator.GenerateScript(ctx, customerContext(next), next.Description)
		if err != nil {
			return stepErr(StepGenerate, err)
		}
		next.Script = script
		next.ScriptEdited = false
	}
	if force || !next.KeywordsEdited || next.Keywords == "" {
		kw, err := s.generator.GenerateKeywords(ctx, next.Script, next.Description)
		if err != nil {
			return stepErr(StepGenerate, err)
		}
		next.Keywords = kw.String()
		next.KeywordsEdited = false
	}
	next.advance(StageDraftingContent)
	s.commit(d, next)
	return nil
}

func customerContext(d Draft) string {
	if len(d.Customers) == 0 {
		return d.Description
	}
	lines := make([]string, 0, len(d.Customers))
	for _, c := range d.Customers {
		lines = append(lines, domain.Customer{Name: c.Name, ProductDemand: c.ProductDemand, Category: c.Category}.Description())
	}
	return strings.Join(lines, "\n")
}

// AssignRepresentatives snapshots the given representatives onto the draft.
func (s *Service) AssignRepresentatives(ctx context.Context, d *Draft, emails []string) error {
	if len(emails) == 0 {
		return stepErr(StepRepresentatives, fmt.Errorf("%w: at least one representative is required", domain.ErrValidation))
	}
	members, err := s.directory.Members(ctx, emails)
	if err != nil {
		return stepErr(StepRepresentatives, err)
	}
	next := d.clone()
	next.Members = members
	next.advance(StageAssigningRepresentative)
	s.commit(d, next)
	return nil
}

// LoadTask starts editing an existing task. Any unsaved draft is replaced.
func (s *Service) LoadTask(ctx context.Context, d *Draft, taskID string) error {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return stepErr(StepLoad, err)
	}
	next := *NewDraft()
	next.EditTaskID = task.TaskID
	next.Category = task.Category
	next.Customers = append(next.Customers, task.Customers...)
	next.Title = task.ProjectTitle
	next.Description = task.Description
	next.Script = task.Script
	next.Keywords = task.Keywords
	next.ScriptEdited = true
	next.KeywordsEdited = true
	next.Priority = string(task.Priority)
	next.DueDate = task.DueDate
	next.Members = append(next.Members, task.AssignedMembers...)
	next.Stage = StageAssigningRepresentative
	s.commit(d, next)
	return nil
}

// Submit creates the task, or for edit drafts saves the edited content and
// members and then applies the requested status. On success the draft is
// reset and the task id returned.
func (s *Service) Submit(ctx context.Context, d *Draft) (string, error) {
	if len(d.Members) == 0 {
		return "", stepErr(StepSubmit, fmt.Errorf("%w: at least one representative is required", domain.ErrValidation))
	}

	var taskID string
	if d.EditTaskID != "" {
		if d.Category != "" && len(d.Customers) == 0 {
			return "", stepErr(StepSubmit, fmt.Errorf("%w: missing customers", domain.ErrValidation))
		}
		var status domain.Status
		if d.Status != "" {
			var err error
			if status, err = domain.ParseStatus(d.Status); err != nil {
				return "", stepErr(StepSubmit, err)
			}
		}
		_, err := s.tasks.Update(ctx, d.EditTaskID, registry.TaskUpdate{
			Category:        d.Category,
			Customers:       d.Customers,
			ProjectTitle:    d.Title,
			Description:     d.Description,
			Script:          d.Script,
			Keywords:        d.Keywords,
			Priority:        d.Priority,
			DueDate:         d.DueDate,
			AssignedMembers: d.Members,
		})
		if err != nil {
			return "", stepErr(StepSubmit, err)
		}
		if status != "" {
			if _, err := s.tasks.UpdateStatus(ctx, d.EditTaskID, status); err != nil {
				return "", stepErr(StepSubmit, err)
			}
		}
		taskID = d.EditTaskID
	} else {
		if err := validateNew(d); err != nil {
			return "", stepErr(StepSubmit, err)
		}
		id, err := s.tasks.Create(ctx, registry.NewTask{
			Category:        d.Category,
			Customers:       d.Customers,
			ProjectTitle:    d.Title,
			Description:     d.Description,
			Script:          d.Script,
			Keywords:        d.Keywords,
			AssignedMembers: d.Members,
			Priority:        d.Priority,
			DueDate:         d.DueDate,
		})
		if err != nil {
			return "", stepErr(StepSubmit, err)
		}
		taskID = id
	}

	s.logger.WithFields(log.Fields{
		"task":    taskID,
		"edit":    d.EditTaskID != "",
		"members": len(d.Members),
	}).Info("workflow submitted")

	next := *NewDraft()
	next.LastTaskID = taskID
	s.commit(d, next)
	return taskID, nil
}

func validateNew(d *Draft) error {
	var missing []string
	if d.Category == "" {
		missing = append(missing, "category")
	}
	if len(d.Customers) == 0 {
		missing = append(missing, "customers")
	}
	if d.Title == "" {
		missing = append(missing, "title")
	}
	if d.Description == "" {
		missing = append(missing, "description")
	}
	if d.Script == "" {
		missing = append(missing, "script")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) commit(d *Draft, next Draft) {
	next.UpdatedAt = s.now().UTC()
	*d = next
}
