package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"sales-portal/blobstore"
	"sales-portal/domain"
	"sales-portal/events"
)

const tasksCollection = "tasks"

// NewTask carries the fields an admin supplies when creating a task.
type NewTask struct {
	Category        string               `json:"category"`
	Customers       []domain.CustomerRef `json:"customers"`
	CustomerName    string               `json:"customerName"`
	ProjectTitle    string               `json:"projectTitle"`
	Description     string               `json:"description"`
	Script          string               `json:"script"`
	Keywords        string               `json:"keywords"`
	AssignedMembers []domain.Member      `json:"assignedMembers"`
	Priority        string               `json:"priority"`
	AssignedDate    *time.Time           `json:"assignedDate"`
	DueDate         *time.Time           `json:"dueDate"`
}

// Tasks owns task records.
type Tasks struct {
	store       blobstore.Store
	locks       blobstore.Locker
	events      events.Publisher
	logger      *log.Logger
	concurrency int
	now         func() time.Time
}

// NewTasks creates the task registry. pub may be nil.
func NewTasks(store blobstore.Store, locks blobstore.Locker, pub events.Publisher, logger *log.Logger) *Tasks {
	if logger == nil {
		logger = log.New()
	}
	if locks == nil {
		locks = blobstore.NewLocalLocker()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Tasks{store: store, locks: locks, events: pub, logger: logger, concurrency: defaultFetchConcurrency, now: time.Now}
}

// SetFetchConcurrency bounds parallel loads in list operations.
func (t *Tasks) SetFetchConcurrency(n int) {
	if n > 0 {
		t.concurrency = n
	}
}

// Create validates and stores a new pending task and returns its id.
func (t *Tasks) Create(ctx context.Context, in NewTask) (string, error) {
	task, err := t.build(in)
	if err != nil {
		return "", err
	}

	ctx = context.WithoutCancel(ctx)
	if err := blobstore.PutJSON(ctx, t.store, blobstore.Key(tasksCollection, task.TaskID), task); err != nil {
		return "", err
	}
	t.logger.WithFields(log.Fields{"task": task.TaskID, "members": len(task.AssignedMembers), "customers": len(task.Customers)}).Info("task created")
	t.publish(ctx, events.TaskCreated, task.TaskID, task)
	return task.TaskID, nil
}

func (t *Tasks) build(in NewTask) (domain.Task, error) {
	now := t.now().UTC()
	task := domain.Task{
		SchemaVersion: domain.SchemaVersion,
		TaskID:        uuid.NewString(),
		Category:      strings.TrimSpace(in.Category),
		Customers:     append([]domain.CustomerRef{}, in.Customers...),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		ProjectTitle:  strings.TrimSpace(in.ProjectTitle),
		Description:   strings.TrimSpace(in.Description),
		Script:        strings.TrimSpace(in.Script),
		Keywords:      strings.TrimSpace(in.Keywords),
		Status:        domain.StatusPending,
		AssignedDate:  now,
		DueDate:       in.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	if task.CustomerName == "" {
		task.CustomerName = CustomerLabel(in.Customers)
	}
	if in.AssignedDate != nil && !in.AssignedDate.IsZero() {
		task.AssignedDate = in.AssignedDate.UTC()
	}

	var missing []string
	if task.CustomerName == "" {
		missing = append(missing, "customerName")
	}
	if task.ProjectTitle == "" {
		missing = append(missing, "projectTitle")
	}
	if task.Description == "" {
		missing = append(missing, "description")
	}
	if task.Script == "" {
		missing = append(missing, "script")
	}
	if len(missing) > 0 {
		return domain.Task{}, fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}

	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return domain.Task{}, err
	}
	task.Priority = priority

	members, err := normalizeMembers(in.AssignedMembers, true)
	if err != nil {
		return domain.Task{}, err
	}
	task.AssignedMembers = members
	return task, nil
}

// CustomerLabel summarizes a customer selection for display.
func CustomerLabel(customers []domain.CustomerRef) string {
	switch len(customers) {
	case 0:
		return ""
	case 1:
		return customers[0].Name
	}
	return fmt.Sprintf("%s and %d more", customers[0].Name, len(customers)-1)
}

// normalizeMembers trims members and collapses duplicates by email.
func normalizeMembers(in []domain.Member, allowEmpty bool) ([]domain.Member, error) {
	out := []domain.Member{}
	seen := map[string]bool{}
	for i, m := range in {
		m.Name = strings.TrimSpace(m.Name)
		m.Email = strings.ToLower(strings.TrimSpace(m.Email))
		m.Skillset = strings.TrimSpace(m.Skillset)
		if m.Name == "" || m.Email == "" {
			return nil, fmt.Errorf("%w: member %d needs a name and an email", domain.ErrValidation, i+1)
		}
		if seen[m.Email] {
			continue
		}
		seen[m.Email] = true
		out = append(out, m)
	}
	if len(out) == 0 && !allowEmpty {
		return nil, fmt.Errorf("%w: at least one representative is required", domain.ErrValidation)
	}
	return out, nil
}

// Get loads a task.
func (t *Tasks) Get(ctx context.Context, taskID string) (domain.Task, error) {
	var task domain.Task
	err := blobstore.GetJSON(ctx, t.store, blobstore.Key(tasksCollection, taskID), &task)
	if errors.Is(err, blobstore.ErrNotFound) {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	return task, err
}

// Assign replaces the task's members wholesale.
func (t *Tasks) Assign(ctx context.Context, taskID string, members []domain.Member) (domain.Task, error) {
	normalized, err := normalizeMembers(members, false)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := t.mutate(ctx, taskID, func(task *domain.Task) error {
		if task.Status.Terminal() {
			return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidTransition, task.TaskID, task.Status)
		}
		task.AssignedMembers = normalized
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	t.publish(ctx, events.TaskAssigned, taskID, map[string]any{"assignedMembers": task.AssignedMembers})
	return task, nil
}

// TaskUpdate carries the editable content of an existing task. Category and
// Customers replace the current selection together, and only when Customers
// is non-empty.
type TaskUpdate struct {
	Category        string
	Customers       []domain.CustomerRef
	ProjectTitle    string
	Description     string
	Script          string
	Keywords        string
	Priority        string
	DueDate         *time.Time
	AssignedMembers []domain.Member
}

// Update rewrites a task's content and members in one locked write.
// Terminal tasks are not editable.
func (t *Tasks) Update(ctx context.Context, taskID string, in TaskUpdate) (domain.Task, error) {
	title := strings.TrimSpace(in.ProjectTitle)
	description := strings.TrimSpace(in.Description)
	script := strings.TrimSpace(in.Script)
	var missing []string
	if title == "" {
		missing = append(missing, "projectTitle")
	}
	if description == "" {
		missing = append(missing, "description")
	}
	if script == "" {
		missing = append(missing, "script")
	}
	if len(missing) > 0 {
		return domain.Task{}, fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return domain.Task{}, err
	}
	members, err := normalizeMembers(in.AssignedMembers, false)
	if err != nil {
		return domain.Task{}, err
	}

	task, err := t.mutate(ctx, taskID, func(task *domain.Task) error {
		if task.Status.Terminal() {
			return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidTransition, task.TaskID, task.Status)
		}
		if len(in.Customers) > 0 {
			task.Category = strings.TrimSpace(in.Category)
			task.Customers = append([]domain.CustomerRef{}, in.Customers...)
			task.CustomerName = CustomerLabel(in.Customers)
		}
		task.ProjectTitle = title
		task.Description = description
		task.Script = script
		task.Keywords = strings.TrimSpace(in.Keywords)
		task.Priority = priority
		task.DueDate = in.DueDate
		task.AssignedMembers = members
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	t.publish(ctx, events.TaskUpdated, taskID, task)
	return task, nil
}

// UpdateStatus moves the task to status following the forward-only rule.
func (t *Tasks) UpdateStatus(ctx context.Context, taskID string, status domain.Status) (domain.Task, error) {
	var from domain.Status
	task, err := t.mutate(ctx, taskID, func(task *domain.Task) error {
		from = task.Status
		return task.ApplyStatus(status)
	})
	if err != nil {
		return domain.Task{}, err
	}
	if from != status {
		t.publish(ctx, events.TaskStatusChanged, taskID, map[string]any{"from": from, "to": status})
	}
	return task, nil
}

// mutate runs a read-modify-write under the task's lock.
func (t *Tasks) mutate(ctx context.Context, taskID string, fn func(*domain.Task) error) (domain.Task, error) {
	ctx = context.WithoutCancel(ctx)
	key := blobstore.Key(tasksCollection, taskID)
	unlock, err := t.locks.Lock(ctx, key)
	if err != nil {
		return domain.Task{}, err
	}
	defer unlock()

	var task domain.Task
	err = blobstore.GetJSON(ctx, blobstore.Direct(t.store), key, &task)
	if errors.Is(err, blobstore.ErrNotFound) {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if err := fn(&task); err != nil {
		return domain.Task{}, err
	}
	task.SchemaVersion = domain.SchemaVersion
	task.UpdatedAt = t.now().UTC()
	task.Version++
	if err := blobstore.PutJSON(ctx, t.store, key, task); err != nil {
		return domain.Task{}, err
	}
	t.logger.WithFields(log.Fields{"task": taskID, "status": task.Status, "version": task.Version}).Debug("task updated")
	return task, nil
}

// ListAll returns every task, newest first.
func (t *Tasks) ListAll(ctx context.Context) ([]domain.Task, error) {
	keys, err := t.store.List(ctx, blobstore.Prefix(tasksCollection))
	if err != nil {
		return nil, err
	}
	tasks, err := fetchAll[domain.Task](ctx, t.store, keys, t.concurrency)
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)
	return tasks, nil
}

// ListByRepresentative returns the tasks assigned to a member with the given name, newest first.
func (t *Tasks) ListByRepresentative(ctx context.Context, name string) ([]domain.Task, error) {
	all, err := t.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Task{}
	for _, task := range all {
		if task.HasMember(name) {
			out = append(out, task)
		}
	}
	return out, nil
}

func sortTasks(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].TaskID < tasks[j].TaskID
	})
}

func (t *Tasks) publish(ctx context.Context, typ, taskID string, data any) {
	ev, err := events.New(typ, taskID, data)
	if err != nil {
		t.logger.WithFields(log.Fields{"task": taskID, "event": typ}).Errorf("encode event: %v", err)
		return
	}
	if err := t.events.Publish(ctx, ev); err != nil {
		t.logger.WithFields(log.Fields{"task": taskID, "event": typ}).Errorf("publish event: %v", err)
	}
}
