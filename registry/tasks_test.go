package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-portal/blobstore"
	"sales-portal/domain"
	"sales-portal/events"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) Types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

type failingStore struct{ *blobstore.Memory }

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.Join(domain.ErrUpstream, errors.New("disk full"))
}

func newTasks(t *testing.T) (*Tasks, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	return NewTasks(blobstore.NewMemory(), blobstore.NewLocalLocker(), pub, nil), pub
}

func minimalTask() NewTask {
	return NewTask{ProjectTitle: "T1", Description: "d", Script: "s", CustomerName: "x"}
}

var ann = domain.Member{Name: "Ann", Email: "ann@x.com", Skillset: "retail"}

func TestCreateThenListAll(t *testing.T) {
	ctx := context.Background()
	tasks, pub := newTasks(t)

	id, err := tasks.Create(ctx, minimalTask())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all, err := tasks.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, id, got.TaskID)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.PriorityMedium, got.Priority)
	assert.Equal(t, domain.SchemaVersion, got.SchemaVersion)
	assert.False(t, got.AssignedDate.IsZero())
	assert.Empty(t, got.AssignedMembers)
	assert.Equal(t, []string{events.TaskCreated}, pub.Types())
}

func TestCreateValidation(t *testing.T) {
	tasks, _ := newTasks(t)
	_, err := tasks.Create(context.Background(), NewTask{ProjectTitle: "T"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	for _, field := range []string{"customerName", "description", "script"} {
		assert.Contains(t, err.Error(), field)
	}

	in := minimalTask()
	in.Priority = "whenever"
	_, err = tasks.Create(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateDerivesCustomerNameAndKeepsAssignedDate(t *testing.T) {
	ctx := context.Background()
	tasks, _ := newTasks(t)
	assigned := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	in := minimalTask()
	in.CustomerName = ""
	in.Customers = []domain.CustomerRef{{ID: "1", Name: "Ann"}, {ID: "2", Name: "Bob"}}
	in.AssignedDate = &assigned
	in.AssignedMembers = []domain.Member{ann, {Name: "Ann Again", Email: "ANN@x.com"}}

	id, err := tasks.Create(ctx, in)
	require.NoError(t, err)
	got, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann and 1 more", got.CustomerName)
	assert.True(t, got.AssignedDate.Equal(assigned))
	assert.Len(t, got.AssignedMembers, 1, "duplicate emails collapse")
}

func TestGetMissing(t *testing.T) {
	tasks, _ := newTasks(t)
	_, err := tasks.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssignReplacesMembers(t *testing.T) {
	ctx := context.Background()
	tasks, pub := newTasks(t)
	in := minimalTask()
	in.AssignedMembers = []domain.Member{ann}
	id, err := tasks.Create(ctx, in)
	require.NoError(t, err)

	bob := domain.Member{Name: "Bob", Email: "bob@x.com"}
	got, err := tasks.Assign(ctx, id, []domain.Member{bob})
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{bob}, got.AssignedMembers)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, []string{events.TaskCreated, events.TaskAssigned}, pub.Types())

	_, err = tasks.Assign(ctx, id, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = tasks.Assign(ctx, "missing", []domain.Member{bob})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateRewritesContent(t *testing.T) {
	ctx := context.Background()
	tasks, pub := newTasks(t)
	id, err := tasks.Create(ctx, minimalTask())
	require.NoError(t, err)

	got, err := tasks.Update(ctx, id, TaskUpdate{
		ProjectTitle:    " New ",
		Description:     "d2",
		Script:          "s2",
		Keywords:        "k",
		Priority:        "high",
		AssignedMembers: []domain.Member{ann},
	})
	require.NoError(t, err)
	assert.Equal(t, "New", got.ProjectTitle)
	assert.Equal(t, "s2", got.Script)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, "x", got.CustomerName, "customers kept when none are given")
	assert.Equal(t, []domain.Member{ann}, got.AssignedMembers)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, []string{events.TaskCreated, events.TaskUpdated}, pub.Types())

	_, err = tasks.Update(ctx, id, TaskUpdate{ProjectTitle: "t", Description: "d", AssignedMembers: []domain.Member{ann}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = tasks.Update(ctx, id, TaskUpdate{ProjectTitle: "t", Description: "d", Script: "s", Priority: "whenever", AssignedMembers: []domain.Member{ann}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = tasks.UpdateStatus(ctx, id, domain.StatusCompleted)
	require.NoError(t, err)
	_, err = tasks.Update(ctx, id, TaskUpdate{ProjectTitle: "t", Description: "d", Script: "s", AssignedMembers: []domain.Member{ann}})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	ctx := context.Background()
	tasks, pub := newTasks(t)
	id, err := tasks.Create(ctx, minimalTask())
	require.NoError(t, err)

	_, err = tasks.UpdateStatus(ctx, id, domain.StatusInProgress)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending tasks need members before starting")

	_, err = tasks.Assign(ctx, id, []domain.Member{ann})
	require.NoError(t, err)
	_, err = tasks.UpdateStatus(ctx, id, domain.StatusInProgress)
	require.NoError(t, err)
	got, err := tasks.UpdateStatus(ctx, id, domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	_, err = tasks.UpdateStatus(ctx, id, domain.StatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = tasks.UpdateStatus(ctx, id, domain.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "completed is terminal")
	_, err = tasks.Assign(ctx, id, []domain.Member{ann})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "terminal tasks cannot be reassigned")

	stored, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, []string{events.TaskCreated, events.TaskAssigned, events.TaskStatusChanged, events.TaskStatusChanged}, pub.Types())
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()
	tasks, _ := newTasks(t)

	pendingID, err := tasks.Create(ctx, minimalTask())
	require.NoError(t, err)
	got, err := tasks.UpdateStatus(ctx, pendingID, domain.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)

	in := minimalTask()
	in.AssignedMembers = []domain.Member{ann}
	startedID, err := tasks.Create(ctx, in)
	require.NoError(t, err)
	_, err = tasks.UpdateStatus(ctx, startedID, domain.StatusInProgress)
	require.NoError(t, err)
	_, err = tasks.UpdateStatus(ctx, startedID, domain.StatusCancelled)
	require.NoError(t, err)

	_, err = tasks.UpdateStatus(ctx, startedID, domain.StatusInProgress)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	tasks, _ := newTasks(t)
	in := minimalTask()
	in.AssignedMembers = []domain.Member{ann}
	id, err := tasks.Create(ctx, in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = tasks.Assign(ctx, id, []domain.Member{ann})
		}()
		go func() {
			defer wg.Done()
			_, _ = tasks.UpdateStatus(ctx, id, domain.StatusInProgress)
		}()
	}
	wg.Wait()

	got, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status, "status change must survive concurrent assigns")
	assert.Equal(t, int64(21), got.Version)
}

func TestMutationIgnoresStaleCachedCopy(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := blobstore.NewMemory()
	tasks := NewTasks(blobstore.NewCache(base, client, time.Minute), blobstore.NewLocalLocker(), &capturePublisher{}, nil)
	id, err := tasks.Create(ctx, minimalTask())
	require.NoError(t, err)

	key := blobstore.Key(tasksCollection, id)
	stale, err := base.Get(ctx, key)
	require.NoError(t, err)
	_, err = tasks.Assign(ctx, id, []domain.Member{ann})
	require.NoError(t, err)
	// A slow reader that started before Assign left the old copy in Redis.
	require.NoError(t, mr.Set("blob:"+key, string(stale)))

	_, err = tasks.UpdateStatus(ctx, id, domain.StatusInProgress)
	require.NoError(t, err)

	var stored domain.Task
	require.NoError(t, blobstore.GetJSON(ctx, base, key, &stored))
	assert.Equal(t, domain.StatusInProgress, stored.Status)
	assert.Equal(t, []domain.Member{ann}, stored.AssignedMembers)
}

func TestListOrderingAndByRepresentative(t *testing.T) {
	ctx := context.Background()
	tasks, _ := newTasks(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	step := 0
	tasks.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Hour)
	}

	bob := domain.Member{Name: "Bob", Email: "bob@x.com"}
	first := minimalTask()
	first.AssignedMembers = []domain.Member{ann}
	second := minimalTask()
	second.AssignedMembers = []domain.Member{ann, bob}
	third := minimalTask()
	third.AssignedMembers = []domain.Member{bob}

	id1, err := tasks.Create(ctx, first)
	require.NoError(t, err)
	id2, err := tasks.Create(ctx, second)
	require.NoError(t, err)
	id3, err := tasks.Create(ctx, third)
	require.NoError(t, err)

	all, err := tasks.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{id3, id2, id1}, []string{all[0].TaskID, all[1].TaskID, all[2].TaskID})

	annTasks, err := tasks.ListByRepresentative(ctx, " ann ")
	require.NoError(t, err)
	require.Len(t, annTasks, 2)
	assert.Equal(t, id2, annTasks[0].TaskID)
	assert.Equal(t, id1, annTasks[1].TaskID)

	none, err := tasks.ListByRepresentative(ctx, "Carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreateSurfacesStoreFailure(t *testing.T) {
	tasks := NewTasks(failingStore{blobstore.NewMemory()}, nil, nil, nil)
	_, err := tasks.Create(context.Background(), minimalTask())
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestSnapshotSemantics(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	reps := NewRepresentatives(store, nil)
	tasks := NewTasks(store, nil, nil, nil)

	_, err := reps.Upsert(ctx, domain.Representative{Name: "Ann", Email: "ann@x.com", Skillset: "retail"})
	require.NoError(t, err)
	members, err := reps.Members(ctx, []string{"ann@x.com"})
	require.NoError(t, err)

	in := minimalTask()
	in.AssignedMembers = members
	id, err := tasks.Create(ctx, in)
	require.NoError(t, err)

	_, err = reps.Upsert(ctx, domain.Representative{Name: "Ann Renamed", Email: "ann@x.com", Skillset: "b2b"})
	require.NoError(t, err)

	got, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.AssignedMembers[0].Name)
	assert.Equal(t, "retail", got.AssignedMembers[0].Skillset)
}
