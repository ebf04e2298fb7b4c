package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_ListOrderAndFilters(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []Task{
		{Title: "old", Status: StatusPending, Priority: 1, CreatedAt: base, UpdatedAt: base},
		{Title: "tie-a", Status: StatusCompleted, Priority: 3, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)},
		{Title: "tie-b", Status: StatusCompleted, Priority: 1, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)},
	}
	for _, task := range seed {
		_, err := repo.Create(ctx, task)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"tie-b", "tie-a", "old"}, []string{all[0].Title, all[1].Title, all[2].Title})

	status := StatusCompleted
	priority := 1
	filtered, err := repo.List(ctx, Filter{Status: &status, Priority: &priority})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "tie-b", filtered[0].Title)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	due := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	created, err := repo.Create(ctx, Task{Title: "a", DueDate: &due})
	require.NoError(t, err)
	*created.DueDate = due.AddDate(1, 0, 0)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.DueDate.Equal(due))
}

func TestMemoryRepository_UpdateReturnsPreviousState(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	created, err := repo.Create(ctx, Task{Title: "a", Priority: 1})
	require.NoError(t, err)

	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	res, err := repo.Update(ctx, created.ID, Changes{SetDueDate: true, DueDate: &due}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, res.Previous.DueDate)
	require.NotNil(t, res.Current.DueDate)
	assert.True(t, DueDateChanged(res.Previous.DueDate, res.Current.DueDate))

	_, err = repo.Update(ctx, 99, Changes{}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDueDateChanged(t *testing.T) {
	a := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	sameInstant := a.In(time.FixedZone("X", 3600))
	b := a.Add(time.Minute)

	assert.False(t, DueDateChanged(nil, nil))
	assert.True(t, DueDateChanged(nil, &a))
	assert.True(t, DueDateChanged(&a, nil))
	assert.False(t, DueDateChanged(&a, &sameInstant))
	assert.True(t, DueDateChanged(&a, &b))
}

func TestOptional_DistinguishesNullFromAbsent(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"due_date":null,"priority":4}`), &p))
	assert.True(t, p.DueDate.Set)
	assert.Nil(t, p.DueDate.Value)
	assert.True(t, p.Priority.Set)
	assert.Equal(t, 4, *p.Priority.Value)
	assert.False(t, p.Title.Set)
	assert.False(t, p.Empty())

	var empty Patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.Empty())

	assert.Error(t, json.Unmarshal([]byte(`{"priority":"high"}`), &p))
}
