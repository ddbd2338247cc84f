package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/date"
)

func fourStepTemplate() TaskTemplate {
	return TaskTemplate{
		ID: "tpl",
		Subtasks: []Subtask{
			{ID: "s1", Title: "Open barn"},
			{ID: "s2", Title: "Feed"},
			{ID: "s3", Title: "Water"},
			{ID: "s4", Title: "Close barn"},
		},
	}
}

func TestDeriveStatus(t *testing.T) {
	today := date.MustParse("2024-01-10")
	tpl := fourStepTemplate()
	future := today.AddDays(3)
	past := today.AddDays(-1)

	cases := []struct {
		name    string
		done    []string
		due     date.Date
		status  Status
		percent int
	}{
		{"nothing done", nil, future, StatusPending, 0},
		{"one done", []string{"s1"}, future, StatusInProgress, 25},
		{"three done", []string{"s1", "s2", "s3"}, future, StatusInProgress, 75},
		{"all done", []string{"s4", "s3", "s2", "s1"}, future, StatusCompleted, 100},
		{"nothing done past due", nil, past, StatusOverdue, 0},
		{"partial past due", []string{"s2"}, past, StatusOverdue, 25},
		{"complete past due stays completed", []string{"s1", "s2", "s3", "s4"}, past, StatusCompleted, 100},
		{"due today is not overdue", nil, today, StatusPending, 0},
		{"stale ids ignored", []string{"gone", "s1"}, future, StatusInProgress, 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DeriveStatus(Assignment{CompletedSubtaskIDs: tc.done, DueDate: tc.due}, tpl, today)
			assert.Equal(t, tc.status, d.Status)
			assert.Equal(t, tc.percent, d.CompletionPercentage)
			for _, id := range d.CompletedSubtaskIDs {
				assert.True(t, tpl.HasSubtask(id), "derived id %q not in template", id)
			}
			assert.Equal(t, d.CompletionPercentage == 100, d.Status == StatusCompleted)
		})
	}
}

func TestDeriveStatusKeepsTemplateOrder(t *testing.T) {
	d := DeriveStatus(Assignment{CompletedSubtaskIDs: []string{"s3", "s1"}}, fourStepTemplate(), date.MustParse("2024-01-01"))
	assert.Equal(t, []string{"s1", "s3"}, d.CompletedSubtaskIDs)
}

func TestZeroSubtaskTemplateNeverCompletes(t *testing.T) {
	d := DeriveStatus(Assignment{CompletedSubtaskIDs: []string{"x"}}, TaskTemplate{}, date.MustParse("2024-01-01"))
	assert.Equal(t, 0, d.CompletionPercentage)
	assert.Equal(t, StatusPending, d.Status)
	assert.False(t, d.Complete())
}

func TestCompletionPercentageFloors(t *testing.T) {
	assert.Equal(t, 33, CompletionPercentage(1, 3))
	assert.Equal(t, 99, CompletionPercentage(199, 200))
	assert.Equal(t, 100, CompletionPercentage(3, 3))
	assert.Equal(t, 0, CompletionPercentage(0, 0))
}

func TestApplyMaintainsDates(t *testing.T) {
	today := date.MustParse("2024-01-10")
	tpl := fourStepTemplate()
	a := Assignment{DueDate: today.AddDays(5), Status: StatusPending}

	a.CompletedSubtaskIDs = []string{"s1", "s2", "s3", "s4"}
	a, changed := DeriveStatus(a, tpl, today).Apply(a, today)
	require.True(t, changed)
	require.NotNil(t, a.StartedDate)
	require.NotNil(t, a.CompletedDate)
	assert.Equal(t, "2024-01-10", a.CompletedDate.String())

	later := today.AddDays(1)
	a.CompletedSubtaskIDs = ToggleID(a.CompletedSubtaskIDs, "s4")
	a, changed = DeriveStatus(a, tpl, later).Apply(a, later)
	assert.True(t, changed)
	assert.Nil(t, a.CompletedDate)
	assert.Equal(t, "2024-01-10", a.StartedDate.String())
	assert.Equal(t, StatusInProgress, a.Status)
	assert.Equal(t, 75, a.CompletionPercentage)

	_, changed = DeriveStatus(a, tpl, later).Apply(a, later)
	assert.False(t, changed)
}

func TestToggleIDIsInvolution(t *testing.T) {
	ids := []string{"a", "b"}
	once := ToggleID(ids, "c")
	assert.Equal(t, []string{"a", "b", "c"}, once)
	assert.Equal(t, ids, ToggleID(once, "c"))
	assert.Equal(t, []string{"b"}, ToggleID(ids, "a"))
}

func TestWorkerStatsCount(t *testing.T) {
	var s WorkerStats
	for _, st := range []Status{StatusCompleted, StatusInProgress, StatusOverdue, StatusPending} {
		s.Count(st)
	}
	assert.Equal(t, WorkerStats{Total: 4, Completed: 1, InProgress: 1, Overdue: 1, Pending: 1, CompletionRatePercent: 25}, s)
}

func TestParseEnums(t *testing.T) {
	c, err := ParseCategory("one-time")
	require.NoError(t, err)
	assert.Equal(t, CategoryOneTime, c)
	_, err = ParseCategory("hourly")
	assert.Error(t, err)

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
	_, err = ParseStatus("done")
	assert.Error(t, err)
	st, err := ParseStatus("in-progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)
}
