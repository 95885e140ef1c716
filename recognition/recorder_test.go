package recognition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	events []AttendanceEvent
}

func (c *captureNotifier) AttendanceRecorded(ev AttendanceEvent) {
	c.events = append(c.events, ev)
}

func at(hh, mm, ss int) time.Time {
	return time.Date(2024, 1, 1, hh, mm, ss, 0, time.Local)
}

func TestRecordIfDueNoDedupRecordsEveryCall(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rec := NewRecorder(store)

	for _, now := range []time.Time{at(9, 0, 0), at(9, 0, 0), at(9, 0, 1)} {
		ok, err := rec.RecordIfDue(ctx, 1, "Ann", now)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	events := store.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "2024-01-01", events[0].Date)
	assert.Equal(t, "09:00:00", events[0].Time)
	assert.Equal(t, "09:00:01", events[2].Time)
}

func TestRecordIfDueDaily(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rec := NewRecorder(store, WithDedup(DedupDaily, 0))

	ok, err := rec.RecordIfDue(ctx, 1, "Ann", at(9, 0, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rec.RecordIfDue(ctx, 1, "Ann", at(15, 30, 0))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rec.RecordIfDue(ctx, 2, "Bob", at(15, 30, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rec.RecordIfDue(ctx, 1, "Ann", at(9, 0, 0).AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, store.Events(), 3)
}

func TestRecordIfDueDailySeesEarlierRows(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	require.NoError(t, store.AppendAttendance(ctx, NewAttendanceEvent(1, "Ann", at(8, 0, 0))))

	rec := NewRecorder(store, WithDedup(DedupDaily, 0))
	ok, err := rec.RecordIfDue(ctx, 1, "Ann", at(10, 0, 0))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, store.Events(), 1)
}

func TestRecordIfDueCooldown(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rec := NewRecorder(store, WithDedup(DedupCooldown, time.Minute))

	steps := []struct {
		now  time.Time
		want bool
	}{
		{at(9, 0, 0), true},
		{at(9, 0, 30), false},
		{at(9, 0, 59), false},
		{at(9, 1, 0), true},
		{at(9, 1, 10), false},
	}
	for _, s := range steps {
		ok, err := rec.RecordIfDue(ctx, 1, "Ann", s.now)
		require.NoError(t, err)
		assert.Equal(t, s.want, ok, "at %s", s.now.Format(TimeLayout))
	}
	assert.Len(t, store.Events(), 2)
}

func TestRecordIfDueStorageFailureDoesNotAdvanceDedup(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	rec := NewRecorder(store, WithDedup(DedupDaily, 0))

	store.failAdd = true
	ok, err := rec.RecordIfDue(ctx, 1, "Ann", at(9, 0, 0))
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.False(t, ok)

	store.failAdd = false
	ok, err = rec.RecordIfDue(ctx, 1, "Ann", at(9, 0, 1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordIfDueNotifies(t *testing.T) {
	ctx := context.Background()
	n := &captureNotifier{}
	rec := NewRecorder(newMemStore(), WithNotifier(n))

	_, err := rec.RecordIfDue(ctx, 3, "Cy", at(12, 0, 0))
	require.NoError(t, err)
	require.Len(t, n.events, 1)
	assert.Equal(t, int64(3), n.events[0].IdentityID)
	assert.Equal(t, "12:00:00", n.events[0].Time)
}

func TestParseDedupPolicy(t *testing.T) {
	for in, want := range map[string]DedupPolicy{"": DedupNone, "none": DedupNone, "Daily": DedupDaily, "cooldown": DedupCooldown} {
		got, err := ParseDedupPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDedupPolicy("hourly")
	assert.Error(t, err)
}
