package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollWorkqueue(t *testing.T) {
	tests := []struct {
		name         string
		items        []string
		getError     error
		processError error
		updateError  error
		returnNil    bool
		expectResult bool
	}{
		{
			name:         "processes an item",
			items:        []string{"run-1"},
			expectResult: true,
		},
		{
			name:         "queue drained",
			items:        []string{},
			expectResult: false,
		},
		{
			name:         "get error",
			getError:     errors.New("db error"),
			expectResult: false,
		},
		{
			name:         "failed item still advances",
			items:        []string{"run-1"},
			processError: errors.New("scenario failed"),
			expectResult: true,
		},
		{
			name:         "update error stops the batch",
			items:        []string{"run-1"},
			updateError:  errors.New("update error"),
			expectResult: false,
		},
		{
			name:         "nil item",
			returnNil:    true,
			expectResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wq := &fakeQueue{
				items:        tt.items,
				getError:     tt.getError,
				processError: tt.processError,
				updateError:  tt.updateError,
				returnNil:    tt.returnNil,
			}
			assert.Equal(t, tt.expectResult, PollWorkqueue[any]("test", wq)(context.Background()))
			if tt.expectResult {
				assert.Equal(t, []bool{tt.processError == nil}, wq.updates)
			}
		})
	}
}

func TestPollWorkqueueRateLimited(t *testing.T) {
	wq := &fakeQueue{items: []string{"a", "b"}}
	poll := PollWorkqueue("test", WithRateLimiting[any](wq, 150*time.Millisecond))

	start := time.Now()
	assert.True(t, poll(t.Context()))
	assert.True(t, poll(t.Context()))
	assert.False(t, poll(t.Context()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	proc := Poll(10*time.Millisecond, func(ctx context.Context) bool {
		if calls.Add(1) >= 3 {
			cancel()
		}
		return false
	})

	err := proc(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestJitter(t *testing.T) {
	for range 100 {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestCleanup(t *testing.T) {
	database := db.OpenTest(t)
	_, err := database.Exec("CREATE TABLE things (created INTEGER NOT NULL)")
	require.NoError(t, err)
	_, err = database.Exec("INSERT INTO things (created) VALUES (?), (?)", time.Now().Add(-time.Hour).Unix(), time.Now().Unix())
	require.NoError(t, err)

	fn := Cleanup(database, "things", "DELETE FROM things WHERE created < ?", time.Now().Add(-time.Minute).Unix())
	assert.False(t, fn(t.Context()))

	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM things").Scan(&n))
	assert.Equal(t, 1, n)
}

type fakeQueue struct {
	items        []string
	current      int
	getError     error
	processError error
	updateError  error
	returnNil    bool
	updates      []bool
}

func (f *fakeQueue) GetItem(ctx context.Context) (any, error) {
	if f.returnNil {
		return nil, nil
	}
	if f.getError != nil {
		return "", f.getError
	}
	if f.current >= len(f.items) {
		return "", sql.ErrNoRows
	}
	item := f.items[f.current]
	f.current++
	return item, nil
}

func (f *fakeQueue) ProcessItem(ctx context.Context, item any) error { return f.processError }

func (f *fakeQueue) UpdateItem(ctx context.Context, item any, ok bool) error {
	f.updates = append(f.updates, ok)
	return f.updateError
}
