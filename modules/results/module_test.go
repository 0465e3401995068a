package results

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/TheLab-ms/innkeeper/scenario"
)

func newResult(name string, passed bool, started time.Time) *scenario.Result {
	res := &scenario.Result{
		ID:       uuid.New(),
		Scenario: name,
		Passed:   passed,
		Started:  started,
		Duration: 1500 * time.Millisecond,
		Checks:   []scenario.Check{{Name: "open home", Passed: true}},
	}
	if !passed {
		res.Message = "booking for Jane Doe not found"
		res.Checks = append(res.Checks, scenario.Check{Name: "booking in report", Message: res.Message})
	}
	return res
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	m := New(db.OpenTest(t), time.Hour)
	now := time.Now().Truncate(time.Millisecond)

	first := newResult(scenario.ReservationName, true, now.Add(-2*time.Minute))
	second := newResult(scenario.ReservationName, false, now.Add(-time.Minute))
	third := newResult(scenario.SweepName, true, now)
	for _, res := range []*scenario.Result{first, second, third} {
		require.NoError(t, m.Save(ctx, res))
	}
	assert.Error(t, m.Save(ctx, first), "duplicate id")

	got, err := m.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Scenario, got.Scenario)
	assert.False(t, got.Passed)
	assert.Equal(t, second.Message, got.Message)
	assert.Equal(t, second.Checks, got.Checks)
	assert.True(t, second.Started.Equal(got.Started))
	assert.Equal(t, second.Duration, got.Duration)

	_, err = m.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := m.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[2].ID)

	byName, err := m.List(ctx, Filter{Scenario: scenario.ReservationName, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, second.ID, byName[0].ID)

	passed := true
	ok, err := m.List(ctx, Filter{Passed: &passed})
	require.NoError(t, err)
	assert.Len(t, ok, 2)

	none, err := m.List(ctx, Filter{Scenario: "checkout"})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	d := db.OpenTest(t)
	m := New(d, time.Hour)

	require.NoError(t, m.Save(ctx, newResult(scenario.ReservationName, true, time.Now().Add(-2*time.Hour))))
	fresh := newResult(scenario.ReservationName, true, time.Now())
	require.NoError(t, m.Save(ctx, fresh))

	mgr := &engine.ProcMgr{}
	m.AttachWorkers(mgr)
	assert.Equal(t, 1, mgr.Len())

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		var n int
		d.QueryRow("SELECT COUNT(*) FROM results").Scan(&n)
		return n == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	_, err := m.Get(context.Background(), fresh.ID)
	assert.NoError(t, err)
}

func TestRoutes(t *testing.T) {
	m := New(db.OpenTest(t), time.Hour)
	router := engine.NewRouter(nil)
	m.AttachRoutes(router)
	svr := httptest.NewServer(router)
	defer svr.Close()
	e := httpexpect.Default(t, svr.URL)

	e.GET("/api/results").Expect().Status(200).JSON().Array().IsEmpty()

	res := newResult(scenario.ReservationName, false, time.Now())
	require.NoError(t, m.Save(context.Background(), res))
	require.NoError(t, m.Save(context.Background(), newResult(scenario.SweepName, true, time.Now())))

	list := e.GET("/api/results").WithQuery("scenario", scenario.ReservationName).
		Expect().Status(200).JSON().Array()
	list.Length().IsEqual(1)
	obj := list.Value(0).Object()
	obj.Value("id").String().IsEqual(res.ID.String())
	obj.Value("passed").Boolean().IsFalse()
	obj.Value("message").String().IsEqual("booking for Jane Doe not found")
	obj.Value("checks").Array().Length().IsEqual(2)

	e.GET("/api/results").WithQuery("passed", "true").Expect().Status(200).JSON().Array().Length().IsEqual(1)
	e.GET("/api/results").WithQuery("limit", "0").Expect().Status(400)
	e.GET("/api/results").WithQuery("passed", "maybe").Expect().Status(400)

	e.GET("/api/results/" + res.ID.String()).Expect().Status(200).
		JSON().Object().Value("scenario").String().IsEqual(scenario.ReservationName)
	e.GET("/api/results/" + uuid.NewString()).Expect().Status(404)
	e.GET("/api/results/nope").Expect().Status(400)
}
