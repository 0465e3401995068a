package scenario

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheLab-ms/innkeeper/engine/browser"
	"github.com/TheLab-ms/innkeeper/modules/hotelsite"
	"github.com/TheLab-ms/innkeeper/pages"
	"github.com/TheLab-ms/innkeeper/settings"
)

func testSettings(baseURL string) *settings.Settings {
	s := settings.Default()
	s.BaseURL = baseURL
	s.Engine = browser.EngineStatic
	s.Auth = settings.Auth{Username: "admin", Password: "password"}
	s.Timeouts = settings.Timeouts{
		Element:    settings.Duration(time.Second),
		URL:        settings.Duration(200 * time.Millisecond),
		Settle:     settings.Duration(200 * time.Millisecond),
		Navigation: settings.Duration(5 * time.Second),
		Scenario:   settings.Duration(20 * time.Second),
	}
	return s
}

func newOrchestrator(t *testing.T, l browser.Launcher, s *settings.Settings) *Orchestrator {
	c, err := pages.LoadContract(pages.DefaultContract)
	require.NoError(t, err)
	return newOrchestratorWith(t, l, s, c)
}

func newOrchestratorWith(t *testing.T, l browser.Launcher, s *settings.Settings, c *pages.Contract) *Orchestrator {
	o, err := New(l, s, c)
	require.NoError(t, err)
	return o
}

func testPayload(t *testing.T) *pages.Payload {
	p, err := LoadPayload(filepath.Join("testdata", "payload.json"))
	require.NoError(t, err)
	return p
}

func TestReservation(t *testing.T) {
	svr, site := hotelsite.NewTestServer(t, "admin", "password")
	o := newOrchestrator(t, &browser.StaticLauncher{}, testSettings(svr.URL))

	res := o.Run(context.Background(), Reservation(testPayload(t)))
	assert.True(t, res.Passed, res.Message)
	assert.Empty(t, res.Message)
	assert.Equal(t, ReservationName, res.Scenario)
	assert.Empty(t, res.Failed())
	assert.Equal(t, "booking in report", res.Checks[len(res.Checks)-1].Name)
	assert.Positive(t, res.Duration)

	bookings, err := site.ListBookings(context.Background())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "Jane", bookings[0].FirstName)
	assert.Equal(t, "Doe", bookings[0].LastName)
	assert.Equal(t, 2, bookings[0].RoomID)
}

func TestReservationBookingMissing(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	c, err := pages.LoadContract(pages.DefaultContract)
	require.NoError(t, err)
	c.Room.Confirmation = "" // let the refused submission through to the report
	o := newOrchestratorWith(t, &browser.StaticLauncher{}, testSettings(svr.URL), c)

	// Names outside 2 to 30 characters are refused by the site, so no booking is stored.
	p := pages.NewPayload()
	p.Set("first_name", "J")
	p.Set("last_name", "D")

	res := o.Run(context.Background(), Reservation(p))
	assert.False(t, res.Passed)
	assert.Equal(t, "booking for J D not found", res.Message)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "booking in report", failed[0].Name)
}

func TestReservationTimesOutWaitingForReport(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	c, err := pages.LoadContract(pages.DefaultContract)
	require.NoError(t, err)
	c.Report.Event = ".no-such-entry"
	s := testSettings(svr.URL)
	s.Timeouts.Settle = settings.Duration(time.Minute)
	s.Timeouts.Scenario = settings.Duration(2 * time.Second)
	o := newOrchestratorWith(t, &browser.StaticLauncher{}, s, c)

	res := o.Run(context.Background(), Reservation(testPayload(t)))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "scenario timed out after 2s")
	assert.Contains(t, res.Message, "waiting for booking for Jane Doe in report")
	assert.NotContains(t, res.Message, "not found")
	assert.Less(t, res.Duration, 10*time.Second)

	for _, check := range res.Checks {
		assert.NotEqual(t, "booking in report", check.Name)
	}
}

func TestReservationWrongCredentials(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	s := testSettings(svr.URL)
	s.Auth.Password = "nope"
	o := newOrchestrator(t, &browser.StaticLauncher{}, s)

	res := o.Run(context.Background(), Reservation(testPayload(t)))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "admin login")

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "admin login", failed[0].Name)
}

func TestInvalidLoginSweep(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	o := newOrchestrator(t, &browser.StaticLauncher{}, testSettings(svr.URL))

	creds, err := LoadCredentials(filepath.Join("testdata", "invalid_passwords.json"), "admin")
	require.NoError(t, err)
	creds.Passwords = append(creds.Passwords, "")

	res := o.Run(context.Background(), InvalidLoginSweep(creds))
	assert.True(t, res.Passed, res.Message)
	require.Len(t, res.Checks, 1+len(creds.Passwords))
	assert.Equal(t, "reject password 5 of 5", res.Checks[5].Name)
}

func TestInvalidLoginSweepWrongErrorText(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	s := testSettings(svr.URL)
	s.Sweep.ExpectedError = "Account locked"
	o := newOrchestrator(t, &browser.StaticLauncher{}, s)

	res := o.Run(context.Background(), InvalidLoginSweep(Credentials{Username: "admin", Passwords: []string{"a", "b"}}))
	assert.False(t, res.Passed)
	assert.Len(t, res.Failed(), 2, "every attempt is checked")
	assert.Equal(t, `expected login error containing "Account locked", got "Invalid credentials"`, res.Message)
}

func TestInvalidLoginSweepAcceptedPassword(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	o := newOrchestrator(t, &browser.StaticLauncher{}, testSettings(svr.URL))

	res := o.Run(context.Background(), InvalidLoginSweep(Credentials{Username: "admin", Passwords: []string{"password"}}))
	assert.False(t, res.Passed)
	assert.Equal(t, "login succeeded for admin", res.Message)
}

func TestInvalidLoginSweepRateLimit(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	s := testSettings(svr.URL)
	s.Sweep.AttemptsPerSecond = 10
	o := newOrchestrator(t, &browser.StaticLauncher{}, s)

	start := time.Now()
	res := o.Run(context.Background(), InvalidLoginSweep(Credentials{Username: "admin", Passwords: []string{"a", "b", "c"}}))
	assert.True(t, res.Passed, res.Message)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRunAll(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	o := newOrchestrator(t, &browser.StaticLauncher{}, testSettings(svr.URL))

	results := o.RunAll(context.Background(),
		InvalidLoginSweep(Credentials{Username: "admin", Passwords: []string{"x"}}),
		Reservation(testPayload(t)),
	)
	require.Len(t, results, 2)
	assert.Equal(t, SweepName, results[0].Scenario)
	assert.Equal(t, ReservationName, results[1].Scenario)
	for _, res := range results {
		assert.True(t, res.Passed, res.Message)
	}
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestRunClock(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	c, err := pages.LoadContract(pages.DefaultContract)
	require.NoError(t, err)

	start := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	o, err := New(&browser.StaticLauncher{}, testSettings(svr.URL), c, WithClock(clock), WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	res := o.Run(context.Background(), Scenario{Name: "noop", Body: func(ctx context.Context, s *Session) error { return nil }})
	assert.True(t, res.Passed, res.Message)
	assert.Equal(t, start.Add(time.Second), res.Started)
	assert.Equal(t, time.Second, res.Duration)
}

// countingLauncher wraps the static engine and counts the sessions still open.
type countingLauncher struct {
	browser.StaticLauncher
	open     atomic.Int32
	launched atomic.Int32
}

func (c *countingLauncher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	sess, err := c.StaticLauncher.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.launched.Add(1)
	c.open.Add(1)
	return &countedSession{Session: sess, open: &c.open}, nil
}

type countedSession struct {
	browser.Session
	open *atomic.Int32
	once sync.Once
}

func (s *countedSession) Close() error {
	s.once.Do(func() { s.open.Add(-1) })
	return s.Session.Close()
}

func TestTeardown(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	l := &countingLauncher{}
	o := newOrchestrator(t, l, testSettings(svr.URL))

	tests := []struct {
		name    string
		body    func(context.Context, *Session) error
		passed  bool
		message string
	}{
		{
			name:   "pass",
			body:   func(ctx context.Context, s *Session) error { return s.Step(ctx, "open home", s.Home.Open) },
			passed: true,
		},
		{
			name:    "error",
			body:    func(ctx context.Context, s *Session) error { return errors.New("boom") },
			message: "boom",
		},
		{
			name:    "assertion",
			body:    func(ctx context.Context, s *Session) error { return Failf("thing", "thing was %d", 3) },
			message: "thing was 3",
		},
		{
			name:    "panic",
			body:    func(ctx context.Context, s *Session) error { panic("kaboom") },
			message: "scenario panicked: kaboom",
		},
		{
			name: "failed check",
			body: func(ctx context.Context, s *Session) error {
				s.Expect("soft", false, "soft failure")
				return nil
			},
			message: "soft failure",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := o.Run(context.Background(), Scenario{Name: tc.name, Body: tc.body})
			assert.Equal(t, tc.passed, res.Passed)
			assert.Equal(t, tc.message, res.Message)
			assert.Zero(t, l.open.Load(), "session left open")
		})
	}
	assert.Equal(t, int32(len(tests)), l.launched.Load())
}

func TestScenarioTimeout(t *testing.T) {
	svr, _ := hotelsite.NewTestServer(t, "admin", "password")
	s := testSettings(svr.URL)
	s.Timeouts.Scenario = settings.Duration(50 * time.Millisecond)
	l := &countingLauncher{}
	o := newOrchestrator(t, l, s)

	res := o.Run(context.Background(), Scenario{Name: "slow", Body: func(ctx context.Context, s *Session) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "scenario timed out after 50ms")
	assert.Zero(t, l.open.Load())
}

func TestLaunchFailure(t *testing.T) {
	l := browser.LauncherFunc(func(ctx context.Context, opts browser.Options) (browser.Session, error) {
		return nil, errors.New("no chromium")
	})
	o := newOrchestrator(t, l, testSettings("http://localhost:1"))

	res := o.Run(context.Background(), Reservation(testPayload(t)))
	assert.False(t, res.Passed)
	assert.Equal(t, "launching browser: no chromium", res.Message)
	assert.Empty(t, res.Checks)
}

func TestNewErrors(t *testing.T) {
	c, err := pages.LoadContract(pages.DefaultContract)
	require.NoError(t, err)

	_, err = New(nil, testSettings("http://localhost"), c)
	assert.Error(t, err)

	_, err = New(&browser.StaticLauncher{}, settings.Default(), c)
	var ce *settings.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	_, err = New(&browser.StaticLauncher{}, testSettings("http://localhost"), nil)
	assert.Error(t, err)
}

func TestFixtures(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		return path
	}

	p := testPayload(t)
	assert.Equal(t, []string{"first_name", "last_name", "email", "phone"}, p.Keys())
	assert.Equal(t, "Jane Doe", p.FullName())

	for name, body := range map[string]string{
		"empty.json":    `{}`,
		"nolast.json":   `{"first_name": "Jane"}`,
		"array.json":    `["Jane"]`,
		"numbers.json":  `{"first_name": "Jane", "last_name": 7}`,
		"noperson.json": `{"email": "jane@example.com"}`,
	} {
		_, err := LoadPayload(write(name, body))
		var fe *FixtureError
		assert.ErrorAs(t, err, &fe, name)
	}

	_, err := LoadPayload(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	creds, err := LoadCredentials(filepath.Join("testdata", "invalid_passwords.json"), "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", creds.Username)
	assert.Len(t, creds.Passwords, 4)

	for name, body := range map[string]string{
		"none.json":  `{"invalidPasswords": []}`,
		"wrong.json": `{"invalidPasswords": "abc"}`,
		"other.json": `{"passwords": ["a"]}`,
	} {
		_, err := LoadCredentials(write(name, body), "admin")
		var fe *FixtureError
		assert.ErrorAs(t, err, &fe, name)
	}
}

func TestSuite(t *testing.T) {
	s := testSettings("http://localhost")
	_, err := Suite(s)
	var ce *settings.ConfigurationError
	assert.ErrorAs(t, err, &ce, "nothing configured")

	s.Fixtures.Payload = filepath.Join("testdata", "payload.json")
	s.Fixtures.InvalidPasswords = filepath.Join("testdata", "invalid_passwords.json")
	all, err := Suite(s)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ReservationName, all[0].Name)
	assert.Equal(t, SweepName, all[1].Name)

	only, err := Suite(s, SweepName)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, SweepName, only[0].Name)

	_, err = Suite(s, "checkout")
	assert.ErrorAs(t, err, &ce)

	s.Fixtures.Payload = filepath.Join("testdata", "missing.json")
	_, err = Suite(s)
	var fe *FixtureError
	assert.ErrorAs(t, err, &fe)
}
