// Package monitor runs the scenario suite on a schedule and on demand.
// Runs are queued in sqlite and processed one at a time by an engine workqueue.
package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/TheLab-ms/innkeeper/scenario"
)

const migration = `
CREATE TABLE IF NOT EXISTS run_requests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (unixepoch()),
    reason TEXT NOT NULL,
    scenarios TEXT NOT NULL DEFAULT '[]',
    state TEXT NOT NULL DEFAULT 'pending',
    finished INTEGER,
    error TEXT NOT NULL DEFAULT '',
    results TEXT NOT NULL DEFAULT '[]'
) STRICT;

CREATE INDEX IF NOT EXISTS run_requests_state_idx ON run_requests (state, id);

UPDATE run_requests SET state = 'pending' WHERE state = 'running';
`

const (
	StatePending = "pending"
	StateRunning = "running"
	StatePassed  = "passed"
	StateFailed  = "failed"

	ReasonInterval = "interval"
	ReasonManual   = "manual"
)

// Runner executes a suite. *scenario.Orchestrator implements it.
type Runner interface {
	RunAll(ctx context.Context, scenarios ...scenario.Scenario) []*scenario.Result
}

// SuiteFunc builds the scenarios to run, restricted to the given names when any are given.
type SuiteFunc func(only ...string) ([]scenario.Scenario, error)

// ResultStore persists results. *results.Module implements it.
type ResultStore interface {
	Save(ctx context.Context, res *scenario.Result) error
}

type RunRequest struct {
	ID        int64       `json:"id"`
	Created   time.Time   `json:"created"`
	Reason    string      `json:"reason"`
	Scenarios []string    `json:"scenarios"`
	State     string      `json:"state"`
	Finished  *time.Time  `json:"finished,omitempty"`
	Error     string      `json:"error,omitempty"`
	Results   []uuid.UUID `json:"results"`
}

type Module struct {
	db       *sql.DB
	runner   Runner
	suite    SuiteFunc
	store    ResultStore
	interval time.Duration

	// MinGap is the least time between the starts of two suite runs.
	MinGap time.Duration
}

func New(d *sql.DB, runner Runner, suite SuiteFunc, store ResultStore, interval time.Duration) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d, runner: runner, suite: suite, store: store, interval: interval, MinGap: 10 * time.Second}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.HandleFunc("GET", "/metrics", promhttp.Handler().ServeHTTP)
	router.Handle("GET", "/api/runs", m.listRuns)
	router.Handle("POST", "/api/runs", m.requestRun)
	router.Handle("GET", "/api/runs/:id", m.getRun)
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(m.interval, m.schedule))
	mgr.Add(engine.Poll(time.Second, engine.PollWorkqueue("runs", engine.WithRateLimiting[*RunRequest](m, m.MinGap))))
	mgr.Add(engine.Poll(time.Hour, engine.Cleanup(m.db, "finished run requests",
		"DELETE FROM run_requests WHERE finished IS NOT NULL AND finished < unixepoch() - $1", int64((7*24*time.Hour).Seconds()))))
}

// schedule queues an interval run unless one is already waiting or running.
func (m *Module) schedule(ctx context.Context) bool {
	if _, err := m.Enqueue(ctx, ReasonInterval); err != nil && !errors.Is(err, sql.ErrNoRows) {
		slog.Error("scheduling suite run", "error", err)
	}
	return false
}

// Enqueue queues a suite run. Interval runs are deduplicated: sql.ErrNoRows means one is already queued.
func (m *Module) Enqueue(ctx context.Context, reason string, only ...string) (int64, error) {
	if only == nil {
		only = []string{}
	}
	js, err := json.Marshal(only)
	if err != nil {
		return 0, err
	}

	var id int64
	if reason == ReasonInterval {
		err = m.db.QueryRowContext(ctx, `
			INSERT INTO run_requests (reason, scenarios) SELECT $1, $2
			WHERE NOT EXISTS (SELECT 1 FROM run_requests WHERE reason = $1 AND state IN ('pending', 'running'))
			RETURNING id`, reason, string(js)).Scan(&id)
	} else {
		err = m.db.QueryRowContext(ctx, "INSERT INTO run_requests (reason, scenarios) VALUES ($1, $2) RETURNING id", reason, string(js)).Scan(&id)
	}
	if err != nil {
		return 0, err
	}
	metricRunRequests.WithLabelValues(reason).Inc()
	slog.Info("queued suite run", "id", id, "reason", reason, "scenarios", only)
	return id, nil
}

func (m *Module) GetItem(ctx context.Context) (*RunRequest, error) {
	row := m.db.QueryRowContext(ctx, `
		UPDATE run_requests SET state = 'running'
		WHERE id = (SELECT id FROM run_requests WHERE state = 'pending' ORDER BY id LIMIT 1)
		RETURNING `+runColumns)
	return scanRun(row)
}

// ProcessItem runs the requested suite and saves every result.
// It fails when the suite cannot be built or any scenario fails.
func (m *Module) ProcessItem(ctx context.Context, req *RunRequest) error {
	err := m.process(ctx, req)
	if err != nil {
		req.Error = err.Error()
	}
	return err
}

func (m *Module) process(ctx context.Context, req *RunRequest) error {
	scenarios, err := m.suite(req.Scenarios...)
	if err != nil {
		return fmt.Errorf("building suite: %w", err)
	}

	var failed []string
	for _, res := range m.runner.RunAll(ctx, scenarios...) {
		recordResult(res)
		if err := m.store.Save(ctx, res); err != nil {
			return err
		}
		req.Results = append(req.Results, res.ID)
		if !res.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", res.Scenario, res.Message))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d scenarios failed: %s", len(failed), len(scenarios), failed[0])
	}
	return nil
}

func (m *Module) UpdateItem(ctx context.Context, req *RunRequest, success bool) error {
	state := StatePassed
	if !success {
		state = StateFailed
	}
	results := req.Results
	if results == nil {
		results = []uuid.UUID{}
	}
	js, err := json.Marshal(results)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, "UPDATE run_requests SET state = $1, finished = unixepoch(), error = $2, results = $3 WHERE id = $4",
		state, req.Error, string(js), req.ID)
	return err
}

func (m *Module) Get(ctx context.Context, id int64) (*RunRequest, error) {
	return scanRun(m.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM run_requests WHERE id = $1", id))
}

// List returns the most recent run requests, newest first.
func (m *Module) List(ctx context.Context, limit int) ([]*RunRequest, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT "+runColumns+" FROM run_requests ORDER BY id DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := []*RunRequest{}
	for rows.Next() {
		req, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, req)
	}
	return all, rows.Err()
}

const runColumns = "id, created, reason, scenarios, state, finished, error, results"

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRequest, error) {
	var (
		req       RunRequest
		created   int64
		finished  sql.NullInt64
		scenarios string
		results   string
	)
	if err := row.Scan(&req.ID, &created, &req.Reason, &scenarios, &req.State, &finished, &req.Error, &results); err != nil {
		return nil, err
	}
	req.Created = time.Unix(created, 0)
	if finished.Valid {
		t := time.Unix(finished.Int64, 0)
		req.Finished = &t
	}
	if err := json.Unmarshal([]byte(scenarios), &req.Scenarios); err != nil {
		return nil, fmt.Errorf("decoding scenarios of run %d: %w", req.ID, err)
	}
	if err := json.Unmarshal([]byte(results), &req.Results); err != nil {
		return nil, fmt.Errorf("decoding results of run %d: %w", req.ID, err)
	}
	return &req, nil
}

func (m *Module) requestRun(r *http.Request, ps httprouter.Params) engine.Response {
	if err := r.ParseForm(); err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid form: %s", err)
	}
	only := r.Form["scenario"]
	for _, name := range only {
		if !slices.Contains(scenario.Names, name) {
			return engine.ClientErrorf(http.StatusBadRequest, "unknown scenario %q", name)
		}
	}

	id, err := m.Enqueue(r.Context(), ReasonManual, only...)
	if err != nil {
		return engine.Errorf("queueing run: %s", err)
	}
	return engine.ResponseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", fmt.Sprintf("/api/runs/%d", id))
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]int64{"id": id})
	})
}

func (m *Module) listRuns(r *http.Request, ps httprouter.Params) engine.Response {
	all, err := m.List(r.Context(), 50)
	if err != nil {
		return engine.Errorf("listing runs: %s", err)
	}
	return engine.JSON(all)
}

func (m *Module) getRun(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid run id")
	}
	req, err := m.Get(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ClientErrorf(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return engine.Errorf("getting run: %s", err)
	}
	return engine.JSON(req)
}
