// Package results keeps scenario results in sqlite and serves them as JSON.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/TheLab-ms/innkeeper/scenario"
)

const migration = `
CREATE TABLE IF NOT EXISTS results (
    id TEXT PRIMARY KEY,
    scenario TEXT NOT NULL,
    passed INTEGER NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    checks TEXT NOT NULL DEFAULT '[]',
    started INTEGER NOT NULL, -- unix millis
    duration INTEGER NOT NULL -- nanoseconds
) STRICT;

CREATE INDEX IF NOT EXISTS results_scenario_started_idx ON results (scenario, started);
CREATE INDEX IF NOT EXISTS results_started_idx ON results (started);
`

const (
	defaultLimit = 50
	maxLimit     = 500
)

var ErrNotFound = errors.New("result not found")

type Module struct {
	db        *sql.DB
	retention time.Duration
}

func New(d *sql.DB, retention time.Duration) *Module {
	db.MustMigrate(d, migration)
	return &Module{db: d, retention: retention}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/api/results", m.listResults)
	router.Handle("GET", "/api/results/:id", m.getResult)
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	mgr.Add(engine.Poll(time.Hour, engine.Cleanup(m.db, "expired results",
		"DELETE FROM results WHERE started < (unixepoch('subsec') * 1000) - $1", m.retention.Milliseconds())))
}

func (m *Module) Save(ctx context.Context, res *scenario.Result) error {
	checks := res.Checks
	if checks == nil {
		checks = []scenario.Check{}
	}
	js, err := json.Marshal(checks)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, "INSERT INTO results (id, scenario, passed, message, checks, started, duration) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		res.ID.String(), res.Scenario, res.Passed, res.Message, string(js), res.Started.UnixMilli(), int64(res.Duration))
	if err != nil {
		return fmt.Errorf("saving result %s: %w", res.ID, err)
	}
	return nil
}

func (m *Module) Get(ctx context.Context, id uuid.UUID) (*scenario.Result, error) {
	row := m.db.QueryRowContext(ctx, "SELECT id, scenario, passed, message, checks, started, duration FROM results WHERE id = $1", id.String())
	res, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// Filter narrows List. A zero Limit means the default page size.
type Filter struct {
	Scenario string
	Passed   *bool
	Limit    int
}

// List returns matching results, newest first.
func (m *Module) List(ctx context.Context, f Filter) ([]*scenario.Result, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, scenario, passed, message, checks, started, duration FROM results
		WHERE ($1 = '' OR scenario = $1) AND ($2 IS NULL OR passed = $2)
		ORDER BY started DESC, id LIMIT $3`, f.Scenario, f.Passed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := []*scenario.Result{}
	for rows.Next() {
		res, err := scan(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, res)
	}
	return all, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*scenario.Result, error) {
	var (
		res      scenario.Result
		id       string
		checks   string
		started  int64
		duration int64
	)
	if err := row.Scan(&id, &res.Scenario, &res.Passed, &res.Message, &checks, &started, &duration); err != nil {
		return nil, err
	}
	var err error
	if res.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("result has invalid id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(checks), &res.Checks); err != nil {
		return nil, fmt.Errorf("decoding checks of result %s: %w", id, err)
	}
	res.Started = time.UnixMilli(started)
	res.Duration = time.Duration(duration)
	return &res, nil
}

func (m *Module) listResults(r *http.Request, ps httprouter.Params) engine.Response {
	q := r.URL.Query()
	f := Filter{Scenario: q.Get("scenario")}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return engine.ClientErrorf(http.StatusBadRequest, "invalid limit %q", s)
		}
		f.Limit = n
	}
	if s := q.Get("passed"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return engine.ClientErrorf(http.StatusBadRequest, "invalid passed %q", s)
		}
		f.Passed = &b
	}

	all, err := m.List(r.Context(), f)
	if err != nil {
		return engine.Errorf("listing results: %s", err)
	}
	return engine.JSON(all)
}

func (m *Module) getResult(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := uuid.Parse(ps.ByName("id"))
	if err != nil {
		return engine.ClientErrorf(http.StatusBadRequest, "invalid result id")
	}
	res, err := m.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return engine.ClientErrorf(http.StatusNotFound, "result not found")
	}
	if err != nil {
		return engine.Errorf("getting result: %s", err)
	}
	return engine.JSON(res)
}
