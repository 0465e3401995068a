package hotelsite

import (
	"net/http/httptest"
	"testing"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/db"
)

// NewTestServer serves a fresh site backed by a temporary database until the test ends.
func NewTestServer(t *testing.T, username, password string) (*httptest.Server, *Module) {
	m := New(db.OpenTest(t), username, password)
	router := engine.NewRouter(nil)
	m.AttachRoutes(router)
	svr := httptest.NewServer(router)
	t.Cleanup(svr.Close)
	return svr, m
}
