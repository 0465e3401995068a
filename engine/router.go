package engine

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Handler serves a routed request. Responses are written by the router so every route logs the same way.
type Handler func(r *http.Request, ps httprouter.Params) Response

type Router struct {
	router *httprouter.Router
}

// NewRouter returns an empty router. notFound may be nil.
func NewRouter(notFound http.Handler) *Router {
	r := httprouter.New()
	r.RedirectTrailingSlash = true
	if notFound != nil {
		r.NotFound = notFound
	}
	return &Router{router: r}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.router.ServeHTTP(w, rr) }

func (r *Router) Handle(method, path string, fn Handler) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		r.logged(w, req, func(w http.ResponseWriter) { fn(req, ps).Write(w, req) })
	})
}

// HandleFunc mounts a plain http.HandlerFunc, e.g. a health probe or the metrics exporter.
func (r *Router) HandleFunc(method, path string, fn http.HandlerFunc) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		r.logged(w, req, func(w http.ResponseWriter) { fn(w, req) })
	})
}

func (r *Router) logged(w http.ResponseWriter, req *http.Request, fn func(http.ResponseWriter)) {
	start := time.Now()
	ww := &responseWrapper{ResponseWriter: w, status: 200}
	fn(ww)
	slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status)
}

// Serve wires up the stdlib http server to the engine.
func (r *Router) Serve(addr string) Proc {
	return func(ctx context.Context) error {
		svr := &http.Server{Handler: r, Addr: addr}
		go func() {
			<-ctx.Done()
			slog.Warn("gracefully shutting down http server...")
			svr.Shutdown(context.Background())
		}()
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		slog.Info("the http server has shut down")
		return nil
	}
}

// SystemError logs the given message+args while returning a generic 500 error.
func SystemError(w http.ResponseWriter, msg string, args ...any) {
	http.Error(w, "Internal error - please try again later", 500)
	slog.Error(msg, args...)
}

// HandleError returns true if err is non-nil, logging the error and sending
// a 500 response. This allows cleaner error handling in handlers:
//
//	if engine.HandleError(w, err) {
//	    return
//	}
func HandleError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	SystemError(w, err.Error())
	return true
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
