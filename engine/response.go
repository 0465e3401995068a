package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
)

// Response is the result of a Handler.
type Response interface {
	Write(w http.ResponseWriter, r *http.Request)
}

type ResponseFunc func(w http.ResponseWriter, r *http.Request)

func (f ResponseFunc) Write(w http.ResponseWriter, r *http.Request) { f(w, r) }

func JSON(v any) Response {
	return ResponseFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, err := json.Marshal(v)
		if HandleError(w, err) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(buf)
	})
}

func Redirect(url string, status int) Response {
	return ResponseFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, url, status)
	})
}

func WithCookie(c *http.Cookie, next Response) Response {
	return ResponseFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, c)
		next.Write(w, r)
	})
}

// Template renders the named template. It is buffered so a template error still produces a clean 500.
func Template(t *template.Template, name string, data any) Response {
	return TemplateWithStatus(http.StatusOK, t, name, data)
}

func TemplateWithStatus(status int, t *template.Template, name string, data any) Response {
	return ResponseFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := &bytes.Buffer{}
		if err := t.ExecuteTemplate(buf, name, data); err != nil {
			SystemError(w, "rendering template", "template", name, "error", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		buf.WriteTo(w)
	})
}

type httpError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *httpError) Write(w http.ResponseWriter, r *http.Request) {
	if e.StatusCode >= 500 {
		slog.Error("request failed", "url", r.URL.Path, "error", e.Message)
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.StatusCode)
		json.NewEncoder(w).Encode(e)
		return
	}
	msg := e.Message
	if e.StatusCode >= 500 {
		msg = "Internal error - please try again later"
	}
	http.Error(w, msg, e.StatusCode)
}

// Errorf logs a server-side failure and returns a generic 500 to the client.
func Errorf(format string, args ...any) Response {
	return &httpError{StatusCode: http.StatusInternalServerError, Message: fmt.Sprintf(format, args...)}
}

// ClientErrorf returns the message to the client with the given status.
func ClientErrorf(status int, format string, args ...any) Response {
	return &httpError{StatusCode: status, Message: fmt.Sprintf(format, args...)}
}
