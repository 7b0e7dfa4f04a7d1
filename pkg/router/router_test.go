package router

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(buf io.Writer) *Router {
	l := logrus.New()
	l.SetOutput(buf)
	return New(logrus.NewEntry(l))
}

func text(body string) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, body) }
}

func TestMatchWildcardRoute(t *testing.T) {
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"/api/v1/runs", "/api/v1/runs", true},
		{"/api/v1/runs/abc", "/api/v1/runs/*", true},
		{"/api/v1/runs/abc/errors", "/api/v1/runs/*/errors", true},
		{"/api/v1/runs/abc/units", "/api/v1/runs/*/errors", false},
		{"/api/v1/runs//errors", "/api/v1/runs/*/errors", false},
		{"/swagger/index.html", "/swagger/*", true},
		{"/swagger", "/swagger/*", false},
		{"/api/v1/runs/abc/files/results.jsonl", "/api/v1/runs/*/files/*", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, matchWildcardRoute(c.path, c.pattern), "%s vs %s", c.path, c.pattern)
	}
}

func TestRouterRegistrationOrder(t *testing.T) {
	var logs bytes.Buffer
	r := newTestRouter(&logs)
	r.GET("/api/v1/runs/*/errors", text("errors"))
	r.GET("/api/v1/runs/*", text("run"))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	for path, want := range map[string]string{
		"/api/v1/runs/x/errors": "errors",
		"/api/v1/runs/x":        "run",
		"/api/v1/runs/x/other":  "run",
	} {
		resp, err := http.Get(srv.URL + path)
		if !assert.NoError(t, err) {
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, want, string(body), path)
	}
	assert.Contains(t, logs.String(), "HTTP request")
}

func TestRouterNotFoundAndMethod(t *testing.T) {
	r := newTestRouter(io.Discard)
	r.GET("/api/v1/runs", text("runs"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.True(t, r.Paths()["/api/v1/runs"])
}
