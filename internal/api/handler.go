package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/shortpoint/webhook-dispatcher/model"
)

type contextHandlerFunc func(c *Context, w http.ResponseWriter, r *http.Request)

type contextHandler struct {
	context *Context
	handler contextHandlerFunc
}

// statusRecorder wraps a http.ResponseWriter to capture the response status
// code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (h contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	context := h.context.Clone()
	context.RequestID = model.NewID()
	context.Logger = context.Logger.WithFields(logrus.Fields{
		"path":    r.URL.Path,
		"request": context.RequestID,
	})

	recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	start := time.Now()

	h.handler(context, recorder, r)

	context.Metrics.IncrementAPIRequest()
	context.Metrics.ObserveAPIEndpointDuration(endpointForRequest(r), r.Method, recorder.statusCode, time.Since(start).Seconds())
}

// endpointForRequest returns the route template matched by the request, to
// keep metric label cardinality independent of path parameter values.
func endpointForRequest(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return template
		}
	}

	return r.URL.Path
}

func newContextHandler(context *Context, handler contextHandlerFunc) *contextHandler {
	return &contextHandler{
		context: context,
		handler: handler,
	}
}
