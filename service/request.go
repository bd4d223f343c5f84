package service

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/alertql-engine/alertql/engine/expr"
	"github.com/alertql-engine/alertql/engine/validator"
)

// Request decorates the inbound request with a request-scoped logger
type Request struct {
	*http.Request
	Logger *zap.Logger
}

func newRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*ResponseWriter, *Request) {
	req := &Request{Request: r}
	req.Logger = logger.With(zap.String("request_id", requestIDFromContext(r.Context())))
	res := &ResponseWriter{
		ResponseWriter: w,
		Logger:         req.Logger,
	}
	return res, req
}

// Var returns a path variable by name
func (r *Request) Var(name string) string {
	return mux.Vars(r.Request)[name]
}

// Unmarshal decodes the request body into v, responding with a 400 on
// malformed input. The boolean reports whether decoding succeeded.
func (r *Request) Unmarshal(res *ResponseWriter, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		res.Error(http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// ResponseWriter writes the JSON response envelope
type ResponseWriter struct {
	http.ResponseWriter
	Logger *zap.Logger
}

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Respond writes a success envelope
func (w *ResponseWriter) Respond(status int, data any) {
	w.writeJSON(status, envelope{Status: "success", Data: data})
}

// Error writes an error envelope with an explicit status code
func (w *ResponseWriter) Error(status int, message string) {
	w.writeJSON(status, envelope{Status: "error", Message: message})
}

// HandleError maps backend errors to status codes: validation failures
// are 400, missing documents 404, anything else 500
func (w *ResponseWriter) HandleError(err error) {
	var verr *validator.ValidationError
	var perr *expr.ParseError
	var nferr *validator.NotFoundError
	switch {
	case errors.As(err, &verr):
		w.Error(http.StatusBadRequest, verr.Error())
	case errors.As(err, &perr):
		w.Error(http.StatusBadRequest, perr.Error())
	case errors.As(err, &nferr):
		w.Error(http.StatusNotFound, nferr.Error())
	default:
		w.Logger.Error("Request failed", zap.Error(err))
		w.Error(http.StatusInternalServerError, err.Error())
	}
}

func (w *ResponseWriter) writeJSON(status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		w.Logger.Warn("Response write failed", zap.Error(err))
	}
}
