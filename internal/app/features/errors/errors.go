// internal/app/features/errors/errors.go
//
// Package errors writes JSON responses for the feature handlers and maps
// membership error kinds to HTTP status codes in one place.
package errors

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies read by Decode.
const maxBodyBytes = 64 << 10

// statusByKind is the only place error kinds become HTTP codes.
var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidArgument:     http.StatusBadRequest,
	apperr.KindUnauthenticated:     http.StatusUnauthorized,
	apperr.KindNotFound:            http.StatusNotFound,
	apperr.KindForbidden:           http.StatusForbidden,
	apperr.KindNotMember:           http.StatusForbidden,
	apperr.KindAlreadyMember:       http.StatusConflict,
	apperr.KindDuplicateInvitation: http.StatusConflict,
	apperr.KindCapacityExceeded:    http.StatusUnprocessableEntity,
	apperr.KindTokenPersistence:    http.StatusServiceUnavailable,
	apperr.KindInconsistentState:   http.StatusConflict,
	apperr.KindUnknown:             http.StatusInternalServerError,
}

// Status returns the HTTP status for an error kind.
func Status(kind apperr.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Body is the JSON error envelope.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Responder writes JSON success and error responses.
type Responder struct {
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// NewResponder creates a Responder. m may be nil.
func NewResponder(logger *zap.Logger, m *metrics.Metrics) *Responder {
	return &Responder{Log: logger, Metrics: m}
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error writes err using its kind. Unknown errors are logged with detail and
// reported to the client with a generic message.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := Status(kind)
	rs.Metrics.APIError(kind)

	if status >= http.StatusInternalServerError {
		rs.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	} else {
		rs.Log.Debug("request rejected",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.String("detail", err.Error()))
	}
	JSON(w, status, Body{Error: string(kind), Message: apperr.Message(err)})
}

// BadRequest writes a 400 for malformed input the service never saw.
func (rs *Responder) BadRequest(w http.ResponseWriter, msg string) {
	rs.Metrics.APIError(apperr.KindInvalidArgument)
	JSON(w, http.StatusBadRequest, Body{Error: string(apperr.KindInvalidArgument), Message: msg})
}

// Decode reads a JSON request body into dst. Unknown fields are rejected.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// NotFound is the router's JSON 404.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusNotFound, Body{Error: string(apperr.KindNotFound), Message: "no such route"})
}

// MethodNotAllowed is the router's JSON 405.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusMethodNotAllowed, Body{Error: "method_not_allowed", Message: "method not allowed"})
}
