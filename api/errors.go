package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cw-faucet/faucetd/log"
)

// Error is the API error type: a wrapped error with a faucet error code and
// the HTTP status it is served with.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// Error returns the Error's underlying error message.
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap makes Error compatible with errors.Is and errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// Withf returns a copy of Error with the Sprintf formatted string appended
// at the end of the error message.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of Error with err appended at the end of the error
// message.
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// MarshalJSON encodes the error as {"error": ..., "code": ...}.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{
		Error: e.Err.Error(),
		Code:  e.Code,
	})
}

// Write serves the error with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Warnw("failed to marshal error response", "error", err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(data); err != nil {
		log.Warnw("failed to write error response", "error", err)
	}
}
