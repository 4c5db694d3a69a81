//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// Error codes in the 40001-49999 range are the user's fault and return HTTP
// Status 400/404/409, whatever is most appropriate. Error codes 50001-59999
// are the server's fault and return HTTP Status 500 or 503.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXX or 5XXX.
var (
	ErrResourceNotFound   = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody      = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam     = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrSessionNotFound    = Error{Code: 40004, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("session not found")}
	ErrSessionNotClaimable = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("session is not claimable")}
	ErrAmountTooLow       = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("drop amount is below the minimum")}
	ErrAmountTooHigh      = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("drop amount is above the maximum")}
	ErrInvalidAddress     = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid target address")}
	ErrClaimRace          = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("session is already claiming")}
	ErrNoClaimForSession  = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("session has no claim in progress")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
