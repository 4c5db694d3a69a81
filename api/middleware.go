package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cw-faucet/faucetd/log"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes hijacking through to the underlying writer so the websocket
// upgrade keeps working with the middleware installed.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// loggingMiddleware logs requests at debug level with their status and
// duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if log.Level() != log.LogLevelDebug {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		status := rw.statusCode
		if status == 0 {
			status = http.StatusOK
		}
		log.Debugw("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"took", time.Since(start).String(),
		)
	})
}
