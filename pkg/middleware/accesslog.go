package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// AccessLog logs one debug line per request with the status written. A
// second WriteHeader is dropped and logged as a warning.
func AccessLog(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, log: log, path: r.URL.Path}
			next.ServeHTTP(sw, r)
			if sw.code == 0 {
				sw.code = http.StatusOK
			}
			log.Debugw("http", "method", r.Method, "path", r.URL.Path, "status", sw.code, "elapsed", time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	log  *zap.SugaredLogger
	path string
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.code != 0 {
		s.log.Warnw("duplicate WriteHeader", "path", s.path, "first", s.code, "second", code)
		return
	}
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}
