package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"igresolver/pkg/logger"
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// RequestLogger assigns a request id, logs every request and recovers
// panics as 500s
func RequestLogger(base logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()

			ctx := logger.ContextWithFields(r.Context(), map[string]interface{}{
				"request_id": requestID,
			})
			reqLogger := base.WithContext(ctx)

			w.Header().Set("X-Request-ID", requestID)
			wrapped := &responseWriter{ResponseWriter: w}

			defer func() {
				if rec := recover(); rec != nil {
					reqLogger.ErrorWithFields("panic recovered", map[string]interface{}{"panic": rec})
					http.Error(wrapped, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
				logger.LogRequest(reqLogger, r.Method, r.URL.Path, wrapped.Status(),
					float64(time.Since(start).Microseconds())/1000)
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}
