package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/aquamon/aquamon/pkg/infra/logger"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// RequestID tags every request with an ID that flows through the
// context into log lines.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := logger.SetRequestID(r.Context(), id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Logging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			logAttrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if requestID := logger.GetRequestID(r.Context()); requestID != "" {
				logAttrs = append(logAttrs, slog.String("request_id", requestID))
			}

			logLevel := slog.LevelInfo
			if rw.statusCode >= 400 {
				logLevel = slog.LevelWarn
			}
			if rw.statusCode >= 500 {
				logLevel = slog.LevelError
			}

			if log != nil {
				log.LogAttrs(r.Context(), logLevel, "HTTP request", logAttrs...)
			}
		})
	}
}

func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					stack := debug.Stack()

					err, ok := rvr.(error)
					var errMsg string
					if ok {
						errMsg = err.Error()
					} else {
						errMsg = fmt.Sprintf("%v", rvr)
					}

					if log != nil {
						log.Error("panic recovered",
							slog.String("error", errMsg),
							slog.String("stack", string(stack)),
							slog.String("path", r.URL.Path),
							slog.String("method", r.Method),
						)
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(errorResponse{Error: "internal server error"})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
