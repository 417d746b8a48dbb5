package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// StreamTimeout bounds the long-lived event-stream route without buffering
// responses (http.TimeoutHandler would buffer, which breaks server-sent
// events). It enforces:
//   - maxDuration: absolute cap on the connection; clients reconnect.
//   - idleTimeout: maximum gap between writes; the stream sends heartbeats,
//     so a quiet connection is a dead one.
func StreamTimeout(maxDuration, idleTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), maxDuration)
			defer cancel()

			rc := http.NewResponseController(w)
			deadline := time.Now().Add(maxDuration)
			_ = rc.SetWriteDeadline(deadline)

			sw := &streamWriter{
				ResponseWriter: w,
				rc:             rc,
				idleTimeout:    idleTimeout,
				cancel:         cancel,
			}
			sw.resetIdle()

			next.ServeHTTP(sw, r.WithContext(ctx))

			sw.mu.Lock()
			if sw.idleTimer != nil {
				sw.idleTimer.Stop()
			}
			sw.mu.Unlock()
		})
	}
}

// streamWriter wraps http.ResponseWriter with an inactivity timer. Every
// Write resets the idle countdown; on expiry the connection deadline is
// shortened so blocked writes fail fast.
type streamWriter struct {
	http.ResponseWriter
	rc          *http.ResponseController
	idleTimeout time.Duration
	cancel      context.CancelFunc
	mu          sync.Mutex
	idleTimer   *time.Timer
}

func (sw *streamWriter) resetIdle() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.idleTimer != nil {
		sw.idleTimer.Stop()
	}

	sw.idleTimer = time.AfterFunc(sw.idleTimeout, func() {
		_ = sw.rc.SetWriteDeadline(time.Now())
		sw.cancel()
	})
}

func (sw *streamWriter) Write(b []byte) (int, error) {
	sw.resetIdle()
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the real writer.
func (sw *streamWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Flush implements http.Flusher so events reach the client immediately.
func (sw *streamWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
