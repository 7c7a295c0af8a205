// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server // import "blitznote.com/src/sendfile/server"

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"blitznote.com/src/sendfile/logger"
)

// HeaderRequestID carries the id under which a request is logged.
const HeaderRequestID = "X-Request-Id"

const ctxKeyRequestID = "request_id"

// RequestID tags every request with an id, taken from the client if it sent a sane one.
// The id is echoed in the response, and is available to handlers through logger.RequestID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logging traces every request to the "http" target once it has been answered.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.HTTP().Log(c.Request.Context(), level, "request",
			"request_id", c.GetString(ctxKeyRequestID),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"bytes_in", c.Request.ContentLength,
			"bytes_out", c.Writer.Size(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}

// Recovery turns a panic in a handler into a 500 response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.HTTP().Error("handler panicked",
					"request_id", c.GetString(ctxKeyRequestID),
					"error", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// CORS allows any origin to use any method and header.
// Pre-flight requests are answered here.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Expose-Headers", "*")
		if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
			h.Add("Vary", "Access-Control-Request-Headers")
		} else {
			h.Set("Access-Control-Allow-Headers", "*")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// BodyLimit rejects requests with a body larger than 'max' bytes. 0 disables the limit.
//
// A declared Content-Length is checked before anything is read.
// Bodies of unknown length get cut off once they exceed 'max'.
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > max {
			c.Header("Connection", "close")
			c.String(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", max)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}

// Clients that have not been seen for this long are forgotten by the rate limiter.
const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client address.
type visitors struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	seen      map[string]*visitor
	lastSweep time.Time
}

func newVisitors(perMinute int) *visitors {
	return &visitors{
		limit: rate.Limit(float64(perMinute) / 60),
		burst: perMinute,
		seen:  make(map[string]*visitor),
	}
}

func (v *visitors) get(addr string, now time.Time) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	if now.Sub(v.lastSweep) > visitorTTL {
		for k, e := range v.seen {
			if now.Sub(e.lastSeen) > visitorTTL {
				delete(v.seen, k)
			}
		}
		v.lastSweep = now
	}

	e, ok := v.seen[addr]
	if !ok {
		e = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.seen[addr] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimit allows every client 'perMinute' requests per minute, with bursts of as many.
// Attach it to the routes that do work, not to the greeting.
// 0 disables the limit.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	v := newVisitors(perMinute)
	return func(c *gin.Context) {
		now := time.Now()
		r := v.get(c.ClientIP(), now).ReserveN(now, 1)
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			c.String(http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			c.Abort()
			return
		}
		c.Next()
	}
}
