// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger // import "blitznote.com/src/sendfile/logger"

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithRequestID returns a copy of ctx which carries the given request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// CoreFrom is Core, annotated with the request id found in ctx if any.
func CoreFrom(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return Core().With("request_id", id)
	}
	return Core()
}
