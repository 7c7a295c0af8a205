// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server exposes the upload handler on the LAN.
//
// Routes:
//
//	POST /upload   multipart/form-data, see package upload
//	GET  /         "Hello, World!", for checking reachability
//
// Every response allows any origin (CORS).
package server // import "blitznote.com/src/sendfile/server"

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"blitznote.com/src/sendfile/logger"
)

// Greeting is the body of GET /.
const Greeting = "Hello, World!"

// Options of a Server.
type Options struct {
	Host string
	Port uint16 // final; 0 only in tests, to have the OS pick one

	// Requests with larger bodies are rejected with 413. 0 disables the limit.
	MaxBodySize int64

	// Per client. 0 disables the limit.
	RequestsPerMinute int
}

// NewRouter returns the engine with all routes and middleware, sending uploads to 'uploads'.
func NewRouter(opts Options, uploads http.Handler) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil) // clients are on the LAN, and talk to us directly
	r.Use(
		RequestID(),
		Logging(),
		Recovery(),
		CORS(),
	)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Greeting)
	})
	// GET / stays outside the limit: it is what clients use to find us.
	r.POST("/upload",
		RateLimit(opts.RequestsPerMinute),
		BodyLimit(opts.MaxBodySize),
		gin.WrapH(uploads),
	)
	return r
}

// Server serves the routes of NewRouter.
type Server struct {
	opts Options
	srv  *http.Server
	ln   net.Listener
}

// New prepares a Server. Nothing is bound before Listen.
func New(opts Options, uploads http.Handler) *Server {
	return &Server{
		opts: opts,
		srv: &http.Server{
			Handler:           NewRouter(opts, uploads),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ErrorLog:          slog.NewLogLogger(logger.HTTP().Handler(), slog.LevelWarn),
		},
	}
}

// Handler is the router, for use without Listen.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Listen binds the configured address.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(int(s.opts.Port)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	s.ln = ln
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Task is a server running in the background.
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed once the server has stopped.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err waits for the server to stop, and returns why. It is nil after Shutdown.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Go serves in the background, and returns immediately.
// Errors are logged and reported through the returned Task.
func (s *Server) Go() *Task {
	t := &Task{done: make(chan struct{})}
	if s.ln == nil {
		t.err = errors.New("server: Go called before Listen")
		close(t.done)
		return t
	}

	go func() {
		defer close(t.done)
		err := s.srv.Serve(s.ln)
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		logger.Error("server stopped", "addr", s.ln.Addr().String(), "error", err)
		t.err = err
	}()
	return t
}

// Shutdown stops accepting requests, and waits for running ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
