// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host runs the receiver on behalf of an application.
//
// It picks the port, fires up the server without waiting for it, shows where
// files can be sent to, and shuts everything down once its context ends.
package host // import "blitznote.com/src/sendfile/host"

import (
	"context"
	"io"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"

	upload "blitznote.com/src/sendfile"
	"blitznote.com/src/sendfile/config"
	"blitznote.com/src/sendfile/logger"
	"blitznote.com/src/sendfile/portpick"
	"blitznote.com/src/sendfile/server"
)

// App is the receiver as seen by its host application.
type App struct {
	cfg   *config.Config
	ports *portpick.Allocator
	out   io.Writer

	ready chan struct{}

	files atomic.Int64
	bytes atomic.Int64
}

// New returns an App. Its banner goes to 'out', which may be io.Discard.
func New(cfg *config.Config, out io.Writer) *App {
	return &App{
		cfg:   cfg,
		ports: portpick.New(cfg.Server.Port),
		out:   out,
		ready: make(chan struct{}),
	}
}

// Port is the one the receiver listens on. Can be called before Run, for example to advertise it.
func (a *App) Port() (uint16, error) { return a.ports.Port() }

// Ready is closed once the server accepts connections.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Received counts the files and bytes stored so far.
func (a *App) Received() (files, bytes int64) {
	return a.files.Load(), a.bytes.Load()
}

// observe is the upload handler's OnComplete.
func (a *App) observe(res upload.Result) {
	for _, f := range res.Fields {
		if f.SavedAs == "" {
			continue
		}
		a.files.Add(1)
		a.bytes.Add(f.Size)
	}
}

// Run serves until 'ctx' is done, or the server fails.
//
// Failing to obtain a port or to bind it is fatal, and returned as error.
func (a *App) Run(ctx context.Context) error {
	port, err := a.Port()
	if err != nil {
		return errors.Wrap(err, "pick a port")
	}

	ucfg, err := a.cfg.UploadConfiguration()
	if err != nil {
		return err
	}
	h, err := upload.NewHandler(ucfg)
	if err != nil {
		return err
	}
	h.OnComplete = a.observe

	maxBody := int64(math.MaxInt64)
	if m := a.cfg.Upload.MaxRequestSize; m > 0 && m < math.MaxInt64 {
		maxBody = int64(m)
	}
	srv := server.New(server.Options{
		Host:              a.cfg.Server.Host,
		Port:              port,
		MaxBodySize:       maxBody,
		RequestsPerMinute: a.cfg.Server.RequestsPerMinute,
	}, h)
	if err := h.Destination().Ensure(); err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	// Past this point nothing but the destination needs to be reachable.
	if err := upload.Confine(h.Destination().Path()); err != nil {
		logger.Warn("cannot confine filesystem access", "path", h.Destination().Path(), "error", err)
	}

	task := srv.Go()
	close(a.ready)

	localURL := baseURL("localhost", port)
	lanURL := baseURL(advertisedHost(a.cfg.Server.Host), port)
	logger.Info("listening", "addr", srv.Addr().String(), "url", lanURL, "dir", h.Destination().Path())
	if err := writeBanner(a.out, localURL, lanURL, h.Destination().Path()); err != nil {
		logger.Debug("cannot print the banner", "error", err)
	}

	select {
	case <-task.Done():
		return errors.Wrap(task.Err(), "server failed")
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", a.cfg.Server.ShutdownTimeout)
	sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)
	<-task.Done()

	files, bytes := a.Received()
	logger.Info("stopped", "files", files, "bytes", bytes)
	return errors.Wrap(err, "shutdown")
}
