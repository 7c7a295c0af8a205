// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sendfile receives files which other devices on the LAN send to it.
//
//	sendfile [--port 0] [--dir ~/Downloads/send-file] [--log core=debug,http=info]
//
// Send files with, for example:
//
//	curl -F file=@report.pdf http://<address shown at startup>/upload
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"blitznote.com/src/sendfile/config"
	"blitznote.com/src/sendfile/host"
	"blitznote.com/src/sendfile/logger"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Error("cannot load the configuration", "error", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LoggerOptions()); err != nil {
		logger.Error("cannot set up logging", "error", err)
		os.Exit(1)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := host.New(cfg, os.Stdout).Run(ctx); err != nil {
		logger.Error("exiting", "error", err)
		stop()
		os.Exit(1)
	}
}
