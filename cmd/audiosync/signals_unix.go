//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audiosync"
	"github.com/xaionaro-go/observability"
)

func handleSignals(ctx context.Context, e *audiosync.Engine) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	ctx, cancelFn := context.WithCancel(ctx)
	observability.Go(ctx, func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				logger.Debugf(ctx, "received %v", sig)
				switch sig {
				case syscall.SIGUSR1:
					if err := e.Pause(ctx); err != nil {
						logger.Errorf(ctx, "unable to pause: %v", err)
					}
				case syscall.SIGUSR2:
					if err := e.Resume(ctx); err != nil {
						logger.Errorf(ctx, "unable to resume: %v", err)
					}
				default:
					e.Abort(ctx)
				}
			}
		}
	})
	return func() {
		signal.Stop(ch)
		cancelFn()
	}
}
