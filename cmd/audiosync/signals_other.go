//go:build !unix

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/xaionaro-go/audiosync/pkg/audiosync"
	"github.com/xaionaro-go/observability"
)

func handleSignals(ctx context.Context, e *audiosync.Engine) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	ctx, cancelFn := context.WithCancel(ctx)
	observability.Go(ctx, func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				e.Abort(ctx)
			}
		}
	})
	return func() {
		signal.Stop(ch)
		cancelFn()
	}
}
