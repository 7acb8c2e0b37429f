package audiosync

import (
	"context"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Only one synchronization is meaningful at a time in a process, so
// the package-level functions below operate on a shared engine.

var (
	defaultEngineLocker sync.Mutex
	defaultEngine       *Engine
)

// Default returns the process-wide engine, creating it with the
// default policy on first use.
func Default() *Engine {
	defaultEngineLocker.Lock()
	defer defaultEngineLocker.Unlock()
	if defaultEngine == nil {
		e, err := New(DefaultPolicy())
		if err != nil {
			panic(err)
		}
		defaultEngine = e
	}
	return defaultEngine
}

// SetDefault replaces the process-wide engine. It must not be called
// while the current one has an active session.
func SetDefault(e *Engine) {
	defaultEngineLocker.Lock()
	defer defaultEngineLocker.Unlock()
	defaultEngine = e
}

func Setup(ctx context.Context, device string) error {
	return Default().Setup(ctx, device)
}

// Run returns the lag in milliseconds and whether it was found. Use
// Default().Run to also learn why it was not.
func Run(ctx context.Context, track string) (int64, bool) {
	result, err := Default().Run(ctx, track)
	if err != nil {
		logger.Errorf(ctx, "synchronization of %q failed: %v", track, err)
	}
	return result.LagMS, result.Success
}

func Pause(ctx context.Context) {
	if err := Default().Pause(ctx); err != nil {
		logger.Errorf(ctx, "unable to pause: %v", err)
	}
}

func Resume(ctx context.Context) {
	if err := Default().Resume(ctx); err != nil {
		logger.Errorf(ctx, "unable to resume: %v", err)
	}
}

func Abort(ctx context.Context) {
	Default().Abort(ctx)
}

func GetStatus() State {
	return Default().Status()
}

func GetDebug() bool {
	return Default().Debug()
}

func SetDebug(debug bool) {
	Default().SetDebug(debug)
}
