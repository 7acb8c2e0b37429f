package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
)

// ErrNoRecorder is returned when no registered backend could be
// initialized and pinged.
var ErrNoRecorder = errors.New("no usable PCM recorder")

type Recorder struct {
	RecorderPCM
}

func NewRecorder(recorderPCM RecorderPCM) *Recorder {
	return &Recorder{
		RecorderPCM: recorderPCM,
	}
}

var (
	lastSuccessfulRecorderFactory       registry.RecorderPCMFactory
	lastSuccessfulRecorderFactoryLocker sync.Mutex
)

func getLastSuccessfulRecorderFactory() registry.RecorderPCMFactory {
	lastSuccessfulRecorderFactoryLocker.Lock()
	defer lastSuccessfulRecorderFactoryLocker.Unlock()
	return lastSuccessfulRecorderFactory
}

func setLastSuccessfulRecorderFactory(factory registry.RecorderPCMFactory) {
	lastSuccessfulRecorderFactoryLocker.Lock()
	defer lastSuccessfulRecorderFactoryLocker.Unlock()
	lastSuccessfulRecorderFactory = factory
}

// NewRecorderAuto returns a recorder of the highest priority backend
// that could be initialized and pinged. The backend that worked the
// last time is tried first.
func NewRecorderAuto(
	ctx context.Context,
) (*Recorder, error) {
	if factory := getLastSuccessfulRecorderFactory(); factory != nil {
		recorder, err := factory.NewRecorderPCM()
		if err == nil {
			if err := recorder.Ping(ctx); err == nil {
				return NewRecorder(recorder), nil
			}
			_ = recorder.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.RecorderFactories() {
		recorder, err := factory.NewRecorderPCM()
		logger.Debugf(ctx, "initializing recorder %T result is %v", recorder, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = recorder.Ping(ctx)
		logger.Debugf(ctx, "pinging PCM recorder %T result is %v", recorder, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", recorder, err))
			_ = recorder.Close()
			continue
		}

		setLastSuccessfulRecorderFactory(factory)
		return NewRecorder(recorder), nil
	}

	if err := mErr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRecorder, err)
	}
	return nil, fmt.Errorf("%w: no backends are registered", ErrNoRecorder)
}

func (a *Recorder) RecordPCM(
	ctx context.Context,
	device string,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	pcmWriter io.Writer,
) (RecordStream, error) {
	return a.RecorderPCM.RecordPCM(
		ctx,
		device,
		sampleRate,
		channels,
		pcmFormat,
		pcmWriter,
	)
}

// RouteApplication isolates the given application if the backend
// supports it.
func (a *Recorder) RouteApplication(
	ctx context.Context,
	applicationName string,
) (string, error) {
	router, ok := a.RecorderPCM.(ApplicationRouter)
	if !ok {
		return "", fmt.Errorf("recorder %T cannot route applications", a.RecorderPCM)
	}
	return router.RouteApplication(ctx, applicationName)
}

// NewRecorderByBackend returns a recorder of the named backend, see
// registry.RecorderBackends.
func NewRecorderByBackend(
	ctx context.Context,
	name string,
) (*Recorder, error) {
	factory, ok := registry.RecorderFactory(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q, known: %v", ErrNoRecorder, name, registry.RecorderBackends())
	}
	recorder, err := factory.NewRecorderPCM()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to initialize %q: %w", ErrNoRecorder, name, err)
	}
	if err := recorder.Ping(ctx); err != nil {
		_ = recorder.Close()
		return nil, fmt.Errorf("%w: unable to ping %q: %w", ErrNoRecorder, name, err)
	}
	return NewRecorder(recorder), nil
}
