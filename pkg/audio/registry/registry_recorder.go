// Package registry keeps the recorder backends compiled into the
// binary. Backends register themselves from init().
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type RecorderPCMFactory interface {
	NewRecorderPCM() (types.RecorderPCM, error)
}

type recorderBackend struct {
	Name     string
	Priority int
	Factory  RecorderPCMFactory
}

var (
	recorderBackendsLocker sync.Mutex
	recorderBackends       = map[string]recorderBackend{}
)

// RegisterRecorderFactory makes a backend available under the given
// name. Registering a name twice panics.
func RegisterRecorderFactory(
	name string,
	priority int,
	factory RecorderPCMFactory,
) {
	recorderBackendsLocker.Lock()
	defer recorderBackendsLocker.Unlock()
	if _, ok := recorderBackends[name]; ok {
		panic(fmt.Errorf("recorder backend %q is already registered", name))
	}
	recorderBackends[name] = recorderBackend{
		Name:     name,
		Priority: priority,
		Factory:  factory,
	}
}

func sortedBackends() []recorderBackend {
	recorderBackendsLocker.Lock()
	backends := make([]recorderBackend, 0, len(recorderBackends))
	for _, b := range recorderBackends {
		backends = append(backends, b)
	}
	recorderBackendsLocker.Unlock()

	sort.Slice(backends, func(i, j int) bool {
		if backends[i].Priority != backends[j].Priority {
			return backends[i].Priority > backends[j].Priority
		}
		return backends[i].Name < backends[j].Name
	})
	return backends
}

// RecorderFactories returns the registered factories, the highest
// priority first.
func RecorderFactories() []RecorderPCMFactory {
	backends := sortedBackends()
	factories := make([]RecorderPCMFactory, 0, len(backends))
	for _, b := range backends {
		factories = append(factories, b.Factory)
	}
	return factories
}

// RecorderBackends returns the names of the registered backends, the
// highest priority first.
func RecorderBackends() []string {
	backends := sortedBackends()
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name)
	}
	return names
}

func RecorderFactory(name string) (RecorderPCMFactory, bool) {
	recorderBackendsLocker.Lock()
	defer recorderBackendsLocker.Unlock()
	b, ok := recorderBackends[name]
	return b.Factory, ok
}
