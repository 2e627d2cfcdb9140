package filters

import (
	"fmt"
	"sync"

	"satfetch/internal/domain"
	"satfetch/internal/remote"
)

// LocalProcessor receives the on-disk artifact of a verified item.
type LocalProcessor func(path, itemID string) error

// RemoteProcessor receives a lazy view over an item's entries; no bytes are
// transferred unless the hook reads them.
type RemoteProcessor func(view *remote.View, itemID string) error

var (
	procMu      sync.RWMutex
	localProcs  = map[string]LocalProcessor{}
	remoteProcs = map[string]RemoteProcessor{}
)

// RegisterLocalProcessor makes a local post-process hook resolvable by name.
func RegisterLocalProcessor(name string, fn LocalProcessor) {
	procMu.Lock()
	defer procMu.Unlock()
	localProcs[name] = fn
}

// RegisterRemoteProcessor makes a remote post-process hook resolvable by name.
func RegisterRemoteProcessor(name string, fn RemoteProcessor) {
	procMu.Lock()
	defer procMu.Unlock()
	remoteProcs[name] = fn
}

// ResolveLocalProcessor looks up a registered local hook.
func ResolveLocalProcessor(name string) (LocalProcessor, error) {
	procMu.RLock()
	defer procMu.RUnlock()
	fn, ok := localProcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: post-processor %q is not registered", domain.ErrInvalidInput, name)
	}
	return fn, nil
}

// ResolveRemoteProcessor looks up a registered remote hook.
func ResolveRemoteProcessor(name string) (RemoteProcessor, error) {
	procMu.RLock()
	defer procMu.RUnlock()
	fn, ok := remoteProcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: remote processor %q is not registered", domain.ErrInvalidInput, name)
	}
	return fn, nil
}
