// Package notifier delivers committed changes to after-hooks. Three strategies are
// available: synchronous in-call dispatch, a reactive subscription to the store's
// change feed, and periodic polling for recently tagged documents.
package notifier

import (
	"context"
	"fmt"

	"github.com/looplj/dochooks/internal/docstore"
)

// Notifier is a started change-notification strategy for one collection.
type Notifier interface {
	Mode() Mode
	Start(ctx context.Context) error
	// Stop tears the strategy down and waits for its worker. It must not be called
	// from inside an after-hook.
	Stop()
}

// New builds the strategy cfg names for store. The returned notifier is not started.
func New(cfg Config, store docstore.Store, dispatcher *Dispatcher, instanceID string) (Notifier, error) {
	cfg = cfg.withDefaults()

	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeSync:
		return Sync{}, nil
	case ModePolling:
		return NewPolling(store, dispatcher, instanceID, cfg.PollInterval, cfg.PollLookback), nil
	default:
		observable, ok := store.(docstore.Observable)
		if !ok {
			return nil, fmt.Errorf("store %q does not support change observation; use %s or %s mode", store.Name(), ModePolling, ModeSync)
		}

		var filter docstore.Selector
		if cfg.FilterOwn {
			filter = OwnFilter(instanceID)
		}

		return NewReactive(observable, dispatcher, filter), nil
	}
}

// Sync marks in-call dispatch; the interceptor drives the dispatcher itself.
type Sync struct{}

func (Sync) Mode() Mode { return ModeSync }
func (Sync) Start(context.Context) error { return nil }
func (Sync) Stop() {}
