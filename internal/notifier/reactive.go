package notifier

import (
	"context"
	"sync"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/provenance"
)

// OwnFilter selects documents tagged by instanceID.
func OwnFilter(instanceID string) docstore.Selector {
	return docstore.Selector{provenance.PathInstanceID: instanceID}
}

// Reactive dispatches from a live change subscription. Events are handled one at a
// time in arrival order.
type Reactive struct {
	source     docstore.Observable
	dispatcher *Dispatcher
	filter     docstore.Selector

	cancel    context.CancelFunc
	stopWatch func()
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewReactive(source docstore.Observable, dispatcher *Dispatcher, filter docstore.Selector) *Reactive {
	return &Reactive{
		source:     source,
		dispatcher: dispatcher,
		filter:     filter,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (r *Reactive) Mode() Mode { return ModeReactive }

func (r *Reactive) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	events, stop, err := r.source.Watch(ctx, r.filter)
	if err != nil {
		cancel()
		return err
	}

	r.cancel = cancel
	r.stopWatch = stop

	go r.worker(ctx, events)

	return nil
}

func (r *Reactive) worker(ctx context.Context, events <-chan docstore.ChangeEvent) {
	defer close(r.done)

	for {
		select {
		case <-r.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				log.Debug(ctx, "reactive notifier feed closed", log.String("collection", r.dispatcher.collection))
				return
			}

			select {
			case <-r.stopCh:
				return
			default:
			}

			r.dispatcher.Change(ctx, ev)
		}
	}
}

func (r *Reactive) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		if r.stopWatch == nil {
			return
		}

		r.stopWatch()
		r.cancel()
		<-r.done
	})
}
