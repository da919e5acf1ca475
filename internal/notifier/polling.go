package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/provenance"
)

// Polling queries the store on an interval for documents this instance tagged in
// (since-lookback, now] and dispatches them. Ticks run on one goroutine and never
// overlap. The lookback catches writes whose store commit lands after the tick that
// covered their tag timestamp; the dispatcher's dedup drops the repeats. The window
// never reaches back before Start.
//
// Removals are detected only when a poll lands between the two removal phases, so
// remove after-hooks are best-effort in this mode.
type Polling struct {
	store      docstore.Store
	dispatcher *Dispatcher
	instanceID string
	interval   time.Duration
	lookback   time.Duration
	now        func() time.Time

	started time.Time
	since   time.Time

	ticker   *time.Ticker
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewPolling builds a poller. A non-positive lookback defaults to one interval.
func NewPolling(store docstore.Store, dispatcher *Dispatcher, instanceID string, interval, lookback time.Duration) *Polling {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if lookback <= 0 {
		lookback = interval
	}

	return &Polling{
		store:      store,
		dispatcher: dispatcher,
		instanceID: instanceID,
		interval:   interval,
		lookback:   lookback,
		now:        func() time.Time { return time.Now().UTC() },
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (p *Polling) Mode() Mode { return ModePolling }

func (p *Polling) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.started = p.now()
	p.since = p.started
	p.ticker = time.NewTicker(p.interval)

	go p.worker(ctx)

	return nil
}

func (p *Polling) worker(ctx context.Context) {
	defer close(p.done)

	for {
		select {
		case <-p.stopCh:
			log.Debug(ctx, "polling notifier stopped", log.String("collection", p.dispatcher.collection))
			return
		case <-p.ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one tick. On a query failure the window is kept so the next tick
// retries it; dedup absorbs documents that were already dispatched.
func (p *Polling) poll(ctx context.Context) {
	now := p.now()
	found := make([][]docstore.Document, len(provenance.Mutations))

	eg, gctx := errgroup.WithContext(ctx)
	for i, op := range provenance.Mutations {
		eg.Go(func() error {
			docs, err := p.store.Find(gctx, p.window(op, now), docstore.WithSort(provenance.PathTimestamp, false))
			if err != nil {
				return err
			}

			found[i] = docs

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		log.Warn(ctx, "polling query failed",
			log.String("collection", p.dispatcher.collection),
			log.Cause(err),
		)

		return
	}

	for i, op := range provenance.Mutations {
		for _, doc := range found[i] {
			select {
			case <-p.stopCh:
				return
			default:
			}

			p.dispatcher.Polled(ctx, op, doc)
		}
	}

	p.since = now
}

func (p *Polling) window(op provenance.Operation, now time.Time) docstore.Selector {
	from := p.since.Add(-p.lookback)
	if from.Before(p.started) {
		from = p.started
	}

	return docstore.Selector{
		provenance.PathInstanceID: p.instanceID,
		provenance.PathOperation:  string(op),
		provenance.PathTimestamp: map[string]any{
			"$gt":  from,
			"$lte": now,
		},
	}
}

func (p *Polling) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)

		if p.ticker == nil {
			return
		}

		p.ticker.Stop()
		p.cancel()
		<-p.done
	})
}
